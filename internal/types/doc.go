/*
Package types defines the data structures shared across cartload.

# Overview

The types package provides shared definitions for:
  - Backend labels (mysql, dynamodb)
  - Operation names of the weighted tasks
  - Wire bodies of the shopping-cart API
  - Outcomes reported by simulated users
  - Client TLS settings

# Outcomes

Outcome is the unit of reporting. Every request a simulated user issues
produces exactly one Outcome, whether it succeeded, failed classification
or never got a response:

	Success        2xx with the expected body shape
	Validation     response received, wrong status or body
	Network        no response (status 0, Err set)

# Wire Bodies

	POST /shopping-carts              {"customer_id": 42}
	POST /shopping-carts/{id}/items   {"product_id": 7, "quantity": 2}
	GET  /shopping-carts/{id}

Cart identifiers are carried as strings. The MySQL backend returns numeric
ids and the DynamoDB backend returns string ids; both are normalised by the
scenario package before they reach the pool.
*/
package types
