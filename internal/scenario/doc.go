/*
Package scenario implements the cart traffic generator: the weighted
shopping-cart tasks a simulated user runs and how each response is
classified.

# Tasks

Each iteration a user draws one operation from a Distribution
(create_cart:add_items_to_cart:get_cart = 3:4:3 by default):

	create_cart        POST /shopping-carts           expects 201 {"shopping_cart_id": ...}
	add_items_to_cart  POST /shopping-carts/{id}/items expects 204
	get_cart           GET  /shopping-carts/{id}       expects 200 {"cart": ..., "items": ...}

add and get target the user's own cart when it has one, otherwise a random
cart from the shared pool. With no cart at all they create one instead and
skip their own request.

# State

Generator holds what all users share (the CartAPI and the cart pool).
Session holds what belongs to one user (its last cart and random source)
and is passed explicitly into every operation.

A 404 on add or get means the cart is gone: the id is removed from the pool
and from the session if it was the user's own cart.

# Failures

Failures are reported, never returned. Every operation returns the outcomes
it produced and the caller keeps looping. No request is retried.
*/
package scenario
