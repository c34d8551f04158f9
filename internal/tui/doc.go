/*
Package tui implements the live progress view of a running load test.

# Architecture

The view follows the Bubble Tea framework's Model-Update-View pattern:
  - Model: Holds the latest snapshot of the executor
  - Update: Refreshes the snapshot every 250ms and handles stop keys
  - View: Renders progress, users, pool size and per-operation latency

The model only reads through the Source interface, which *stresstest.Executor
satisfies. Pressing q, esc or ctrl+c stops the run; the program exits once
the caller closes the done channel.
*/
package tui
