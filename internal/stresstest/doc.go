/*
Package stresstest runs the shopping-cart load test and stores its results.

# Overview

The stresstest package drives simulated users against a cart service:
  - One goroutine per simulated user
  - Ramp-up at a configurable spawn rate
  - Think time between iterations
  - Bounded by duration, iterations per user, or both
  - Optional global request rate limit
  - Database persistence of results

# Architecture

The package consists of three main components:

1. Manager (manager.go): Database operations for configs, runs, and metrics
2. Executor (executor.go): Concurrent test execution engine
3. Config (config.go): Configuration and validation

# Executor Design

Each user:
 1. Waits for its spawn slot (i / spawn rate seconds after start)
 2. Creates a cart (on_start)
 3. Loops: wait for the limiter, run one weighted task, report, think

Outcomes go through a buffered channel to a single collector that keeps
overall and per-operation Stats, failure message counts and the Prometheus
collectors, and writes metrics to the database in batches of 100.

# Database Schema

SQLite database stores:
  - load_test_configs: Saved configurations
  - load_test_runs: Test execution records
  - load_test_metrics: Individual request metrics

# Example Usage

	manager, err := NewManager("cartload.db")
	if err != nil {
		return err
	}
	defer manager.Close()

	config := DefaultConfig()
	config.Host = "http://localhost:8080"
	config.Users = 50
	config.SpawnRate = 10

	executor, err := NewExecutor(config, manager, WithLogger(logger))
	if err != nil {
		return err
	}

	executor.Start()
	err = executor.Wait()

	run := executor.GetRun()
	fmt.Printf("Completed %d requests\n", run.TotalRequestsCompleted)
	fmt.Printf("P95 latency: %dms\n", run.P95DurationMs)

# Cancellation

Tests end when:
  - The duration elapses (status completed)
  - Every user ran its iterations (status completed)
  - Stop/StopWithContext is called (status cancelled)

Requests in flight at cancellation are aborted and not counted.
*/
package stresstest
