package stresstest

import (
	"fmt"
	"time"

	"github.com/studiowebux/cartload/internal/scenario"
	"github.com/studiowebux/cartload/internal/types"
)

// Run statuses
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"
)

// Defaults applied by DefaultConfig
const (
	DefaultUsers             = 10
	DefaultTestDurationSec   = 60
	DefaultRequestTimeoutSec = 10
	DefaultThinkMinMs        = 500
	DefaultThinkMaxMs        = 2000
	MaxUsers                 = 10000
)

// Config represents a load test configuration
type Config struct {
	ID                int64
	Name              string
	Host              string
	Backend           types.Backend
	Users             int
	SpawnRate         float64 // Users started per second, 0 starts all at once
	TestDurationSec   int     // 0 = unlimited
	IterationsPerUser int     // Weighted iterations after on_start, 0 = unlimited
	RequestTimeoutSec int     // Timeout for individual requests (default: 10s)
	ThinkMinMs        int
	ThinkMaxMs        int
	PoolCapacity      int
	CreateWeight      int
	AddWeight         int
	GetWeight         int
	MaxRPS            float64 // 0 = unlimited
	Seed              int64   // 0 = time based
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Run represents a load test run record
type Run struct {
	ID                     int64
	ConfigID               *int64
	ConfigName             string
	Backend                types.Backend
	Host                   string
	Users                  int
	StartedAt              time.Time
	CompletedAt            *time.Time
	Status                 string // "running", "completed", "cancelled", "failed"
	TotalRequestsCompleted int
	TotalSuccesses         int
	TotalFailures          int // Reported failures with a response (wrong status, bad body, 404)
	TotalErrors            int // Network errors
	CartsCreated           int // Pool size when the run ended
	RequestsPerSec         float64
	AvgDurationMs          float64
	MinDurationMs          int64
	MaxDurationMs          int64
	P50DurationMs          int64
	P95DurationMs          int64
	P99DurationMs          int64
}

// Metric represents a single request metric in a load test
type Metric struct {
	ID           int64
	RunID        int64
	Timestamp    time.Time
	ElapsedMs    int64
	Operation    types.Operation
	Name         string
	Method       string
	Path         string
	UserID       string
	StatusCode   int
	DurationMs   int64
	RequestSize  int64
	ResponseSize int64
	Success      bool
	ErrorMessage string // Network error text
	Failure      string // Failure message of a classified response
}

// DefaultConfig returns a configuration with the standard user behaviour
func DefaultConfig() *Config {
	return &Config{
		Name:              "default",
		Backend:           types.DefaultBackend,
		Users:             DefaultUsers,
		TestDurationSec:   DefaultTestDurationSec,
		RequestTimeoutSec: DefaultRequestTimeoutSec,
		ThinkMinMs:        DefaultThinkMinMs,
		ThinkMaxMs:        DefaultThinkMaxMs,
		CreateWeight:      scenario.DefaultCreateWeight,
		AddWeight:         scenario.DefaultAddWeight,
		GetWeight:         scenario.DefaultGetWeight,
	}
}

// Validate validates the load test configuration
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("config name is required")
	}
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if _, err := types.ParseBackend(string(c.Backend)); err != nil {
		return err
	}
	if c.Users <= 0 {
		return fmt.Errorf("users must be greater than 0")
	}
	if c.Users > MaxUsers {
		return fmt.Errorf("users cannot exceed %d", MaxUsers)
	}
	if c.SpawnRate < 0 {
		return fmt.Errorf("spawn rate cannot be negative")
	}
	if c.TestDurationSec < 0 {
		return fmt.Errorf("test duration cannot be negative")
	}
	if c.IterationsPerUser < 0 {
		return fmt.Errorf("iterations per user cannot be negative")
	}
	if c.TestDurationSec == 0 && c.IterationsPerUser == 0 {
		return fmt.Errorf("either test duration or iterations per user must be set")
	}
	if c.RequestTimeoutSec < 0 {
		return fmt.Errorf("request timeout cannot be negative")
	}
	if c.ThinkMinMs < 0 || c.ThinkMaxMs < 0 {
		return fmt.Errorf("think time cannot be negative")
	}
	if c.ThinkMinMs > c.ThinkMaxMs {
		return fmt.Errorf("think time min (%dms) cannot exceed max (%dms)", c.ThinkMinMs, c.ThinkMaxMs)
	}
	if c.PoolCapacity < 0 {
		return fmt.Errorf("pool capacity cannot be negative")
	}
	if c.MaxRPS < 0 {
		return fmt.Errorf("max RPS cannot be negative")
	}
	if _, err := scenario.NewDistribution(c.Tasks()); err != nil {
		return fmt.Errorf("invalid task weights: %w", err)
	}
	return nil
}

// Tasks returns the weighted task mix
func (c *Config) Tasks() []scenario.Task {
	return []scenario.Task{
		{Operation: types.OpCreateCart, Weight: c.CreateWeight},
		{Operation: types.OpAddItems, Weight: c.AddWeight},
		{Operation: types.OpGetCart, Weight: c.GetWeight},
	}
}

// GetTestDuration returns the test duration as time.Duration
func (c *Config) GetTestDuration() time.Duration {
	if c.TestDurationSec == 0 {
		return 0 // Unlimited
	}
	return time.Duration(c.TestDurationSec) * time.Second
}

// GetRequestTimeout returns the request timeout as time.Duration
func (c *Config) GetRequestTimeout() time.Duration {
	if c.RequestTimeoutSec == 0 {
		return scenario.DefaultRequestTimeout
	}
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

// GetSpawnDelay returns when the i-th user (0-based) starts relative to the run start
func (c *Config) GetSpawnDelay(i int) time.Duration {
	if c.SpawnRate <= 0 {
		return 0
	}
	return time.Duration(float64(i) / c.SpawnRate * float64(time.Second))
}

// GetThinkTime returns the think time range
func (c *Config) GetThinkTime() (time.Duration, time.Duration) {
	return time.Duration(c.ThinkMinMs) * time.Millisecond, time.Duration(c.ThinkMaxMs) * time.Millisecond
}

// ExpectedRequests returns the number of requests an iteration-bounded run issues,
// or 0 when the run is bounded by duration only
func (c *Config) ExpectedRequests() int {
	if c.IterationsPerUser == 0 {
		return 0
	}
	return c.Users * (c.IterationsPerUser + 1)
}

// IsRunning returns true if the run is currently in progress
func (r *Run) IsRunning() bool {
	return r.Status == StatusRunning
}

// IsCompleted returns true if the run has finished
func (r *Run) IsCompleted() bool {
	return r.Status == StatusCompleted || r.Status == StatusCancelled || r.Status == StatusFailed
}
