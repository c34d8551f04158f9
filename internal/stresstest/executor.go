package stresstest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/studiowebux/cartload/internal/cartpool"
	"github.com/studiowebux/cartload/internal/metrics"
	"github.com/studiowebux/cartload/internal/scenario"
	"github.com/studiowebux/cartload/internal/types"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const metricsBufferSize = 100

type failureKey struct {
	name    string
	message string
}

// Option configures an Executor
type Option func(*Executor)

// WithLogger sets the logger used for diagnostics
func WithLogger(logger *zap.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithCollectors records outcomes on Prometheus collectors
func WithCollectors(c *metrics.Collectors) Option {
	return func(e *Executor) {
		e.collectors = c
	}
}

// WithAPI replaces the HTTP client talking to the cart service
func WithAPI(api scenario.CartAPI) Option {
	return func(e *Executor) {
		e.api = api
	}
}

// WithTLS sets the TLS material of the HTTP client
func WithTLS(tlsConfig *types.TLSConfig) Option {
	return func(e *Executor) {
		e.tlsConfig = tlsConfig
	}
}

// Executor runs simulated users against the cart service
type Executor struct {
	config     *Config
	manager    *Manager
	run        *Run
	stats      *Stats
	opStats    map[types.Operation]*Stats
	failures   map[failureKey]int
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	resultChan chan types.Outcome
	closeOnce  sync.Once // Ensures resultChan is only closed once
	finalOnce  sync.Once
	startOnce  sync.Once
	collected  chan struct{}
	testStart  time.Time
	statsMu    sync.Mutex

	api        scenario.CartAPI
	tlsConfig  *types.TLSConfig
	generator  *scenario.Generator
	limiter    *rate.Limiter
	logger     *zap.Logger
	collectors *metrics.Collectors

	activeUsers    int32 // Atomic counter of running users
	finishedUsers  int32 // Users that ran all their iterations
	stopped        atomic.Bool
	durationPassed atomic.Bool
	metricsBuf     []*Metric
	waitErr        error
}

// NewExecutor creates a new load test executor and its run record
func NewExecutor(config *Config, manager *Manager, opts ...Option) (*Executor, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	e := &Executor{
		config:   config,
		manager:  manager,
		stats:    NewStats(),
		opStats:  make(map[types.Operation]*Stats, len(types.Operations)),
		failures: make(map[failureKey]int),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	dist, err := scenario.NewDistribution(config.Tasks())
	if err != nil {
		return nil, fmt.Errorf("invalid task weights: %w", err)
	}

	if e.api == nil {
		client, err := scenario.NewClient(scenario.ClientOptions{
			BaseURL:  config.Host,
			Timeout:  config.GetRequestTimeout(),
			MaxConns: config.Users,
			TLS:      e.tlsConfig,
			Logger:   e.logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to build HTTP client: %w", err)
		}
		e.api = client
	}

	e.generator = scenario.NewGenerator(e.api, cartpool.New(config.PoolCapacity), dist)
	if config.MaxRPS > 0 {
		burst := int(config.MaxRPS)
		if burst < 1 {
			burst = 1
		}
		e.limiter = rate.NewLimiter(rate.Limit(config.MaxRPS), burst)
	}

	// Create run record
	e.run = &Run{
		ConfigName: config.Name,
		Backend:    config.Backend,
		Host:       config.Host,
		Users:      config.Users,
		StartedAt:  time.Now(),
		Status:     StatusRunning,
	}
	if config.ID > 0 {
		e.run.ConfigID = &config.ID
	}
	if err := manager.CreateRun(e.run); err != nil {
		return nil, fmt.Errorf("failed to create run record: %w", err)
	}

	e.stats.TotalRequests = config.ExpectedRequests()
	e.ctx, e.cancelFunc = context.WithCancel(context.Background())
	e.resultChan = make(chan types.Outcome, config.Users*2)
	e.collected = make(chan struct{})
	e.metricsBuf = make([]*Metric, 0, metricsBufferSize)

	return e, nil
}

// Start spawns the simulated users. Only the first call has an effect,
// and none once Wait or Stop ran.
func (e *Executor) Start() {
	e.startOnce.Do(e.start)
}

func (e *Executor) start() {
	e.testStart = time.Now()

	seed := e.config.Seed
	if seed == 0 {
		seed = e.testStart.UnixNano()
	}

	e.logger.Info("Load test started",
		zap.Int64("run_id", e.run.ID),
		zap.String("backend", string(e.config.Backend)),
		zap.String("host", e.config.Host),
		zap.Int("users", e.config.Users),
		zap.Float64("spawn_rate", e.config.SpawnRate),
	)

	for i := 0; i < e.config.Users; i++ {
		e.wg.Add(1)
		go e.user(i, seed+int64(i))
	}

	go e.collectResults()

	if testDuration := e.config.GetTestDuration(); testDuration > 0 {
		go e.durationTimer(testDuration)
	}
}

// durationTimer cancels the test after the specified duration
func (e *Executor) durationTimer(duration time.Duration) {
	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-timer.C:
		e.durationPassed.Store(true)
		e.cancelFunc()
	case <-e.ctx.Done():
	}
}

// Stop cancels the load test and waits for the users to exit
func (e *Executor) Stop() {
	e.stopped.Store(true)
	e.cancelFunc()
	e.Wait()
}

// StopWithContext cancels the load test with a timeout.
// Returns an error if the users don't exit within the context deadline;
// the run is finalized once they do.
func (e *Executor) StopWithContext(ctx context.Context) error {
	e.stopped.Store(true)
	e.cancelFunc()

	done := make(chan struct{})
	go func() {
		e.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when the duration elapsed, on Stop, and once Wait has returned
func (e *Executor) Done() <-chan struct{} {
	return e.ctx.Done()
}

// closeResultChan safely closes the result channel (only once)
func (e *Executor) closeResultChan() {
	e.closeOnce.Do(func() {
		close(e.resultChan)
	})
}

// Wait blocks until every user has exited, then finalizes the run.
// It is safe to call more than once.
func (e *Executor) Wait() error {
	// Without Start there is no collector to wait for
	e.startOnce.Do(func() { close(e.collected) })

	e.wg.Wait()
	e.closeResultChan()
	<-e.collected

	e.finalOnce.Do(func() {
		status := StatusCancelled
		if !e.stopped.Load() &&
			(e.durationPassed.Load() || int(atomic.LoadInt32(&e.finishedUsers)) == e.config.Users) {
			status = StatusCompleted
		}
		e.cancelFunc()
		e.waitErr = e.finalize(status)
	})
	return e.waitErr
}

// GetStats returns a snapshot of the overall statistics with sorted durations
func (e *Executor) GetStats() *Stats {
	e.statsMu.Lock()
	statsCopy := e.stats.Clone()
	e.statsMu.Unlock()

	statsCopy.Sort()
	statsCopy.ActiveUsers = e.ActiveUsers()
	return statsCopy
}

// GetOperationStats returns a copy of the per-operation statistics
func (e *Executor) GetOperationStats() map[types.Operation]*Stats {
	e.statsMu.Lock()
	out := make(map[types.Operation]*Stats, len(e.opStats))
	for op, s := range e.opStats {
		out[op] = s.Clone()
	}
	e.statsMu.Unlock()

	for _, s := range out {
		s.Sort()
	}
	return out
}

// GetFailures returns the reported failure messages, most frequent first
func (e *Executor) GetFailures() []FailureCount {
	e.statsMu.Lock()
	out := make([]FailureCount, 0, len(e.failures))
	for key, count := range e.failures {
		out = append(out, FailureCount{Name: key.name, Message: key.message, Count: count})
	}
	e.statsMu.Unlock()

	sortFailures(out)
	return out
}

// PoolSize returns the number of cart ids currently known
func (e *Executor) PoolSize() int {
	return e.generator.Pool().Len()
}

// ActiveUsers returns the number of users currently running
func (e *Executor) ActiveUsers() int {
	return int(atomic.LoadInt32(&e.activeUsers))
}

// Elapsed returns the time since Start
func (e *Executor) Elapsed() time.Duration {
	if e.testStart.IsZero() {
		return 0
	}
	return time.Since(e.testStart)
}

// Config returns the configuration of the run
func (e *Executor) Config() *Config {
	return e.config
}

// GetRun returns the current run record
func (e *Executor) GetRun() *Run {
	return e.run
}

// user runs one simulated user: on_start create, then weighted iterations
// separated by think time until the iteration count or the run context ends
func (e *Executor) user(index int, seed int64) {
	defer e.wg.Done()

	if delay := e.config.GetSpawnDelay(index); delay > 0 {
		if !e.sleep(delay) {
			return
		}
	}
	if e.ctx.Err() != nil {
		return
	}

	atomic.AddInt32(&e.activeUsers, 1)
	e.collectors.UserStarted()
	defer func() {
		atomic.AddInt32(&e.activeUsers, -1)
		e.collectors.UserStopped()
	}()

	session := scenario.NewSession(seed)
	if !e.throttle() {
		return
	}
	e.report(e.generator.Start(e.ctx, session))

	iterations := e.config.IterationsPerUser
	for i := 0; iterations == 0 || i < iterations; i++ {
		if e.ctx.Err() != nil || !e.throttle() {
			return
		}
		_, outcomes := e.generator.Step(e.ctx, session)
		e.report(outcomes)

		if iterations > 0 && i == iterations-1 {
			break
		}
		if !e.think(session) {
			return
		}
	}
	atomic.AddInt32(&e.finishedUsers, 1)
}

// throttle waits for the rate limiter; false means the run was cancelled
func (e *Executor) throttle() bool {
	if e.limiter == nil {
		return true
	}
	return e.limiter.Wait(e.ctx) == nil
}

// think pauses for a uniform time within the configured range
func (e *Executor) think(s *scenario.Session) bool {
	lo, hi := e.config.GetThinkTime()
	wait := lo
	if hi > lo {
		wait += time.Duration(s.Rand().Int63n(int64(hi - lo + 1)))
	}
	if wait <= 0 {
		return e.ctx.Err() == nil
	}
	return e.sleep(wait)
}

// sleep waits for d unless the run is cancelled first
func (e *Executor) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-e.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// report hands outcomes to the collector. Requests aborted because the
// run itself was cancelled are dropped rather than counted as failures.
func (e *Executor) report(outcomes []types.Outcome) {
	for _, o := range outcomes {
		if e.ctx.Err() != nil && errors.Is(o.Err, context.Canceled) {
			continue
		}
		e.resultChan <- o
	}
}

// collectResults collects and processes request outcomes
func (e *Executor) collectResults() {
	defer close(e.collected)

	for o := range e.resultChan {
		durationMs := o.Duration.Milliseconds()
		isNetworkError := o.IsNetworkError()
		isValidationError := o.IsValidationError()

		// Update statistics
		e.statsMu.Lock()
		e.stats.AddResult(durationMs, isNetworkError, isValidationError)
		opStats, ok := e.opStats[o.Operation]
		if !ok {
			opStats = NewStats()
			e.opStats[o.Operation] = opStats
		}
		opStats.AddResult(durationMs, isNetworkError, isValidationError)
		if !o.Success {
			e.failures[failureKey{name: o.Name, message: o.Failure}]++
		}
		e.statsMu.Unlock()

		e.collectors.Observe(o)
		e.collectors.SetPoolSize(e.generator.Pool().Len())

		// Buffer metric for batch insert
		metric := &Metric{
			RunID:        e.run.ID,
			Timestamp:    o.Timestamp,
			ElapsedMs:    o.Timestamp.Sub(e.testStart).Milliseconds(),
			Operation:    o.Operation,
			Name:         o.Name,
			Method:       o.Method,
			Path:         o.Path,
			UserID:       o.UserID,
			StatusCode:   o.StatusCode,
			DurationMs:   durationMs,
			RequestSize:  o.RequestSize,
			ResponseSize: o.ResponseSize,
			Success:      o.Success,
		}
		if isNetworkError {
			metric.ErrorMessage = o.Failure
		} else if isValidationError {
			metric.Failure = o.Failure
		}

		e.metricsBuf = append(e.metricsBuf, metric)

		// Flush buffer if full
		if len(e.metricsBuf) >= metricsBufferSize {
			e.flushMetrics()
		}
	}

	// Flush any remaining metrics
	e.flushMetrics()
}

// flushMetrics writes buffered metrics to database
func (e *Executor) flushMetrics() {
	if len(e.metricsBuf) == 0 {
		return
	}

	if err := e.manager.SaveMetricsBatch(e.metricsBuf); err != nil {
		// Log error but don't stop execution
		e.logger.Warn("Failed to save metrics",
			zap.Int64("run_id", e.run.ID),
			zap.Int("count", len(e.metricsBuf)),
			zap.Error(err),
		)
	}

	e.metricsBuf = e.metricsBuf[:0]
}

// finalize completes the run record with final statistics
func (e *Executor) finalize(status string) error {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()

	now := time.Now()
	e.run.CompletedAt = &now
	e.run.Status = status
	e.run.TotalRequestsCompleted = e.stats.CompletedRequests
	e.run.TotalSuccesses = e.stats.SuccessCount
	e.run.TotalFailures = e.stats.ValidationErrorCount
	e.run.TotalErrors = e.stats.ErrorCount
	e.run.CartsCreated = e.generator.Pool().Len()
	e.run.RequestsPerSec = e.stats.RequestsPerSecond(now.Sub(e.testStart))
	e.run.AvgDurationMs = e.stats.AvgDurationMs()
	e.run.MinDurationMs = e.stats.Min()
	e.run.MaxDurationMs = e.stats.Max()
	e.run.P50DurationMs = e.stats.P50()
	e.run.P95DurationMs = e.stats.P95()
	e.run.P99DurationMs = e.stats.P99()

	e.logger.Info("Load test finished",
		zap.Int64("run_id", e.run.ID),
		zap.String("status", status),
		zap.Int("requests", e.run.TotalRequestsCompleted),
		zap.Int("failures", e.run.TotalFailures),
		zap.Int("errors", e.run.TotalErrors),
		zap.Int("carts", e.run.CartsCreated),
	)

	if err := e.manager.UpdateRun(e.run); err != nil {
		e.logger.Error("Failed to update run record", zap.Int64("run_id", e.run.ID), zap.Error(err))
		return fmt.Errorf("failed to update run record: %w", err)
	}
	return nil
}
