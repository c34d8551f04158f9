package analytics

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/studiowebux/cartload/internal/stresstest"
	"github.com/studiowebux/cartload/internal/types"
	vegeta "github.com/tsenart/vegeta/v12/lib"
)

// DefaultCacheTTL bounds how long per-run stats are reused
const DefaultCacheTTL = 5 * time.Minute

// Report formats accepted by VegetaReport
const (
	FormatText = "text"
	FormatJSON = "json"
)

// OperationStats aggregates the stored metrics of one operation within a run
type OperationStats struct {
	Operation     types.Operation
	TotalCalls    int
	SuccessCount  int
	FailureCount  int // Responses classified as failures
	NetworkErrors int // No response (status code 0)
	AvgDurationMs float64
	MinDurationMs int64
	MaxDurationMs int64
	P50DurationMs int64 // Percentiles over successful requests only
	P95DurationMs int64
	P99DurationMs int64
	TotalReqSize  int64
	TotalRespSize int64
	StatusCodes   map[int]int
}

// SuccessRate returns the success rate as a percentage
func (s *OperationStats) SuccessRate() float64 {
	if s.TotalCalls == 0 {
		return 0
	}
	return float64(s.SuccessCount) / float64(s.TotalCalls) * 100
}

// Analyzer computes reports over stored load test runs
type Analyzer struct {
	manager *stresstest.Manager
	db      *sql.DB
	cache   *statsCache
}

// New creates an analyzer reading from the manager's database
func New(manager *stresstest.Manager, ttl time.Duration) *Analyzer {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Analyzer{
		manager: manager,
		db:      manager.DB(),
		cache:   newStatsCache(ttl),
	}
}

// Invalidate drops cached stats for a run, e.g. after it was deleted
func (a *Analyzer) Invalidate(runID int64) {
	a.cache.invalidateRun(runID)
}

// OperationStats returns per-operation stats for a run in reporting order
func (a *Analyzer) OperationStats(runID int64) ([]OperationStats, error) {
	if cached, ok := a.cache.get(runID); ok {
		return cached, nil
	}

	run, err := a.manager.GetRun(runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load run %d: %w", runID, err)
	}

	statsList, err := a.aggregate(runID)
	if err != nil {
		return nil, err
	}
	if err := a.fillPercentiles(runID, statsList); err != nil {
		return nil, err
	}

	// Running runs still receive metrics
	if run.IsCompleted() {
		a.cache.set(runID, statsList)
	}
	return statsList, nil
}

func (a *Analyzer) aggregate(runID int64) ([]OperationStats, error) {
	// Status codes are aggregated with JSON in the same query
	query := `
		WITH status_codes_agg AS (
			SELECT
				operation,
				json_group_object(CAST(status_code AS TEXT), count) as status_codes_json
			FROM (
				SELECT operation, status_code, COUNT(*) as count
				FROM load_test_metrics
				WHERE run_id = ?
				GROUP BY operation, status_code
			)
			GROUP BY operation
		)
		SELECT
			m.operation,
			COUNT(*) as total_calls,
			SUM(CASE WHEN m.success = 1 THEN 1 ELSE 0 END) as success_count,
			SUM(CASE WHEN m.success = 0 AND m.status_code > 0 THEN 1 ELSE 0 END) as failure_count,
			SUM(CASE WHEN m.status_code = 0 THEN 1 ELSE 0 END) as network_errors,
			AVG(m.duration_ms) as avg_duration,
			MIN(m.duration_ms) as min_duration,
			MAX(m.duration_ms) as max_duration,
			SUM(m.request_size) as total_req_size,
			SUM(m.response_size) as total_resp_size,
			COALESCE(s.status_codes_json, '{}') as status_codes_json
		FROM load_test_metrics m
		LEFT JOIN status_codes_agg s ON m.operation = s.operation
		WHERE m.run_id = ?
		GROUP BY m.operation
	`

	rows, err := a.db.Query(query, runID, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats per operation: %w", err)
	}
	defer rows.Close()

	byOperation := make(map[types.Operation]*OperationStats)
	for rows.Next() {
		s := &OperationStats{}
		var statusCodesJSON string

		err := rows.Scan(
			&s.Operation,
			&s.TotalCalls,
			&s.SuccessCount,
			&s.FailureCount,
			&s.NetworkErrors,
			&s.AvgDurationMs,
			&s.MinDurationMs,
			&s.MaxDurationMs,
			&s.TotalReqSize,
			&s.TotalRespSize,
			&statusCodesJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stats: %w", err)
		}

		s.StatusCodes, err = parseStatusCodes(statusCodesJSON)
		if err != nil {
			return nil, err
		}
		byOperation[s.Operation] = s
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var statsList []OperationStats
	for _, op := range types.Operations {
		if s, ok := byOperation[op]; ok {
			statsList = append(statsList, *s)
		}
	}
	return statsList, nil
}

func parseStatusCodes(statusCodesJSON string) (map[int]int, error) {
	statusCodes := make(map[int]int)
	if statusCodesJSON == "{}" {
		return statusCodes, nil
	}

	var statusCodesMap map[string]int
	if err := json.Unmarshal([]byte(statusCodesJSON), &statusCodesMap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status codes: %w", err)
	}
	// Convert string keys to int keys
	for codeStr, count := range statusCodesMap {
		var code int
		if _, err := fmt.Sscanf(codeStr, "%d", &code); err == nil {
			statusCodes[code] = count
		}
	}
	return statusCodes, nil
}

func (a *Analyzer) fillPercentiles(runID int64, statsList []OperationStats) error {
	rows, err := a.db.Query(`
		SELECT operation, duration_ms
		FROM load_test_metrics
		WHERE run_id = ? AND success = 1
		ORDER BY operation, duration_ms
	`, runID)
	if err != nil {
		return fmt.Errorf("failed to load durations: %w", err)
	}
	defer rows.Close()

	durations := make(map[types.Operation]*stresstest.Stats)
	for rows.Next() {
		var op types.Operation
		var durationMs int64
		if err := rows.Scan(&op, &durationMs); err != nil {
			return err
		}
		if durations[op] == nil {
			durations[op] = stresstest.NewStats()
		}
		durations[op].AddResult(durationMs, false, false)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for i := range statsList {
		if d, ok := durations[statsList[i].Operation]; ok {
			statsList[i].P50DurationMs = d.P50()
			statsList[i].P95DurationMs = d.P95()
			statsList[i].P99DurationMs = d.P99()
		}
	}
	return nil
}

// Delta is one metric of two runs side by side
type Delta struct {
	Metric  string
	A       float64
	B       float64
	Diff    float64 // B - A
	Percent float64 // Diff relative to A, 0 when A is 0
}

func newDelta(metric string, a, b float64) Delta {
	d := Delta{Metric: metric, A: a, B: b, Diff: b - a}
	if a != 0 {
		d.Percent = d.Diff / a * 100
	}
	return d
}

// OperationComparison holds the deltas of one operation
type OperationComparison struct {
	Operation types.Operation
	Deltas    []Delta
}

// Comparison holds two runs side by side
type Comparison struct {
	RunA       *stresstest.Run
	RunB       *stresstest.Run
	Overall    []Delta
	Operations []OperationComparison
}

// Compare puts two runs side by side, typically the same load against each backend
func (a *Analyzer) Compare(runA, runB int64) (*Comparison, error) {
	ra, err := a.manager.GetRun(runA)
	if err != nil {
		return nil, fmt.Errorf("failed to load run %d: %w", runA, err)
	}
	rb, err := a.manager.GetRun(runB)
	if err != nil {
		return nil, fmt.Errorf("failed to load run %d: %w", runB, err)
	}

	c := &Comparison{
		RunA: ra,
		RunB: rb,
		Overall: []Delta{
			newDelta("requests", float64(ra.TotalRequestsCompleted), float64(rb.TotalRequestsCompleted)),
			newDelta("failures", float64(ra.TotalFailures+ra.TotalErrors), float64(rb.TotalFailures+rb.TotalErrors)),
			newDelta("req/s", ra.RequestsPerSec, rb.RequestsPerSec),
			newDelta("avg ms", ra.AvgDurationMs, rb.AvgDurationMs),
			newDelta("p50 ms", float64(ra.P50DurationMs), float64(rb.P50DurationMs)),
			newDelta("p95 ms", float64(ra.P95DurationMs), float64(rb.P95DurationMs)),
			newDelta("p99 ms", float64(ra.P99DurationMs), float64(rb.P99DurationMs)),
			newDelta("carts", float64(ra.CartsCreated), float64(rb.CartsCreated)),
		},
	}

	statsA, err := a.OperationStats(runA)
	if err != nil {
		return nil, err
	}
	statsB, err := a.OperationStats(runB)
	if err != nil {
		return nil, err
	}

	for _, op := range types.Operations {
		sa := findOperation(statsA, op)
		sb := findOperation(statsB, op)
		if sa.TotalCalls == 0 && sb.TotalCalls == 0 {
			continue
		}
		c.Operations = append(c.Operations, OperationComparison{
			Operation: op,
			Deltas: []Delta{
				newDelta("requests", float64(sa.TotalCalls), float64(sb.TotalCalls)),
				newDelta("success %", sa.SuccessRate(), sb.SuccessRate()),
				newDelta("avg ms", sa.AvgDurationMs, sb.AvgDurationMs),
				newDelta("p95 ms", float64(sa.P95DurationMs), float64(sb.P95DurationMs)),
			},
		})
	}
	return c, nil
}

func findOperation(statsList []OperationStats, op types.Operation) OperationStats {
	for _, s := range statsList {
		if s.Operation == op {
			return s
		}
	}
	return OperationStats{Operation: op}
}

// VegetaResults converts the stored metrics of a run into vegeta results
func (a *Analyzer) VegetaResults(runID int64) ([]vegeta.Result, error) {
	run, err := a.manager.GetRun(runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load run %d: %w", runID, err)
	}
	metrics, err := a.manager.GetMetrics(runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load metrics: %w", err)
	}

	host := strings.TrimRight(run.Host, "/")
	results := make([]vegeta.Result, 0, len(metrics))
	for i, m := range metrics {
		r := vegeta.Result{
			Attack:    run.ConfigName,
			Seq:       uint64(i),
			Code:      uint16(m.StatusCode),
			Timestamp: m.Timestamp,
			Latency:   time.Duration(m.DurationMs) * time.Millisecond,
			BytesOut:  uint64(m.RequestSize),
			BytesIn:   uint64(m.ResponseSize),
			Method:    m.Method,
			URL:       host + m.Path,
		}
		switch {
		case m.ErrorMessage != "":
			r.Error = m.ErrorMessage
		case m.Failure != "":
			r.Error = m.Failure
		}
		results = append(results, r)
	}
	return results, nil
}

// VegetaReport renders a run as a vegeta text or JSON report
func (a *Analyzer) VegetaReport(runID int64, format string, w io.Writer) error {
	results, err := a.VegetaResults(runID)
	if err != nil {
		return err
	}

	var m vegeta.Metrics
	for i := range results {
		m.Add(&results[i])
	}
	m.Close()

	var rep vegeta.Reporter
	switch format {
	case "", FormatText:
		rep = vegeta.NewTextReporter(&m)
	case FormatJSON:
		rep = vegeta.NewJSONReporter(&m)
	default:
		return fmt.Errorf("unknown report format %q (expected text or json)", format)
	}
	return rep.Report(w)
}
