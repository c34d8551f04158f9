package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/studiowebux/cartload/internal/analytics"
	"github.com/studiowebux/cartload/internal/filter"
	"github.com/studiowebux/cartload/internal/stresstest"
)

// Report formats of the report command
const (
	ReportText       = "text"
	ReportJSON       = "json"
	ReportVegeta     = "vegeta"
	ReportVegetaJSON = "vegeta-json"
)

// PrintRuns lists stored runs
func PrintRuns(w io.Writer, runs []*stresstest.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs found")
		return
	}

	t := newTable().Headers("ID", "Started", "Backend", "Config", "Users", "Status", "Reqs", "Fails", "Req/s", "P95")
	for _, r := range runs {
		t.Row(
			fmt.Sprintf("%d", r.ID),
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			string(r.Backend),
			r.ConfigName,
			fmt.Sprintf("%d", r.Users),
			r.Status,
			fmt.Sprintf("%d", r.TotalRequestsCompleted),
			fmt.Sprintf("%d", r.TotalFailures+r.TotalErrors),
			fmt.Sprintf("%.2f", r.RequestsPerSec),
			fmt.Sprintf("%dms", r.P95DurationMs),
		)
	}
	fmt.Fprintln(w, t.Render())
}

// PrintConfigs lists saved configurations
func PrintConfigs(w io.Writer, configs []*stresstest.Config) {
	if len(configs) == 0 {
		fmt.Fprintln(w, "No saved configs")
		return
	}

	t := newTable().Headers("ID", "Name", "Backend", "Host", "Users", "Spawn/s", "Duration", "Iterations", "Weights")
	for _, c := range configs {
		t.Row(
			fmt.Sprintf("%d", c.ID),
			c.Name,
			string(c.Backend),
			c.Host,
			fmt.Sprintf("%d", c.Users),
			fmt.Sprintf("%g", c.SpawnRate),
			(time.Duration(c.TestDurationSec) * time.Second).String(),
			fmt.Sprintf("%d", c.IterationsPerUser),
			fmt.Sprintf("%d:%d:%d", c.CreateWeight, c.AddWeight, c.GetWeight),
		)
	}
	fmt.Fprintln(w, t.Render())
}

type jsonReport struct {
	Run        *stresstest.Run            `json:"run"`
	Operations []analytics.OperationStats `json:"operations"`
}

// PrintReport renders a stored run in one of the report formats
func PrintReport(w io.Writer, a *analytics.Analyzer, manager *stresstest.Manager, runID int64, format string) error {
	switch format {
	case ReportVegeta:
		return a.VegetaReport(runID, analytics.FormatText, w)
	case ReportVegetaJSON:
		return a.VegetaReport(runID, analytics.FormatJSON, w)
	case "", ReportText, ReportJSON:
	default:
		return fmt.Errorf("unknown report format %q (expected text, json, vegeta or vegeta-json)", format)
	}

	run, err := manager.GetRun(runID)
	if err != nil {
		return fmt.Errorf("run %d not found: %w", runID, err)
	}
	ops, err := a.OperationStats(runID)
	if err != nil {
		return err
	}

	if format == ReportJSON {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(jsonReport{Run: run, Operations: ops})
	}

	fmt.Fprintf(w, "Run #%d  %s  %s  %s\n", run.ID, run.ConfigName, run.Backend, run.Status)
	fmt.Fprintf(w, "Host: %s  Users: %d  Started: %s\n", run.Host, run.Users, run.StartedAt.Local().Format(time.RFC3339))
	fmt.Fprintf(w, "Requests: %d  Successes: %d  Failures: %d  Errors: %d  Carts: %d  Req/s: %.2f\n\n",
		run.TotalRequestsCompleted, run.TotalSuccesses, run.TotalFailures, run.TotalErrors, run.CartsCreated, run.RequestsPerSec)

	t := newTable().Headers("Operation", "Reqs", "OK", "Fails", "Net Errs", "Avg ms", "Min", "Max", "P50", "P95", "P99", "Status Codes")
	for _, s := range ops {
		t.Row(
			string(s.Operation),
			fmt.Sprintf("%d", s.TotalCalls),
			fmt.Sprintf("%d", s.SuccessCount),
			fmt.Sprintf("%d", s.FailureCount),
			fmt.Sprintf("%d", s.NetworkErrors),
			fmt.Sprintf("%.1f", s.AvgDurationMs),
			fmt.Sprintf("%d", s.MinDurationMs),
			fmt.Sprintf("%d", s.MaxDurationMs),
			fmt.Sprintf("%d", s.P50DurationMs),
			fmt.Sprintf("%d", s.P95DurationMs),
			fmt.Sprintf("%d", s.P99DurationMs),
			formatStatusCodes(s.StatusCodes),
		)
	}
	fmt.Fprintln(w, t.Render())
	return nil
}

func formatStatusCodes(codes map[int]int) string {
	keys := make([]int, 0, len(codes))
	for code := range codes {
		keys = append(keys, code)
	}
	sort.Ints(keys)

	parts := make([]string, 0, len(keys))
	for _, code := range keys {
		parts = append(parts, fmt.Sprintf("%d:%d", code, codes[code]))
	}
	return strings.Join(parts, " ")
}

// PrintComparison renders two runs side by side
func PrintComparison(w io.Writer, c *analytics.Comparison) {
	fmt.Fprintf(w, "A: run #%d (%s)   B: run #%d (%s)\n\n", c.RunA.ID, c.RunA.Backend, c.RunB.ID, c.RunB.Backend)

	t := newTable().Headers("Scope", "Metric", "A", "B", "Diff", "Diff %")
	addDeltas := func(scope string, deltas []analytics.Delta) {
		for _, d := range deltas {
			t.Row(scope, d.Metric,
				fmt.Sprintf("%.2f", d.A),
				fmt.Sprintf("%.2f", d.B),
				fmt.Sprintf("%+.2f", d.Diff),
				fmt.Sprintf("%+.1f%%", d.Percent))
		}
	}
	addDeltas("overall", c.Overall)
	for _, op := range c.Operations {
		addDeltas(string(op.Operation), op.Deltas)
	}
	fmt.Fprintln(w, t.Render())
}

// PrintReportQuery renders the JSON report of a run narrowed by JMESPath filter and query expressions
func PrintReportQuery(w io.Writer, a *analytics.Analyzer, manager *stresstest.Manager, runID int64, filterExpr, query string) error {
	var buf bytes.Buffer
	if err := PrintReport(&buf, a, manager, runID, ReportJSON); err != nil {
		return err
	}
	out, err := filter.Apply(buf.Bytes(), filterExpr, query)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
