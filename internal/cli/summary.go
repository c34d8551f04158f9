package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/studiowebux/cartload/internal/stresstest"
	"github.com/studiowebux/cartload/internal/types"
)

const ruleWidth = 60

// MaxFailuresShown caps the failure list of the summary
const MaxFailuresShown = 10

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#006400", Dark: "#00ff00"})
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#8b0000", Dark: "#ff0000"})
)

func rule() string {
	return strings.Repeat("=", ruleWidth)
}

// PrintBanner prints the start-of-test banner
func PrintBanner(w io.Writer, config *stresstest.Config) {
	fmt.Fprintf(w, "\n%s\n", rule())
	fmt.Fprintln(w, "Starting Shopping Cart Load Test")
	fmt.Fprintf(w, "Backend: %s\n", config.Backend)
	fmt.Fprintf(w, "Host: %s\n", config.Host)
	fmt.Fprintf(w, "%s\n\n", rule())
}

// Summary is everything printed at the end of a run
type Summary struct {
	Run          *stresstest.Run
	Overall      *stresstest.Stats
	Operations   map[types.Operation]*stresstest.Stats
	Failures     []stresstest.FailureCount
	CartsCreated int
	Elapsed      time.Duration
}

// SummaryFromExecutor snapshots a finished executor
func SummaryFromExecutor(e *stresstest.Executor) Summary {
	return Summary{
		Run:          e.GetRun(),
		Overall:      e.GetStats(),
		Operations:   e.GetOperationStats(),
		Failures:     e.GetFailures(),
		CartsCreated: e.PoolSize(),
		Elapsed:      e.Elapsed(),
	}
}

func newTable() *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

func statsRow(name string, s *stresstest.Stats, elapsed time.Duration) []string {
	return []string{
		name,
		fmt.Sprintf("%d", s.CompletedRequests),
		fmt.Sprintf("%d", s.ValidationErrorCount+s.ErrorCount),
		fmt.Sprintf("%.1f%%", s.FailureRate()),
		fmt.Sprintf("%.0f", s.AvgDurationMs()),
		fmt.Sprintf("%d", s.Min()),
		fmt.Sprintf("%d", s.Max()),
		fmt.Sprintf("%d", s.P50()),
		fmt.Sprintf("%d", s.P95()),
		fmt.Sprintf("%d", s.P99()),
		fmt.Sprintf("%.2f", s.RequestsPerSecond(elapsed)),
	}
}

var statsHeaders = []string{"Name", "Reqs", "Fails", "Fail %", "Avg ms", "Min", "Max", "P50", "P95", "P99", "Req/s"}

// PrintSummary prints the end-of-test banner followed by the statistics tables
func PrintSummary(w io.Writer, s Summary) {
	fmt.Fprintf(w, "\n%s\n", rule())
	fmt.Fprintln(w, "Test Complete!")
	fmt.Fprintf(w, "Total carts created: %d\n", s.CartsCreated)
	fmt.Fprintf(w, "%s\n\n", rule())

	if s.Run != nil {
		status := s.Run.Status
		if status == stresstest.StatusCompleted {
			status = successStyle.Render(status)
		} else {
			status = errorStyle.Render(status)
		}
		fmt.Fprintf(w, "Run #%d (%s) %s in %s\n\n", s.Run.ID, s.Run.Backend, status, s.Elapsed.Round(time.Millisecond))
	}

	t := newTable().Headers(statsHeaders...)
	for _, op := range types.Operations {
		if opStats, ok := s.Operations[op]; ok {
			t.Row(statsRow(string(op), opStats, s.Elapsed)...)
		}
	}
	if s.Overall != nil {
		t.Row(statsRow("Aggregated", s.Overall, s.Elapsed)...)
	}
	fmt.Fprintln(w, t.Render())

	if len(s.Failures) == 0 {
		return
	}

	fmt.Fprintln(w, "\nFailures")
	ft := newTable().Headers("Count", "Name", "Message")
	for i, f := range s.Failures {
		if i == MaxFailuresShown {
			break
		}
		ft.Row(fmt.Sprintf("%d", f.Count), f.Name, f.Message)
	}
	fmt.Fprintln(w, ft.Render())
}
