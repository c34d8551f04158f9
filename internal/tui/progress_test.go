package tui

import (
	"strings"
	"sync/atomic"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/studiowebux/cartload/internal/stresstest"
	"github.com/studiowebux/cartload/internal/types"
)

type fakeSource struct {
	config  *stresstest.Config
	stats   *stresstest.Stats
	ops     map[types.Operation]*stresstest.Stats
	elapsed time.Duration
	stops   atomic.Int32
}

func newFakeSource() *fakeSource {
	config := stresstest.DefaultConfig()
	config.Host = "http://localhost:8080"
	config.TestDurationSec = 10

	stats := stresstest.NewStats()
	get := stresstest.NewStats()
	for i := 0; i < 4; i++ {
		stats.AddResult(20, false, false)
		get.AddResult(20, false, false)
	}
	stats.AddResult(5, false, true)
	get.AddResult(5, false, true)

	return &fakeSource{
		config:  config,
		stats:   stats,
		ops:     map[types.Operation]*stresstest.Stats{types.OpGetCart: get},
		elapsed: 5 * time.Second,
	}
}

func (f *fakeSource) GetStats() *stresstest.Stats { return f.stats }
func (f *fakeSource) GetOperationStats() map[types.Operation]*stresstest.Stats {
	return f.ops
}
func (f *fakeSource) PoolSize() int              { return 7 }
func (f *fakeSource) ActiveUsers() int           { return 3 }
func (f *fakeSource) Elapsed() time.Duration     { return f.elapsed }
func (f *fakeSource) Config() *stresstest.Config { return f.config }
func (f *fakeSource) Stop()                      { f.stops.Add(1) }

func TestModel_View(t *testing.T) {
	m := New(newFakeSource(), make(chan struct{}))
	view := m.View()

	for _, want := range []string{"Load Test - Running", "dynamodb", "Active Users: 3", "Carts: 7", "get_cart", "add_items_to_cart", "5 requests", "20.0% failed"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q:\n%s", want, view)
		}
	}
}

func TestModel_FractionByDuration(t *testing.T) {
	m := New(newFakeSource(), make(chan struct{}))
	if got := m.Fraction(); got != 0.5 {
		t.Errorf("Fraction() = %v, want 0.5", got)
	}
}

func TestModel_FractionByIterations(t *testing.T) {
	source := newFakeSource()
	source.stats.TotalRequests = 20
	m := New(source, make(chan struct{}))
	if got := m.Fraction(); got != 0.25 {
		t.Errorf("Fraction() = %v, want 0.25", got)
	}
}

func TestModel_StopKey(t *testing.T) {
	source := newFakeSource()
	m := New(source, make(chan struct{}))

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if cmd == nil {
		t.Fatal("Expected a stop command")
	}
	if msg := cmd(); msg != (stoppedMsg{}) {
		t.Errorf("Unexpected message %T", msg)
	}
	if source.stops.Load() != 1 {
		t.Errorf("Stop called %d times", source.stops.Load())
	}

	model := updated.(Model)
	if !model.stopping || !strings.Contains(model.View(), "Load Test - Stopping") {
		t.Error("Expected stopping state")
	}

	// A second key press does not stop again
	if _, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")}); cmd != nil {
		t.Error("Expected no command while stopping")
	}
}

func TestModel_TickQuitsWhenDone(t *testing.T) {
	done := make(chan struct{})
	m := New(newFakeSource(), done)

	_, cmd := m.Update(tickMsg(time.Now()))
	if cmd == nil {
		t.Fatal("Expected next tick while running")
	}

	close(done)
	updated, cmd := m.Update(tickMsg(time.Now()))
	if cmd == nil {
		t.Fatal("Expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("Expected tea.QuitMsg")
	}
	if got := updated.(Model).Fraction(); got != 1 {
		t.Errorf("Fraction() after finish = %v", got)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{1500 * time.Millisecond, "1.5s"},
		{95 * time.Second, "1m 35s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
