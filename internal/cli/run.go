package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/studiowebux/cartload/internal/metrics"
	"github.com/studiowebux/cartload/internal/stresstest"
	"github.com/studiowebux/cartload/internal/tui"
	"github.com/studiowebux/cartload/internal/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ShutdownTimeout bounds the metrics server shutdown
const ShutdownTimeout = 5 * time.Second

// RunOptions contains options for running a load test
type RunOptions struct {
	Config      *stresstest.Config
	Manager     *stresstest.Manager
	TLS         *types.TLSConfig
	SaveConfig  string // Persist the config under this name before running
	TUI         bool
	MetricsAddr string
	Logger      *zap.Logger
	Out         io.Writer
}

// Run executes a load test until its bound is reached, ctx is cancelled or
// the process receives SIGINT/SIGTERM, then prints the summary
func Run(ctx context.Context, opts RunOptions) (*stresstest.Run, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	config := opts.Config

	if opts.SaveConfig != "" {
		if err := saveConfig(opts.Manager, config, opts.SaveConfig); err != nil {
			return nil, err
		}
	}

	var metricsListener net.Listener
	if opts.MetricsAddr != "" {
		var err error
		metricsListener, err = net.Listen("tcp", opts.MetricsAddr)
		if err != nil {
			return nil, fmt.Errorf("failed to listen on %s: %w", opts.MetricsAddr, err)
		}
		opts.Logger.Info("Serving metrics", zap.String("addr", metricsListener.Addr().String()))
	}

	collectors := metrics.New()
	executor, err := stresstest.NewExecutor(config, opts.Manager,
		stresstest.WithLogger(opts.Logger),
		stresstest.WithCollectors(collectors),
		stresstest.WithTLS(opts.TLS),
	)
	if err != nil {
		if metricsListener != nil {
			metricsListener.Close()
		}
		return nil, err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	PrintBanner(opts.Out, config)
	executor.Start()

	done := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(done)
		return executor.Wait()
	})

	g.Go(func() error {
		select {
		case <-gctx.Done():
			opts.Logger.Info("Stopping load test")
			executor.Stop()
		case <-done:
		}
		return nil
	})

	if metricsListener != nil {
		server := &http.Server{Handler: metricsMux(collectors), ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			if err := server.Serve(metricsListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			select {
			case <-done:
			case <-gctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	if opts.TUI {
		g.Go(func() error {
			return tui.Run(executor, done, tea.WithOutput(opts.Out))
		})
	}

	err = g.Wait()
	PrintSummary(opts.Out, SummaryFromExecutor(executor))
	return executor.GetRun(), err
}

func metricsMux(collectors *metrics.Collectors) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collectors.Handler())
	return mux
}

// saveConfig stores config under name, replacing a saved config of the same name
func saveConfig(manager *stresstest.Manager, config *stresstest.Config, name string) error {
	config.Name = name
	if existing, err := manager.GetConfigByName(name); err == nil {
		config.ID = existing.ID
	}
	if err := manager.SaveConfig(config); err != nil {
		return fmt.Errorf("failed to save config %q: %w", name, err)
	}
	return nil
}
