package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/studiowebux/cartload/internal/analytics"
	"github.com/studiowebux/cartload/internal/cli"
	"github.com/studiowebux/cartload/internal/config"
	"github.com/studiowebux/cartload/internal/logging"
	"github.com/studiowebux/cartload/internal/mock"
	"github.com/studiowebux/cartload/internal/stresstest"
	"github.com/studiowebux/cartload/internal/types"
	"go.uber.org/zap"
)

var (
	version = "0.1.0"
)

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "cartload",
	Short: "Shopping cart load generator",
	Long: `cartload drives simulated users against a shopping-cart HTTP service
and reports throughput, latency and failures per operation.

Each user creates a cart, then repeatedly creates carts, adds items and
retrieves carts with weights 3:4:3, waiting 0.5-2s between tasks.

Run without a subcommand to start a load test.

Examples:
  cartload --host http://localhost:8080 -u 50 -r 10 -t 120
  TEST_MODE=mysql cartload --host http://alb:8080 --iterations 100
  cartload run --config cartload.yaml --tui --metrics-addr :9100
  cartload runs --backend mysql
  cartload report 12 --format vegeta
  cartload compare 12 13
  cartload mock --port 8080 --not-found-rate 0.05`,
	Version:       version,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runLoadTest,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a load test",
	Args:  cobra.NoArgs,
	RunE:  runLoadTest,
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List stored runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(func(manager *stresstest.Manager) error {
			backend := ""
			if flagRunsBackend != "" {
				b, err := types.ParseBackend(flagRunsBackend)
				if err != nil {
					return err
				}
				backend = string(b)
			}
			runs, err := manager.ListRuns(backend, flagRunsLimit)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}
			cli.PrintRuns(cmd.OutOrStdout(), runs)
			return nil
		})
	},
}

var reportCmd = &cobra.Command{
	Use:   "report <run-id>",
	Short: "Show the report of a stored run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runID, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withManager(func(manager *stresstest.Manager) error {
			a := analytics.New(manager, 0)
			if flagReportFilter != "" || flagReportQuery != "" {
				return cli.PrintReportQuery(cmd.OutOrStdout(), a, manager, runID, flagReportFilter, flagReportQuery)
			}
			return cli.PrintReport(cmd.OutOrStdout(), a, manager, runID, flagReportFormat)
		})
	},
}

var compareCmd = &cobra.Command{
	Use:   "compare <run-a> <run-b>",
	Short: "Compare two stored runs",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := parseID(args[0])
		if err != nil {
			return err
		}
		b, err := parseID(args[1])
		if err != nil {
			return err
		}
		return withManager(func(manager *stresstest.Manager) error {
			c, err := analytics.New(manager, 0).Compare(a, b)
			if err != nil {
				return err
			}
			cli.PrintComparison(cmd.OutOrStdout(), c)
			return nil
		})
	},
}

var configsCmd = &cobra.Command{
	Use:   "configs",
	Short: "List saved configs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(func(manager *stresstest.Manager) error {
			configs, err := manager.ListConfigs()
			if err != nil {
				return fmt.Errorf("failed to list configs: %w", err)
			}
			cli.PrintConfigs(cmd.OutOrStdout(), configs)
			return nil
		})
	},
}

var configsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a saved config",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withManager(func(manager *stresstest.Manager) error {
			if err := manager.DeleteConfig(id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted config %d\n", id)
			return nil
		})
	},
}

var mockCmd = &cobra.Command{
	Use:   "mock",
	Short: "Serve an in-memory shopping cart service",
	Args:  cobra.NoArgs,
	RunE:  runMock,
}

// Global flags
var (
	flagDatabase string
	flagVerbose  bool
)

// Flags for run
var (
	flagHost         string
	flagMode         string
	flagConfigFile   string
	flagSaveConfig   string
	flagLoadConfig   string
	flagPickConfig   bool
	flagTUI          bool
	flagMetricsAddr  string
	flagInsecure     bool
	flagUsers        int
	flagSpawnRate    float64
	flagDuration     int
	flagIterations   int
	flagTimeout      int
	flagThinkMinMs   int
	flagThinkMaxMs   int
	flagPoolCapacity int
	flagCreateWeight int
	flagAddWeight    int
	flagGetWeight    int
	flagMaxRPS       float64
	flagSeed         int64
)

// Flags for runs/report
var (
	flagRunsBackend  string
	flagRunsLimit    int
	flagReportFormat string
	flagReportFilter string
	flagReportQuery  string
)

// Flags for mock
var (
	flagMockConfig string
	flagMockLog    bool
	mockFlags      = mock.DefaultConfig()
)

func addRunFlags(fs *pflag.FlagSet) {
	fs.StringVar(&flagHost, "host", "", "Target host, e.g. http://localhost:8080 (env CARTLOAD_HOST)")
	fs.StringVar(&flagMode, "mode", "", "Backend label mysql|dynamodb (env TEST_MODE)")
	fs.StringVarP(&flagConfigFile, "config", "c", "", "Config file .yaml/.yml/.json/.jsonc (env CARTLOAD_CONFIG)")
	fs.StringVar(&flagSaveConfig, "save-config", "", "Save the resolved config under this name")
	fs.StringVar(&flagLoadConfig, "load-config", "", "Start from a saved config")
	fs.BoolVar(&flagPickConfig, "pick-config", false, "Choose a saved config interactively")
	fs.BoolVar(&flagTUI, "tui", false, "Show the live progress view")
	fs.StringVar(&flagMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	fs.BoolVar(&flagInsecure, "insecure", false, "Skip TLS certificate verification")
	fs.IntVarP(&flagUsers, "users", "u", stresstest.DefaultUsers, "Number of simulated users")
	fs.Float64VarP(&flagSpawnRate, "spawn-rate", "r", 0, "Users started per second (0 = all at once)")
	fs.IntVarP(&flagDuration, "duration", "t", stresstest.DefaultTestDurationSec, "Test duration in seconds (0 = unlimited)")
	fs.IntVar(&flagIterations, "iterations", 0, "Weighted tasks per user (0 = unlimited)")
	fs.IntVar(&flagTimeout, "timeout", stresstest.DefaultRequestTimeoutSec, "Request timeout in seconds")
	fs.IntVar(&flagThinkMinMs, "think-min-ms", stresstest.DefaultThinkMinMs, "Minimum think time between tasks")
	fs.IntVar(&flagThinkMaxMs, "think-max-ms", stresstest.DefaultThinkMaxMs, "Maximum think time between tasks")
	fs.IntVar(&flagPoolCapacity, "pool-capacity", 0, "Known cart ids kept (0 = 1000)")
	fs.IntVar(&flagCreateWeight, "create-weight", 3, "Weight of create_cart")
	fs.IntVar(&flagAddWeight, "add-weight", 4, "Weight of add_items_to_cart")
	fs.IntVar(&flagGetWeight, "get-weight", 3, "Weight of get_cart")
	fs.Float64Var(&flagMaxRPS, "max-rps", 0, "Global request rate limit (0 = unlimited)")
	fs.Int64Var(&flagSeed, "seed", 0, "Random seed (0 = time based)")
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDatabase, "db", "", "SQLite database path (default ~/.cartload/cartload.db)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Verbose logging")

	// Run command flags (same as root)
	addRunFlags(rootCmd.Flags())
	addRunFlags(runCmd.Flags())

	runsCmd.Flags().StringVar(&flagRunsBackend, "backend", "", "Only list runs of this backend")
	runsCmd.Flags().IntVar(&flagRunsLimit, "limit", 50, "Maximum number of runs (0 = all)")

	reportCmd.Flags().StringVarP(&flagReportFormat, "format", "f", cli.ReportText, "Report format (text/json/vegeta/vegeta-json)")
	reportCmd.Flags().StringVar(&flagReportFilter, "filter", "", "JMESPath filter over the JSON report")
	reportCmd.Flags().StringVarP(&flagReportQuery, "query", "q", "", "JMESPath query over the JSON report")

	mockCmd.Flags().StringVarP(&flagMockConfig, "config", "c", "", "Mock config file (.yaml/.yml/.json)")
	mockCmd.Flags().IntVarP(&mockFlags.Port, "port", "p", mockFlags.Port, "Port to listen on")
	mockCmd.Flags().StringVar(&mockFlags.Host, "bind", mockFlags.Host, "Address to bind")
	mockCmd.Flags().BoolVar(&mockFlags.StringIDs, "string-ids", false, "Issue uuid string ids (DynamoDB style)")
	mockCmd.Flags().IntVar(&mockFlags.DelayMs, "delay-ms", 0, "Artificial delay per request")
	mockCmd.Flags().Float64Var(&mockFlags.NotFoundRate, "not-found-rate", 0, "Probability of answering 404 on add/get")
	mockCmd.Flags().Float64Var(&mockFlags.ErrorRate, "error-rate", 0, "Probability of answering 500")
	mockCmd.Flags().BoolVar(&flagMockLog, "log-requests", false, "Print every request")

	configsCmd.AddCommand(configsDeleteCmd)

	// Add subcommands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(compareCmd)
	rootCmd.AddCommand(configsCmd)
	rootCmd.AddCommand(mockCmd)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func databasePath() (string, error) {
	if flagDatabase != "" {
		return flagDatabase, nil
	}
	if err := config.Initialize(); err != nil {
		return "", fmt.Errorf("failed to initialize config: %w", err)
	}
	return config.DatabasePath, nil
}

func withManager(fn func(manager *stresstest.Manager) error) error {
	path, err := databasePath()
	if err != nil {
		return err
	}
	manager, err := stresstest.NewManager(path)
	if err != nil {
		return err
	}
	defer manager.Close()
	return fn(manager)
}

// runLoadTest resolves the config and runs a load test
func runLoadTest(cmd *cobra.Command, args []string) error {
	logger, err := logging.New(flagVerbose)
	if err != nil {
		return err
	}
	defer logger.Sync()

	return withManager(func(manager *stresstest.Manager) error {
		opts, err := resolveRunOptions(cmd.Flags(), manager, os.Getenv)
		if err != nil {
			return err
		}
		opts.Logger = logger
		opts.Out = cmd.OutOrStdout()

		run, err := cli.Run(cmd.Context(), opts)
		if err != nil {
			return err
		}
		logger.Info("Run stored", zap.Int64("run_id", run.ID), zap.String("status", run.Status))
		return nil
	})
}

// resolveRunOptions layers defaults (or a saved config) < config file < environment < flags
func resolveRunOptions(fs *pflag.FlagSet, manager *stresstest.Manager, getenv func(string) string) (cli.RunOptions, error) {
	resolved, err := config.Load(flagConfigFile, getenv)
	if err != nil {
		return cli.RunOptions{}, err
	}
	cfg := resolved.Config

	switch {
	case flagPickConfig:
		configs, err := manager.ListConfigs()
		if err != nil {
			return cli.RunOptions{}, fmt.Errorf("failed to list configs: %w", err)
		}
		if cfg, err = cli.PromptForConfig(configs); err != nil {
			return cli.RunOptions{}, err
		}
	case flagLoadConfig != "":
		if cfg, err = manager.GetConfigByName(flagLoadConfig); err != nil {
			return cli.RunOptions{}, fmt.Errorf("config %q not found: %w", flagLoadConfig, err)
		}
	}
	if cfg != resolved.Config {
		if err := config.ApplyEnv(cfg, getenv); err != nil {
			return cli.RunOptions{}, err
		}
	}

	if err := applyFlags(fs, cfg); err != nil {
		return cli.RunOptions{}, err
	}

	opts := cli.RunOptions{
		Config:      cfg,
		Manager:     manager,
		TLS:         resolved.TLS,
		SaveConfig:  flagSaveConfig,
		TUI:         flagTUI,
		MetricsAddr: resolved.MetricsAddr,
	}
	if fs.Changed("metrics-addr") {
		opts.MetricsAddr = flagMetricsAddr
	}
	if flagInsecure {
		if opts.TLS == nil {
			opts.TLS = &types.TLSConfig{}
		}
		opts.TLS.InsecureSkipVerify = true
	}
	return opts, nil
}

// applyFlags copies every flag set on the command line onto cfg
func applyFlags(fs *pflag.FlagSet, cfg *stresstest.Config) error {
	if fs.Changed("mode") {
		backend, err := types.ParseBackend(flagMode)
		if err != nil {
			return err
		}
		cfg.Backend = backend
	}
	if fs.Changed("host") {
		cfg.Host = flagHost
	}

	ints := map[string]struct {
		dst *int
		src int
	}{
		"users":         {&cfg.Users, flagUsers},
		"duration":      {&cfg.TestDurationSec, flagDuration},
		"iterations":    {&cfg.IterationsPerUser, flagIterations},
		"timeout":       {&cfg.RequestTimeoutSec, flagTimeout},
		"think-min-ms":  {&cfg.ThinkMinMs, flagThinkMinMs},
		"think-max-ms":  {&cfg.ThinkMaxMs, flagThinkMaxMs},
		"pool-capacity": {&cfg.PoolCapacity, flagPoolCapacity},
		"create-weight": {&cfg.CreateWeight, flagCreateWeight},
		"add-weight":    {&cfg.AddWeight, flagAddWeight},
		"get-weight":    {&cfg.GetWeight, flagGetWeight},
	}
	for name, f := range ints {
		if fs.Changed(name) {
			*f.dst = f.src
		}
	}

	if fs.Changed("spawn-rate") {
		cfg.SpawnRate = flagSpawnRate
	}
	if fs.Changed("max-rps") {
		cfg.MaxRPS = flagMaxRPS
	}
	if fs.Changed("seed") {
		cfg.Seed = flagSeed
	}
	return nil
}

// runMock serves the in-memory cart service until interrupted
func runMock(cmd *cobra.Command, args []string) error {
	logger, err := logging.New(flagVerbose)
	if err != nil {
		return err
	}
	defer logger.Sync()

	mockConfig := mockFlags
	if flagMockConfig != "" {
		if mockConfig, err = mock.LoadConfig(flagMockConfig); err != nil {
			return err
		}
	}
	if err := mockConfig.Validate(); err != nil {
		return fmt.Errorf("invalid mock config: %w", err)
	}

	server := mock.NewServer(mockConfig, logger)
	if err := server.Start(); err != nil {
		return err
	}
	defer server.Stop()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Mock cart service listening on %s\n", server.GetAddress())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(out, "\nShutting down")
			return nil
		case <-server.NotifyChannel():
			if !flagMockLog {
				continue
			}
			logs := server.GetLogs()
			if len(logs) == 0 {
				continue
			}
			l := logs[len(logs)-1]
			fmt.Fprintf(out, "%s %s %s %d %s\n", l.Timestamp.Format("15:04:05.000"), l.Method, l.Path, l.Status, l.Duration)
		}
	}
}
