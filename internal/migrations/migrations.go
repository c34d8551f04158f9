package migrations

import (
	"database/sql"
	"fmt"
)

// Migration represents a single database migration
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

// AllMigrations contains all database migrations in order
var AllMigrations = []Migration{
	{
		Version: 1,
		Name:    "Add backend indices",
		Up: `
			CREATE INDEX IF NOT EXISTS idx_load_runs_backend ON load_test_runs(backend);
			CREATE INDEX IF NOT EXISTS idx_load_configs_backend ON load_test_configs(backend);
		`,
		Down: `
			DROP INDEX IF EXISTS idx_load_runs_backend;
			DROP INDEX IF EXISTS idx_load_configs_backend;
		`,
	},
	{
		Version: 2,
		Name:    "Add composite indexes for per-operation analysis",
		Up: `
			-- GROUP BY operation within a run
			CREATE INDEX IF NOT EXISTS idx_load_metrics_operation ON load_test_metrics(run_id, operation);

			-- Covering index for percentile queries over successful requests
			CREATE INDEX IF NOT EXISTS idx_load_metrics_duration ON load_test_metrics(run_id, operation, success, duration_ms);
		`,
		Down: `
			DROP INDEX IF EXISTS idx_load_metrics_operation;
			DROP INDEX IF EXISTS idx_load_metrics_duration;
		`,
	},
}

// InitSchema creates all tables required across all modules
// This must be called before running migrations to ensure all tables exist
func InitSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS load_test_configs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		host TEXT NOT NULL,
		backend TEXT NOT NULL,
		users INTEGER NOT NULL DEFAULT 10,
		spawn_rate REAL NOT NULL DEFAULT 0,
		test_duration_sec INTEGER NOT NULL DEFAULT 0,
		iterations_per_user INTEGER NOT NULL DEFAULT 0,
		request_timeout_sec INTEGER NOT NULL DEFAULT 0,
		think_min_ms INTEGER NOT NULL DEFAULT 0,
		think_max_ms INTEGER NOT NULL DEFAULT 0,
		pool_capacity INTEGER NOT NULL DEFAULT 0,
		create_weight INTEGER NOT NULL DEFAULT 3,
		add_weight INTEGER NOT NULL DEFAULT 4,
		get_weight INTEGER NOT NULL DEFAULT 3,
		max_rps REAL NOT NULL DEFAULT 0,
		seed INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS load_test_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		config_id INTEGER,
		config_name TEXT NOT NULL,
		backend TEXT NOT NULL,
		host TEXT NOT NULL,
		users INTEGER NOT NULL DEFAULT 0,
		started_at DATETIME NOT NULL,
		completed_at DATETIME,
		status TEXT NOT NULL,
		total_requests_completed INTEGER DEFAULT 0,
		total_successes INTEGER DEFAULT 0,
		total_failures INTEGER DEFAULT 0,
		total_errors INTEGER DEFAULT 0,
		carts_created INTEGER DEFAULT 0,
		requests_per_sec REAL DEFAULT 0,
		avg_duration_ms REAL DEFAULT 0,
		min_duration_ms INTEGER DEFAULT 0,
		max_duration_ms INTEGER DEFAULT 0,
		p50_duration_ms INTEGER DEFAULT 0,
		p95_duration_ms INTEGER DEFAULT 0,
		p99_duration_ms INTEGER DEFAULT 0,
		FOREIGN KEY (config_id) REFERENCES load_test_configs(id) ON DELETE SET NULL
	);

	CREATE INDEX IF NOT EXISTS idx_load_runs_started_at ON load_test_runs(started_at DESC);
	CREATE INDEX IF NOT EXISTS idx_load_runs_config_id ON load_test_runs(config_id);
	CREATE INDEX IF NOT EXISTS idx_load_runs_status ON load_test_runs(status);

	CREATE TABLE IF NOT EXISTS load_test_metrics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL,
		timestamp DATETIME NOT NULL,
		elapsed_ms INTEGER NOT NULL,
		operation TEXT NOT NULL,
		name TEXT NOT NULL,
		method TEXT NOT NULL,
		path TEXT NOT NULL,
		user_id TEXT,
		status_code INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		request_size INTEGER DEFAULT 0,
		response_size INTEGER DEFAULT 0,
		success INTEGER NOT NULL DEFAULT 0,
		error_message TEXT,
		failure TEXT,
		FOREIGN KEY (run_id) REFERENCES load_test_runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_load_metrics_run_id ON load_test_metrics(run_id);
	CREATE INDEX IF NOT EXISTS idx_load_metrics_elapsed ON load_test_metrics(run_id, elapsed_ms);
	`

	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// Run executes all pending migrations on the database
func Run(db *sql.DB) error {
	// Initialize schema first to ensure all tables exist
	if err := InitSchema(db); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	// Create migrations tracking table if it doesn't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	currentVersion, err := GetCurrentVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	// Apply pending migrations
	for _, migration := range AllMigrations {
		if migration.Version <= currentVersion {
			continue
		}

		if _, err := db.Exec(migration.Up); err != nil {
			return fmt.Errorf("failed to apply migration %d (%s): %w", migration.Version, migration.Name, err)
		}

		_, err = db.Exec(
			"INSERT INTO schema_migrations (version, name) VALUES (?, ?)",
			migration.Version,
			migration.Name,
		)
		if err != nil {
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

// GetCurrentVersion returns the current database schema version
func GetCurrentVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow(`
		SELECT COALESCE(MAX(version), 0)
		FROM schema_migrations
	`).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return 0, err
	}
	return version, nil
}
