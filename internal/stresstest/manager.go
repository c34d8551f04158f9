package stresstest

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/studiowebux/cartload/internal/migrations"
)

// Manager handles load test data persistence
type Manager struct {
	db *sql.DB
}

// NewManager creates a new load test manager
func NewManager(dbPath string) (*Manager, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection would get its own empty database
		db.SetMaxOpenConns(1)
	}

	m := &Manager{db: db}

	// Run database migrations (includes schema initialization)
	if err := migrations.Run(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return m, nil
}

// DB returns the underlying database handle
func (m *Manager) DB() *sql.DB {
	return m.db
}

// Close closes the database connection
func (m *Manager) Close() error {
	return m.db.Close()
}

const configColumns = `id, name, host, backend, users, spawn_rate, test_duration_sec, iterations_per_user,
	request_timeout_sec, think_min_ms, think_max_ms, pool_capacity, create_weight, add_weight, get_weight,
	max_rps, seed, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanConfig(row scanner) (*Config, error) {
	config := &Config{}
	err := row.Scan(&config.ID, &config.Name, &config.Host, &config.Backend, &config.Users, &config.SpawnRate,
		&config.TestDurationSec, &config.IterationsPerUser, &config.RequestTimeoutSec, &config.ThinkMinMs,
		&config.ThinkMaxMs, &config.PoolCapacity, &config.CreateWeight, &config.AddWeight, &config.GetWeight,
		&config.MaxRPS, &config.Seed, &config.CreatedAt, &config.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return config, nil
}

// SaveConfig saves or updates a load test configuration
func (m *Manager) SaveConfig(config *Config) error {
	if err := config.Validate(); err != nil {
		return err
	}

	if config.ID == 0 {
		// Insert new config
		result, err := m.db.Exec(`
			INSERT INTO load_test_configs
			(name, host, backend, users, spawn_rate, test_duration_sec, iterations_per_user, request_timeout_sec,
			 think_min_ms, think_max_ms, pool_capacity, create_weight, add_weight, get_weight, max_rps, seed)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, config.Name, config.Host, config.Backend, config.Users, config.SpawnRate, config.TestDurationSec,
			config.IterationsPerUser, config.RequestTimeoutSec, config.ThinkMinMs, config.ThinkMaxMs,
			config.PoolCapacity, config.CreateWeight, config.AddWeight, config.GetWeight, config.MaxRPS, config.Seed)
		if err != nil {
			return fmt.Errorf("failed to insert config: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		config.ID = id
		return nil
	}

	// Update existing config
	_, err := m.db.Exec(`
		UPDATE load_test_configs
		SET name = ?, host = ?, backend = ?, users = ?, spawn_rate = ?, test_duration_sec = ?,
		    iterations_per_user = ?, request_timeout_sec = ?, think_min_ms = ?, think_max_ms = ?,
		    pool_capacity = ?, create_weight = ?, add_weight = ?, get_weight = ?, max_rps = ?, seed = ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, config.Name, config.Host, config.Backend, config.Users, config.SpawnRate, config.TestDurationSec,
		config.IterationsPerUser, config.RequestTimeoutSec, config.ThinkMinMs, config.ThinkMaxMs,
		config.PoolCapacity, config.CreateWeight, config.AddWeight, config.GetWeight, config.MaxRPS, config.Seed,
		config.ID)
	if err != nil {
		return fmt.Errorf("failed to update config: %w", err)
	}
	return nil
}

// GetConfig retrieves a config by ID
func (m *Manager) GetConfig(id int64) (*Config, error) {
	return scanConfig(m.db.QueryRow(`SELECT `+configColumns+` FROM load_test_configs WHERE id = ?`, id))
}

// GetConfigByName retrieves a config by name
func (m *Manager) GetConfigByName(name string) (*Config, error) {
	return scanConfig(m.db.QueryRow(`SELECT `+configColumns+` FROM load_test_configs WHERE name = ?`, name))
}

// ListConfigs returns all saved configurations, most recently updated first
func (m *Manager) ListConfigs() ([]*Config, error) {
	rows, err := m.db.Query(`SELECT ` + configColumns + ` FROM load_test_configs ORDER BY updated_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*Config
	for rows.Next() {
		config, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, config)
	}
	return configs, rows.Err()
}

// DeleteConfig deletes a configuration
func (m *Manager) DeleteConfig(id int64) error {
	result, err := m.db.Exec("DELETE FROM load_test_configs WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("config %d not found", id)
	}
	return nil
}

// CreateRun creates a new load test run record
func (m *Manager) CreateRun(run *Run) error {
	result, err := m.db.Exec(`
		INSERT INTO load_test_runs
		(config_id, config_name, backend, host, users, started_at, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.ConfigID, run.ConfigName, run.Backend, run.Host, run.Users, run.StartedAt, run.Status)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	run.ID = id
	return nil
}

// UpdateRun updates a load test run record
func (m *Manager) UpdateRun(run *Run) error {
	_, err := m.db.Exec(`
		UPDATE load_test_runs
		SET completed_at = ?, status = ?, total_requests_completed = ?, total_successes = ?,
		    total_failures = ?, total_errors = ?, carts_created = ?, requests_per_sec = ?,
		    avg_duration_ms = ?, min_duration_ms = ?, max_duration_ms = ?,
		    p50_duration_ms = ?, p95_duration_ms = ?, p99_duration_ms = ?
		WHERE id = ?
	`, run.CompletedAt, run.Status, run.TotalRequestsCompleted, run.TotalSuccesses,
		run.TotalFailures, run.TotalErrors, run.CartsCreated, run.RequestsPerSec,
		run.AvgDurationMs, run.MinDurationMs, run.MaxDurationMs,
		run.P50DurationMs, run.P95DurationMs, run.P99DurationMs, run.ID)
	return err
}

const runColumns = `id, config_id, config_name, backend, host, users, started_at, completed_at, status,
	total_requests_completed, total_successes, total_failures, total_errors, carts_created,
	COALESCE(requests_per_sec, 0), COALESCE(avg_duration_ms, 0), COALESCE(min_duration_ms, 0),
	COALESCE(max_duration_ms, 0), COALESCE(p50_duration_ms, 0), COALESCE(p95_duration_ms, 0),
	COALESCE(p99_duration_ms, 0)`

func scanRun(row scanner) (*Run, error) {
	run := &Run{}
	var configID sql.NullInt64
	var completedAt sql.NullTime

	err := row.Scan(&run.ID, &configID, &run.ConfigName, &run.Backend, &run.Host, &run.Users,
		&run.StartedAt, &completedAt, &run.Status, &run.TotalRequestsCompleted, &run.TotalSuccesses,
		&run.TotalFailures, &run.TotalErrors, &run.CartsCreated, &run.RequestsPerSec,
		&run.AvgDurationMs, &run.MinDurationMs, &run.MaxDurationMs,
		&run.P50DurationMs, &run.P95DurationMs, &run.P99DurationMs)
	if err != nil {
		return nil, err
	}

	if configID.Valid {
		run.ConfigID = &configID.Int64
	}
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	return run, nil
}

// GetRun retrieves a run by ID
func (m *Manager) GetRun(id int64) (*Run, error) {
	return scanRun(m.db.QueryRow(`SELECT `+runColumns+` FROM load_test_runs WHERE id = ?`, id))
}

// ListRuns returns load test runs, newest first. An empty backend lists every run.
func (m *Manager) ListRuns(backend string, limit int) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM load_test_runs
		WHERE backend = ? OR ? = ''
		ORDER BY started_at DESC, id DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := m.db.Query(query, backend, backend)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// DeleteRun deletes a load test run and all its metrics
func (m *Manager) DeleteRun(id int64) error {
	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Foreign keys are off by default in SQLite, so cascade by hand
	if _, err := tx.Exec("DELETE FROM load_test_metrics WHERE run_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete metrics: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM load_test_runs WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return tx.Commit()
}

const insertMetricSQL = `
	INSERT INTO load_test_metrics
	(run_id, timestamp, elapsed_ms, operation, name, method, path, user_id, status_code, duration_ms,
	 request_size, response_size, success, error_message, failure)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

func metricArgs(metric *Metric) []any {
	return []any{metric.RunID, metric.Timestamp, metric.ElapsedMs, metric.Operation, metric.Name,
		metric.Method, metric.Path, metric.UserID, metric.StatusCode, metric.DurationMs,
		metric.RequestSize, metric.ResponseSize, metric.Success, metric.ErrorMessage, metric.Failure}
}

// SaveMetric saves a single request metric
func (m *Manager) SaveMetric(metric *Metric) error {
	result, err := m.db.Exec(insertMetricSQL, metricArgs(metric)...)
	if err != nil {
		return fmt.Errorf("failed to save metric: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	metric.ID = id
	return nil
}

// SaveMetricsBatch saves multiple metrics in a single transaction
func (m *Manager) SaveMetricsBatch(metrics []*Metric) error {
	if len(metrics) == 0 {
		return nil
	}

	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(insertMetricSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, metric := range metrics {
		if _, err := stmt.Exec(metricArgs(metric)...); err != nil {
			return fmt.Errorf("failed to insert metric: %w", err)
		}
	}

	return tx.Commit()
}

// GetMetrics retrieves all metrics for a run
func (m *Manager) GetMetrics(runID int64) ([]*Metric, error) {
	rows, err := m.db.Query(`
		SELECT id, run_id, timestamp, elapsed_ms, operation, name, method, path, COALESCE(user_id, ''),
		       status_code, duration_ms, request_size, response_size, success,
		       COALESCE(error_message, ''), COALESCE(failure, '')
		FROM load_test_metrics
		WHERE run_id = ?
		ORDER BY elapsed_ms, id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var metrics []*Metric
	for rows.Next() {
		metric := &Metric{}
		err := rows.Scan(&metric.ID, &metric.RunID, &metric.Timestamp, &metric.ElapsedMs, &metric.Operation,
			&metric.Name, &metric.Method, &metric.Path, &metric.UserID, &metric.StatusCode, &metric.DurationMs,
			&metric.RequestSize, &metric.ResponseSize, &metric.Success, &metric.ErrorMessage, &metric.Failure)
		if err != nil {
			return nil, err
		}
		metrics = append(metrics, metric)
	}
	return metrics, rows.Err()
}
