package sqlite

import (
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/macroforge/bellman/internal/bellman"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Open opens (creating if needed) the solver database at path and applies
// any pending schema migrations.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("loading embedded migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("creating migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	// Note: we don't close m because it would close the underlying DB
	// connection.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// Run is persisted solver-run metadata: terminal state, sweep count,
// per-sweep error trace and the configuration the run used.
type Run struct {
	RunID      string          `json:"run_id"`
	CreatedAt  int64           `json:"created_at"`
	State      string          `json:"state"`
	Sweeps     int             `json:"sweeps"`
	FinalError float64         `json:"final_error"`
	ConfigJSON json.RawMessage `json:"config_json,omitempty"`
	ErrorTrace []float64       `json:"error_trace,omitempty"`
}

// NewRunFromResult builds a Run record from an iteration result and the
// marshaled configuration that produced it.
func NewRunFromResult(res *bellman.RunResult, configJSON json.RawMessage) *Run {
	r := &Run{
		State:      res.State.String(),
		Sweeps:     res.Sweeps,
		ConfigJSON: configJSON,
		ErrorTrace: append([]float64(nil), res.Errors...),
	}
	if len(res.Errors) > 0 {
		r.FinalError = res.Errors[len(res.Errors)-1]
	}
	return r
}

// RunStore provides persistence for solver runs and value checkpoints.
type RunStore struct {
	db *sql.DB
}

// NewRunStore creates a RunStore backed by the given database.
func NewRunStore(db *sql.DB) *RunStore {
	return &RunStore{db: db}
}

// Insert persists a run record. If RunID is empty, a UUID is generated.
func (s *RunStore) Insert(run *Run) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.CreatedAt == 0 {
		run.CreatedAt = time.Now().UnixNano()
	}
	trace, err := json.Marshal(run.ErrorTrace)
	if err != nil {
		return fmt.Errorf("marshaling error trace: %w", err)
	}

	var cfg interface{}
	if len(run.ConfigJSON) > 0 {
		cfg = string(run.ConfigJSON)
	}
	return retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO solver_runs (
				run_id, created_at, state, sweeps, final_error, config_json, trace_json
			) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			run.RunID, run.CreatedAt, run.State, run.Sweeps, run.FinalError,
			cfg, string(trace),
		)
		return err
	})
}

// Get returns the run with the given id.
func (s *RunStore) Get(runID string) (*Run, error) {
	row := s.db.QueryRow(`
		SELECT run_id, created_at, state, sweeps, final_error, config_json, trace_json
		FROM solver_runs WHERE run_id = ?`, runID)
	return scanRun(row)
}

// List returns all runs ordered by creation time descending.
func (s *RunStore) List() ([]*Run, error) {
	rows, err := s.db.Query(`
		SELECT run_id, created_at, state, sweeps, final_error, config_json, trace_json
		FROM solver_runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scannable) (*Run, error) {
	var (
		r          Run
		cfg, trace sql.NullString
	)
	if err := row.Scan(&r.RunID, &r.CreatedAt, &r.State, &r.Sweeps, &r.FinalError, &cfg, &trace); err != nil {
		return nil, fmt.Errorf("scanning run: %w", err)
	}
	if cfg.Valid {
		r.ConfigJSON = json.RawMessage(cfg.String)
	}
	if trace.Valid && trace.String != "" {
		if err := json.Unmarshal([]byte(trace.String), &r.ErrorTrace); err != nil {
			return nil, fmt.Errorf("unmarshaling error trace for run %s: %w", r.RunID, err)
		}
	}
	return &r, nil
}

// SaveCheckpoint stores the value arrays of a result store under a run id,
// replacing any earlier checkpoint for the same run.
func (s *RunStore) SaveCheckpoint(runID string, store *bellman.Store, sweep int) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning checkpoint tx: %w", err)
	}
	defer tx.Rollback()

	for iz, values := range store.Values {
		blob, err := json.Marshal(values)
		if err != nil {
			return fmt.Errorf("marshaling checkpoint iz=%d: %w", iz, err)
		}
		if _, err := tx.Exec(`
			INSERT INTO value_checkpoints (run_id, iz, sweep, values_json)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (run_id, iz) DO UPDATE SET sweep = excluded.sweep, values_json = excluded.values_json`,
			runID, iz, sweep, string(blob)); err != nil {
			return fmt.Errorf("inserting checkpoint run=%s iz=%d: %w", runID, iz, err)
		}
	}
	return tx.Commit()
}

// LoadCheckpoint restores the value arrays saved under runID into the
// store and returns the sweep the checkpoint was taken at. The store must
// match the checkpoint's exogenous-state count and grid size.
func (s *RunStore) LoadCheckpoint(runID string, store *bellman.Store) (int, error) {
	rows, err := s.db.Query(`
		SELECT iz, sweep, values_json FROM value_checkpoints
		WHERE run_id = ? ORDER BY iz`, runID)
	if err != nil {
		return 0, fmt.Errorf("query checkpoint %s: %w", runID, err)
	}
	defer rows.Close()

	values := make([][]float64, len(store.Values))
	sweep := 0
	found := false
	for rows.Next() {
		var (
			iz   int
			blob string
		)
		if err := rows.Scan(&iz, &sweep, &blob); err != nil {
			return 0, fmt.Errorf("scanning checkpoint: %w", err)
		}
		if iz < 0 || iz >= len(values) {
			return 0, fmt.Errorf("checkpoint %s has exogenous index %d outside store with %d states",
				runID, iz, len(values))
		}
		if err := json.Unmarshal([]byte(blob), &values[iz]); err != nil {
			return 0, fmt.Errorf("unmarshaling checkpoint iz=%d: %w", iz, err)
		}
		found = true
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if !found {
		return 0, fmt.Errorf("no checkpoint stored for run %s", runID)
	}
	for iz, v := range values {
		if v == nil {
			return 0, fmt.Errorf("checkpoint %s missing exogenous state %d", runID, iz)
		}
	}
	if err := store.CopyValuesFrom(values); err != nil {
		return 0, fmt.Errorf("restoring checkpoint %s: %w", runID, err)
	}
	return sweep, nil
}

// isSQLiteBusy reports whether an error is a transient SQLITE_BUSY
// condition worth retrying.
func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// retryOnBusy retries fn with short backoff while it reports SQLITE_BUSY.
func retryOnBusy(fn func() error) error {
	const attempts = 5
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); !isSQLiteBusy(err) {
			return err
		}
		time.Sleep(time.Duration(i+1) * 10 * time.Millisecond)
	}
	return err
}
