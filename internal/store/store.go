// Package store persists analysis run history to PostgreSQL so dashboard
// users can revisit past analyses without re-billing the model.
package store

import (
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx" driver
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// maxRuns caps retained history; older runs are pruned on insert.
const maxRuns = 100

// Run statuses.
const (
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusError    = "error"
)

// Run is one persisted analysis execution.
type Run struct {
	ID         string     `json:"id"`
	PropertyID string     `json:"property_id"`
	DateRange  string     `json:"date_range"`
	Industry   string     `json:"industry"`
	Engine     string     `json:"engine"`
	Status     string     `json:"status"`
	Result     string     `json:"result,omitempty"`
	Error      string     `json:"error,omitempty"`
	DurationMs float64    `json:"duration_ms,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Store persists analysis runs to PostgreSQL.
type Store struct {
	db *sql.DB
}

// Open connects to the history database at connStr and applies migrations.
func Open(connStr string) (*Store, error) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("store open: %w", err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store ping: %w", err)
	}
	if err = migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("store migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`)
	if err != nil {
		return err
	}

	var current int
	row := db.QueryRow(`SELECT COALESCE(MAX(version), -1) FROM schema_version`)
	if err = row.Scan(&current); err != nil {
		return err
	}

	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	for i := current + 1; i < len(entries); i++ {
		data, readErr := migrationFS.ReadFile("migrations/" + entries[i].Name())
		if readErr != nil {
			return fmt.Errorf("read migration %d: %w", i, readErr)
		}
		if _, execErr := db.Exec(string(data)); execErr != nil {
			return fmt.Errorf("migration %d: %w", i, execErr)
		}
		if _, execErr := db.Exec(`INSERT INTO schema_version (version) VALUES ($1)`, i); execErr != nil {
			return fmt.Errorf("migration %d record: %w", i, execErr)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateRun inserts a new running analysis and prunes old history.
func (s *Store) CreateRun(r Run) error {
	_, err := s.db.Exec(
		`INSERT INTO analysis_runs (id, property_id, date_range, industry, engine, status, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.PropertyID, r.DateRange, r.Industry, r.Engine, StatusRunning, time.Now().UTC(),
	)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`DELETE FROM analysis_runs WHERE id NOT IN
		 (SELECT id FROM analysis_runs ORDER BY started_at DESC LIMIT $1)`,
		maxRuns,
	)
	return err
}

// FinishRun records the outcome of an analysis run.
func (s *Store) FinishRun(id string, durationMs float64, resultJSON, status, errMsg string) error {
	_, err := s.db.Exec(
		`UPDATE analysis_runs SET duration_ms = $1, result = $2, status = $3, error_msg = $4, finished_at = $5
		 WHERE id = $6`,
		durationMs, resultJSON, status, errMsg, time.Now().UTC(), id,
	)
	return err
}

// ListRuns returns runs newest first with the total count.
func (s *Store) ListRuns(limit, offset int) ([]Run, int, error) {
	var total int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM analysis_runs`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.Query(`
		SELECT id, property_id, date_range, industry, engine, status, duration_ms, error_msg, started_at, finished_at
		FROM analysis_runs
		ORDER BY started_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var finishedAt sql.NullTime
		var durationMs sql.NullFloat64
		var errMsg sql.NullString
		if err = rows.Scan(&r.ID, &r.PropertyID, &r.DateRange, &r.Industry, &r.Engine, &r.Status,
			&durationMs, &errMsg, &r.StartedAt, &finishedAt); err != nil {
			return nil, 0, err
		}
		r.DurationMs = durationMs.Float64
		r.Error = errMsg.String
		if finishedAt.Valid {
			r.FinishedAt = &finishedAt.Time
		}
		runs = append(runs, r)
	}
	return runs, total, rows.Err()
}

// GetRun returns a single run including its stored result JSON.
func (s *Store) GetRun(id string) (*Run, error) {
	var r Run
	var finishedAt sql.NullTime
	var durationMs sql.NullFloat64
	var result, errMsg sql.NullString
	err := s.db.QueryRow(
		`SELECT id, property_id, date_range, industry, engine, status, result, duration_ms, error_msg, started_at, finished_at
		 FROM analysis_runs WHERE id = $1`, id,
	).Scan(&r.ID, &r.PropertyID, &r.DateRange, &r.Industry, &r.Engine, &r.Status,
		&result, &durationMs, &errMsg, &r.StartedAt, &finishedAt)
	if err != nil {
		return nil, err
	}
	r.Result = result.String
	r.DurationMs = durationMs.Float64
	r.Error = errMsg.String
	if finishedAt.Valid {
		r.FinishedAt = &finishedAt.Time
	}
	return &r, nil
}
