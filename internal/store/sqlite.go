package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/safeland/floodrisk-cli/internal/enrich"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id             TEXT PRIMARY KEY,
	status         TEXT NOT NULL DEFAULT 'running',
	schema_version INTEGER NOT NULL,
	batch_size     INTEGER NOT NULL,
	total_coords   INTEGER NOT NULL,
	error          TEXT NOT NULL DEFAULT '',
	created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS run_batches (
	run_id       TEXT NOT NULL REFERENCES runs(id),
	batch        INTEGER NOT NULL,
	vectors      TEXT NOT NULL,
	vector_count INTEGER NOT NULL,
	saved_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (run_id, batch)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_run_batches_run_id ON run_batches(run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, schemaVersion, batchSize, totalCoords int) (*Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, schema_version, batch_size, total_coords, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, string(RunStatusRunning), schemaVersion, batchSize, totalCoords, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &Run{
		ID:            id,
		Status:        RunStatusRunning,
		SchemaVersion: schemaVersion,
		BatchSize:     batchSize,
		TotalCoords:   totalCoords,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(RunStatusComplete), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(RunStatusFailed), reason, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

const runColumns = `id, status, schema_version, batch_size, total_coords, error, created_at, updated_at,
	(SELECT COUNT(*) FROM run_batches b WHERE b.run_id = runs.id),
	(SELECT COALESCE(SUM(vector_count), 0) FROM run_batches b WHERE b.run_id = runs.id)`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var r Run
	var status string
	err := row.Scan(&r.ID, &status, &r.SchemaVersion, &r.BatchSize, &r.TotalCoords,
		&r.Error, &r.CreatedAt, &r.UpdatedAt, &r.Batches, &r.Vectors)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	r.Status = RunStatus(status)
	return &r, nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE id = ?`, runID)
	return scanRun(row)
}

func (s *SQLiteStore) LatestRun(ctx context.Context) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY created_at DESC LIMIT 1`)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// SaveBatch upserts a batch's vectors; re-running a batch after an
// interrupted resume replaces its previous output rather than duplicating
// it.
func (s *SQLiteStore) SaveBatch(ctx context.Context, runID string, batch int, vectors []enrich.FeatureVector) error {
	vectorsJSON, err := json.Marshal(vectors)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal vectors")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO run_batches (run_id, batch, vectors, vector_count, saved_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (run_id, batch) DO UPDATE SET
		   vectors = excluded.vectors,
		   vector_count = excluded.vector_count,
		   saved_at = excluded.saved_at`,
		runID, batch, string(vectorsJSON), len(vectors), time.Now().UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save batch %d of run %s", batch, runID)
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE runs SET updated_at = ? WHERE id = ?`,
		time.Now().UTC(), runID,
	)
	return eris.Wrapf(err, "sqlite: touch run %s", runID)
}

// CompletedBatches returns the resume point: one past the highest saved
// batch index.
func (s *SQLiteStore) CompletedBatches(ctx context.Context, runID string) (int, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(batch) + 1, 0) FROM run_batches WHERE run_id = ?`, runID)

	var n int
	if err := row.Scan(&n); err != nil {
		return 0, eris.Wrapf(err, "sqlite: completed batches of run %s", runID)
	}
	return n, nil
}

// Vectors returns all saved vectors of a run in batch order.
func (s *SQLiteStore) Vectors(ctx context.Context, runID string) ([]enrich.FeatureVector, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT vectors FROM run_batches WHERE run_id = ? ORDER BY batch`, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: vectors of run %s", runID)
	}
	defer rows.Close()

	var all []enrich.FeatureVector
	for rows.Next() {
		var vectorsJSON string
		if err := rows.Scan(&vectorsJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan batch vectors")
		}
		var batch []enrich.FeatureVector
		if err := json.Unmarshal([]byte(vectorsJSON), &batch); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal batch vectors")
		}
		all = append(all, batch...)
	}
	return all, eris.Wrap(rows.Err(), "sqlite: vectors iterate")
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("sqlite: %s %s not found", entity, id)
	}
	return nil
}
