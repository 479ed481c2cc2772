// Package catalog persists dataset metadata and analysis-run records in
// SQLite. Computed rasters themselves are never stored here; the catalog
// only records what was opened and what was run.
package catalog

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/selene-data/illumination.report/internal/raster"
	"github.com/selene-data/illumination.report/internal/slicestore"
)

// DB wraps the catalog database handle.
type DB struct {
	*sql.DB
	path string
}

// Open opens (creating if needed) the catalog at path and applies any
// pending schema migrations.
func Open(path string) (*DB, error) {
	handle, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}
	if _, err := handle.Exec(`PRAGMA journal_mode = WAL; PRAGMA busy_timeout = 5000;`); err != nil {
		handle.Close()
		return nil, fmt.Errorf("configuring catalog: %w", err)
	}

	db := &DB{DB: handle, path: path}
	if err := db.MigrateUp(); err != nil {
		handle.Close()
		return nil, err
	}
	return db, nil
}

// Dataset is the catalog record of one opened illumination dataset. The
// dimensions are authoritative for headerless formats.
type Dataset struct {
	ID         string            `json:"dataset_id"`
	Name       string            `json:"name"`
	SourcePath string            `json:"source_path"`
	Format     slicestore.Format `json:"format"`
	Dims       raster.Dims       `json:"dims"`
	CreatedAt  time.Time         `json:"created_at"`
}

// InsertDataset records a dataset, assigning an id if the record has none.
func (db *DB) InsertDataset(d *Dataset) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	_, err := db.Exec(`
		INSERT INTO datasets (dataset_id, name, source_path, format, time_steps, height, width, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Name, d.SourcePath, string(d.Format),
		d.Dims.TimeSteps, d.Dims.Height, d.Dims.Width,
		d.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting dataset %s: %w", d.Name, err)
	}
	return nil
}

// GetDataset fetches one dataset by id.
func (db *DB) GetDataset(id string) (*Dataset, error) {
	row := db.QueryRow(`
		SELECT dataset_id, name, source_path, format, time_steps, height, width, created_at
		FROM datasets WHERE dataset_id = ?`, id)
	return scanDataset(row)
}

// GetDatasetByName fetches the most recently created dataset with a name.
func (db *DB) GetDatasetByName(name string) (*Dataset, error) {
	row := db.QueryRow(`
		SELECT dataset_id, name, source_path, format, time_steps, height, width, created_at
		FROM datasets WHERE name = ? ORDER BY created_at DESC LIMIT 1`, name)
	return scanDataset(row)
}

// ListDatasets returns every dataset, newest first.
func (db *DB) ListDatasets() ([]Dataset, error) {
	rows, err := db.Query(`
		SELECT dataset_id, name, source_path, format, time_steps, height, width, created_at
		FROM datasets ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing datasets: %w", err)
	}
	defer rows.Close()

	var out []Dataset
	for rows.Next() {
		d, err := scanDataset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDataset(row rowScanner) (*Dataset, error) {
	var d Dataset
	var format, createdAt string
	err := row.Scan(&d.ID, &d.Name, &d.SourcePath, &format,
		&d.Dims.TimeSteps, &d.Dims.Height, &d.Dims.Width, &createdAt)
	if err != nil {
		return nil, err
	}
	d.Format = slicestore.Format(format)
	if d.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("dataset %s has bad created_at %q: %w", d.ID, createdAt, err)
	}
	return &d, nil
}

// AnalysisRun records one compute task's lifecycle. Params and Summary
// are JSON documents; the engine never interprets them after writing.
type AnalysisRun struct {
	RunID       string          `json:"run_id"`
	Kind        string          `json:"kind"`
	Params      json.RawMessage `json:"params,omitempty"`
	Status      string          `json:"status"`
	Error       string          `json:"error,omitempty"`
	Summary     json.RawMessage `json:"summary,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// StartRun inserts a running analysis-run record and returns its id.
func (db *DB) StartRun(kind string, params any) (string, error) {
	runID := uuid.New().String()
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("serialising run params: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO analysis_runs (run_id, kind, params, status, started_at)
		VALUES (?, ?, ?, 'running', ?)`,
		runID, kind, string(paramsJSON), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return "", fmt.Errorf("inserting analysis run: %w", err)
	}
	return runID, nil
}

// CompleteRun marks a run complete with a JSON result summary.
func (db *DB) CompleteRun(runID string, summary any) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("serialising run summary: %w", err)
	}
	_, err = db.Exec(`
		UPDATE analysis_runs SET status = 'complete', summary = ?, completed_at = ?
		WHERE run_id = ?`,
		string(summaryJSON), time.Now().UTC().Format(time.RFC3339), runID,
	)
	if err != nil {
		return fmt.Errorf("completing run %s: %w", runID, err)
	}
	return nil
}

// FailRun marks a run failed with the error message.
func (db *DB) FailRun(runID, errMsg string) error {
	_, err := db.Exec(`
		UPDATE analysis_runs SET status = 'failed', error = ?, completed_at = ?
		WHERE run_id = ?`,
		errMsg, time.Now().UTC().Format(time.RFC3339), runID,
	)
	if err != nil {
		return fmt.Errorf("failing run %s: %w", runID, err)
	}
	return nil
}

// GetRun fetches one analysis run by id.
func (db *DB) GetRun(runID string) (*AnalysisRun, error) {
	row := db.QueryRow(`
		SELECT run_id, kind, params, status, error, summary, started_at, completed_at
		FROM analysis_runs WHERE run_id = ?`, runID)

	var r AnalysisRun
	var params, errMsg, summary, completedAt sql.NullString
	var startedAt string
	err := row.Scan(&r.RunID, &r.Kind, &params, &r.Status, &errMsg, &summary, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	if params.Valid {
		r.Params = json.RawMessage(params.String)
	}
	if summary.Valid {
		r.Summary = json.RawMessage(summary.String)
	}
	r.Error = errMsg.String
	if r.StartedAt, err = time.Parse(time.RFC3339, startedAt); err != nil {
		return nil, fmt.Errorf("run %s has bad started_at %q: %w", runID, startedAt, err)
	}
	if completedAt.Valid {
		ts, err := time.Parse(time.RFC3339, completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("run %s has bad completed_at %q: %w", runID, completedAt.String, err)
		}
		r.CompletedAt = &ts
	}
	return &r, nil
}
