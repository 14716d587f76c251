package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/jupark12/model-processor/models"
)

const (
	sqliteModelColumns = `id, name, file_uri, stl_file_uri, preview_image_uri, status, created_at, updated_at`
	sqliteJobColumns   = `id, model_id, job_type, status, error_message, created_at, updated_at`
)

// SQLiteStore implements Store on a local SQLite file.
// It serves single-machine runs where API and worker share one file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite doesn't support multiple writers
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	for _, stmt := range sqliteSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() {
	s.db.Close()
}

type sqlScanner interface {
	Scan(dest ...any) error
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func scanSQLiteModel(row sqlScanner) (*models.Model, error) {
	var m models.Model
	var stlURI, previewURI sql.NullString
	var createdAt, updatedAt int64
	err := row.Scan(&m.ID, &m.Name, &m.FileURI, &stlURI, &previewURI, &m.Status, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	m.STLFileURI = stlURI.String
	m.PreviewImageURI = previewURI.String
	m.CreatedAt = fromNanos(createdAt)
	m.UpdatedAt = fromNanos(updatedAt)
	return &m, nil
}

func scanSQLiteJob(row sqlScanner) (*models.Job, error) {
	var j models.Job
	var errMsg sql.NullString
	var createdAt, updatedAt int64
	err := row.Scan(&j.ID, &j.ModelID, &j.JobType, &j.Status, &errMsg, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	j.ErrorMessage = errMsg.String
	j.CreatedAt = fromNanos(createdAt)
	j.UpdatedAt = fromNanos(updatedAt)
	return &j, nil
}

func (s *SQLiteStore) queryJobs(ctx context.Context, query string, args ...any) ([]models.Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := make([]models.Job, 0)
	for rows.Next() {
		job, err := scanSQLiteJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func (s *SQLiteStore) ListModels(ctx context.Context) ([]models.Model, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteModelColumns+` FROM models ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	defer rows.Close()

	list := make([]models.Model, 0)
	for rows.Next() {
		m, err := scanSQLiteModel(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan model: %w", err)
		}
		list = append(list, *m)
	}
	return list, rows.Err()
}

func (s *SQLiteStore) GetModel(ctx context.Context, id string) (*models.Model, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	m, err := scanSQLiteModel(s.db.QueryRowContext(ctx,
		`SELECT `+sqliteModelColumns+` FROM models WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get model %s: %w", id, err)
	}
	return m, nil
}

func (s *SQLiteStore) GetModelWithJobs(ctx context.Context, id string) (*models.ModelWithJobs, error) {
	m, err := s.GetModel(ctx, id)
	if err != nil {
		return nil, err
	}
	jobs, err := s.JobsByModel(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.ModelWithJobs{Model: *m, Jobs: jobs}, nil
}

func (s *SQLiteStore) CreateModel(ctx context.Context, name, fileURI string) (*models.Model, error) {
	now := time.Now().UTC()
	m := &models.Model{
		ID:        uuid.New().String(),
		Name:      name,
		FileURI:   fileURI,
		Status:    models.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO models (id, name, file_uri, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.Name, m.FileURI, string(m.Status), now.UnixNano(), now.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to create model: %w", err)
	}
	return m, nil
}

func (s *SQLiteStore) updateModel(ctx context.Context, query, id string, value any) error {
	if !validID(id) {
		return ErrNotFound
	}
	res, err := s.db.ExecContext(ctx, query, value, time.Now().UTC().UnixNano(), id)
	if err != nil {
		return fmt.Errorf("failed to update model %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) UpdateModelStatus(ctx context.Context, id string, status models.Status) error {
	return s.updateModel(ctx, `UPDATE models SET status = ?, updated_at = ? WHERE id = ?`, id, string(status))
}

func (s *SQLiteStore) UpdateModelSTLURI(ctx context.Context, id, uri string) error {
	return s.updateModel(ctx, `UPDATE models SET stl_file_uri = ?, updated_at = ? WHERE id = ?`, id, uri)
}

func (s *SQLiteStore) UpdateModelPreviewURI(ctx context.Context, id, uri string) error {
	return s.updateModel(ctx, `UPDATE models SET preview_image_uri = ?, updated_at = ? WHERE id = ?`, id, uri)
}

func (s *SQLiteStore) CreateJob(ctx context.Context, modelID string, jobType models.JobType) (*models.Job, error) {
	if !validID(modelID) {
		return nil, ErrNotFound
	}
	now := time.Now().UTC()
	j := &models.Job{
		ID:        uuid.New().String(),
		ModelID:   modelID,
		JobType:   jobType,
		Status:    models.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, model_id, job_type, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		j.ID, j.ModelID, string(j.JobType), string(j.Status), now.UnixNano(), now.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to create %s job for model %s: %w", jobType, modelID, err)
	}
	return j, nil
}

func (s *SQLiteStore) UpdateJobStatus(ctx context.Context, id string, status models.Status, errorMessage string) error {
	if !validID(id) {
		return ErrNotFound
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		string(status), nullable(errorMessage), time.Now().UTC().UnixNano(), id)
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) PendingJobs(ctx context.Context) ([]models.Job, error) {
	jobs, err := s.queryJobs(ctx,
		`SELECT `+sqliteJobColumns+` FROM jobs WHERE status = ? ORDER BY created_at ASC, rowid ASC`,
		string(models.StatusPending))
	if err != nil {
		return nil, fmt.Errorf("failed to list pending jobs: %w", err)
	}
	return jobs, nil
}

func (s *SQLiteStore) JobsByModel(ctx context.Context, modelID string) ([]models.Job, error) {
	if !validID(modelID) {
		return []models.Job{}, nil
	}
	jobs, err := s.queryJobs(ctx,
		`SELECT `+sqliteJobColumns+` FROM jobs WHERE model_id = ? ORDER BY created_at DESC, rowid DESC`, modelID)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs for model %s: %w", modelID, err)
	}
	return jobs, nil
}
