package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jupark12/model-processor/models"
)

const (
	pgModelColumns = `id::text, name, file_uri, stl_file_uri, preview_image_uri, status, created_at, updated_at`
	pgJobColumns   = `id::text, model_id::text, job_type, status, error_message, created_at, updated_at`
)

// PostgresStore implements Store on a pgx connection pool
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dbURL and verifies the connection
func NewPostgresStore(ctx context.Context, dbURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Migrate creates the tables and indexes if they do not exist
func (s *PostgresStore) Migrate(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func scanPgModel(row pgx.Row) (*models.Model, error) {
	var m models.Model
	var stlURI, previewURI *string
	err := row.Scan(&m.ID, &m.Name, &m.FileURI, &stlURI, &previewURI, &m.Status, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m.STLFileURI = deref(stlURI)
	m.PreviewImageURI = deref(previewURI)
	m.CreatedAt = m.CreatedAt.UTC()
	m.UpdatedAt = m.UpdatedAt.UTC()
	return &m, nil
}

func scanPgJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	var errMsg *string
	err := row.Scan(&j.ID, &j.ModelID, &j.JobType, &j.Status, &errMsg, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	j.ErrorMessage = deref(errMsg)
	j.CreatedAt = j.CreatedAt.UTC()
	j.UpdatedAt = j.UpdatedAt.UTC()
	return &j, nil
}

func (s *PostgresStore) queryJobs(ctx context.Context, query string, args ...any) ([]models.Job, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := make([]models.Job, 0)
	for rows.Next() {
		job, err := scanPgJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// ListModels returns every model, newest first
func (s *PostgresStore) ListModels(ctx context.Context) ([]models.Model, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+pgModelColumns+` FROM models ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	defer rows.Close()

	list := make([]models.Model, 0)
	for rows.Next() {
		m, err := scanPgModel(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan model: %w", err)
		}
		list = append(list, *m)
	}
	return list, rows.Err()
}

func (s *PostgresStore) GetModel(ctx context.Context, id string) (*models.Model, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	m, err := scanPgModel(s.pool.QueryRow(ctx, `SELECT `+pgModelColumns+` FROM models WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get model %s: %w", id, err)
	}
	return m, nil
}

func (s *PostgresStore) GetModelWithJobs(ctx context.Context, id string) (*models.ModelWithJobs, error) {
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

func (s *PostgresStore) CreateModel(ctx context.Context, name, fileURI string) (*models.Model, error) {
	now := time.Now().UTC()
	m, err := scanPgModel(s.pool.QueryRow(ctx,
		`INSERT INTO models (id, name, file_uri, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)
		 RETURNING `+pgModelColumns,
		uuid.New().String(), name, fileURI, models.StatusPending, now))
	if err != nil {
		return nil, fmt.Errorf("failed to create model: %w", err)
	}
	return m, nil
}

func (s *PostgresStore) updateModel(ctx context.Context, query, id string, value any) error {
	if !validID(id) {
		return ErrNotFound
	}
	tag, err := s.pool.Exec(ctx, query, value, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update model %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateModelStatus(ctx context.Context, id string, status models.Status) error {
	return s.updateModel(ctx, `UPDATE models SET status = $1, updated_at = $2 WHERE id = $3`, id, status)
}

func (s *PostgresStore) UpdateModelSTLURI(ctx context.Context, id, uri string) error {
	return s.updateModel(ctx, `UPDATE models SET stl_file_uri = $1, updated_at = $2 WHERE id = $3`, id, uri)
}

func (s *PostgresStore) UpdateModelPreviewURI(ctx context.Context, id, uri string) error {
	return s.updateModel(ctx, `UPDATE models SET preview_image_uri = $1, updated_at = $2 WHERE id = $3`, id, uri)
}

func (s *PostgresStore) CreateJob(ctx context.Context, modelID string, jobType models.JobType) (*models.Job, error) {
	if !validID(modelID) {
		return nil, ErrNotFound
	}
	now := time.Now().UTC()
	j, err := scanPgJob(s.pool.QueryRow(ctx,
		`INSERT INTO jobs (id, model_id, job_type, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)
		 RETURNING `+pgJobColumns,
		uuid.New().String(), modelID, jobType, models.StatusPending, now))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s job for model %s: %w", jobType, modelID, err)
	}
	return j, nil
}

// UpdateJobStatus sets the status; an empty errorMessage clears the stored one
func (s *PostgresStore) UpdateJobStatus(ctx context.Context, id string, status models.Status, errorMessage string) error {
	if !validID(id) {
		return ErrNotFound
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, error_message = $2, updated_at = $3 WHERE id = $4`,
		status, nullable(errorMessage), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// PendingJobs returns all pending jobs, oldest first
func (s *PostgresStore) PendingJobs(ctx context.Context) ([]models.Job, error) {
	jobs, err := s.queryJobs(ctx,
		`SELECT `+pgJobColumns+` FROM jobs WHERE status = $1 ORDER BY created_at ASC`, models.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending jobs: %w", err)
	}
	return jobs, nil
}

// JobsByModel returns a model's jobs, newest first
func (s *PostgresStore) JobsByModel(ctx context.Context, modelID string) ([]models.Job, error) {
	if !validID(modelID) {
		return []models.Job{}, nil
	}
	jobs, err := s.queryJobs(ctx,
		`SELECT `+pgJobColumns+` FROM jobs WHERE model_id = $1 ORDER BY created_at DESC`, modelID)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs for model %s: %w", modelID, err)
	}
	return jobs, nil
}
