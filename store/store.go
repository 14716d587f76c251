// Package store persists models and their processing jobs.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/jupark12/model-processor/models"
)

// ErrNotFound is returned when a model or job id is unknown
var ErrNotFound = errors.New("not found")

// Store is the persistence surface shared by the API and the worker.
//
// Writes are independent statements. Creating a model and its jobs is not
// atomic, so a crash in between can leave a model without jobs.
type Store interface {
	ListModels(ctx context.Context) ([]models.Model, error)
	GetModel(ctx context.Context, id string) (*models.Model, error)
	GetModelWithJobs(ctx context.Context, id string) (*models.ModelWithJobs, error)
	CreateModel(ctx context.Context, name, fileURI string) (*models.Model, error)
	UpdateModelStatus(ctx context.Context, id string, status models.Status) error
	UpdateModelSTLURI(ctx context.Context, id, uri string) error
	UpdateModelPreviewURI(ctx context.Context, id, uri string) error

	CreateJob(ctx context.Context, modelID string, jobType models.JobType) (*models.Job, error)
	UpdateJobStatus(ctx context.Context, id string, status models.Status, errorMessage string) error
	PendingJobs(ctx context.Context) ([]models.Job, error)
	JobsByModel(ctx context.Context, modelID string) ([]models.Job, error)

	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close()
}

// Ensure both backends implement Store at compile time.
var (
	_ Store = (*PostgresStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)

// validID rejects ids that can never exist so lookups report not-found
// instead of a driver error.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
