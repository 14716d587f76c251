package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jupark12/model-processor/models"
)

// backends returns every store the tests can reach. Postgres is included
// only when TEST_DATABASE_URL points at a scratch database.
func backends(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()

	sqlite, err := NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, sqlite.Migrate(ctx))
	t.Cleanup(sqlite.Close)

	stores := map[string]Store{"sqlite": sqlite}

	if url := os.Getenv("TEST_DATABASE_URL"); url != "" {
		pg, err := NewPostgresStore(ctx, url)
		require.NoError(t, err)
		for _, table := range []string{"jobs", "models"} {
			_, err = pg.pool.Exec(ctx, "DROP TABLE IF EXISTS "+table)
			require.NoError(t, err)
		}
		require.NoError(t, pg.Migrate(ctx))
		t.Cleanup(pg.Close)
		stores["postgres"] = pg
	}
	return stores
}

func forEachBackend(t *testing.T, fn func(t *testing.T, s Store)) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) { fn(t, s) })
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		require.NoError(t, s.Migrate(context.Background()))
		require.NoError(t, s.Ping(context.Background()))
	})
}

func TestCreateAndGetModel(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		created, err := s.CreateModel(ctx, "demo.glb", "uploads/glb/1-1.glb")
		require.NoError(t, err)
		assert.NotEmpty(t, created.ID)
		assert.Equal(t, models.StatusPending, created.Status)
		assert.Empty(t, created.STLFileURI)

		got, err := s.GetModel(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)
		assert.Equal(t, "demo.glb", got.Name)
		assert.Equal(t, "uploads/glb/1-1.glb", got.FileURI)
		assert.Equal(t, models.StatusPending, got.Status)
	})
}

func TestGetModelNotFound(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		_, err := s.GetModel(ctx, "does-not-exist")
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = s.GetModelWithJobs(ctx, uuid.New().String())
		assert.ErrorIs(t, err, ErrNotFound)

		assert.ErrorIs(t, s.UpdateModelStatus(ctx, uuid.New().String(), models.StatusFailed), ErrNotFound)
		assert.ErrorIs(t, s.UpdateJobStatus(ctx, "nope", models.StatusFailed, "x"), ErrNotFound)
	})
}

func TestListModelsNewestFirst(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		var ids []string
		for _, name := range []string{"a.glb", "b.glb", "c.glb"} {
			m, err := s.CreateModel(ctx, name, "uploads/glb/"+name)
			require.NoError(t, err)
			ids = append(ids, m.ID)
			time.Sleep(2 * time.Millisecond)
		}

		list, err := s.ListModels(ctx)
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, ids[2], list[0].ID)
		assert.Equal(t, ids[1], list[1].ID)
		assert.Equal(t, ids[0], list[2].ID)
	})
}

func TestListModelsEmpty(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		list, err := s.ListModels(context.Background())
		require.NoError(t, err)
		assert.NotNil(t, list)
		assert.Empty(t, list)
	})
}

func TestJobOrdering(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		first, err := s.CreateModel(ctx, "first.glb", "f")
		require.NoError(t, err)
		second, err := s.CreateModel(ctx, "second.glb", "s")
		require.NoError(t, err)

		var created []string
		for _, m := range []*models.Model{first, second} {
			for _, jt := range models.ProcessingJobTypes {
				j, err := s.CreateJob(ctx, m.ID, jt)
				require.NoError(t, err)
				created = append(created, j.ID)
				time.Sleep(2 * time.Millisecond)
			}
		}

		pending, err := s.PendingJobs(ctx)
		require.NoError(t, err)
		require.Len(t, pending, 4)
		for i, j := range pending {
			assert.Equal(t, created[i], j.ID, "pending jobs must be oldest first")
		}

		byModel, err := s.JobsByModel(ctx, first.ID)
		require.NoError(t, err)
		require.Len(t, byModel, 2)
		assert.Equal(t, created[1], byModel[0].ID, "model jobs must be newest first")
		assert.Equal(t, models.JobTypePreviewGeneration, byModel[0].JobType)
		assert.Equal(t, created[0], byModel[1].ID)
	})
}

func TestUpdateJobStatus(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		m, err := s.CreateModel(ctx, "demo.glb", "p")
		require.NoError(t, err)
		j, err := s.CreateJob(ctx, m.ID, models.JobTypeSTLConversion)
		require.NoError(t, err)

		require.NoError(t, s.UpdateJobStatus(ctx, j.ID, models.StatusFailed, "GLB file is empty"))
		jobs, err := s.JobsByModel(ctx, m.ID)
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, models.StatusFailed, jobs[0].Status)
		assert.Equal(t, "GLB file is empty", jobs[0].ErrorMessage)
		assert.False(t, jobs[0].UpdatedAt.Before(jobs[0].CreatedAt))

		pending, err := s.PendingJobs(ctx)
		require.NoError(t, err)
		assert.Empty(t, pending)

		require.NoError(t, s.UpdateJobStatus(ctx, j.ID, models.StatusCompleted, ""))
		jobs, err = s.JobsByModel(ctx, m.ID)
		require.NoError(t, err)
		assert.Empty(t, jobs[0].ErrorMessage)
	})
}

func TestUpdateModelFields(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		m, err := s.CreateModel(ctx, "demo.glb", "p")
		require.NoError(t, err)

		require.NoError(t, s.UpdateModelSTLURI(ctx, m.ID, "uploads/stl/x.stl"))
		require.NoError(t, s.UpdateModelPreviewURI(ctx, m.ID, "uploads/png/x_preview.png"))
		require.NoError(t, s.UpdateModelStatus(ctx, m.ID, models.StatusCompleted))

		got, err := s.GetModelWithJobs(ctx, m.ID)
		require.NoError(t, err)
		assert.Equal(t, "uploads/stl/x.stl", got.STLFileURI)
		assert.Equal(t, "uploads/png/x_preview.png", got.PreviewImageURI)
		assert.Equal(t, models.StatusCompleted, got.Status)
		assert.NotNil(t, got.Jobs)
		assert.Empty(t, got.Jobs)
		assert.False(t, got.UpdatedAt.Before(m.UpdatedAt))
	})
}

func TestCreateJobRequiresModel(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		_, err := s.CreateJob(context.Background(), uuid.New().String(), models.JobTypeSTLConversion)
		assert.Error(t, err)
	})
}

func TestOpenUnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "")
	assert.Error(t, err)
}
