package notify

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jupark12/model-processor/config"
	"github.com/jupark12/model-processor/models"
)

func TestDecode(t *testing.T) {
	event, err := Decode([]byte(`{"type":"model_update","modelId":"m1","modelStatus":"completed","jobStatus":"completed"}`))
	require.NoError(t, err)
	assert.Equal(t, "m1", event.ModelID)
	assert.Equal(t, models.StatusCompleted, event.ModelStatus)

	_, err = Decode([]byte(`{"type":"other","modelId":"m1"}`))
	assert.Error(t, err)

	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestPublisherFunc(t *testing.T) {
	var got []models.ModelEvent
	p := PublisherFunc(func(_ context.Context, e models.ModelEvent) error {
		got = append(got, e)
		return nil
	})

	job := models.Job{ID: "j1", ModelID: "m1", JobType: models.JobTypeSTLConversion, Status: models.StatusProcessing}
	require.NoError(t, p.Publish(context.Background(), models.NewJobEvent(job, models.StatusPending)))
	require.NoError(t, Nop.Publish(context.Background(), models.ModelEvent{}))

	require.Len(t, got, 1)
	assert.Equal(t, models.EventModelUpdate, got[0].Type)
	assert.Equal(t, "j1", got[0].JobID)
	assert.Equal(t, models.StatusProcessing, got[0].JobStatus)
}

// TestRedisRoundTrip needs a scratch Redis at TEST_REDIS_ADDR.
func TestRedisRoundTrip(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus, err := NewRedisBus(ctx, config.RedisConfig{Addr: addr, Channel: "models:test"}, logger)
	require.NoError(t, err)
	defer bus.Close()

	received := make(chan models.ModelEvent, 1)
	go bus.Listen(ctx, func(e models.ModelEvent) { received <- e })

	event := models.ModelEvent{Type: models.EventModelUpdate, ModelID: "m1", ModelStatus: models.StatusFailed}
	require.Eventually(t, func() bool {
		if err := bus.Publish(ctx, event); err != nil {
			return false
		}
		select {
		case e := <-received:
			return e.ModelID == "m1" && e.ModelStatus == models.StatusFailed
		case <-time.After(100 * time.Millisecond):
			return false
		}
	}, 4*time.Second, 50*time.Millisecond)
}
