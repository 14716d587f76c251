package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jobsWith(statuses ...Status) []Job {
	jobs := make([]Job, 0, len(statuses))
	for _, s := range statuses {
		jobs = append(jobs, Job{Status: s})
	}
	return jobs
}

func TestAggregateStatus(t *testing.T) {
	tests := []struct {
		name    string
		current Status
		jobs    []Job
		want    Status
	}{
		{"all completed", StatusPending, jobsWith(StatusCompleted, StatusCompleted), StatusCompleted},
		{"failed beats processing", StatusProcessing, jobsWith(StatusFailed, StatusProcessing), StatusFailed},
		{"failed beats completed", StatusPending, jobsWith(StatusCompleted, StatusFailed), StatusFailed},
		{"processing with pending", StatusPending, jobsWith(StatusProcessing, StatusPending), StatusProcessing},
		{"completed and pending keeps current", StatusPending, jobsWith(StatusCompleted, StatusPending), StatusPending},
		// all-pending jobs never move the model; a completed model stays completed after reprocess is queued
		{"all pending keeps current", StatusCompleted, jobsWith(StatusPending, StatusPending), StatusCompleted},
		{"no jobs keeps current", StatusFailed, nil, StatusFailed},
		{"old failure with new completions", StatusFailed, jobsWith(StatusCompleted, StatusCompleted, StatusFailed, StatusCompleted), StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AggregateStatus(tt.current, tt.jobs))
		})
	}
}

func TestStatusValid(t *testing.T) {
	assert.True(t, StatusPending.Valid())
	assert.True(t, StatusFailed.Valid())
	assert.False(t, Status("queued").Valid())
}

func TestModelWithJobsJSONShape(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	m := ModelWithJobs{
		Model: Model{
			ID:        "m1",
			Name:      "demo.glb",
			FileURI:   "uploads/glb/1-2.glb",
			Status:    StatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		},
		Jobs: []Job{{ID: "j1", ModelID: "m1", JobType: JobTypeSTLConversion, Status: StatusPending}},
	}

	data, err := json.Marshal(m)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, "m1", decoded["id"])
	assert.Equal(t, "uploads/glb/1-2.glb", decoded["fileUri"])
	assert.NotContains(t, decoded, "stlFileUri")
	assert.NotContains(t, decoded, "previewImageUri")

	jobs, ok := decoded["jobs"].([]interface{})
	require.True(t, ok)
	require.Len(t, jobs, 1)
	job := jobs[0].(map[string]interface{})
	assert.Equal(t, "stl_conversion", job["jobType"])
	assert.Equal(t, "m1", job["modelId"])
	assert.NotContains(t, job, "errorMessage")
}
