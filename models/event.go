package models

import "time"

// EventModelUpdate is the only event type pushed to UI clients
const EventModelUpdate = "model_update"

// ModelEvent describes a status transition of a job and its model
type ModelEvent struct {
	Type        string    `json:"type"`
	ModelID     string    `json:"modelId"`
	ModelStatus Status    `json:"modelStatus,omitempty"`
	JobID       string    `json:"jobId,omitempty"`
	JobType     JobType   `json:"jobType,omitempty"`
	JobStatus   Status    `json:"jobStatus,omitempty"`
	Error       string    `json:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewJobEvent builds a model_update event for a job transition
func NewJobEvent(job Job, modelStatus Status) ModelEvent {
	return ModelEvent{
		Type:        EventModelUpdate,
		ModelID:     job.ModelID,
		ModelStatus: modelStatus,
		JobID:       job.ID,
		JobType:     job.JobType,
		JobStatus:   job.Status,
		Error:       job.ErrorMessage,
		Timestamp:   time.Now().UTC(),
	}
}
