package models

import (
	"time"
)

// Status represents the processing state shared by models and jobs
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Valid reports whether s is one of the known statuses
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// JobType identifies the unit of background work a job performs
type JobType string

const (
	JobTypeSTLConversion     JobType = "stl_conversion"
	JobTypePreviewGeneration JobType = "preview_generation"
)

// ProcessingJobTypes lists the jobs created for every upload and reprocess, in creation order.
var ProcessingJobTypes = []JobType{JobTypeSTLConversion, JobTypePreviewGeneration}

// Job represents one conversion or preview step for a model
type Job struct {
	ID           string    `json:"id"`
	ModelID      string    `json:"modelId"`
	JobType      JobType   `json:"jobType"`
	Status       Status    `json:"status"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
