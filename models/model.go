package models

import "time"

// Model is an uploaded 3D asset and the files derived from it
type Model struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	FileURI         string    `json:"fileUri"`
	STLFileURI      string    `json:"stlFileUri,omitempty"`
	PreviewImageURI string    `json:"previewImageUri,omitempty"`
	Status          Status    `json:"status"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// ModelWithJobs is a model together with its full job history, newest first
type ModelWithJobs struct {
	Model
	Jobs []Job `json:"jobs"`
}

// AggregateStatus derives a model's status from all of its jobs.
//
// All completed wins, then any failed, then any processing. Otherwise the
// current status is kept, which means a model whose jobs are all pending is
// left untouched rather than forced back to pending.
func AggregateStatus(current Status, jobs []Job) Status {
	if len(jobs) == 0 {
		return current
	}

	allCompleted := true
	anyFailed := false
	anyProcessing := false
	for _, job := range jobs {
		switch job.Status {
		case StatusCompleted:
			continue
		case StatusFailed:
			anyFailed = true
		case StatusProcessing:
			anyProcessing = true
		}
		allCompleted = false
	}

	switch {
	case allCompleted:
		return StatusCompleted
	case anyFailed:
		return StatusFailed
	case anyProcessing:
		return StatusProcessing
	default:
		return current
	}
}
