package model

import (
	"encoding/json"
	"time"
)

// JobStatus represents the lifecycle state of an enrichment job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"

	// JobStatusNotFound is a synthetic status returned for unknown job ids.
	// It is never persisted.
	JobStatusNotFound JobStatus = "not_found"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CanTransition reports whether a ledger record may move from s to next.
// Transitions are monotonic: pending -> processing -> {completed | failed}.
func (s JobStatus) CanTransition(next JobStatus) bool {
	switch s {
	case JobStatusPending:
		return next == JobStatusProcessing
	case JobStatusProcessing:
		return next == JobStatusCompleted || next == JobStatusFailed
	default:
		return false
	}
}

// Job types.
const (
	JobTypeDescription = "description-generation"
)

// Job is the persisted ledger record tracking one enrichment job.
type Job struct {
	ID        string          `json:"job_id" db:"id"`
	Type      string          `json:"type" db:"type"`
	Status    JobStatus       `json:"status" db:"status"`
	CompanyID string          `json:"company_id" db:"company_id"`
	Result    json.RawMessage `json:"result,omitempty" db:"result"`
	Error     string          `json:"error,omitempty" db:"error"`
	Progress  int             `json:"progress" db:"progress"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}
