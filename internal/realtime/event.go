package realtime

import (
	"time"

	"github.com/google/uuid"
)

// Event kinds published on the job channel.
const (
	EventJobCreated   = "job_created"
	EventJobProgress  = "job_progress"
	EventJobDone      = "job_done"
	EventJobFailed    = "job_failed"
	EventJobCanceled  = "job_canceled"
	EventJobRestarted = "job_restarted"
	EventDocComplete  = "document_complete"
	EventDocFailed    = "document_failed"
)

// Event is one realtime message. Events are advisory only: every consumer
// can reconstruct the same information from the database, so losing one is
// never a correctness problem.
type Event struct {
	Kind       string     `json:"kind"`
	JobID      uuid.UUID  `json:"job_id,omitempty"`
	JobType    string     `json:"job_type,omitempty"`
	EntityType string     `json:"entity_type,omitempty"`
	EntityID   *uuid.UUID `json:"entity_id,omitempty"`
	Stage      string     `json:"stage,omitempty"`
	Progress   int        `json:"progress,omitempty"`
	Message    string     `json:"message,omitempty"`
	Error      string     `json:"error,omitempty"`
	At         time.Time  `json:"at"`
}
