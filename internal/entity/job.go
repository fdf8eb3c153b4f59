package entity

import (
	"time"

	"github.com/google/uuid"
)

// Job is the queue payload: a pointer to a document plus its type, duplicated
// at enqueue time so a worker can dispatch without a store lookup. Jobs are
// never mutated, only moved between the queued and in-flight sets.
type Job struct {
	DocumentID uuid.UUID    `json:"documentId"`
	Dtype      DocumentType `json:"dtype"`
}

// FailedJob is the entry appended to the failed-jobs list for manual
// inspection. There is no automatic retry.
type FailedJob struct {
	Job
	FailedAt time.Time `json:"failedAt"`
}
