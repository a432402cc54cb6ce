package events

import (
	"time"

	"github.com/google/uuid"
)

type Subject string

const (
	SubjectDocument      Subject = "document"
	SubjectIndexJob      Subject = "index_job"
	SubjectGenerationJob Subject = "generation_job"
)

// StatusEvent is published after a pipeline transition has been persisted.
type StatusEvent struct {
	Subject Subject   `json:"subject"`
	ID      uuid.UUID `json:"id"`
	Status  string    `json:"status"`
	Error   string    `json:"error,omitempty"`
	TraceID string    `json:"trace_id,omitempty"`
	At      time.Time `json:"at"`
}
