package queue

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/yungbote/exampaper-backend/internal/observability"
	"github.com/yungbote/exampaper-backend/internal/platform/logger"
)

type Kind string

const (
	KindExtract  Kind = "extract"
	KindIndex    Kind = "index"
	KindGenerate Kind = "generate"
)

// Task is one unit of supervisor work.
//
// ID is the document id for extract and unclaimed index tasks, the index job
// id for claimed index tasks, and the generation job id for generate tasks.
// Claimed tasks already won their status CAS and must not run it again.
type Task struct {
	Kind    Kind
	ID      uuid.UUID
	Claimed bool
	TraceID string
}

var ErrFull = errors.New("task queue is full")

type Enqueuer interface {
	Enqueue(ctx context.Context, t Task) error
}

// Queue is a bounded in-process buffer between coordinators and the supervisor.
// A full queue drops the task; the sweeper re-discovers it from the store.
type Queue struct {
	ch  chan Task
	log *logger.Logger
}

func New(size int, baseLog *logger.Logger) *Queue {
	if size < 1 {
		size = 1
	}
	return &Queue{
		ch:  make(chan Task, size),
		log: baseLog.With("component", "TaskQueue"),
	}
}

func (q *Queue) Enqueue(ctx context.Context, t Task) error {
	if q == nil {
		return nil
	}
	if t.ID == uuid.Nil || t.Kind == "" {
		return errors.New("task kind and id are required")
	}
	select {
	case q.ch <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		q.log.Warn("Task queue full, dropping task", "kind", t.Kind, "id", t.ID, "claimed", t.Claimed)
		observability.Current().IncQueueDropped()
		return ErrFull
	}
}

func (q *Queue) Tasks() <-chan Task { return q.ch }

func (q *Queue) Len() int { return len(q.ch) }

// Nop discards every task. Used when a coordinator runs without a supervisor.
type Nop struct{}

func (Nop) Enqueue(context.Context, Task) error { return nil }
