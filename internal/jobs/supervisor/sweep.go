package supervisor

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/exampaper-backend/internal/domain"
	"github.com/yungbote/exampaper-backend/internal/jobs/queue"
	"github.com/yungbote/exampaper-backend/internal/observability"
	"github.com/yungbote/exampaper-backend/internal/pkg/dbctx"
)

func (s *Supervisor) sweepLoop(ctx context.Context) {
	s.Sweep(ctx)
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep collects work the queue missed: records stuck in processing past
// StaleAfter are re-run as claimed tasks, pending generation jobs are
// submitted, and with auto-advance pending or unindexed documents are too.
func (s *Supervisor) Sweep(ctx context.Context) []queue.Task {
	dbc := dbctx.Context{Ctx: ctx}
	cutoff := s.deps.Now().Add(-s.cfg.StaleAfter)
	limit := s.cfg.SweepBatch
	var tasks []queue.Task

	collect := func(what string, kind queue.Kind, claimed bool, ids []uuid.UUID, err error) {
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				s.log.Warn("Sweep query failed", "what", what, "error", err)
			}
			return
		}
		for _, id := range ids {
			tasks = append(tasks, queue.Task{Kind: kind, ID: id, Claimed: claimed})
		}
	}

	if s.deps.Documents != nil {
		ids, err := s.deps.Documents.ReclaimStale(dbc, cutoff, limit)
		collect("stale documents", queue.KindExtract, true, ids, err)
	}
	if s.deps.IndexJobs != nil {
		ids, err := s.deps.IndexJobs.ReclaimStale(dbc, cutoff, limit)
		collect("stale index jobs", queue.KindIndex, true, ids, err)
	}
	if s.deps.GenerationJobs != nil {
		ids, err := s.deps.GenerationJobs.ReclaimStale(dbc, cutoff, limit)
		collect("stale generation jobs", queue.KindGenerate, true, ids, err)
		ids, err = s.deps.GenerationJobs.ListIDsByStatus(dbc, types.PaperPending, limit)
		collect("pending generation jobs", queue.KindGenerate, false, ids, err)
	}
	if s.cfg.AutoAdvance && s.deps.Documents != nil {
		ids, err := s.deps.Documents.ListIDsByStatus(dbc, types.DocumentPending, limit)
		collect("pending documents", queue.KindExtract, false, ids, err)
		ids, err = s.deps.Documents.ListCompletedWithoutIndex(dbc, limit)
		collect("unindexed documents", queue.KindIndex, false, ids, err)
	}

	if len(tasks) > 0 {
		s.log.Info("Sweep found work", "tasks", len(tasks))
	}
	if s.deps.Queue == nil {
		return tasks
	}
	for i, t := range tasks {
		if err := s.deps.Queue.Enqueue(ctx, t); err != nil {
			s.log.Warn("Sweep stopped early", "submitted", i, "found", len(tasks), "error", err)
			break
		}
	}
	observability.Current().SetQueueDepth(s.deps.Queue.Len())
	return tasks
}
