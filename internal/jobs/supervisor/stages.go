package supervisor

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	types "github.com/yungbote/exampaper-backend/internal/domain"
	"github.com/yungbote/exampaper-backend/internal/domain/events"
	"github.com/yungbote/exampaper-backend/internal/extraction"
	"github.com/yungbote/exampaper-backend/internal/jobs/queue"
	"github.com/yungbote/exampaper-backend/internal/modules/generation"
	"github.com/yungbote/exampaper-backend/internal/observability"
	"github.com/yungbote/exampaper-backend/internal/platform/apierr"
	"github.com/yungbote/exampaper-backend/internal/questiongen"
)

func (s *Supervisor) extract(ctx context.Context, t queue.Task) error {
	var (
		doc *types.Document
		err error
	)
	if t.Claimed {
		doc, err = s.deps.Ingestion.LoadExtraction(ctx, t.ID)
	} else {
		doc, err = s.deps.Ingestion.BeginExtraction(ctx, t.ID)
	}
	if err != nil {
		return err
	}
	log := s.log.With("document_id", doc.ID, "trace_id", t.TraceID)
	s.publish(ctx, events.SubjectDocument, doc.ID, t, string(types.DocumentProcessing), "")

	spanCtx, span := observability.StartSpan(ctx, "supervisor.extraction", attribute.String("document_id", doc.ID.String()))
	src := extraction.SourceFor(doc)
	text, res := runStage(s, spanCtx, StageExtraction, s.cfg.ExtractionTimeout, func(ctx context.Context) (string, error) {
		return s.deps.Extractor.Extract(ctx, src)
	})
	endSpan(span, res)

	if res.Outcome == outcomeCancelled {
		log.Warn("Extraction interrupted, leaving for stale reclaim", "attempts", res.Attempts)
		s.observe(StageExtraction, res.Outcome, res)
		return nil
	}
	pctx := context.WithoutCancel(ctx)
	if res.Outcome != outcomeCompleted {
		log.Warn("Extraction stage failed", "outcome", res.Outcome, "attempts", res.Attempts, "error", res.Err)
		s.observe(StageExtraction, res.Outcome, res)
		if err := s.deps.Ingestion.FailExtraction(pctx, doc.ID, doc.ContentVersion, res.Reason); err != nil {
			log.Error("Persist extraction failure failed", "error", err)
			return nil
		}
		s.publish(pctx, events.SubjectDocument, doc.ID, t, string(types.DocumentFailed), res.Reason)
		return nil
	}

	if err := s.deps.Ingestion.CompleteExtraction(pctx, doc.ID, doc.ContentVersion, text); err != nil {
		log.Error("Persist extraction result failed", "error", err)
		s.observe(StageExtraction, outcomeFailed, res)
		return nil
	}
	s.observe(StageExtraction, outcomeCompleted, res)
	s.publish(pctx, events.SubjectDocument, doc.ID, t, string(types.DocumentCompleted), "")

	if s.cfg.AutoAdvance {
		next := queue.Task{Kind: queue.KindIndex, ID: doc.ID, TraceID: t.TraceID}
		if err := s.index(ctx, next); err != nil {
			log.Debug("Indexing not started after extraction", "error", err)
		}
	}
	return nil
}

func (s *Supervisor) index(ctx context.Context, t queue.Task) error {
	jobID := t.ID
	if !t.Claimed {
		job, err := s.deps.Ingestion.BeginIndexing(ctx, t.ID)
		if err != nil {
			return err
		}
		jobID = job.ID
	}
	job, doc, err := s.deps.Ingestion.LoadIndexing(ctx, jobID)
	if err != nil {
		return err
	}
	log := s.log.With("document_id", doc.ID, "index_job_id", job.ID, "trace_id", t.TraceID)
	s.publish(ctx, events.SubjectIndexJob, job.ID, t, string(types.DocumentProcessing), "")

	spanCtx, span := observability.StartSpan(ctx, "supervisor.indexing",
		attribute.String("document_id", doc.ID.String()),
		attribute.String("index_job_id", job.ID.String()),
	)
	chunks, res := runStage(s, spanCtx, StageIndexing, s.cfg.IndexingTimeout, func(ctx context.Context) (int, error) {
		return s.deps.Indexer.Index(ctx, doc, job)
	})
	endSpan(span, res)

	if res.Outcome == outcomeCancelled {
		log.Warn("Indexing interrupted, leaving for stale reclaim", "attempts", res.Attempts)
		s.observe(StageIndexing, res.Outcome, res)
		return nil
	}
	pctx := context.WithoutCancel(ctx)
	if res.Outcome != outcomeCompleted {
		log.Warn("Indexing stage failed", "outcome", res.Outcome, "attempts", res.Attempts, "error", res.Err)
		s.observe(StageIndexing, res.Outcome, res)
		if err := s.deps.Ingestion.FailIndexing(pctx, job.ID, res.Reason); err != nil {
			log.Error("Persist indexing failure failed", "error", err)
			return nil
		}
		s.publish(pctx, events.SubjectIndexJob, job.ID, t, string(types.DocumentFailed), res.Reason)
		return nil
	}
	if err := s.deps.Ingestion.CompleteIndexing(pctx, job.ID, chunks); err != nil {
		log.Error("Persist indexing result failed", "error", err)
		s.observe(StageIndexing, outcomeFailed, res)
		return nil
	}
	s.observe(StageIndexing, outcomeCompleted, res)
	s.publish(pctx, events.SubjectIndexJob, job.ID, t, string(types.DocumentCompleted), "")
	return nil
}

func (s *Supervisor) generate(ctx context.Context, t queue.Task) error {
	var (
		job   *types.GenerationJob
		paper *types.Paper
		err   error
	)
	if t.Claimed {
		job, paper, err = s.deps.Generation.LoadRun(ctx, t.ID)
	} else {
		job, paper, err = s.deps.Generation.BeginRun(ctx, t.ID)
		if apierr.Is(err, apierr.KindConflict) {
			// The job is pending but its paper moved on; close the job out.
			if ferr := s.deps.Generation.FailGeneration(context.WithoutCancel(ctx), t.ID, err.Error(), nil); ferr != nil {
				s.log.Error("Close orphaned generation job failed", "generation_job_id", t.ID, "error", ferr)
			}
		}
	}
	if err != nil {
		return err
	}
	log := s.log.With("paper_id", paper.ID, "generation_job_id", job.ID, "trace_id", t.TraceID)
	s.publish(ctx, events.SubjectGenerationJob, job.ID, t, string(types.PaperProcessing), "")

	spanCtx, span := observability.StartSpan(ctx, "supervisor.generation",
		attribute.String("paper_id", paper.ID.String()),
		attribute.String("generation_job_id", job.ID.String()),
		attribute.Int("questions_requested", paper.Config().Total()),
	)
	bundle, res := runStage(s, spanCtx, StageGeneration, s.cfg.GenerationTimeout, func(ctx context.Context) (types.QuestionBundle, error) {
		syllabi, err := s.deps.Generation.SourceText(ctx, paper)
		if err != nil {
			return types.QuestionBundle{}, err
		}
		return s.deps.Engine.Generate(ctx, questiongen.Request{Paper: paper, Syllabi: syllabi})
	})
	endSpan(span, res)

	if res.Outcome == outcomeCancelled {
		log.Warn("Generation interrupted, leaving for stale reclaim", "attempts", res.Attempts)
		s.observe(StageGeneration, res.Outcome, res)
		return nil
	}
	pctx := context.WithoutCancel(ctx)
	if res.Outcome != outcomeCompleted {
		log.Warn("Generation stage failed", "outcome", res.Outcome, "attempts", res.Attempts, "error", res.Err)
		s.observe(StageGeneration, res.Outcome, res)
		s.failGeneration(pctx, t, job.ID, res.Reason)
		return nil
	}

	_, short, err := s.deps.Generation.CompleteGeneration(pctx, job.ID, bundle)
	switch {
	case err != nil:
		log.Error("Persist question set failed", "error", err)
		s.observe(StageGeneration, outcomeFailed, res)
		s.failGeneration(pctx, t, job.ID, "persist question set: "+err.Error())
	case len(short) > 0:
		s.observe(StageGeneration, outcomeFailed, res)
		s.publish(pctx, events.SubjectGenerationJob, job.ID, t, string(types.PaperFailed), generation.ShortfallReason(short))
	default:
		s.observe(StageGeneration, outcomeCompleted, res)
		s.publish(pctx, events.SubjectGenerationJob, job.ID, t, string(types.PaperGenerated), "")
	}
	return nil
}

func (s *Supervisor) failGeneration(ctx context.Context, t queue.Task, jobID uuid.UUID, reason string) {
	if err := s.deps.Generation.FailGeneration(ctx, jobID, reason, nil); err != nil {
		s.log.Error("Persist generation failure failed", "generation_job_id", jobID, "error", err)
		return
	}
	s.publish(ctx, events.SubjectGenerationJob, jobID, t, string(types.PaperFailed), reason)
}

func (s *Supervisor) observe(stage string, o outcome, res stageResult) {
	observability.Current().ObserveStage(stage, string(o), res.Duration)
}

func endSpan(span trace.Span, res stageResult) {
	span.SetAttributes(
		attribute.String("outcome", string(res.Outcome)),
		attribute.Int("attempts", res.Attempts),
	)
	if res.Outcome != outcomeCompleted && res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(otelcodes.Error, res.Reason)
	}
	span.End()
}
