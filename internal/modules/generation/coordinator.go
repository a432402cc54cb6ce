package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/exampaper-backend/internal/data/aggregates"
	"github.com/yungbote/exampaper-backend/internal/data/db"
	"github.com/yungbote/exampaper-backend/internal/data/repos"
	types "github.com/yungbote/exampaper-backend/internal/domain"
	"github.com/yungbote/exampaper-backend/internal/jobs/queue"
	"github.com/yungbote/exampaper-backend/internal/pkg/dbctx"
	"github.com/yungbote/exampaper-backend/internal/platform/apierr"
	"github.com/yungbote/exampaper-backend/internal/platform/ctxutil"
	"github.com/yungbote/exampaper-backend/internal/platform/logger"
)

type CoordinatorDeps struct {
	DB             *gorm.DB
	Log            *logger.Logger
	Papers         repos.PaperRepo
	GenerationJobs repos.GenerationJobRepo
	QuestionSets   repos.QuestionSetRepo
	Documents      repos.DocumentRepo
	IndexJobs      repos.IndexJobRepo
	Queue          queue.Enqueuer
	Now            func() time.Time
}

// Coordinator owns every paper and generation job transition.
type Coordinator struct {
	deps CoordinatorDeps
	tx   aggregates.TxRunner
	log  *logger.Logger
}

func NewCoordinator(deps CoordinatorDeps) *Coordinator {
	if deps.Queue == nil {
		deps.Queue = queue.Nop{}
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Coordinator{
		deps: deps,
		tx:   aggregates.NewGormTxRunner(deps.DB),
		log:  deps.Log.With("service", "GenerationCoordinator"),
	}
}

func requireStaff(caller types.Caller) error {
	if caller.ID == uuid.Nil {
		return apierr.Unauthorized("caller identity required")
	}
	if !caller.Valid() {
		return apierr.Forbidden("role %q may not manage papers", caller.Role)
	}
	return nil
}

// CreateDraft stores a paper in draft. Readiness is not checked here.
func (c *Coordinator) CreateDraft(ctx context.Context, caller types.Caller, in DraftInput) (*types.Paper, error) {
	if err := requireStaff(caller); err != nil {
		return nil, err
	}
	shape, err := in.shape()
	if err != nil {
		return nil, err
	}
	p := &types.Paper{
		SubjectID:          in.SubjectID,
		Title:              strings.TrimSpace(in.Title),
		Units:              datatypes.NewJSONSlice(shape.units),
		Difficulty:         shape.difficulty,
		QuestionConfig:     datatypes.NewJSONType(shape.config),
		CustomInstructions: shape.instructions,
		InlineSyllabi:      datatypes.NewJSONType(shape.syllabi),
		Status:             types.PaperDraft,
		CreatedBy:          caller.ID,
	}
	if err := c.deps.Papers.Create(dbctx.Context{Ctx: ctx}, p); err != nil {
		return nil, fmt.Errorf("create paper: %w", err)
	}
	c.log.Info("Draft created", "paper_id", p.ID, "subject_id", p.SubjectID, "units", shape.units, "created_by", caller.ID)
	return p, nil
}

// StartGeneration validates readiness for every unit and moves the paper to
// pending together with a new generation job.
func (c *Coordinator) StartGeneration(ctx context.Context, caller types.Caller, paperID uuid.UUID, in *GenerateInput) (*types.GenerationJob, error) {
	if err := requireStaff(caller); err != nil {
		return nil, err
	}
	dbc := dbctx.Context{Ctx: ctx}
	paper, err := c.deps.Papers.GetByID(dbc, paperID)
	if err != nil {
		return nil, err
	}
	if paper == nil {
		return nil, apierr.NotFound("paper %s not found", paperID)
	}
	if err := startPrecondition(paper); err != nil {
		return nil, err
	}
	shape, err := in.merge(paper)
	if err != nil {
		return nil, err
	}

	notReady, err := c.unreadyUnits(dbc, paper.SubjectID, shape.units, shape.syllabi)
	if err != nil {
		return nil, err
	}
	if len(notReady) > 0 {
		return nil, apierr.NotReady("units not ready for generation: %s", joinInts(notReady))
	}

	job := &types.GenerationJob{PaperID: paper.ID, Status: types.PaperPending}
	err = c.tx.InTx(ctx, func(txc dbctx.Context) error {
		updates := shape.updates()
		updates["status"] = types.PaperPending
		updates["error"] = ""
		ok, err := c.deps.Papers.UpdateFieldsIfStatus(txc, paper.ID, []types.PaperStatus{types.PaperDraft, types.PaperFailed}, updates)
		if err != nil {
			return err
		}
		if !ok {
			current, err := c.deps.Papers.GetByID(txc, paper.ID)
			if err != nil {
				return err
			}
			if current != nil {
				if err := startPrecondition(current); err != nil {
					return err
				}
			}
			return apierr.AlreadyInProgress("paper %s generation already started", paper.ID)
		}
		if err := c.deps.GenerationJobs.Create(txc, job); err != nil {
			if db.IsDuplicateKey(err) {
				return apierr.AlreadyInProgress("paper %s already has a live generation job", paper.ID)
			}
			return fmt.Errorf("create generation job: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.log.Info("Generation requested", "paper_id", paper.ID, "generation_job_id", job.ID, "questions", shape.config.Total())
	c.enqueue(ctx, queue.Task{Kind: queue.KindGenerate, ID: job.ID})
	return job, nil
}

func startPrecondition(p *types.Paper) error {
	switch p.Status {
	case types.PaperDraft, types.PaperFailed:
		return nil
	case types.PaperPending, types.PaperProcessing:
		return apierr.AlreadyInProgress("paper %s is already %s", p.ID, p.Status)
	case types.PaperGenerated:
		return apierr.Conflict("paper %s is already generated", p.ID)
	default:
		return apierr.Conflict("paper %s has unknown status %q", p.ID, p.Status)
	}
}

// Readiness reports the units of paper that would fail the generation gate.
func (c *Coordinator) Readiness(ctx context.Context, paper *types.Paper) ([]int, error) {
	return c.unreadyUnits(dbctx.Context{Ctx: ctx}, paper.SubjectID, []int(paper.Units), paper.Syllabi())
}

// A unit is ready with inline syllabus text, a document carrying syllabus
// text, or a completed document whose latest index job completed at the
// document's current content version.
func (c *Coordinator) unreadyUnits(dbc dbctx.Context, subjectID uuid.UUID, units []int, inline types.InlineSyllabi) ([]int, error) {
	docs, err := c.deps.Documents.GetBySubjectUnits(dbc, subjectID, units)
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}
	byUnit := make(map[int]*types.Document, len(docs))
	ids := make([]uuid.UUID, 0, len(docs))
	for _, d := range docs {
		byUnit[d.UnitNumber] = d
		ids = append(ids, d.ID)
	}
	latest, err := c.deps.IndexJobs.GetLatestByDocuments(dbc, ids)
	if err != nil {
		return nil, fmt.Errorf("load index jobs: %w", err)
	}

	var notReady []int
	for _, u := range units {
		if strings.TrimSpace(inline[u]) != "" {
			continue
		}
		doc := byUnit[u]
		if doc == nil {
			notReady = append(notReady, u)
			continue
		}
		if doc.HasSyllabus() {
			continue
		}
		job := latest[doc.ID]
		if doc.Status == types.DocumentCompleted && job != nil &&
			job.Status == types.DocumentCompleted && job.DocumentVersion == doc.ContentVersion {
			continue
		}
		notReady = append(notReady, u)
	}
	return sortedInts(notReady), nil
}

// BeginRun claims a pending job for execution.
func (c *Coordinator) BeginRun(ctx context.Context, jobID uuid.UUID) (*types.GenerationJob, *types.Paper, error) {
	var (
		job   *types.GenerationJob
		paper *types.Paper
	)
	err := c.tx.InTx(ctx, func(txc dbctx.Context) error {
		var err error
		job, err = c.deps.GenerationJobs.GetByID(txc, jobID)
		if err != nil {
			return err
		}
		if job == nil {
			return apierr.NotFound("generation job %s not found", jobID)
		}
		now := c.deps.Now()
		ok, err := c.deps.GenerationJobs.UpdateFieldsIfStatus(txc, job.ID, []types.PaperStatus{types.PaperPending}, map[string]interface{}{
			"status":     types.PaperProcessing,
			"attempts":   gorm.Expr("attempts + 1"),
			"started_at": now,
		})
		if err != nil {
			return err
		}
		if !ok {
			return apierr.AlreadyInProgress("generation job %s is %s", job.ID, job.Status)
		}
		ok, err = c.deps.Papers.UpdateFieldsIfStatus(txc, job.PaperID, []types.PaperStatus{types.PaperPending}, map[string]interface{}{
			"status": types.PaperProcessing,
		})
		if err != nil {
			return err
		}
		if !ok {
			return apierr.Conflict("paper %s is not pending", job.PaperID)
		}
		paper, err = c.deps.Papers.GetByID(txc, job.PaperID)
		if err != nil {
			return err
		}
		job.Status = types.PaperProcessing
		job.StartedAt = &now
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return job, paper, nil
}

// LoadRun returns an already claimed job and its paper.
func (c *Coordinator) LoadRun(ctx context.Context, jobID uuid.UUID) (*types.GenerationJob, *types.Paper, error) {
	dbc := dbctx.Context{Ctx: ctx}
	job, err := c.deps.GenerationJobs.GetByID(dbc, jobID)
	if err != nil {
		return nil, nil, err
	}
	if job == nil {
		return nil, nil, apierr.NotFound("generation job %s not found", jobID)
	}
	if job.Status != types.PaperProcessing {
		return nil, nil, apierr.Conflict("generation job %s is %s", job.ID, job.Status)
	}
	paper, err := c.deps.Papers.GetByID(dbc, job.PaperID)
	if err != nil {
		return nil, nil, err
	}
	if paper == nil {
		return nil, nil, apierr.NotFound("paper %s not found", job.PaperID)
	}
	return job, paper, nil
}

// SourceText collects the syllabus text available per unit: inline text wins
// over document syllabus text.
func (c *Coordinator) SourceText(ctx context.Context, paper *types.Paper) (map[int]string, error) {
	units := []int(paper.Units)
	out := map[int]string{}
	docs, err := c.deps.Documents.GetBySubjectUnits(dbctx.Context{Ctx: ctx}, paper.SubjectID, units)
	if err != nil {
		return nil, err
	}
	for _, d := range docs {
		if d.HasSyllabus() {
			out[d.UnitNumber] = *d.SyllabusText
		}
	}
	for u, s := range paper.Syllabi() {
		out[u] = s
	}
	return out, nil
}

// CompleteGeneration checks the bundle against the requested counts. Extra
// questions are cut; any shortfall fails the run and the shortfall is returned.
func (c *Coordinator) CompleteGeneration(ctx context.Context, jobID uuid.UUID, bundle types.QuestionBundle) (*types.QuestionSet, []types.Shortfall, error) {
	dbc := dbctx.Context{Ctx: ctx}
	job, err := c.deps.GenerationJobs.GetByID(dbc, jobID)
	if err != nil {
		return nil, nil, err
	}
	if job == nil {
		return nil, nil, apierr.NotFound("generation job %s not found", jobID)
	}
	paper, err := c.deps.Papers.GetByID(dbc, job.PaperID)
	if err != nil {
		return nil, nil, err
	}
	if paper == nil {
		return nil, nil, apierr.NotFound("paper %s not found", job.PaperID)
	}

	short := bundle.Reconcile(paper.Config())
	if len(short) > 0 {
		if err := c.FailGeneration(ctx, jobID, ShortfallReason(short), short); err != nil {
			return nil, short, err
		}
		return nil, short, nil
	}

	qs := types.NewQuestionSet(paper.ID, job.ID, bundle)
	err = c.tx.InTx(ctx, func(txc dbctx.Context) error {
		now := c.deps.Now()
		ok, err := c.deps.GenerationJobs.UpdateFieldsIfStatus(txc, job.ID, []types.PaperStatus{types.PaperProcessing}, map[string]interface{}{
			"status":       types.PaperGenerated,
			"error":        "",
			"completed_at": now,
		})
		if err != nil {
			return err
		}
		if !ok {
			return apierr.Conflict("generation job %s is not processing", job.ID)
		}
		ok, err = c.deps.Papers.UpdateFieldsIfStatus(txc, paper.ID, []types.PaperStatus{types.PaperProcessing}, map[string]interface{}{
			"status": types.PaperGenerated,
			"error":  "",
		})
		if err != nil {
			return err
		}
		if !ok {
			return apierr.Conflict("paper %s is not processing", paper.ID)
		}
		return c.deps.QuestionSets.Create(txc, qs)
	})
	if err != nil {
		return nil, nil, err
	}
	c.log.Info("Paper generated", "paper_id", paper.ID, "generation_job_id", job.ID, "questions", bundle.Total(), "total_marks", qs.TotalMarks)
	return qs, nil, nil
}

// FailGeneration moves the job and its paper to failed. The paper can then be
// started again with a fresh job; failed jobs are kept.
func (c *Coordinator) FailGeneration(ctx context.Context, jobID uuid.UUID, reason string, shortfall []types.Shortfall) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "generation failed"
	}
	live := []types.PaperStatus{types.PaperPending, types.PaperProcessing}
	err := c.tx.InTx(ctx, func(txc dbctx.Context) error {
		job, err := c.deps.GenerationJobs.GetByID(txc, jobID)
		if err != nil {
			return err
		}
		if job == nil {
			return apierr.NotFound("generation job %s not found", jobID)
		}
		updates := map[string]interface{}{
			"status":       types.PaperFailed,
			"error":        reason,
			"completed_at": c.deps.Now(),
		}
		if len(shortfall) > 0 {
			updates["shortfall"] = datatypes.NewJSONSlice(shortfall)
		}
		ok, err := c.deps.GenerationJobs.UpdateFieldsIfStatus(txc, job.ID, live, updates)
		if err != nil {
			return err
		}
		if !ok {
			return apierr.Conflict("generation job %s is not live", job.ID)
		}
		if _, err := c.deps.Papers.UpdateFieldsIfStatus(txc, job.PaperID, live, map[string]interface{}{
			"status": types.PaperFailed,
			"error":  reason,
		}); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	c.log.Warn("Generation failed", "generation_job_id", jobID, "reason", reason)
	return nil
}

// ShortfallReason renders e.g. "partial: mcq requested 5 returned 3".
func ShortfallReason(short []types.Shortfall) string {
	parts := make([]string, 0, len(short))
	for _, s := range short {
		parts = append(parts, fmt.Sprintf("%s requested %d returned %d", s.Type, s.Requested, s.Returned))
	}
	return "partial: " + strings.Join(parts, "; ")
}

// GetPaper returns a generated paper and its questions. Anything else is NotFound.
func (c *Coordinator) GetPaper(ctx context.Context, caller types.Caller, paperID uuid.UUID) (*types.Paper, *types.QuestionSet, error) {
	if err := requireStaff(caller); err != nil {
		return nil, nil, err
	}
	dbc := dbctx.Context{Ctx: ctx}
	paper, err := c.deps.Papers.GetByID(dbc, paperID)
	if err != nil {
		return nil, nil, err
	}
	if paper == nil || paper.Status != types.PaperGenerated {
		return nil, nil, apierr.NotFound("paper %s is not generated", paperID)
	}
	qs, err := c.deps.QuestionSets.GetByPaper(dbc, paper.ID)
	if err != nil {
		return nil, nil, err
	}
	if qs == nil {
		return nil, nil, apierr.NotFound("paper %s has no question set", paperID)
	}
	return paper, qs, nil
}

// ListPapers lists the caller's papers newest first; admins see every paper.
func (c *Coordinator) ListPapers(ctx context.Context, caller types.Caller, limit int) ([]*types.Paper, error) {
	if err := requireStaff(caller); err != nil {
		return nil, err
	}
	var creator *uuid.UUID
	if !caller.IsAdmin() {
		id := caller.ID
		creator = &id
	}
	return c.deps.Papers.ListByCreator(dbctx.Context{Ctx: ctx}, creator, limit)
}

func (c *Coordinator) Jobs(ctx context.Context, caller types.Caller, paperID uuid.UUID) ([]*types.GenerationJob, error) {
	if err := requireStaff(caller); err != nil {
		return nil, err
	}
	return c.deps.GenerationJobs.ListByPaper(dbctx.Context{Ctx: ctx}, paperID)
}

func (c *Coordinator) enqueue(ctx context.Context, t queue.Task) {
	if td := ctxutil.GetTraceData(ctx); td != nil {
		t.TraceID = td.TraceID
	}
	if err := c.deps.Queue.Enqueue(ctx, t); err != nil && !errors.Is(err, queue.ErrFull) {
		c.log.Warn("Enqueue failed", "kind", t.Kind, "id", t.ID, "error", err)
	}
}

func joinInts(in []int) string {
	parts := make([]string, 0, len(in))
	for _, v := range in {
		parts = append(parts, fmt.Sprint(v))
	}
	return strings.Join(parts, ", ")
}
