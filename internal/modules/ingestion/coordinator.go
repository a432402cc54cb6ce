package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
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
	"github.com/yungbote/exampaper-backend/internal/platform/storage"
)

// maxClaimTries bounds how often BeginExtraction re-reads a document whose
// content changed under it.
const maxClaimTries = 3

type CoordinatorDeps struct {
	DB        *gorm.DB
	Log       *logger.Logger
	Documents repos.DocumentRepo
	IndexJobs repos.IndexJobRepo
	Objects   storage.ObjectStore
	Queue     queue.Enqueuer
	// AutoAdvance schedules extraction as soon as content is submitted.
	AutoAdvance bool
	Now         func() time.Time
}

// Coordinator owns every document and index job transition.
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
		log:  deps.Log.With("service", "IngestionCoordinator"),
	}
}

type FileRef struct {
	Path string
	Name string
	Type string
}

type SubmitInput struct {
	SubjectID    uuid.UUID
	UnitNumber   int
	File         *FileRef
	SyllabusText *string
}

type UploadInput struct {
	SubjectID    uuid.UUID
	UnitNumber   int
	FileName     string
	ContentType  string
	Body         io.Reader
	SyllabusText *string
}

func requireStaff(caller types.Caller) error {
	if caller.ID == uuid.Nil {
		return apierr.Unauthorized("caller identity required")
	}
	if !caller.Valid() {
		return apierr.Forbidden("role %q may not manage documents", caller.Role)
	}
	return nil
}

func validateUnitKey(subjectID uuid.UUID, unit int) error {
	if subjectID == uuid.Nil {
		return apierr.InvalidInput("subject_id is required")
	}
	if unit < 1 {
		return apierr.InvalidInput("unit_number must be >= 1")
	}
	return nil
}

func (in SubmitInput) normalize() (SubmitInput, error) {
	if err := validateUnitKey(in.SubjectID, in.UnitNumber); err != nil {
		return in, err
	}
	if in.SyllabusText != nil {
		s := strings.TrimSpace(*in.SyllabusText)
		if s == "" {
			in.SyllabusText = nil
		} else {
			in.SyllabusText = &s
		}
	}
	if in.File != nil && strings.TrimSpace(in.File.Path) == "" {
		in.File = nil
	}
	if in.File == nil && in.SyllabusText == nil {
		return in, apierr.InvalidInput("either a file or syllabus_text is required")
	}
	return in, nil
}

// SubmitContent creates or overwrites the document for (subject, unit).
// Prior extracted text stays in place until the next extraction finishes.
func (c *Coordinator) SubmitContent(ctx context.Context, caller types.Caller, in SubmitInput) (*types.Document, error) {
	if err := requireStaff(caller); err != nil {
		return nil, err
	}
	in, err := in.normalize()
	if err != nil {
		return nil, err
	}

	doc, err := c.upsert(ctx, caller, in)
	if err != nil {
		return nil, err
	}
	c.log.Info("Content submitted",
		"document_id", doc.ID,
		"subject_id", doc.SubjectID,
		"unit_number", doc.UnitNumber,
		"content_version", doc.ContentVersion,
		"submitted_by", caller.ID,
	)
	if c.deps.AutoAdvance {
		c.enqueue(ctx, queue.Task{Kind: queue.KindExtract, ID: doc.ID})
	}
	return doc, nil
}

func (c *Coordinator) upsert(ctx context.Context, caller types.Caller, in SubmitInput) (*types.Document, error) {
	dbc := dbctx.Context{Ctx: ctx}
	existing, err := c.deps.Documents.GetBySubjectUnit(dbc, in.SubjectID, in.UnitNumber)
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	if existing == nil {
		doc := &types.Document{
			SubjectID:      in.SubjectID,
			UnitNumber:     in.UnitNumber,
			SyllabusText:   in.SyllabusText,
			Status:         types.DocumentPending,
			ContentVersion: 1,
			SubmittedBy:    caller.ID,
		}
		applyFile(doc, in.File)
		err := c.deps.Documents.Create(dbc, doc)
		if err == nil {
			return doc, nil
		}
		if !db.IsDuplicateKey(err) {
			return nil, fmt.Errorf("create document: %w", err)
		}
		existing, err = c.deps.Documents.GetBySubjectUnit(dbc, in.SubjectID, in.UnitNumber)
		if err != nil || existing == nil {
			return nil, fmt.Errorf("reload document after concurrent create: %w", err)
		}
	}

	var out *types.Document
	err = c.tx.InTx(ctx, func(txc dbctx.Context) error {
		if existing.Status == types.DocumentProcessing {
			return apierr.AlreadyInProgress("document %s is being extracted", existing.ID)
		}
		live, err := c.deps.IndexJobs.HasLive(txc, existing.ID)
		if err != nil {
			return err
		}
		if live {
			return apierr.AlreadyInProgress("document %s is being indexed", existing.ID)
		}
		updates := map[string]interface{}{
			"syllabus_text":   in.SyllabusText,
			"status":          types.DocumentPending,
			"error":           "",
			"content_version": gorm.Expr("content_version + 1"),
			"submitted_by":    caller.ID,
		}
		if in.File != nil {
			updates["file_path"] = in.File.Path
			updates["file_name"] = in.File.Name
			updates["file_type"] = in.File.Type
		} else {
			updates["file_path"] = nil
			updates["file_name"] = nil
			updates["file_type"] = nil
		}
		ok, err := c.deps.Documents.UpdateFieldsIfStatus(txc, existing.ID, []types.DocumentStatus{
			types.DocumentPending, types.DocumentCompleted, types.DocumentFailed,
		}, updates)
		if err != nil {
			return err
		}
		if !ok {
			return apierr.AlreadyInProgress("document %s is being extracted", existing.ID)
		}
		out, err = c.deps.Documents.GetByID(txc, existing.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func applyFile(doc *types.Document, f *FileRef) {
	if f == nil {
		return
	}
	path, name, kind := f.Path, f.Name, f.Type
	doc.FilePath = &path
	if name != "" {
		doc.FileName = &name
	}
	if kind != "" {
		doc.FileType = &kind
	}
}

// Upload stores the file bytes and then submits them like SubmitContent.
func (c *Coordinator) Upload(ctx context.Context, caller types.Caller, in UploadInput) (*types.Document, error) {
	if err := requireStaff(caller); err != nil {
		return nil, err
	}
	if in.Body == nil || strings.TrimSpace(in.FileName) == "" {
		return nil, apierr.InvalidInput("file is required")
	}
	if c.deps.Objects == nil {
		return nil, apierr.Internal("object storage is not configured")
	}
	// Validated before the write so a bad request never leaves an orphan object.
	if err := validateUnitKey(in.SubjectID, in.UnitNumber); err != nil {
		return nil, err
	}
	contentType := in.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = storage.ContentTypeForName(in.FileName)
	}
	key := storage.ObjectKey(caller.ID, in.FileName, c.deps.Now())
	if err := c.deps.Objects.Put(ctx, key, in.Body, contentType); err != nil {
		return nil, apierr.CollaboratorFailure(fmt.Errorf("store upload: %w", err))
	}
	doc, err := c.SubmitContent(ctx, caller, SubmitInput{
		SubjectID:    in.SubjectID,
		UnitNumber:   in.UnitNumber,
		File:         &FileRef{Path: key, Name: in.FileName, Type: contentType},
		SyllabusText: in.SyllabusText,
	})
	if err != nil {
		// No document row points at the object.
		if delErr := c.deps.Objects.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			c.log.Warn("Remove orphaned upload failed", "key", key, "error", delErr)
		}
		return nil, err
	}
	return doc, nil
}

// BeginExtraction moves a pending document to processing. Exactly one of any
// number of concurrent callers wins; the rest get AlreadyInProgress. The CAS
// is keyed on content_version, so the returned document is always the
// revision that was claimed.
func (c *Coordinator) BeginExtraction(ctx context.Context, documentID uuid.UUID) (*types.Document, error) {
	dbc := dbctx.Context{Ctx: ctx}
	for try := 0; try < maxClaimTries; try++ {
		doc, err := c.deps.Documents.GetByID(dbc, documentID)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			return nil, apierr.NotFound("document %s not found", documentID)
		}
		if err := extractionPrecondition(doc); err != nil {
			return nil, err
		}
		ok, err := c.deps.Documents.UpdateFieldsIfStatusVersion(dbc, doc.ID, []types.DocumentStatus{types.DocumentPending}, doc.ContentVersion, map[string]interface{}{
			"status": types.DocumentProcessing,
			"error":  "",
		})
		if err != nil {
			return nil, err
		}
		if ok {
			doc.Status = types.DocumentProcessing
			doc.Error = ""
			return doc, nil
		}
		// Lost to another claimer or to a resubmission; re-read to tell which.
	}
	return nil, apierr.AlreadyInProgress("document %s extraction already started", documentID)
}

func extractionPrecondition(doc *types.Document) error {
	switch doc.Status {
	case types.DocumentPending:
		return nil
	case types.DocumentProcessing:
		return apierr.AlreadyInProgress("document %s is already processing", doc.ID)
	case types.DocumentCompleted:
		return apierr.AlreadyInProgress("document %s is already extracted", doc.ID)
	case types.DocumentFailed:
		return apierr.NotReady("document %s failed extraction; resubmit content to retry", doc.ID)
	default:
		return apierr.Conflict("document %s has unknown status %q", doc.ID, doc.Status)
	}
}

// CompleteExtraction stores text extracted from the given content version.
// It lands only while that version is still the one processing.
func (c *Coordinator) CompleteExtraction(ctx context.Context, documentID uuid.UUID, version int, text string) error {
	ok, err := c.deps.Documents.UpdateFieldsIfStatusVersion(dbctx.Context{Ctx: ctx}, documentID, []types.DocumentStatus{types.DocumentProcessing}, version, map[string]interface{}{
		"status":         types.DocumentCompleted,
		"extracted_text": text,
		"error":          "",
	})
	if err != nil {
		return err
	}
	if !ok {
		return apierr.Conflict("document %s version %d is not processing", documentID, version)
	}
	c.log.Info("Extraction completed", "document_id", documentID, "content_version", version, "chars", len(text))
	return nil
}

func (c *Coordinator) FailExtraction(ctx context.Context, documentID uuid.UUID, version int, reason string) error {
	ok, err := c.deps.Documents.UpdateFieldsIfStatusVersion(dbctx.Context{Ctx: ctx}, documentID, []types.DocumentStatus{types.DocumentProcessing}, version, map[string]interface{}{
		"status":         types.DocumentFailed,
		"extracted_text": nil,
		"error":          failureReason(reason, "extraction failed"),
	})
	if err != nil {
		return err
	}
	if !ok {
		return apierr.Conflict("document %s version %d is not processing", documentID, version)
	}
	c.log.Warn("Extraction failed", "document_id", documentID, "content_version", version, "reason", reason)
	return nil
}

// BeginIndexing opens an index job for a completed document. The job is
// created directly in processing; a concurrent live job trips ux_index_job_live.
func (c *Coordinator) BeginIndexing(ctx context.Context, documentID uuid.UUID) (*types.IndexJob, error) {
	dbc := dbctx.Context{Ctx: ctx}
	doc, err := c.deps.Documents.GetByID(dbc, documentID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, apierr.NotFound("document %s not found", documentID)
	}
	if doc.Status != types.DocumentCompleted {
		return nil, apierr.NotReady("document %s is %s; indexing needs a completed extraction", doc.ID, doc.Status)
	}
	now := c.deps.Now()
	job := &types.IndexJob{
		DocumentID:      doc.ID,
		DocumentVersion: doc.ContentVersion,
		Status:          types.DocumentProcessing,
		Attempts:        1,
		StartedAt:       &now,
	}
	if err := c.deps.IndexJobs.Create(dbc, job); err != nil {
		if db.IsDuplicateKey(err) {
			return nil, apierr.AlreadyInProgress("document %s is already being indexed", doc.ID)
		}
		return nil, fmt.Errorf("create index job: %w", err)
	}
	return job, nil
}

func (c *Coordinator) CompleteIndexing(ctx context.Context, jobID uuid.UUID, chunkCount int) error {
	now := c.deps.Now()
	ok, err := c.deps.IndexJobs.UpdateFieldsIfStatus(dbctx.Context{Ctx: ctx}, jobID, []types.DocumentStatus{types.DocumentProcessing}, map[string]interface{}{
		"status":       types.DocumentCompleted,
		"chunk_count":  chunkCount,
		"error":        "",
		"completed_at": now,
	})
	if err != nil {
		return err
	}
	if !ok {
		return apierr.Conflict("index job %s is not processing", jobID)
	}
	c.log.Info("Indexing completed", "index_job_id", jobID, "chunks", chunkCount)
	return nil
}

func (c *Coordinator) FailIndexing(ctx context.Context, jobID uuid.UUID, reason string) error {
	now := c.deps.Now()
	ok, err := c.deps.IndexJobs.UpdateFieldsIfStatus(dbctx.Context{Ctx: ctx}, jobID, []types.DocumentStatus{
		types.DocumentPending, types.DocumentProcessing,
	}, map[string]interface{}{
		"status":       types.DocumentFailed,
		"error":        failureReason(reason, "indexing failed"),
		"completed_at": now,
	})
	if err != nil {
		return err
	}
	if !ok {
		return apierr.Conflict("index job %s is not live", jobID)
	}
	c.log.Warn("Indexing failed", "index_job_id", jobID, "reason", reason)
	return nil
}

// AdvanceExtraction is the caller-facing trigger: the CAS runs synchronously
// and the extraction itself is handed to the supervisor.
func (c *Coordinator) AdvanceExtraction(ctx context.Context, caller types.Caller, documentID uuid.UUID) (*types.Document, error) {
	if err := requireStaff(caller); err != nil {
		return nil, err
	}
	doc, err := c.BeginExtraction(ctx, documentID)
	if err != nil {
		return nil, err
	}
	c.enqueue(ctx, queue.Task{Kind: queue.KindExtract, ID: doc.ID, Claimed: true})
	return doc, nil
}

func (c *Coordinator) AdvanceIndexing(ctx context.Context, caller types.Caller, documentID uuid.UUID) (*types.IndexJob, error) {
	if err := requireStaff(caller); err != nil {
		return nil, err
	}
	job, err := c.BeginIndexing(ctx, documentID)
	if err != nil {
		return nil, err
	}
	c.enqueue(ctx, queue.Task{Kind: queue.KindIndex, ID: job.ID, Claimed: true})
	return job, nil
}

func (c *Coordinator) GetDocument(ctx context.Context, caller types.Caller, documentID uuid.UUID) (*types.Document, error) {
	if err := requireStaff(caller); err != nil {
		return nil, err
	}
	doc, err := c.deps.Documents.GetByID(dbctx.Context{Ctx: ctx}, documentID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, apierr.NotFound("document %s not found", documentID)
	}
	return doc, nil
}

// Content returns the extracted text of a completed document.
func (c *Coordinator) Content(ctx context.Context, caller types.Caller, documentID uuid.UUID) (string, error) {
	doc, err := c.GetDocument(ctx, caller, documentID)
	if err != nil {
		return "", err
	}
	if doc.Status != types.DocumentCompleted || doc.ExtractedText == nil {
		return "", apierr.NotReady("document %s is %s", doc.ID, doc.Status)
	}
	return *doc.ExtractedText, nil
}

func (c *Coordinator) ListBySubject(ctx context.Context, caller types.Caller, subjectID uuid.UUID) ([]*types.Document, error) {
	if err := requireStaff(caller); err != nil {
		return nil, err
	}
	if subjectID == uuid.Nil {
		return nil, apierr.InvalidInput("subject id is required")
	}
	return c.deps.Documents.ListBySubject(dbctx.Context{Ctx: ctx}, subjectID)
}

func (c *Coordinator) enqueue(ctx context.Context, t queue.Task) {
	if td := ctxutil.GetTraceData(ctx); td != nil {
		t.TraceID = td.TraceID
	}
	if err := c.deps.Queue.Enqueue(ctx, t); err != nil && !errors.Is(err, queue.ErrFull) {
		c.log.Warn("Enqueue failed", "kind", t.Kind, "id", t.ID, "error", err)
	}
}

func failureReason(reason, fallback string) string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return fallback
	}
	if len(reason) > 1000 {
		reason = reason[:1000]
	}
	return reason
}

// LoadExtraction returns a document that already won its extraction CAS.
func (c *Coordinator) LoadExtraction(ctx context.Context, documentID uuid.UUID) (*types.Document, error) {
	doc, err := c.deps.Documents.GetByID(dbctx.Context{Ctx: ctx}, documentID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, apierr.NotFound("document %s not found", documentID)
	}
	if doc.Status != types.DocumentProcessing {
		return nil, apierr.Conflict("document %s is %s", doc.ID, doc.Status)
	}
	return doc, nil
}

// LoadIndexing returns a processing index job and its document.
func (c *Coordinator) LoadIndexing(ctx context.Context, jobID uuid.UUID) (*types.IndexJob, *types.Document, error) {
	dbc := dbctx.Context{Ctx: ctx}
	job, err := c.deps.IndexJobs.GetByID(dbc, jobID)
	if err != nil {
		return nil, nil, err
	}
	if job == nil {
		return nil, nil, apierr.NotFound("index job %s not found", jobID)
	}
	if job.Status != types.DocumentProcessing {
		return nil, nil, apierr.Conflict("index job %s is %s", job.ID, job.Status)
	}
	doc, err := c.deps.Documents.GetByID(dbc, job.DocumentID)
	if err != nil {
		return nil, nil, err
	}
	if doc == nil {
		return nil, nil, apierr.NotFound("document %s not found", job.DocumentID)
	}
	if doc.Status != types.DocumentCompleted || doc.ContentVersion != job.DocumentVersion {
		// The content moved on after the job was opened. Close the job so the
		// sweep can index the current version.
		reason := fmt.Sprintf("superseded: document is %s at version %d, job was opened for version %d", doc.Status, doc.ContentVersion, job.DocumentVersion)
		if err := c.FailIndexing(ctx, job.ID, reason); err != nil && !apierr.Is(err, apierr.KindConflict) {
			return nil, nil, err
		}
		return nil, nil, apierr.NotReady("index job %s is %s", job.ID, reason)
	}
	return job, doc, nil
}
