package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/yungbote/exampaper-backend/internal/domain"
	"github.com/yungbote/exampaper-backend/internal/http/response"
	"github.com/yungbote/exampaper-backend/internal/modules/ingestion"
	"github.com/yungbote/exampaper-backend/internal/modules/status"
	"github.com/yungbote/exampaper-backend/internal/platform/apierr"
	"github.com/yungbote/exampaper-backend/internal/platform/ctxutil"
	"github.com/yungbote/exampaper-backend/internal/platform/logger"
)

const (
	defaultMaxUploadBytes = 50 << 20
	// multipartSlack covers the form fields and part headers around the file.
	multipartSlack = 1 << 20
)

// DocumentService is the ingestion surface the handlers drive.
type DocumentService interface {
	SubmitContent(ctx context.Context, caller types.Caller, in ingestion.SubmitInput) (*types.Document, error)
	Upload(ctx context.Context, caller types.Caller, in ingestion.UploadInput) (*types.Document, error)
	AdvanceExtraction(ctx context.Context, caller types.Caller, documentID uuid.UUID) (*types.Document, error)
	AdvanceIndexing(ctx context.Context, caller types.Caller, documentID uuid.UUID) (*types.IndexJob, error)
	Content(ctx context.Context, caller types.Caller, documentID uuid.UUID) (string, error)
	ListBySubject(ctx context.Context, caller types.Caller, subjectID uuid.UUID) ([]*types.Document, error)
}

// StatusReader answers polling endpoints.
type StatusReader interface {
	DocumentStatus(ctx context.Context, documentID uuid.UUID) (status.View, error)
	IndexStatus(ctx context.Context, documentID uuid.UUID) (status.View, error)
	PaperStatus(ctx context.Context, paperID uuid.UUID) (status.View, error)
}

type DocumentHandler struct {
	log            *logger.Logger
	docs           DocumentService
	status         StatusReader
	maxUploadBytes int64
}

// NewDocumentHandler caps uploads at maxUploadBytes, the same limit the
// extractor enforces. Non-positive values fall back to 50 MiB.
func NewDocumentHandler(log *logger.Logger, docs DocumentService, statusReader StatusReader, maxUploadBytes int64) *DocumentHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	return &DocumentHandler{
		log:            log.With("handler", "DocumentHandler"),
		docs:           docs,
		status:         statusReader,
		maxUploadBytes: maxUploadBytes,
	}
}

type fileRefBody struct {
	Path string `json:"path"`
	Name string `json:"name"`
	Type string `json:"type"`
}

type submitBody struct {
	SubjectID    string       `json:"subject_id"`
	UnitNumber   int          `json:"unit_number"`
	FileRef      *fileRefBody `json:"file_ref"`
	SyllabusText *string      `json:"syllabus_text"`
}

// POST /api/documents
func (h *DocumentHandler) Submit(c *gin.Context) {
	var body submitBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.RespondAPIError(c, apierr.InvalidInput("invalid body: %v", err))
		return
	}
	subjectID, err := parseUUID(body.SubjectID, "subject_id")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	in := ingestion.SubmitInput{SubjectID: subjectID, UnitNumber: body.UnitNumber, SyllabusText: body.SyllabusText}
	if body.FileRef != nil {
		in.File = &ingestion.FileRef{Path: body.FileRef.Path, Name: body.FileRef.Name, Type: body.FileRef.Type}
	}
	doc, err := h.docs.SubmitContent(c.Request.Context(), caller(c), in)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"document": doc})
}

// POST /api/documents/upload (multipart: file, subject_id, unit_number, syllabus_text)
func (h *DocumentHandler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+multipartSlack)
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.RespondAPIError(c, apierr.InvalidInput("upload exceeds %d bytes", h.maxUploadBytes))
			return
		}
		response.RespondAPIError(c, apierr.InvalidInput("file is required: %v", err))
		return
	}
	if fh.Size > h.maxUploadBytes {
		response.RespondAPIError(c, apierr.InvalidInput("file %q is %d bytes; limit is %d", fh.Filename, fh.Size, h.maxUploadBytes))
		return
	}
	subjectID, err := parseUUID(c.PostForm("subject_id"), "subject_id")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	unit, err := strconv.Atoi(strings.TrimSpace(c.PostForm("unit_number")))
	if err != nil {
		response.RespondAPIError(c, apierr.InvalidInput("unit_number must be an integer"))
		return
	}
	f, err := fh.Open()
	if err != nil {
		response.RespondAPIError(c, apierr.InvalidInput("cannot read upload: %v", err))
		return
	}
	defer f.Close()

	in := ingestion.UploadInput{
		SubjectID:   subjectID,
		UnitNumber:  unit,
		FileName:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Body:        f,
	}
	if s, ok := c.GetPostForm("syllabus_text"); ok {
		in.SyllabusText = &s
	}
	doc, err := h.docs.Upload(c.Request.Context(), caller(c), in)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	h.log.Info("Upload accepted", "document_id", doc.ID, "file_name", fh.Filename, "size", fh.Size)
	response.RespondCreated(c, gin.H{"document": doc})
}

// POST /api/documents/:id/process
func (h *DocumentHandler) Process(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	doc, err := h.docs.AdvanceExtraction(c.Request.Context(), caller(c), id)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondAccepted(c, gin.H{"document_id": doc.ID, "status": doc.Status})
}

// GET /api/documents/:id/status
func (h *DocumentHandler) Status(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	v, err := h.status.DocumentStatus(c.Request.Context(), id)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, v)
}

// GET /api/documents/:id/content
func (h *DocumentHandler) Content(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	text, err := h.docs.Content(c.Request.Context(), caller(c), id)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"document_id": id, "extracted_text": text})
}

// POST /api/documents/:id/index
func (h *DocumentHandler) Index(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	job, err := h.docs.AdvanceIndexing(c.Request.Context(), caller(c), id)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondAccepted(c, gin.H{"index_job": job})
}

// GET /api/documents/:id/index-status
func (h *DocumentHandler) IndexStatus(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	v, err := h.status.IndexStatus(c.Request.Context(), id)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, v)
}

// GET /api/subjects/:id/documents
func (h *DocumentHandler) ListBySubject(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	docs, err := h.docs.ListBySubject(c.Request.Context(), caller(c), id)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"documents": docs})
}

func caller(c *gin.Context) types.Caller {
	return ctxutil.CallerFrom(c.Request.Context())
}

func parseUUID(raw, field string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, apierr.InvalidInput("%s must be a uuid", field)
	}
	return id, nil
}

func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := parseUUID(c.Param("id"), "id")
	if err != nil {
		response.RespondAPIError(c, err)
		return uuid.Nil, false
	}
	return id, true
}
