package handlers

import (
	"context"
	"errors"
	"io"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/yungbote/exampaper-backend/internal/domain"
	"github.com/yungbote/exampaper-backend/internal/http/response"
	"github.com/yungbote/exampaper-backend/internal/modules/generation"
	"github.com/yungbote/exampaper-backend/internal/platform/apierr"
	"github.com/yungbote/exampaper-backend/internal/platform/logger"
)

type PaperService interface {
	CreateDraft(ctx context.Context, caller types.Caller, in generation.DraftInput) (*types.Paper, error)
	StartGeneration(ctx context.Context, caller types.Caller, paperID uuid.UUID, in *generation.GenerateInput) (*types.GenerationJob, error)
	GetPaper(ctx context.Context, caller types.Caller, paperID uuid.UUID) (*types.Paper, *types.QuestionSet, error)
	ListPapers(ctx context.Context, caller types.Caller, limit int) ([]*types.Paper, error)
}

type PaperHandler struct {
	log    *logger.Logger
	papers PaperService
	status StatusReader
}

func NewPaperHandler(log *logger.Logger, papers PaperService, statusReader StatusReader) *PaperHandler {
	return &PaperHandler{log: log.With("handler", "PaperHandler"), papers: papers, status: statusReader}
}

type draftBody struct {
	SubjectID          string         `json:"subject_id"`
	Title              string         `json:"title"`
	Units              []int          `json:"units"`
	Difficulty         string         `json:"difficulty"`
	QuestionConfig     map[string]int `json:"question_config"`
	CustomInstructions string         `json:"custom_instructions"`
	InlineSyllabi      map[int]string `json:"inline_syllabi"`
}

type generateBody struct {
	Units              []int          `json:"units"`
	Difficulty         string         `json:"difficulty"`
	QuestionConfig     map[string]int `json:"question_config"`
	CustomInstructions *string        `json:"custom_instructions"`
	InlineSyllabi      map[int]string `json:"inline_syllabi"`
}

// POST /api/papers
func (h *PaperHandler) Create(c *gin.Context) {
	var body draftBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.RespondAPIError(c, apierr.InvalidInput("invalid body: %v", err))
		return
	}
	subjectID, err := parseUUID(body.SubjectID, "subject_id")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	p, err := h.papers.CreateDraft(c.Request.Context(), caller(c), generation.DraftInput{
		SubjectID:          subjectID,
		Title:              body.Title,
		Units:              body.Units,
		Difficulty:         body.Difficulty,
		QuestionConfig:     body.QuestionConfig,
		CustomInstructions: body.CustomInstructions,
		InlineSyllabi:      body.InlineSyllabi,
	})
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"paper": p})
}

// GET /api/papers
func (h *PaperHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	papers, err := h.papers.ListPapers(c.Request.Context(), caller(c), limit)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"papers": papers})
}

// POST /api/papers/:id/generate; the body is optional.
func (h *PaperHandler) Generate(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var in *generation.GenerateInput
	var body generateBody
	if err := c.ShouldBindJSON(&body); err != nil {
		if !errors.Is(err, io.EOF) {
			response.RespondAPIError(c, apierr.InvalidInput("invalid body: %v", err))
			return
		}
	} else {
		in = &generation.GenerateInput{
			Units:              body.Units,
			Difficulty:         body.Difficulty,
			QuestionConfig:     body.QuestionConfig,
			CustomInstructions: body.CustomInstructions,
			InlineSyllabi:      body.InlineSyllabi,
		}
	}
	job, err := h.papers.StartGeneration(c.Request.Context(), caller(c), id, in)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondAccepted(c, gin.H{"generation_job": job})
}

// GET /api/papers/:id/generation-status
func (h *PaperHandler) Status(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	v, err := h.status.PaperStatus(c.Request.Context(), id)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, v)
}

// GET /api/papers/:id
func (h *PaperHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	p, qs, err := h.papers.GetPaper(c.Request.Context(), caller(c), id)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"paper": p, "question_set": qs})
}
