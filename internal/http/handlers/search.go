package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/exampaper-backend/internal/http/response"
	"github.com/yungbote/exampaper-backend/internal/indexing"
	"github.com/yungbote/exampaper-backend/internal/platform/apierr"
)

type Searcher interface {
	Search(ctx context.Context, in indexing.SearchInput) ([]indexing.Hit, error)
}

type SearchHandler struct {
	search Searcher
}

func NewSearchHandler(search Searcher) *SearchHandler {
	return &SearchHandler{search: search}
}

type searchBody struct {
	SubjectID string `json:"subject_id"`
	Query     string `json:"query"`
	Units     []int  `json:"units"`
}

// POST /api/search
func (h *SearchHandler) Search(c *gin.Context) {
	var body searchBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.RespondAPIError(c, apierr.InvalidInput("invalid body: %v", err))
		return
	}
	subjectID, err := parseUUID(body.SubjectID, "subject_id")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	hits, err := h.search.Search(c.Request.Context(), indexing.SearchInput{
		SubjectID: subjectID,
		Query:     body.Query,
		Units:     body.Units,
		Limit:     indexing.SearchLimit,
		Threshold: indexing.SearchThreshold,
	})
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"results": hits})
}
