package status

import (
	"context"

	"github.com/google/uuid"

	"github.com/yungbote/exampaper-backend/internal/data/repos"
	"github.com/yungbote/exampaper-backend/internal/pkg/dbctx"
	"github.com/yungbote/exampaper-backend/internal/platform/apierr"
)

// View is the polling projection of one record.
type View struct {
	Status   string `json:"status"`
	Terminal bool   `json:"terminal"`
	Error    string `json:"error,omitempty"`
}

// Service answers status polls. Every method is a single row read and never
// writes, so it is safe at any polling rate.
type Service struct {
	documents repos.DocumentRepo
	indexJobs repos.IndexJobRepo
	papers    repos.PaperRepo
}

func NewService(documents repos.DocumentRepo, indexJobs repos.IndexJobRepo, papers repos.PaperRepo) *Service {
	return &Service{documents: documents, indexJobs: indexJobs, papers: papers}
}

func (s *Service) DocumentStatus(ctx context.Context, documentID uuid.UUID) (View, error) {
	doc, err := s.documents.GetByID(dbctx.Context{Ctx: ctx}, documentID)
	if err != nil {
		return View{}, err
	}
	if doc == nil {
		return View{}, apierr.NotFound("document %s not found", documentID)
	}
	return View{Status: string(doc.Status), Terminal: doc.Status.Terminal(), Error: doc.Error}, nil
}

// IndexStatus reports the latest index job of a document.
func (s *Service) IndexStatus(ctx context.Context, documentID uuid.UUID) (View, error) {
	job, err := s.indexJobs.GetLatestByDocument(dbctx.Context{Ctx: ctx}, documentID)
	if err != nil {
		return View{}, err
	}
	if job == nil {
		return View{}, apierr.NotFound("document %s has no index job", documentID)
	}
	return View{Status: string(job.Status), Terminal: job.Status.Terminal(), Error: job.Error}, nil
}

func (s *Service) PaperStatus(ctx context.Context, paperID uuid.UUID) (View, error) {
	p, err := s.papers.GetByID(dbctx.Context{Ctx: ctx}, paperID)
	if err != nil {
		return View{}, err
	}
	if p == nil {
		return View{}, apierr.NotFound("paper %s not found", paperID)
	}
	return View{Status: string(p.Status), Terminal: p.Status.Terminal(), Error: p.Error}, nil
}

