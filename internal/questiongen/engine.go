package questiongen

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	types "github.com/yungbote/exampaper-backend/internal/domain"
	"github.com/yungbote/exampaper-backend/internal/indexing"
	"github.com/yungbote/exampaper-backend/internal/observability"
	"github.com/yungbote/exampaper-backend/internal/platform/apierr"
	"github.com/yungbote/exampaper-backend/internal/platform/logger"
)

type LLM interface {
	GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (map[string]any, error)
}

type Retriever interface {
	Retrieve(ctx context.Context, subjectID uuid.UUID, units []int, query string) ([]indexing.Hit, error)
}

// Engine produces the questions for one generation run.
type Engine interface {
	Generate(ctx context.Context, req Request) (types.QuestionBundle, error)
}

type Request struct {
	Paper *types.Paper
	// Syllabi is the syllabus text available per unit.
	Syllabi map[int]string
}

type Service struct {
	log        *logger.Logger
	llm        LLM
	retriever  Retriever
	catalog    *Catalog
	maxContext int
}

var _ Engine = (*Service)(nil)

// NewService builds an engine over the embedded prompt catalog. retriever may
// be nil, in which case prompts only carry syllabus text.
func NewService(log *logger.Logger, llm LLM, retriever Retriever) (*Service, error) {
	cat, err := DefaultCatalog()
	if err != nil {
		return nil, err
	}
	return &Service{
		log:        log.With("service", "QuestionGenerator"),
		llm:        llm,
		retriever:  retriever,
		catalog:    cat,
		maxContext: DefaultMaxContext,
	}, nil
}

func (s *Service) Generate(ctx context.Context, req Request) (types.QuestionBundle, error) {
	var bundle types.QuestionBundle
	p := req.Paper
	if p == nil {
		return bundle, apierr.InvalidInput("paper is required")
	}
	units := []int(p.Units)
	cfg := p.Config()

	hits, err := s.retrieve(ctx, p)
	if err != nil {
		return bundle, err
	}
	in := promptInput{
		Title:        p.Title,
		Units:        units,
		Difficulty:   p.Difficulty,
		Instructions: strings.TrimSpace(p.CustomInstructions),
		Context:      BuildContext(hits, req.Syllabi, s.maxContext),
	}

	// Each bucket is written by exactly one goroutine.
	partial := make(map[types.QuestionType]*types.QuestionBundle, len(types.QuestionTypes))
	for _, t := range types.QuestionTypes {
		if cfg[t] > 0 {
			partial[t] = &types.QuestionBundle{}
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for t, out := range partial {
		t, out := t, out
		g.Go(func() error {
			return s.generateType(gctx, t, cfg[t], in, unitSet(units), out)
		})
	}
	if err := g.Wait(); err != nil {
		return types.QuestionBundle{}, err
	}
	for _, t := range types.QuestionTypes {
		part := partial[t]
		if part == nil {
			continue
		}
		bundle.MCQ = append(bundle.MCQ, part.MCQ...)
		bundle.FillBlanks = append(bundle.FillBlanks, part.FillBlanks...)
		bundle.Short = append(bundle.Short, part.Short...)
		bundle.Long = append(bundle.Long, part.Long...)
	}
	s.log.Info("Questions generated",
		"paper_id", p.ID,
		"mcq", len(bundle.MCQ),
		"fill_blanks", len(bundle.FillBlanks),
		"short", len(bundle.Short),
		"long", len(bundle.Long),
		"context_chars", len(in.Context),
	)
	return bundle, nil
}

// retrieve failures other than cancellation degrade to syllabus-only prompts.
func (s *Service) retrieve(ctx context.Context, p *types.Paper) ([]indexing.Hit, error) {
	if s.retriever == nil {
		return nil, nil
	}
	query := "key concepts definitions important topics"
	if p.Title != "" {
		query += " from " + p.Title
	}
	hits, err := s.retriever.Retrieve(ctx, p.SubjectID, []int(p.Units), query)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.log.Warn("Context retrieval failed; continuing without chunks", "paper_id", p.ID, "error", err)
		return nil, nil
	}
	return hits, nil
}

func (s *Service) generateType(ctx context.Context, t types.QuestionType, count int, in promptInput, units unitSet, out *types.QuestionBundle) error {
	ctx, span := observability.StartSpan(ctx, "questiongen.generate",
		attribute.String("question_type", string(t)),
		attribute.Int("count", count),
	)
	defer span.End()

	tp := s.catalog.Types[t]
	obj, err := s.llm.GenerateJSON(ctx, s.catalog.System, s.catalog.UserPrompt(t, count, in), "exam_"+string(t), ResponseSchema(t, tp.Key))
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("generate %s: %w", t, err)
	}
	raw, _ := obj[tp.Key].([]any)
	rejected, err := acceptItems(t, raw, units, out)
	if err != nil {
		return fmt.Errorf("validate %s: %w", t, err)
	}
	if rejected > 0 {
		s.log.Warn("Dropped invalid questions", "type", t, "rejected", rejected, "returned", len(raw))
	}
	return nil
}
