package indexing

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/exampaper-backend/internal/data/repos"
	types "github.com/yungbote/exampaper-backend/internal/domain"
	"github.com/yungbote/exampaper-backend/internal/pkg/dbctx"
	"github.com/yungbote/exampaper-backend/internal/platform/apierr"
	"github.com/yungbote/exampaper-backend/internal/platform/logger"
	"github.com/yungbote/exampaper-backend/internal/platform/vectorstore"
)

const (
	SearchLimit         = 5
	SearchThreshold     = 0.5
	RetrievalLimit      = 20
	RetrievalThreshold  = 0.3
	defaultEmbedBatch   = 64
	defaultEmbedWorkers = 4
)

type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// Indexer turns a completed document into retrievable chunks and returns how
// many were written.
type Indexer interface {
	Index(ctx context.Context, doc *types.Document, job *types.IndexJob) (int, error)
}

type Config struct {
	Splitter     Splitter
	EmbedBatch   int
	EmbedWorkers int
}

type Service struct {
	log      *logger.Logger
	chunks   repos.ChunkRepo
	embedder Embedder
	store    vectorstore.Store
	cfg      Config
}

var _ Indexer = (*Service)(nil)

func NewService(log *logger.Logger, chunks repos.ChunkRepo, embedder Embedder, store vectorstore.Store, cfg Config) *Service {
	if cfg.Splitter.Size == 0 {
		cfg.Splitter = NewSplitter()
	}
	if cfg.EmbedBatch <= 0 {
		cfg.EmbedBatch = defaultEmbedBatch
	}
	if cfg.EmbedWorkers <= 0 {
		cfg.EmbedWorkers = defaultEmbedWorkers
	}
	return &Service{
		log:      log.With("service", "Indexer"),
		chunks:   chunks,
		embedder: embedder,
		store:    store,
		cfg:      cfg,
	}
}

// Namespace scopes vectors to one subject.
func Namespace(subjectID uuid.UUID) string { return subjectID.String() }

func (s *Service) Index(ctx context.Context, doc *types.Document, job *types.IndexJob) (int, error) {
	if doc == nil || job == nil {
		return 0, apierr.InvalidInput("document and index job are required")
	}
	text := ""
	if doc.ExtractedText != nil {
		text = *doc.ExtractedText
	}
	pieces := s.cfg.Splitter.Split(text)
	if len(pieces) == 0 {
		return 0, apierr.InvalidInput("document %s has no extracted text to index", doc.ID)
	}
	fileName := ""
	if doc.FileName != nil {
		fileName = *doc.FileName
	}

	rows := make([]*types.DocumentChunk, 0, len(pieces))
	for i, p := range pieces {
		rows = append(rows, &types.DocumentChunk{
			ID:         uuid.New(),
			DocumentID: doc.ID,
			IndexJobID: job.ID,
			SubjectID:  doc.SubjectID,
			UnitNumber: doc.UnitNumber,
			ChunkIndex: i,
			FileName:   fileName,
			Content:    p,
		})
	}

	vecs, err := s.embedAll(ctx, pieces)
	if err != nil {
		return 0, err
	}

	if err := s.chunks.ReplaceForDocument(dbctx.Context{Ctx: ctx}, doc.ID, rows); err != nil {
		return 0, fmt.Errorf("write chunks: %w", err)
	}
	ns := Namespace(doc.SubjectID)
	if err := s.store.DeleteByFilter(ctx, ns, map[string]any{"document_id": doc.ID.String()}); err != nil {
		return 0, fmt.Errorf("delete stale vectors: %w", err)
	}
	vectors := make([]vectorstore.Vector, 0, len(rows))
	for i, row := range rows {
		vectors = append(vectors, vectorstore.Vector{
			ID:     row.ID.String(),
			Values: vecs[i],
			Metadata: map[string]any{
				"document_id":  doc.ID.String(),
				"subject_id":   doc.SubjectID.String(),
				"unit_number":  doc.UnitNumber,
				"chunk_index":  row.ChunkIndex,
				"file_name":    fileName,
				"index_job_id": job.ID.String(),
			},
		})
	}
	if err := s.store.Upsert(ctx, ns, vectors); err != nil {
		return 0, fmt.Errorf("upsert vectors: %w", err)
	}
	s.log.Info("Document indexed",
		"document_id", doc.ID,
		"index_job_id", job.ID,
		"unit_number", doc.UnitNumber,
		"chunks", len(rows),
	)
	return len(rows), nil
}

func (s *Service) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.EmbedWorkers)
	for start := 0; start < len(texts); start += s.cfg.EmbedBatch {
		start := start
		end := start + s.cfg.EmbedBatch
		if end > len(texts) {
			end = len(texts)
		}
		g.Go(func() error {
			vecs, err := s.embedder.Embed(gctx, texts[start:end])
			if err != nil {
				return fmt.Errorf("embed chunks: %w", err)
			}
			if len(vecs) != end-start {
				return fmt.Errorf("embed chunks: embedding count mismatch (got %d want %d)", len(vecs), end-start)
			}
			copy(out[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

type Hit struct {
	ChunkID    uuid.UUID `json:"chunk_id"`
	DocumentID uuid.UUID `json:"document_id"`
	UnitNumber int       `json:"unit_number"`
	ChunkIndex int       `json:"chunk_index"`
	FileName   string    `json:"file_name,omitempty"`
	Content    string    `json:"content"`
	Similarity float64   `json:"similarity"`
}

type SearchInput struct {
	SubjectID uuid.UUID
	Query     string
	Units     []int
	Limit     int
	Threshold float64
}

// Search embeds the query and returns chunks whose similarity reaches the
// threshold, best first.
func (s *Service) Search(ctx context.Context, in SearchInput) ([]Hit, error) {
	if in.SubjectID == uuid.Nil {
		return nil, apierr.InvalidInput("subject_id is required")
	}
	query := strings.TrimSpace(in.Query)
	if query == "" {
		return nil, apierr.InvalidInput("query is required")
	}
	if in.Limit <= 0 {
		in.Limit = SearchLimit
	}
	vecs, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors", len(vecs))
	}
	var filter map[string]any
	if len(in.Units) > 0 {
		filter = map[string]any{"unit_number": map[string]any{"$in": in.Units}}
	}
	matches, err := s.store.Query(ctx, Namespace(in.SubjectID), vecs[0], in.Limit, filter)
	if err != nil {
		return nil, fmt.Errorf("query vectors: %w", err)
	}

	scores := make(map[uuid.UUID]float64, len(matches))
	ids := make([]uuid.UUID, 0, len(matches))
	for _, m := range matches {
		if m.Score < in.Threshold {
			continue
		}
		id, err := uuid.Parse(m.ID)
		if err != nil {
			continue
		}
		scores[id] = m.Score
		ids = append(ids, id)
	}
	rows, err := s.chunks.GetByIDs(dbctx.Context{Ctx: ctx}, ids)
	if err != nil {
		return nil, err
	}
	hits := make([]Hit, 0, len(rows))
	for _, row := range rows {
		hits = append(hits, Hit{
			ChunkID:    row.ID,
			DocumentID: row.DocumentID,
			UnitNumber: row.UnitNumber,
			ChunkIndex: row.ChunkIndex,
			FileName:   row.FileName,
			Content:    row.Content,
			Similarity: scores[row.ID],
		})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	return hits, nil
}

// Retrieve gathers generation context for a paper's units.
func (s *Service) Retrieve(ctx context.Context, subjectID uuid.UUID, units []int, query string) ([]Hit, error) {
	if strings.TrimSpace(query) == "" {
		query = "key concepts definitions important topics"
	}
	return s.Search(ctx, SearchInput{
		SubjectID: subjectID,
		Query:     query,
		Units:     units,
		Limit:     RetrievalLimit,
		Threshold: RetrievalThreshold,
	})
}
