package indexing

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/exampaper-backend/internal/data/repos"
	"github.com/yungbote/exampaper-backend/internal/data/repos/testutil"
	types "github.com/yungbote/exampaper-backend/internal/domain"
	"github.com/yungbote/exampaper-backend/internal/pkg/dbctx"
	"github.com/yungbote/exampaper-backend/internal/platform/apierr"
)

// keywordEmbedder maps text to counts of a few topic words so similarity is predictable.
type keywordEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

var keywords = []string{"cell", "energy", "market"}

func (e *keywordEmbedder) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, 0, len(inputs))
	for _, in := range inputs {
		lower := strings.ToLower(in)
		v := make([]float32, len(keywords))
		for i, k := range keywords {
			v[i] = float32(strings.Count(lower, k))
		}
		out = append(out, v)
	}
	return out, nil
}

func newIndexFixture(t *testing.T) (context.Context, repos.ChunkRepo, func(uuid.UUID, int, string) (*types.Document, *types.IndexJob)) {
	t.Helper()
	gdb := testutil.DB(t)
	ctx := context.Background()
	chunks := repos.NewChunkRepo(gdb, testutil.Logger(t))
	seed := func(subject uuid.UUID, unit int, text string) (*types.Document, *types.IndexJob) {
		doc := testutil.SeedFileDocument(t, ctx, gdb, subject, unit, types.DocumentCompleted)
		doc.ExtractedText = &text
		job := testutil.SeedIndexJob(t, ctx, gdb, doc, types.DocumentProcessing)
		return doc, job
	}
	return ctx, chunks, seed
}

func TestIndexWritesChunksAndSearchRanksBySimilarity(t *testing.T) {
	ctx, chunks, seed := newIndexFixture(t)
	emb := &keywordEmbedder{}
	svc := NewService(testutil.Logger(t), chunks, emb, NewDBStore(chunks), Config{
		Splitter:   Splitter{Size: 40, Overlap: 0},
		EmbedBatch: 2,
	})
	subject := uuid.New()
	doc1, job1 := seed(subject, 1, "The cell is the unit of life.\n\nEvery cell has a membrane.\n\nMarkets clear at a price.")
	doc2, job2 := seed(subject, 2, "Energy flows in a circuit. Energy is conserved.")

	n1, err := svc.Index(ctx, doc1, job1)
	if err != nil {
		t.Fatalf("Index doc1: %v", err)
	}
	if n1 != 3 {
		t.Fatalf("doc1 chunks: want=3 got=%d", n1)
	}
	if emb.calls != 2 {
		t.Fatalf("embed batches: want=2 got=%d", emb.calls)
	}
	if _, err := svc.Index(ctx, doc2, job2); err != nil {
		t.Fatalf("Index doc2: %v", err)
	}

	hits, err := svc.Search(ctx, SearchInput{SubjectID: subject, Query: "cell", Threshold: SearchThreshold})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("hits: want=2 got=%d (%+v)", len(hits), hits)
	}
	if hits[0].Similarity < hits[1].Similarity {
		t.Fatalf("hits not sorted: %+v", hits)
	}
	for _, h := range hits {
		if h.UnitNumber != 1 || !strings.Contains(strings.ToLower(h.Content), "cell") {
			t.Fatalf("unexpected hit: %+v", h)
		}
	}

	unit2, err := svc.Search(ctx, SearchInput{SubjectID: subject, Query: "energy", Units: []int{2}, Threshold: SearchThreshold})
	if err != nil {
		t.Fatalf("Search unit 2: %v", err)
	}
	if len(unit2) != 2 {
		t.Fatalf("unit filter: want=2 got=%+v", unit2)
	}
	for _, h := range unit2 {
		if h.DocumentID != doc2.ID {
			t.Fatalf("unit filter leaked document %s", h.DocumentID)
		}
	}
}

func TestReindexReplacesChunkSet(t *testing.T) {
	ctx, chunks, seed := newIndexFixture(t)
	svc := NewService(testutil.Logger(t), chunks, &keywordEmbedder{}, NewDBStore(chunks), Config{Splitter: Splitter{Size: 40}})
	doc, job := seed(uuid.New(), 1, "cell one.\n\ncell two.\n\ncell three is a longer paragraph here.")
	if _, err := svc.Index(ctx, doc, job); err != nil {
		t.Fatalf("Index: %v", err)
	}
	short := "cell only"
	doc.ExtractedText = &short
	n, err := svc.Index(ctx, doc, job)
	if err != nil || n != 1 {
		t.Fatalf("reindex: n=%d err=%v", n, err)
	}
	count, err := chunks.CountByDocument(dbctx.Context{Ctx: ctx}, doc.ID)
	if err != nil || count != 1 {
		t.Fatalf("CountByDocument: want=1 got=%d err=%v", count, err)
	}
}

func TestIndexRejectsEmptyText(t *testing.T) {
	ctx, chunks, seed := newIndexFixture(t)
	svc := NewService(testutil.Logger(t), chunks, &keywordEmbedder{}, NewDBStore(chunks), Config{})
	doc, job := seed(uuid.New(), 1, "   ")
	_, err := svc.Index(ctx, doc, job)
	if !apierr.Is(err, apierr.KindInvalidInput) {
		t.Fatalf("error: want invalid input got=%v", err)
	}
}

func TestIndexEmbedFailureWritesNothing(t *testing.T) {
	ctx, chunks, seed := newIndexFixture(t)
	boom := errors.New("embed down")
	svc := NewService(testutil.Logger(t), chunks, &keywordEmbedder{err: boom}, NewDBStore(chunks), Config{})
	doc, job := seed(uuid.New(), 1, "cell energy")
	if _, err := svc.Index(ctx, doc, job); !errors.Is(err, boom) {
		t.Fatalf("error: want wrapped embed error got=%v", err)
	}
	count, _ := chunks.CountByDocument(dbctx.Context{Ctx: ctx}, doc.ID)
	if count != 0 {
		t.Fatalf("chunks after failure: want=0 got=%d", count)
	}
}

func TestSearchValidatesInput(t *testing.T) {
	_, chunks, _ := newIndexFixture(t)
	svc := NewService(testutil.Logger(t), chunks, &keywordEmbedder{}, NewDBStore(chunks), Config{})
	if _, err := svc.Search(context.Background(), SearchInput{Query: "x"}); !apierr.Is(err, apierr.KindInvalidInput) {
		t.Fatalf("missing subject: got=%v", err)
	}
	if _, err := svc.Search(context.Background(), SearchInput{SubjectID: uuid.New()}); !apierr.Is(err, apierr.KindInvalidInput) {
		t.Fatalf("missing query: got=%v", err)
	}
}
