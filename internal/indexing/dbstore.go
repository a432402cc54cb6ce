package indexing

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/yungbote/exampaper-backend/internal/data/repos"
	"github.com/yungbote/exampaper-backend/internal/pkg/dbctx"
	"github.com/yungbote/exampaper-backend/internal/platform/vectorstore"
)

// DBStore keeps embeddings on the document_chunk rows and scores them in
// memory. The namespace is the subject id; vector ids are chunk ids.
type DBStore struct {
	chunks repos.ChunkRepo
}

var _ vectorstore.Store = (*DBStore)(nil)

func NewDBStore(chunks repos.ChunkRepo) *DBStore {
	return &DBStore{chunks: chunks}
}

func (s *DBStore) Upsert(ctx context.Context, namespace string, vectors []vectorstore.Vector) error {
	if len(vectors) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID][]float32, len(vectors))
	for _, v := range vectors {
		id, err := uuid.Parse(v.ID)
		if err != nil {
			return fmt.Errorf("db vector store: invalid chunk id %q: %w", v.ID, err)
		}
		byID[id] = v.Values
	}
	return s.chunks.SetEmbeddings(dbctx.Context{Ctx: ctx}, byID)
}

// Query understands unit_number (scalar or $in) and document_id filters.
func (s *DBStore) Query(ctx context.Context, namespace string, q []float32, topK int, filter map[string]any) ([]vectorstore.Match, error) {
	subjectID, err := uuid.Parse(namespace)
	if err != nil {
		return nil, fmt.Errorf("db vector store: namespace must be a subject id: %w", err)
	}
	units, err := unitFilter(filter["unit_number"])
	if err != nil {
		return nil, err
	}
	docFilter, _ := filter["document_id"].(string)

	rows, err := s.chunks.ListBySubjectUnits(dbctx.Context{Ctx: ctx}, subjectID, units)
	if err != nil {
		return nil, err
	}
	out := make([]vectorstore.Match, 0, len(rows))
	for _, row := range rows {
		if len(row.Embedding) == 0 {
			continue
		}
		if docFilter != "" && row.DocumentID.String() != docFilter {
			continue
		}
		out = append(out, vectorstore.Match{ID: row.ID.String(), Score: vectorstore.Cosine(q, row.Embedding)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

// DeleteByFilter is a no-op: the rows carrying the vectors are replaced
// together with the chunk set.
func (s *DBStore) DeleteByFilter(ctx context.Context, namespace string, filter map[string]any) error {
	return nil
}

func unitFilter(raw any) ([]int, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case int:
		return []int{v}, nil
	case []int:
		return v, nil
	case map[string]any:
		in, ok := v["$in"].([]int)
		if !ok {
			return nil, fmt.Errorf("db vector store: unit_number supports only $in with []int")
		}
		return in, nil
	default:
		return nil, fmt.Errorf("db vector store: unsupported unit_number filter %T", raw)
	}
}
