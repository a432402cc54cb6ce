package vectorstore

import (
	"context"
	"math"
)

// Store holds chunk embeddings. Filters use a small Mongo-like dialect:
// {"field": value}, {"field": {"$in": [...]}} and {"field": {"$ne": value}}.
type Store interface {
	Upsert(ctx context.Context, namespace string, vectors []Vector) error
	// Query returns matches ordered by similarity, higher first.
	Query(ctx context.Context, namespace string, q []float32, topK int, filter map[string]any) ([]Match, error)
	DeleteByFilter(ctx context.Context, namespace string, filter map[string]any) error
}

type Vector struct {
	ID       string
	Values   []float32
	Metadata map[string]any
}

type Match struct {
	ID    string
	Score float64
}

// Cosine returns the cosine similarity of a and b, or 0 when either is empty
// or their lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
