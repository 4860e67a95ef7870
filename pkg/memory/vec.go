package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

type SearchResult struct {
	ID    string         `json:"id"`
	Score float64        `json:"score"`
	Meta  map[string]any `json:"meta,omitempty"`
}

// VectorIndex is the embedding index behind the vector layer.
type VectorIndex interface {
	Upsert(ctx context.Context, id string, embedding []float32, meta map[string]any) error
	Search(ctx context.Context, embedding []float32, k int, filter map[string]any) ([]SearchResult, error)
}

type vector struct {
	embedding []float32
	meta      map[string]any
}

// MemoryIndex is a brute force VectorIndex scored by cosine similarity.
type MemoryIndex struct {
	lock    sync.RWMutex
	vectors map[string]vector
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{vectors: make(map[string]vector)}
}

func (idx *MemoryIndex) Upsert(ctx context.Context, id string, embedding []float32, meta map[string]any) error {
	if len(embedding) == 0 {
		return fmt.Errorf("empty embedding for %s", id)
	}

	e := make([]float32, len(embedding))
	copy(e, embedding)

	idx.lock.Lock()
	defer idx.lock.Unlock()
	idx.vectors[id] = vector{embedding: e, meta: meta}
	return nil
}

// Search returns up to k results, best first. Vectors of a different
// dimension are skipped.
func (idx *MemoryIndex) Search(ctx context.Context, embedding []float32, k int, filter map[string]any) ([]SearchResult, error) {
	if k <= 0 {
		return []SearchResult{}, nil
	}

	idx.lock.RLock()
	results := make([]SearchResult, 0, len(idx.vectors))
	for id, v := range idx.vectors {
		if !matches(v.meta, filter) {
			continue
		}
		score, err := CosineSimilarity(embedding, v.embedding)
		if err != nil {
			continue
		}
		results = append(results, SearchResult{ID: id, Score: score, Meta: v.meta})
	}
	idx.lock.RUnlock()

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score == results[j].Score {
			return results[i].ID < results[j].ID
		}
		return results[i].Score > results[j].Score
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector dimension mismatch: %d != %d", len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}
