// Package vectorstore persists embedded chunk records and answers nearest
// neighbour queries by cosine distance.
package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/xxxsen/docsassist/internal/config"
	"github.com/xxxsen/docsassist/internal/model"
)

type IVectorStore interface {
	// Upsert inserts or replaces records by id.
	Upsert(ctx context.Context, records []model.VectorRecord) error
	// Query returns at most topK records ordered by ascending cosine distance.
	Query(ctx context.Context, vec []float32, topK int) ([]model.ScoredRecord, error)
	// Delete removes the given ids; unknown ids are ignored.
	Delete(ctx context.Context, ids []string) error
	ListIDs(ctx context.Context) ([]string, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

type Factory func(args interface{}) (IVectorStore, error)

var registry = map[string]Factory{}

func Register(name string, factory Factory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registry[key] = factory
}

func New(cfg config.VectorStoreConfig) (IVectorStore, error) {
	key := strings.ToLower(strings.TrimSpace(cfg.Type))
	if key == "" {
		key = "sqlite"
	}
	factory := registry[key]
	if factory == nil {
		return nil, fmt.Errorf("unsupported vector store: %s", cfg.Type)
	}
	return factory(cfg.Data)
}

// CosineDistance returns 1 - cos(a, b). A zero vector is at distance 1 from
// everything.
func CosineDistance(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	for _, v := range a {
		na += float64(v) * float64(v)
	}
	for _, v := range b {
		nb += float64(v) * float64(v)
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

// rank sorts candidates by distance (ties by id) and keeps the first topK.
func rank(candidates []model.ScoredRecord, topK int) []model.ScoredRecord {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Distance != candidates[j].Distance {
			return candidates[i].Distance < candidates[j].Distance
		}
		return candidates[i].ID < candidates[j].ID
	})
	if topK >= 0 && len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode vector store config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode vector store config: %w", err)
	}
	return nil
}

func cloneMetadata(meta map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}
