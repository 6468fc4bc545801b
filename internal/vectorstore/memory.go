package vectorstore

import (
	"context"
	"sort"
	"sync"

	"github.com/xxxsen/docsassist/internal/model"
)

// MemoryStore keeps records in process memory. Nothing survives a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]model.VectorRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]model.VectorRecord)}
}

func (s *MemoryStore) Upsert(_ context.Context, records []model.VectorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range records {
		if rec.ID == "" {
			continue
		}
		rec.Metadata = cloneMetadata(rec.Metadata)
		rec.Embedding = append([]float32(nil), rec.Embedding...)
		s.records[rec.ID] = rec
	}
	return nil
}

func (s *MemoryStore) Query(_ context.Context, vec []float32, topK int) ([]model.ScoredRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	candidates := make([]model.ScoredRecord, 0, len(s.records))
	for _, rec := range s.records {
		out := rec
		out.Metadata = cloneMetadata(rec.Metadata)
		candidates = append(candidates, model.ScoredRecord{
			VectorRecord: out,
			Distance:     CosineDistance(vec, rec.Embedding),
		})
	}
	return rank(candidates, topK), nil
}

func (s *MemoryStore) Delete(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.records, id)
	}
	return nil
}

func (s *MemoryStore) ListIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func init() {
	Register("memory", func(args interface{}) (IVectorStore, error) {
		return NewMemoryStore(), nil
	})
}
