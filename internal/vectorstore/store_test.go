package vectorstore_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docsassist/internal/config"
	"github.com/xxxsen/docsassist/internal/model"
	"github.com/xxxsen/docsassist/internal/vectorstore"
)

func record(id string, idx int, vec ...float32) model.VectorRecord {
	return model.VectorRecord{
		ID:         id,
		DocumentID: "doc",
		ChunkIndex: idx,
		Content:    "content " + id,
		Metadata:   map[string]interface{}{"document_id": "doc", "chunk_index": float64(idx)},
		Embedding:  vec,
	}
}

func runStoreSuite(t *testing.T, store vectorstore.IVectorStore) {
	ctx := context.Background()

	res, err := store.Query(ctx, []float32{1, 0}, 5)
	require.NoError(t, err)
	require.Empty(t, res)

	require.NoError(t, store.Upsert(ctx, []model.VectorRecord{
		record("doc_0", 0, 1, 0),
		record("doc_1", 1, 0, 1),
		record("doc_2", 2, 1, 1),
	}))
	cnt, err := store.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, cnt)

	res, err = store.Query(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	require.Equal(t, "doc_0", res[0].ID)
	require.InDelta(t, 0, res[0].Distance, 1e-6)
	require.Equal(t, "doc_2", res[1].ID)
	require.LessOrEqual(t, res[0].Distance, res[1].Distance)
	require.Equal(t, "content doc_0", res[0].Content)
	require.Equal(t, "doc", res[0].Metadata["document_id"])

	// upsert replaces by id
	require.NoError(t, store.Upsert(ctx, []model.VectorRecord{record("doc_1", 1, 1, 0)}))
	cnt, err = store.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, cnt)

	res, err = store.Query(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, res, 3)
	for i := 1; i < len(res); i++ {
		require.LessOrEqual(t, res[i-1].Distance, res[i].Distance)
	}

	require.NoError(t, store.Delete(ctx, []string{"doc_0", "missing"}))
	ids, err := store.ListIDs(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"doc_1", "doc_2"}, ids)
	require.NoError(t, store.Delete(ctx, nil))
}

func TestMemoryStore(t *testing.T) {
	store, err := vectorstore.New(config.VectorStoreConfig{Type: "memory"})
	require.NoError(t, err)
	defer store.Close()
	runStoreSuite(t, store)
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.db")
	store, err := vectorstore.New(config.VectorStoreConfig{Type: "sqlite", Data: map[string]interface{}{"path": path}})
	require.NoError(t, err)
	runStoreSuite(t, store)
	require.NoError(t, store.Close())

	reopened, err := vectorstore.NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()
	cnt, err := reopened.Count(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, cnt)
}

func TestPGVectorStore(t *testing.T) {
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set, skipping pgvector test")
	}
	table := fmt.Sprintf("test_vectors_%d", os.Getpid())
	store, err := vectorstore.NewPGVectorStore(dsn, table)
	require.NoError(t, err)
	defer store.Close()
	runStoreSuite(t, store)
}

func TestNewRejectsUnknownStore(t *testing.T) {
	_, err := vectorstore.New(config.VectorStoreConfig{Type: "faiss"})
	require.Error(t, err)
	_, err = vectorstore.New(config.VectorStoreConfig{Type: "sqlite"})
	require.Error(t, err)
	_, err = vectorstore.NewPGVectorStore("postgres://x", "bad-name;")
	require.Error(t, err)
}

func TestCosineDistance(t *testing.T) {
	require.InDelta(t, 0, vectorstore.CosineDistance([]float32{1, 2}, []float32{2, 4}), 1e-9)
	require.InDelta(t, 1, vectorstore.CosineDistance([]float32{1, 0}, []float32{0, 1}), 1e-9)
	require.InDelta(t, 2, vectorstore.CosineDistance([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	require.Equal(t, 1.0, vectorstore.CosineDistance([]float32{0, 0}, []float32{1, 0}))
}
