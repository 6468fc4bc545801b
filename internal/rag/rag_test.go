package rag_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docsassist/internal/ai"
	"github.com/xxxsen/docsassist/internal/model"
	"github.com/xxxsen/docsassist/internal/rag"
	"github.com/xxxsen/docsassist/internal/testutil"
	"github.com/xxxsen/docsassist/internal/vectorindex"
	"github.com/xxxsen/docsassist/internal/vectorstore"
)

type staticRetriever struct {
	records []model.ScoredRecord
	err     error
	topK    int
}

func (r *staticRetriever) Query(ctx context.Context, text string, topK int) ([]model.ScoredRecord, error) {
	r.topK = topK
	return r.records, r.err
}

type setChecker map[string]bool

func (s setChecker) ExistingDocuments(ctx context.Context, ids []string) (map[string]bool, error) {
	return s, nil
}

func record(id, docID, content string, dist float64) model.ScoredRecord {
	meta := map[string]interface{}{}
	if docID != "" {
		meta["document_id"] = docID
	}
	return model.ScoredRecord{
		VectorRecord: model.VectorRecord{ID: id, Content: content, Metadata: meta},
		Distance:     dist,
	}
}

func TestBuildPrompt(t *testing.T) {
	prompt := rag.BuildPrompt("How do I install?", []rag.RelevantChunk{
		{Content: "run go install"},
		{Content: "needs go 1.22"},
	})
	require.True(t, strings.HasPrefix(prompt, "You are a helpful code documentation assistant."))
	require.Contains(t, prompt, "say so clearly")
	require.Contains(t, prompt, "Context:\nSource 1: run go install\n\nSource 2: needs go 1.22\n\nQuestion: How do I install?")
	require.True(t, strings.HasSuffix(prompt, "Include code examples when relevant."))
}

func TestAnswerCitesInRankOrder(t *testing.T) {
	retriever := &staticRetriever{records: []model.ScoredRecord{
		record("a_0", "a", "first", 0.1),
		record("b_2", "b", "second", 0.2),
		record("a_1", "a", "third", 0.3),
		record("x_0", "", "no metadata", 0.4),
	}}
	gen := &testutil.FakeGenerator{Answer: "use go install"}
	res := rag.New(retriever, gen, rag.Config{}).Answer(context.Background(), "install?")

	require.Equal(t, "use go install", res.Answer)
	require.Equal(t, []string{"a", "b", "a", "unknown"}, res.Sources)
	require.Len(t, res.RelevantChunks, 4)
	require.Equal(t, 0.1, res.RelevantChunks[0].Distance)
	require.Equal(t, 5, retriever.topK)

	require.Len(t, gen.Options, 1)
	require.NotNil(t, gen.Options[0].Temperature)
	require.Equal(t, 0.7, *gen.Options[0].Temperature)
	require.Equal(t, 0.9, gen.Options[0].TopP)
	require.Equal(t, 1000, gen.Options[0].MaxTokens)
	require.Contains(t, gen.LastPrompt(), "Source 3: third")
}

func TestAnswerGenerationFailure(t *testing.T) {
	retriever := &staticRetriever{records: []model.ScoredRecord{record("a_0", "a", "first", 0.1)}}
	gen := &testutil.FakeGenerator{Err: testutil.ErrFake}
	res := rag.New(retriever, gen, rag.Config{}).Answer(context.Background(), "q")

	require.Equal(t, "Error generating response: fake failure", res.Answer)
	require.NotNil(t, res.Sources)
	require.Empty(t, res.Sources)
	require.Len(t, res.RelevantChunks, 1)
	var genErr *rag.GenerationError
	require.True(t, errors.As(res.Err, &genErr))
	require.ErrorIs(t, res.Err, testutil.ErrFake)
}

func TestAnswerKeepsZeroTemperature(t *testing.T) {
	gen := &testutil.FakeGenerator{Answer: "ok"}
	res := rag.New(&staticRetriever{}, gen, rag.Config{Temperature: ai.Temperature(0)}).Answer(context.Background(), "q")
	require.NoError(t, res.Err)
	require.Len(t, gen.Options, 1)
	require.NotNil(t, gen.Options[0].Temperature)
	require.Zero(t, *gen.Options[0].Temperature)
}

func TestAnswerRetrievalFailure(t *testing.T) {
	gen := &testutil.FakeGenerator{Answer: "never"}
	res := rag.New(&staticRetriever{err: testutil.ErrFake}, gen, rag.Config{}).Answer(context.Background(), "q")
	require.True(t, strings.HasPrefix(res.Answer, "Error generating response:"))
	require.Empty(t, res.Sources)
	require.Empty(t, gen.Prompts)
	var genErr *rag.GenerationError
	require.True(t, errors.As(res.Err, &genErr))
	require.ErrorIs(t, res.Err, testutil.ErrFake)
}

func TestAnswerDropsOrphans(t *testing.T) {
	retriever := &staticRetriever{records: []model.ScoredRecord{
		record("gone_0", "gone", "stale", 0.1),
		record("live_0", "live", "fresh", 0.2),
	}}
	gen := &testutil.FakeGenerator{Answer: "ok"}
	g := rag.New(retriever, gen, rag.Config{TopK: 3}, rag.WithSourceChecker(setChecker{"live": true}))
	res := g.Answer(context.Background(), "q")
	require.Equal(t, []string{"live"}, res.Sources)
	require.NotContains(t, gen.LastPrompt(), "stale")
	require.Equal(t, 3, retriever.topK)
}

func TestAnswerOnEmptyIndex(t *testing.T) {
	emb := &testutil.FakeEmbedder{}
	index := vectorindex.New(vectorstore.NewMemoryStore(), emb)
	gen := &testutil.FakeGenerator{Answer: "The context does not contain enough information to answer."}
	res := rag.New(index, gen, rag.Config{}).Answer(context.Background(), "What is X?")

	require.Contains(t, res.Answer, "enough information")
	require.Empty(t, res.Sources)
	require.Empty(t, res.RelevantChunks)
	require.Contains(t, gen.LastPrompt(), "Context:\n\n\nQuestion: What is X?")
}
