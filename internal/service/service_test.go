package service_test

import (
	"context"
	"database/sql"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docsassist/internal/chunker"
	"github.com/xxxsen/docsassist/internal/config"
	"github.com/xxxsen/docsassist/internal/extractor"
	"github.com/xxxsen/docsassist/internal/filestore"
	"github.com/xxxsen/docsassist/internal/model"
	appErr "github.com/xxxsen/docsassist/internal/pkg/errors"
	"github.com/xxxsen/docsassist/internal/rag"
	"github.com/xxxsen/docsassist/internal/repo"
	"github.com/xxxsen/docsassist/internal/service"
	"github.com/xxxsen/docsassist/internal/testutil"
	"github.com/xxxsen/docsassist/internal/vectorindex"
	"github.com/xxxsen/docsassist/internal/vectorstore"
)

type harness struct {
	db        *sql.DB
	docRepo   *repo.DocumentRepo
	chunkRepo *repo.ChunkRepo
	chatRepo  *repo.ChatRepo
	store     vectorstore.IVectorStore
	index     *vectorindex.Index
	embedder  *testutil.FakeEmbedder
	generator *testutil.FakeGenerator
	files     filestore.Store

	ingest    *service.IngestService
	documents *service.DocumentService
	chat      *service.ChatService
	health    *service.HealthService
	reconcile *service.ReconcileService
}

// failingDeleteStore is a memory store whose Delete always fails.
type failingDeleteStore struct {
	*vectorstore.MemoryStore
}

func (s failingDeleteStore) Delete(ctx context.Context, ids []string) error {
	return testutil.ErrFake
}

func newHarness(t *testing.T, store vectorstore.IVectorStore) *harness {
	t.Helper()
	if store == nil {
		store = vectorstore.NewMemoryStore()
	}
	files, err := filestore.New(config.FileStoreConfig{
		Type: "local",
		Data: map[string]interface{}{"dir": t.TempDir()},
	})
	require.NoError(t, err)
	h := &harness{
		db:        testutil.OpenTestDB(t),
		store:     store,
		embedder:  &testutil.FakeEmbedder{},
		generator: &testutil.FakeGenerator{Answer: "generated answer"},
		files:     files,
	}
	h.docRepo = repo.NewDocumentRepo(h.db)
	h.chunkRepo = repo.NewChunkRepo(h.db)
	h.chatRepo = repo.NewChatRepo(h.db)
	h.index = vectorindex.New(store, h.embedder)

	h.ingest = service.NewIngestService(h.docRepo, extractor.New(extractor.Config{}), chunker.MustNew(1000, 200), h.index, files)
	h.documents = service.NewDocumentService(h.docRepo, h.chunkRepo, h.index, files)
	generator := rag.New(h.index, h.generator, rag.Config{}, rag.WithSourceChecker(h.documents))
	h.chat = service.NewChatService(h.chatRepo, generator)
	h.health = service.NewHealthService(h.docRepo, h.chunkRepo, h.chatRepo, h.index, h.generator)
	h.reconcile = service.NewReconcileService(h.docRepo, h.chunkRepo, h.index)
	return h
}

func (h *harness) vectorCount(t *testing.T) int {
	cnt, err := h.store.Count(context.Background())
	require.NoError(t, err)
	return cnt
}

func TestIngestTextChunksWithOverlap(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	text := strings.Repeat("A.", 1250)

	doc, err := h.ingest.Ingest(ctx, &service.IngestRequest{SourceType: model.SourceTypeText, TextContent: text})
	require.NoError(t, err)
	require.Equal(t, "Untitled Document", doc.Title)
	require.True(t, doc.Processed)
	require.Equal(t, model.StatusCompleted, doc.ProcessingStatus)
	require.Empty(t, doc.ErrorMessage)
	require.Equal(t, 3, doc.ChunksCount)

	chunks, err := h.documents.Chunks(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	var rebuilt strings.Builder
	for i, c := range chunks {
		require.Equal(t, i, c.ChunkIndex)
		require.Equal(t, "text", c.Metadata["source_type"])
		if i == 0 {
			rebuilt.WriteString(c.Content)
			continue
		}
		prev := []rune(chunks[i-1].Content)
		cur := []rune(c.Content)
		require.Equal(t, string(prev[len(prev)-200:]), string(cur[:200]))
		rebuilt.WriteString(string(cur[200:]))
	}
	require.Equal(t, text, rebuilt.String())
	require.Equal(t, 3, h.vectorCount(t))
}

func TestIngestURLNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	h := newHarness(t, nil)
	ctx := context.Background()

	doc, err := h.ingest.Ingest(ctx, &service.IngestRequest{SourceType: model.SourceTypeURL, URL: srv.URL + "/missing", Title: "Missing"})
	require.NoError(t, err)
	require.Equal(t, model.StatusFailed, doc.ProcessingStatus)
	require.False(t, doc.Processed)
	require.NotEmpty(t, doc.ErrorMessage)
	require.Equal(t, "Missing", doc.Title)

	cnt, err := h.chunkRepo.CountByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Zero(t, cnt)
	require.Zero(t, h.vectorCount(t))
}

func TestIngestURLPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html><body><nav>menu</nav><main><p>Deploy with docker compose.</p></main></body></html>")
	}))
	defer srv.Close()
	h := newHarness(t, nil)
	ctx := context.Background()

	doc, err := h.ingest.Ingest(ctx, &service.IngestRequest{SourceType: model.SourceTypeURL, URL: srv.URL})
	require.NoError(t, err)
	require.Equal(t, model.StatusCompleted, doc.ProcessingStatus)
	require.Equal(t, "Deploy with docker compose.", doc.TextContent)
	stored, err := h.documents.Get(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, "Deploy with docker compose.", stored.TextContent)
	chunks, err := h.documents.Chunks(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	require.Contains(t, chunks[0].Content, "Deploy with docker compose.")
	require.NotContains(t, chunks[0].Content, "menu")
	require.Equal(t, srv.URL, chunks[0].Metadata["source_url"])
}

func TestIngestUnsupportedFile(t *testing.T) {
	h := newHarness(t, nil)
	doc, err := h.ingest.Ingest(context.Background(), &service.IngestRequest{
		SourceType: model.SourceTypeFile,
		FileName:   "notes.xyz",
		FileData:   []byte("data"),
	})
	require.NoError(t, err)
	require.Equal(t, model.StatusFailed, doc.ProcessingStatus)
	require.Contains(t, doc.ErrorMessage, "Unsupported file format: .xyz")
}

func TestIngestFileKeepsUpload(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	doc, err := h.ingest.Ingest(ctx, &service.IngestRequest{
		SourceType: model.SourceTypeFile,
		FileName:   "readme.md",
		FileData:   []byte("# Title\n\nSome body text."),
	})
	require.NoError(t, err)
	require.Equal(t, model.StatusCompleted, doc.ProcessingStatus)
	require.Equal(t, "readme.md", doc.FileName)
	require.NotEmpty(t, doc.FileKey)
	require.Contains(t, doc.TextContent, "Some body text.")

	rc, got, err := h.documents.OpenFile(ctx, doc.ID)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	require.Equal(t, "# Title\n\nSome body text.", string(data))
	require.Equal(t, doc.ID, got.ID)

	chunks, err := h.documents.Chunks(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, "readme.md", chunks[0].Metadata["filename"])

	require.NoError(t, h.documents.Delete(ctx, doc.ID))
	_, err = h.files.Open(ctx, doc.FileKey)
	require.ErrorIs(t, err, appErr.ErrNotFound)
}

func TestIngestValidation(t *testing.T) {
	h := newHarness(t, nil)
	for _, req := range []*service.IngestRequest{
		{},
		{SourceType: "ftp"},
		{SourceType: model.SourceTypeURL},
		{SourceType: model.SourceTypeFile},
		{SourceType: model.SourceTypeText, TextContent: "   "},
	} {
		_, err := h.ingest.Ingest(context.Background(), req)
		require.ErrorIs(t, err, appErr.ErrInvalid)
	}
	cnt, err := h.docRepo.Count(context.Background())
	require.NoError(t, err)
	require.Zero(t, cnt)
}

func TestIngestEmbeddingFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.embedder.Err = testutil.ErrFake
	doc, err := h.ingest.Ingest(context.Background(), &service.IngestRequest{SourceType: model.SourceTypeText, TextContent: "hello"})
	require.NoError(t, err)
	require.Equal(t, model.StatusFailed, doc.ProcessingStatus)
	require.True(t, strings.HasPrefix(doc.ErrorMessage, "Error indexing document:"))
	cnt, err := h.chunkRepo.Count(context.Background())
	require.NoError(t, err)
	require.Zero(t, cnt)
}

func TestIngestRollsBackVectorsWhenChunksFail(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.db.Exec(`CREATE TRIGGER reject_chunks BEFORE INSERT ON document_chunks BEGIN SELECT RAISE(ABORT, 'rejected'); END`)
	require.NoError(t, err)

	doc, err := h.ingest.Ingest(context.Background(), &service.IngestRequest{SourceType: model.SourceTypeText, TextContent: "hello world"})
	require.NoError(t, err)
	require.Equal(t, model.StatusFailed, doc.ProcessingStatus)
	require.Contains(t, doc.ErrorMessage, "Error saving chunks")
	require.Zero(t, h.vectorCount(t))
}

func TestDeleteDocument(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	doc, err := h.ingest.Ingest(ctx, &service.IngestRequest{SourceType: model.SourceTypeText, TextContent: strings.Repeat("word ", 500)})
	require.NoError(t, err)
	require.Equal(t, model.StatusCompleted, doc.ProcessingStatus)
	require.NotZero(t, h.vectorCount(t))

	require.NoError(t, h.documents.Delete(ctx, doc.ID))
	cnt, err := h.chunkRepo.CountByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Zero(t, cnt)
	require.Zero(t, h.vectorCount(t))

	_, err = h.documents.Get(ctx, doc.ID)
	require.ErrorIs(t, err, appErr.ErrNotFound)
	require.ErrorIs(t, h.documents.Delete(ctx, doc.ID), appErr.ErrNotFound)
}

func TestDeleteDocumentIgnoresVectorFailure(t *testing.T) {
	h := newHarness(t, failingDeleteStore{vectorstore.NewMemoryStore()})
	ctx := context.Background()
	doc, err := h.ingest.Ingest(ctx, &service.IngestRequest{SourceType: model.SourceTypeText, TextContent: "some text"})
	require.NoError(t, err)

	require.NoError(t, h.documents.Delete(ctx, doc.ID))
	cnt, err := h.chunkRepo.CountByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Zero(t, cnt)
}

func TestListDocumentsWithChunkCounts(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	first, err := h.ingest.Ingest(ctx, &service.IngestRequest{SourceType: model.SourceTypeText, TextContent: "short", Title: "first"})
	require.NoError(t, err)
	second, err := h.ingest.Ingest(ctx, &service.IngestRequest{SourceType: model.SourceTypeText, TextContent: strings.Repeat("B.", 1250), Title: "second"})
	require.NoError(t, err)

	docs, err := h.documents.List(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	require.Equal(t, second.ID, docs[0].ID)
	require.Equal(t, 3, docs[0].ChunksCount)
	require.Equal(t, first.ID, docs[1].ID)
	require.Equal(t, 1, docs[1].ChunksCount)
}

func TestChatOnEmptyIndex(t *testing.T) {
	h := newHarness(t, nil)
	h.generator.Answer = "The context does not contain enough information to answer this question."
	res, err := h.chat.Chat(context.Background(), "What is X?", "")
	require.NoError(t, err)
	require.NotEmpty(t, res.SessionID)
	require.Contains(t, res.Answer, "enough information")
	require.Empty(t, res.Sources)
	require.Empty(t, res.RelevantChunks)
}

func TestChatSessionFlow(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	doc, err := h.ingest.Ingest(ctx, &service.IngestRequest{SourceType: model.SourceTypeText, TextContent: "the server listens on port 8080"})
	require.NoError(t, err)

	longQuery := "which port does the server listen on " + strings.Repeat("please ", 10)
	res, err := h.chat.Chat(ctx, longQuery, "")
	require.NoError(t, err)
	require.Equal(t, "generated answer", res.Answer)
	require.Equal(t, []string{doc.ID}, res.Sources)
	require.Len(t, res.RelevantChunks, 1)
	require.Contains(t, h.generator.LastPrompt(), "Source 1: the server listens on port 8080")

	h.generator.Answer = strings.Repeat("x", 150)
	_, err = h.chat.Chat(ctx, "and the host?", res.SessionID)
	require.NoError(t, err)

	sessions, err := h.chat.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, strings.TrimSpace(longQuery)[:50]+"...", sessions[0].Title)
	require.Equal(t, 4, sessions[0].MessagesCount)
	require.NotNil(t, sessions[0].LastMessage)
	require.Equal(t, strings.Repeat("x", 100)+"...", sessions[0].LastMessage.Content)

	msgs, err := h.chat.ListMessages(ctx, res.SessionID)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	require.Equal(t, model.MessageTypeUser, msgs[0].MessageType)
	require.Equal(t, model.MessageTypeAssistant, msgs[1].MessageType)
	require.Equal(t, []string{doc.ID}, msgs[1].SourcesUsed)
	require.Equal(t, "and the host?", msgs[2].Content)

	require.NoError(t, h.chat.DeleteSession(ctx, res.SessionID))
	_, err = h.chat.ListMessages(ctx, res.SessionID)
	require.ErrorIs(t, err, appErr.ErrNotFound)
}

func TestChatErrors(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	_, err := h.chat.Chat(ctx, "   ", "")
	require.ErrorIs(t, err, appErr.ErrInvalid)
	_, err = h.chat.Chat(ctx, "hello", "no-such-session")
	require.ErrorIs(t, err, appErr.ErrNotFound)
	require.ErrorIs(t, h.chat.DeleteSession(ctx, "no-such-session"), appErr.ErrNotFound)
}

func TestChatAbsorbsGenerationFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.generator.Err = testutil.ErrFake
	res, err := h.chat.Chat(context.Background(), "hello", "")
	require.NoError(t, err)
	require.Equal(t, "Error generating response: fake failure", res.Answer)
	require.Empty(t, res.Sources)
}

func TestHealth(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	_, err := h.ingest.Ingest(ctx, &service.IngestRequest{SourceType: model.SourceTypeText, TextContent: "hello"})
	require.NoError(t, err)
	_, err = h.chat.Chat(ctx, "hello", "")
	require.NoError(t, err)

	report, err := h.health.Check(ctx)
	require.NoError(t, err)
	require.Equal(t, "healthy", report.Status)
	require.Equal(t, "connected", report.GeneratorStatus)
	require.Equal(t, 1, report.DocumentsCount)
	require.Equal(t, 1, report.ChatSessionsCount)
	require.Equal(t, 1, report.ChunksCount)
	require.Equal(t, 1, report.VectorsCount)

	h.generator.PingErr = testutil.ErrFake
	report, err = h.health.Check(ctx)
	require.NoError(t, err)
	require.Equal(t, "disconnected", report.GeneratorStatus)
}

func TestReconcileRepairsIndex(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	keep, err := h.ingest.Ingest(ctx, &service.IngestRequest{SourceType: model.SourceTypeText, TextContent: strings.Repeat("C.", 1250)})
	require.NoError(t, err)
	broken, err := h.ingest.Ingest(ctx, &service.IngestRequest{SourceType: model.SourceTypeText, TextContent: "repair me"})
	require.NoError(t, err)

	require.NoError(t, h.store.Delete(ctx, []string{vectorindex.RecordID(broken.ID, 0)}))
	vec := testutil.HashEmbedding("ghost")
	require.NoError(t, h.store.Upsert(ctx, []model.VectorRecord{
		{ID: "ghost-doc_0", Content: "ghost", Embedding: vec},
		{ID: "garbage", Content: "garbage", Embedding: vec},
	}))

	report, err := h.reconcile.Run(ctx, false)
	require.NoError(t, err)
	require.Equal(t, 1, report.RemovedInvalid)
	require.Equal(t, 1, report.RemovedOrphans)
	require.Equal(t, 1, report.Reindexed)
	require.Zero(t, report.Failed)

	ids, err := h.store.ListIDs(ctx)
	require.NoError(t, err)
	want := []string{vectorindex.RecordID(broken.ID, 0)}
	for i := 0; i < 3; i++ {
		want = append(want, vectorindex.RecordID(keep.ID, i))
	}
	require.ElementsMatch(t, want, ids)

	report, err = h.reconcile.Run(ctx, false)
	require.NoError(t, err)
	require.Zero(t, report.Reindexed)

	report, err = h.reconcile.Run(ctx, true)
	require.NoError(t, err)
	require.Equal(t, 2, report.Reindexed)
	require.Equal(t, 4, h.vectorCount(t))
}

func TestReconcileKeepsVectorsOfPendingDocuments(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	doc := &model.Document{
		ID:               "in-flight",
		Title:            "In flight",
		SourceType:       model.SourceTypeText,
		TextContent:      "still ingesting",
		ProcessingStatus: model.StatusPending,
		Ctime:            100,
		Mtime:            100,
	}
	require.NoError(t, h.docRepo.Create(ctx, doc))
	require.NoError(t, h.index.Add(ctx, doc.ID, []string{"still ingesting"}, map[string]interface{}{"title": doc.Title}))

	report, err := h.reconcile.Run(ctx, false)
	require.NoError(t, err)
	require.Zero(t, report.RemovedOrphans)
	require.Equal(t, 1, h.vectorCount(t))

	require.NoError(t, h.docRepo.CompleteWithChunks(ctx, doc.ID, doc.TextContent, []*model.Chunk{{
		ID:         vectorindex.RecordID(doc.ID, 0),
		DocumentID: doc.ID,
		ChunkIndex: 0,
		Content:    "still ingesting",
		Metadata:   map[string]interface{}{"source_type": "text"},
		Ctime:      110,
	}}, 110))
	report, err = h.reconcile.Run(ctx, false)
	require.NoError(t, err)
	require.Zero(t, report.Reindexed)
	require.Equal(t, 1, h.vectorCount(t))
}

func TestReconcileDropsVectorsOfFailedDocuments(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	doc := &model.Document{
		ID:               "failed-doc",
		Title:            "Failed",
		SourceType:       model.SourceTypeText,
		TextContent:      "left behind",
		ProcessingStatus: model.StatusPending,
		Ctime:            100,
		Mtime:            100,
	}
	require.NoError(t, h.docRepo.Create(ctx, doc))
	require.NoError(t, h.index.Add(ctx, doc.ID, []string{"left behind"}, nil))
	require.NoError(t, h.docRepo.MarkFailed(ctx, doc.ID, "Error saving chunks: boom", 110))

	report, err := h.reconcile.Run(ctx, false)
	require.NoError(t, err)
	require.Equal(t, 1, report.RemovedOrphans)
	require.Zero(t, h.vectorCount(t))
}
