// Package vectorindex maps document chunks onto vector store records with
// deterministic ids and runs similarity queries over them.
package vectorindex

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docsassist/internal/ai"
	"github.com/xxxsen/docsassist/internal/model"
	"github.com/xxxsen/docsassist/internal/vectorstore"
)

const (
	MetaDocumentID = "document_id"
	MetaChunkIndex = "chunk_index"
)

// RecordID returns the vector record id of chunk index of documentID.
func RecordID(documentID string, index int) string {
	return documentID + "_" + strconv.Itoa(index)
}

// ParseRecordID splits an id at its last underscore. Document ids may
// themselves contain underscores.
func ParseRecordID(id string) (string, int, bool) {
	pos := strings.LastIndex(id, "_")
	if pos <= 0 || pos == len(id)-1 {
		return "", 0, false
	}
	idx, err := strconv.Atoi(id[pos+1:])
	if err != nil || idx < 0 {
		return "", 0, false
	}
	return id[:pos], idx, true
}

type Index struct {
	store    vectorstore.IVectorStore
	embedder ai.IEmbedder
}

func New(store vectorstore.IVectorStore, embedder ai.IEmbedder) *Index {
	return &Index{store: store, embedder: embedder}
}

// Add embeds chunks in one batch and upserts them as records
// RecordID(documentID, i). Empty input is a no-op.
func (x *Index) Add(ctx context.Context, documentID string, chunks []string, shared map[string]interface{}) error {
	if len(chunks) == 0 {
		return nil
	}
	vectors, err := x.embedder.Embed(ctx, chunks, ai.TaskTypeRetrievalDocument)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("embedding count mismatch: got %d, want %d", len(vectors), len(chunks))
	}
	records := make([]model.VectorRecord, 0, len(chunks))
	for i, content := range chunks {
		meta := make(map[string]interface{}, len(shared)+2)
		for k, v := range shared {
			meta[k] = v
		}
		meta[MetaDocumentID] = documentID
		meta[MetaChunkIndex] = i
		records = append(records, model.VectorRecord{
			ID:         RecordID(documentID, i),
			DocumentID: documentID,
			ChunkIndex: i,
			Content:    content,
			Metadata:   meta,
			Embedding:  vectors[i],
		})
	}
	if err := x.store.Upsert(ctx, records); err != nil {
		return fmt.Errorf("upsert vectors: %w", err)
	}
	logutil.GetLogger(ctx).Debug("vectors added", zap.String("document_id", documentID), zap.Int("count", len(records)))
	return nil
}

// Query returns up to topK records nearest to text. Records whose id does not
// match their document_id/chunk_index metadata are dropped.
func (x *Index) Query(ctx context.Context, text string, topK int) ([]model.ScoredRecord, error) {
	if topK <= 0 {
		return []model.ScoredRecord{}, nil
	}
	cnt, err := x.store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count vectors: %w", err)
	}
	if cnt == 0 {
		return []model.ScoredRecord{}, nil
	}
	vectors, err := x.embedder.Embed(ctx, []string{text}, ai.TaskTypeRetrievalQuery)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want 1", len(vectors))
	}
	found, err := x.store.Query(ctx, vectors[0], topK)
	if err != nil {
		return nil, fmt.Errorf("query vectors: %w", err)
	}
	out := make([]model.ScoredRecord, 0, len(found))
	for _, rec := range found {
		if !consistent(rec.VectorRecord) {
			logutil.GetLogger(ctx).Warn("drop vector record with inconsistent id", zap.String("id", rec.ID))
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func consistent(rec model.VectorRecord) bool {
	docID, ok := rec.Metadata[MetaDocumentID].(string)
	if !ok {
		return false
	}
	idx, ok := toInt(rec.Metadata[MetaChunkIndex])
	if !ok {
		return false
	}
	return rec.ID == RecordID(docID, idx)
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	}
	return 0, false
}

// Delete removes the records RecordID(documentID, 0..chunkCount-1).
func (x *Index) Delete(ctx context.Context, documentID string, chunkCount int) error {
	if chunkCount <= 0 {
		return nil
	}
	ids := make([]string, 0, chunkCount)
	for i := 0; i < chunkCount; i++ {
		ids = append(ids, RecordID(documentID, i))
	}
	return x.DeleteIDs(ctx, ids)
}

func (x *Index) DeleteIDs(ctx context.Context, ids []string) error {
	if err := x.store.Delete(ctx, ids); err != nil {
		return fmt.Errorf("delete vectors: %w", err)
	}
	return nil
}

// IDsByDocument groups every stored id by the document it belongs to. Ids
// that cannot be parsed are returned separately.
func (x *Index) IDsByDocument(ctx context.Context) (map[string][]string, []string, error) {
	ids, err := x.store.ListIDs(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list vector ids: %w", err)
	}
	groups := make(map[string][]string)
	var invalid []string
	for _, id := range ids {
		docID, _, ok := ParseRecordID(id)
		if !ok {
			invalid = append(invalid, id)
			continue
		}
		groups[docID] = append(groups[docID], id)
	}
	return groups, invalid, nil
}

func (x *Index) Count(ctx context.Context) (int, error) {
	return x.store.Count(ctx)
}
