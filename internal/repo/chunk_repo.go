package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/docsassist/internal/model"
)

var chunkColumns = []string{"id", "document_id", "chunk_index", "content", "metadata", "ctime"}

type ChunkRepo struct {
	db *sql.DB
}

func NewChunkRepo(db *sql.DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

func insertChunks(ctx context.Context, ex execer, chunks []*model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	data := make([]map[string]interface{}, 0, len(chunks))
	for _, chunk := range chunks {
		meta, err := json.Marshal(chunk.Metadata)
		if err != nil {
			return err
		}
		if chunk.Metadata == nil {
			meta = []byte("{}")
		}
		data = append(data, map[string]interface{}{
			"id":          chunk.ID,
			"document_id": chunk.DocumentID,
			"chunk_index": chunk.ChunkIndex,
			"content":     chunk.Content,
			"metadata":    string(meta),
			"ctime":       chunk.Ctime,
		})
	}
	sqlStr, args, err := builder.BuildInsert("document_chunks", data)
	if err != nil {
		return err
	}
	_, err = ex.ExecContext(ctx, sqlStr, args...)
	return err
}

// ListByDocument returns the chunks of one document in chunk_index order.
func (r *ChunkRepo) ListByDocument(ctx context.Context, documentID string) ([]model.Chunk, error) {
	where := map[string]interface{}{
		"document_id": documentID,
		"_orderby":    "chunk_index asc",
	}
	sqlStr, args, err := builder.BuildSelect("document_chunks", where, chunkColumns)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	chunks := make([]model.Chunk, 0)
	for rows.Next() {
		var (
			chunk model.Chunk
			meta  string
		)
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.ChunkIndex, &chunk.Content, &meta, &chunk.Ctime); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(meta), &chunk.Metadata); err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

// CountByDocuments returns chunk counts keyed by document id. Documents
// without chunks are absent from the map.
func (r *ChunkRepo) CountByDocuments(ctx context.Context, documentIDs []string) (map[string]int, error) {
	counts := make(map[string]int)
	if len(documentIDs) == 0 {
		return counts, nil
	}
	where := map[string]interface{}{
		"_custom_ids": builder.In{"document_id": toInterfaces(documentIDs)},
		"_groupby":    "document_id",
	}
	sqlStr, args, err := builder.BuildSelect("document_chunks", where, []string{"document_id", "COUNT(1) AS cnt"})
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id  string
			cnt int
		)
		if err := rows.Scan(&id, &cnt); err != nil {
			return nil, err
		}
		counts[id] = cnt
	}
	return counts, rows.Err()
}

func (r *ChunkRepo) CountByDocument(ctx context.Context, documentID string) (int, error) {
	var cnt int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM document_chunks WHERE document_id = ?", documentID).Scan(&cnt); err != nil {
		return 0, err
	}
	return cnt, nil
}

func (r *ChunkRepo) Count(ctx context.Context) (int, error) {
	var cnt int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM document_chunks").Scan(&cnt); err != nil {
		return 0, err
	}
	return cnt, nil
}
