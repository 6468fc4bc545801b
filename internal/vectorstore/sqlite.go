package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/docsassist/internal/db"
	"github.com/xxxsen/docsassist/internal/model"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS chunk_vectors (
    id TEXT PRIMARY KEY,
    document_id TEXT NOT NULL,
    chunk_index INTEGER NOT NULL,
    content TEXT NOT NULL,
    metadata TEXT NOT NULL DEFAULT '{}',
    embedding TEXT NOT NULL
)`

var sqliteColumns = []string{"id", "document_id", "chunk_index", "content", "metadata", "embedding"}

type sqliteConfig struct {
	Path string `json:"path"`
}

// SQLiteStore keeps vectors as json blobs in a dedicated sqlite file and
// scans them all on every query.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	conn, err := db.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vector db: %w", err)
	}
	if _, err := conn.Exec(sqliteSchema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("init vector schema: %w", err)
	}
	return &SQLiteStore{db: conn}, nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, records []model.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	data := make([]map[string]interface{}, 0, len(records))
	for _, rec := range records {
		meta, err := json.Marshal(rec.Metadata)
		if err != nil {
			return err
		}
		emb, err := json.Marshal(rec.Embedding)
		if err != nil {
			return err
		}
		data = append(data, map[string]interface{}{
			"id":          rec.ID,
			"document_id": rec.DocumentID,
			"chunk_index": rec.ChunkIndex,
			"content":     rec.Content,
			"metadata":    string(meta),
			"embedding":   string(emb),
		})
	}
	sqlStr, args, err := builder.BuildInsert("chunk_vectors", data)
	if err != nil {
		return err
	}
	sqlStr = strings.Replace(sqlStr, "INSERT INTO", "INSERT OR REPLACE INTO", 1)
	_, err = s.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (s *SQLiteStore) Query(ctx context.Context, vec []float32, topK int) ([]model.ScoredRecord, error) {
	sqlStr, args, err := builder.BuildSelect("chunk_vectors", map[string]interface{}{}, sqliteColumns)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	candidates := make([]model.ScoredRecord, 0)
	for rows.Next() {
		var (
			rec  model.VectorRecord
			meta string
			emb  string
		)
		if err := rows.Scan(&rec.ID, &rec.DocumentID, &rec.ChunkIndex, &rec.Content, &meta, &emb); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(meta), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of %s: %w", rec.ID, err)
		}
		if err := json.Unmarshal([]byte(emb), &rec.Embedding); err != nil {
			return nil, fmt.Errorf("decode embedding of %s: %w", rec.ID, err)
		}
		candidates = append(candidates, model.ScoredRecord{VectorRecord: rec, Distance: CosineDistance(vec, rec.Embedding)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rank(candidates, topK), nil
}

func (s *SQLiteStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	in := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		in = append(in, id)
	}
	sqlStr, args, err := builder.BuildDelete("chunk_vectors", map[string]interface{}{"id in": in})
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (s *SQLiteStore) ListIDs(ctx context.Context) ([]string, error) {
	sqlStr, args, err := builder.BuildSelect("chunk_vectors", map[string]interface{}{"_orderby": "id asc"}, []string{"id"})
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var cnt int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM chunk_vectors").Scan(&cnt); err != nil {
		return 0, err
	}
	return cnt, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func init() {
	Register("sqlite", func(args interface{}) (IVectorStore, error) {
		cfg := &sqliteConfig{}
		if err := decodeConfig(args, cfg); err != nil {
			return nil, err
		}
		if strings.TrimSpace(cfg.Path) == "" {
			return nil, fmt.Errorf("vector_store.data.path is required")
		}
		return NewSQLiteStore(cfg.Path)
	})
}
