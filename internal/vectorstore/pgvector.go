package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/docsassist/internal/model"
	"github.com/xxxsen/docsassist/internal/pkg/dbutil"
)

const defaultPGTable = "chunk_vectors"

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type pgvectorConfig struct {
	DSN   string `json:"dsn"`
	Table string `json:"table"`
}

// PGVectorStore stores records in postgres and lets the pgvector extension
// rank them with the <=> cosine distance operator.
type PGVectorStore struct {
	db    *sqlx.DB
	table string
}

func NewPGVectorStore(dsn, table string) (*PGVectorStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("vector_store.data.dsn is required")
	}
	if table == "" {
		table = defaultPGTable
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name: %s", table)
	}
	conn, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect pgvector: %w", err)
	}
	s := &PGVectorStore{db: conn, table: table}
	if err := s.ensureSchema(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *PGVectorStore) ensureSchema() error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			content TEXT NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
			embedding vector NOT NULL
		)`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_document ON %s (document_id)`, s.table, s.table),
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init pgvector schema: %w", err)
		}
	}
	return nil
}

func (s *PGVectorStore) Upsert(ctx context.Context, records []model.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (id, document_id, chunk_index, content, metadata, embedding)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6)
		ON CONFLICT (id) DO UPDATE SET
			document_id = EXCLUDED.document_id,
			chunk_index = EXCLUDED.chunk_index,
			content = EXCLUDED.content,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding
	`, s.table)
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()
	for _, rec := range records {
		meta, err := json.Marshal(rec.Metadata)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, rec.ID, rec.DocumentID, rec.ChunkIndex, rec.Content, string(meta), pgvector.NewVector(rec.Embedding)); err != nil {
			return fmt.Errorf("upsert vector %s: %w", rec.ID, err)
		}
	}
	return tx.Commit()
}

type pgRow struct {
	ID         string          `db:"id"`
	DocumentID string          `db:"document_id"`
	ChunkIndex int             `db:"chunk_index"`
	Content    string          `db:"content"`
	Metadata   []byte          `db:"metadata"`
	Embedding  pgvector.Vector `db:"embedding"`
	Distance   float64         `db:"distance"`
}

func (s *PGVectorStore) Query(ctx context.Context, vec []float32, topK int) ([]model.ScoredRecord, error) {
	query := fmt.Sprintf(`
		SELECT id, document_id, chunk_index, content, metadata, embedding, embedding <=> $1 AS distance
		FROM %s
		ORDER BY distance ASC, id ASC
		LIMIT $2
	`, s.table)
	var rows []pgRow
	if err := s.db.SelectContext(ctx, &rows, query, pgvector.NewVector(vec), topK); err != nil {
		return nil, fmt.Errorf("query vectors: %w", err)
	}
	out := make([]model.ScoredRecord, 0, len(rows))
	for _, row := range rows {
		rec := model.VectorRecord{
			ID:         row.ID,
			DocumentID: row.DocumentID,
			ChunkIndex: row.ChunkIndex,
			Content:    row.Content,
			Embedding:  row.Embedding.Slice(),
		}
		if err := json.Unmarshal(row.Metadata, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of %s: %w", row.ID, err)
		}
		out = append(out, model.ScoredRecord{VectorRecord: rec, Distance: row.Distance})
	}
	return out, nil
}

func (s *PGVectorStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(fmt.Sprintf("DELETE FROM %s WHERE id IN (?)", s.table), ids)
	if err != nil {
		return err
	}
	query, args = dbutil.Finalize(query, args)
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

func (s *PGVectorStore) ListIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.db.SelectContext(ctx, &ids, fmt.Sprintf("SELECT id FROM %s ORDER BY id", s.table)); err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

func (s *PGVectorStore) Count(ctx context.Context) (int, error) {
	var cnt int
	if err := s.db.GetContext(ctx, &cnt, fmt.Sprintf("SELECT COUNT(1) FROM %s", s.table)); err != nil {
		return 0, err
	}
	return cnt, nil
}

func (s *PGVectorStore) Close() error {
	return s.db.Close()
}

func init() {
	Register("pgvector", func(args interface{}) (IVectorStore, error) {
		cfg := &pgvectorConfig{}
		if err := decodeConfig(args, cfg); err != nil {
			return nil, err
		}
		return NewPGVectorStore(cfg.DSN, cfg.Table)
	})
}
