package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/docsassist/internal/model"
	appErr "github.com/xxxsen/docsassist/internal/pkg/errors"
)

var documentColumns = []string{
	"id", "title", "source_type", "url", "file_name", "file_key", "text_content",
	"processed", "processing_status", "error_message", "ctime", "mtime",
}

type DocumentRepo struct {
	db *sql.DB
}

func NewDocumentRepo(db *sql.DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

func (r *DocumentRepo) Create(ctx context.Context, doc *model.Document) error {
	data := map[string]interface{}{
		"id":                doc.ID,
		"title":             doc.Title,
		"source_type":       string(doc.SourceType),
		"url":               doc.URL,
		"file_name":         doc.FileName,
		"file_key":          doc.FileKey,
		"text_content":      doc.TextContent,
		"processed":         doc.Processed,
		"processing_status": string(doc.ProcessingStatus),
		"error_message":     doc.ErrorMessage,
		"ctime":             doc.Ctime,
		"mtime":             doc.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("documents", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *DocumentRepo) GetByID(ctx context.Context, id string) (*model.Document, error) {
	sqlStr, args, err := builder.BuildSelect("documents", map[string]interface{}{"id": id}, documentColumns)
	if err != nil {
		return nil, err
	}
	docs, err := r.query(ctx, sqlStr, args)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, appErr.ErrNotFound
	}
	return &docs[0], nil
}

// List returns every document, newest first.
func (r *DocumentRepo) List(ctx context.Context) ([]model.Document, error) {
	where := map[string]interface{}{
		"_orderby": "ctime desc, rowid desc",
	}
	sqlStr, args, err := builder.BuildSelect("documents", where, documentColumns)
	if err != nil {
		return nil, err
	}
	return r.query(ctx, sqlStr, args)
}

func (r *DocumentRepo) ListByIDs(ctx context.Context, ids []string) ([]model.Document, error) {
	if len(ids) == 0 {
		return []model.Document{}, nil
	}
	where := map[string]interface{}{
		"_custom_ids": builder.In{"id": toInterfaces(ids)},
	}
	sqlStr, args, err := builder.BuildSelect("documents", where, documentColumns)
	if err != nil {
		return nil, err
	}
	return r.query(ctx, sqlStr, args)
}

func (r *DocumentRepo) ListIDsByStatus(ctx context.Context, status model.ProcessingStatus) ([]string, error) {
	where := map[string]interface{}{
		"processing_status": string(status),
		"_orderby":          "ctime asc",
	}
	sqlStr, args, err := builder.BuildSelect("documents", where, []string{"id"})
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
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

// MarkFailed moves a pending document to failed. A document that already left
// pending yields ErrConflict.
func (r *DocumentRepo) MarkFailed(ctx context.Context, id, message string, mtime int64) error {
	update := map[string]interface{}{
		"processing_status": string(model.StatusFailed),
		"processed":         false,
		"error_message":     message,
		"mtime":             mtime,
	}
	return r.finish(ctx, r.db, id, update)
}

// CompleteWithChunks stores the chunk records and the extracted text and marks
// the document completed in one transaction. Nothing is written when the
// document is no longer pending.
func (r *DocumentRepo) CompleteWithChunks(ctx context.Context, id, text string, chunks []*model.Chunk, mtime int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if err := insertChunks(ctx, tx, chunks); err != nil {
		return err
	}
	update := map[string]interface{}{
		"processing_status": string(model.StatusCompleted),
		"processed":         true,
		"text_content":      text,
		"error_message":     "",
		"mtime":             mtime,
	}
	if err := r.finish(ctx, tx, id, update); err != nil {
		return err
	}
	return tx.Commit()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (r *DocumentRepo) finish(ctx context.Context, ex execer, id string, update map[string]interface{}) error {
	where := map[string]interface{}{
		"id":                id,
		"processing_status": string(model.StatusPending),
	}
	sqlStr, args, err := builder.BuildUpdate("documents", where, update)
	if err != nil {
		return err
	}
	result, err := ex.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}
	var cnt int
	if err := ex.QueryRowContext(ctx, "SELECT COUNT(1) FROM documents WHERE id = ?", id).Scan(&cnt); err != nil {
		return err
	}
	if cnt == 0 {
		return appErr.ErrNotFound
	}
	return appErr.ErrConflict
}

// Delete removes the document and its chunk records.
func (r *DocumentRepo) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()
	sqlStr, args, err := builder.BuildDelete("document_chunks", map[string]interface{}{"document_id": id})
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return err
	}
	sqlStr, args, err = builder.BuildDelete("documents", map[string]interface{}{"id": id})
	if err != nil {
		return err
	}
	result, err := tx.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return tx.Commit()
}

func (r *DocumentRepo) Count(ctx context.Context) (int, error) {
	var cnt int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM documents").Scan(&cnt); err != nil {
		return 0, err
	}
	return cnt, nil
}

func (r *DocumentRepo) query(ctx context.Context, sqlStr string, args []interface{}) ([]model.Document, error) {
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	docs := make([]model.Document, 0)
	for rows.Next() {
		var (
			doc        model.Document
			sourceType string
			status     string
		)
		if err := rows.Scan(&doc.ID, &doc.Title, &sourceType, &doc.URL, &doc.FileName, &doc.FileKey, &doc.TextContent,
			&doc.Processed, &status, &doc.ErrorMessage, &doc.Ctime, &doc.Mtime); err != nil {
			return nil, err
		}
		doc.SourceType = model.SourceType(sourceType)
		doc.ProcessingStatus = model.ProcessingStatus(status)
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func toInterfaces(items []string) []interface{} {
	out := make([]interface{}, 0, len(items))
	for _, item := range items {
		out = append(out, item)
	}
	return out
}
