package service

import (
	"context"
	"io"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docsassist/internal/filestore"
	"github.com/xxxsen/docsassist/internal/model"
	appErr "github.com/xxxsen/docsassist/internal/pkg/errors"
	"github.com/xxxsen/docsassist/internal/repo"
	"github.com/xxxsen/docsassist/internal/vectorindex"
)

type DocumentService struct {
	docs   *repo.DocumentRepo
	chunks *repo.ChunkRepo
	index  *vectorindex.Index
	files  filestore.Store
}

func NewDocumentService(docs *repo.DocumentRepo, chunks *repo.ChunkRepo, index *vectorindex.Index, files filestore.Store) *DocumentService {
	return &DocumentService{docs: docs, chunks: chunks, index: index, files: files}
}

// List returns every document, newest first, with chunk counts attached.
func (s *DocumentService) List(ctx context.Context) ([]model.Document, error) {
	docs, err := s.docs.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return docs, nil
	}
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, doc.ID)
	}
	counts, err := s.chunks.CountByDocuments(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range docs {
		docs[i].ChunksCount = counts[docs[i].ID]
	}
	return docs, nil
}

func (s *DocumentService) Get(ctx context.Context, id string) (*model.Document, error) {
	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	cnt, err := s.chunks.CountByDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	doc.ChunksCount = cnt
	return doc, nil
}

func (s *DocumentService) Chunks(ctx context.Context, id string) ([]model.Chunk, error) {
	if _, err := s.docs.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.chunks.ListByDocument(ctx, id)
}

// OpenFile returns the stored upload of a file document.
func (s *DocumentService) OpenFile(ctx context.Context, id string) (io.ReadCloser, *model.Document, error) {
	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if s.files == nil || doc.FileKey == "" {
		return nil, nil, appErr.ErrNotFound
	}
	rc, err := s.files.Open(ctx, doc.FileKey)
	if err != nil {
		return nil, nil, err
	}
	return rc, doc, nil
}

// Delete removes the document and its chunks. Vector entries and the stored
// upload are removed best effort; their failures are only logged.
func (s *DocumentService) Delete(ctx context.Context, id string) error {
	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return err
	}
	logger := logutil.GetLogger(ctx).With(zap.String("document_id", id))
	cnt, err := s.chunks.CountByDocument(ctx, id)
	if err != nil {
		return err
	}
	if err := s.index.Delete(ctx, id, cnt); err != nil {
		logger.Warn("delete document vectors failed", zap.Error(err))
	}
	if err := s.docs.Delete(ctx, id); err != nil {
		return err
	}
	if s.files != nil && doc.FileKey != "" {
		if err := s.files.Delete(ctx, doc.FileKey); err != nil {
			logger.Warn("delete stored file failed", zap.String("file_key", doc.FileKey), zap.Error(err))
		}
	}
	logger.Info("document deleted", zap.Int("chunks", cnt))
	return nil
}

// ExistingDocuments reports which ids still have a document record.
func (s *DocumentService) ExistingDocuments(ctx context.Context, ids []string) (map[string]bool, error) {
	docs, err := s.docs.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(docs))
	for _, doc := range docs {
		out[doc.ID] = true
	}
	return out, nil
}
