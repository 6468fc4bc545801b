package service

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docsassist/internal/chunker"
	"github.com/xxxsen/docsassist/internal/extractor"
	"github.com/xxxsen/docsassist/internal/filestore"
	"github.com/xxxsen/docsassist/internal/model"
	appErr "github.com/xxxsen/docsassist/internal/pkg/errors"
	"github.com/xxxsen/docsassist/internal/pkg/timeutil"
	"github.com/xxxsen/docsassist/internal/repo"
	"github.com/xxxsen/docsassist/internal/vectorindex"
)

const defaultDocumentTitle = "Untitled Document"

type IExtractor interface {
	Extract(ctx context.Context, src extractor.Source) (string, error)
}

type IngestRequest struct {
	SourceType  model.SourceType
	Title       string
	URL         string
	TextContent string
	FileName    string
	FileData    []byte
}

type IngestService struct {
	docs      *repo.DocumentRepo
	extractor IExtractor
	chunker   *chunker.Chunker
	index     *vectorindex.Index
	files     filestore.Store
}

func NewIngestService(docs *repo.DocumentRepo, ext IExtractor, ch *chunker.Chunker, index *vectorindex.Index, files filestore.Store) *IngestService {
	return &IngestService{docs: docs, extractor: ext, chunker: ch, index: index, files: files}
}

func validateIngest(req *IngestRequest) error {
	switch req.SourceType {
	case model.SourceTypeURL:
		if strings.TrimSpace(req.URL) == "" {
			return fmt.Errorf("url is required: %w", appErr.ErrInvalid)
		}
	case model.SourceTypeFile:
		if strings.TrimSpace(req.FileName) == "" {
			return fmt.Errorf("file is required: %w", appErr.ErrInvalid)
		}
	case model.SourceTypeText:
		if strings.TrimSpace(req.TextContent) == "" {
			return fmt.Errorf("text_content is required: %w", appErr.ErrInvalid)
		}
	default:
		return fmt.Errorf("unknown source_type %q: %w", req.SourceType, appErr.ErrInvalid)
	}
	return nil
}

// Ingest creates the document record and runs it through extraction,
// chunking and indexing. Processing failures are recorded on the returned
// document; only malformed requests and record store failures are errors.
func (s *IngestService) Ingest(ctx context.Context, req *IngestRequest) (*model.Document, error) {
	if err := validateIngest(req); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = defaultDocumentTitle
	}
	now := timeutil.NowUnix()
	doc := &model.Document{
		ID:               newID(),
		Title:            title,
		SourceType:       req.SourceType,
		ProcessingStatus: model.StatusPending,
		Ctime:            now,
		Mtime:            now,
	}
	switch req.SourceType {
	case model.SourceTypeURL:
		doc.URL = strings.TrimSpace(req.URL)
	case model.SourceTypeFile:
		doc.FileName = filepath.Base(req.FileName)
		doc.FileKey = s.saveFile(ctx, doc.ID, doc.FileName, req.FileData)
	case model.SourceTypeText:
		doc.TextContent = req.TextContent
	}
	logger := logutil.GetLogger(ctx).With(zap.String("document_id", doc.ID), zap.String("source_type", string(doc.SourceType)))
	if err := s.docs.Create(ctx, doc); err != nil {
		logger.Error("create document failed", zap.Error(err))
		return nil, err
	}
	logger.Info("document created")
	count := s.process(ctx, doc, req.FileData)
	out, err := s.docs.GetByID(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	if out.ProcessingStatus == model.StatusCompleted {
		out.ChunksCount = count
	}
	return out, nil
}

func (s *IngestService) saveFile(ctx context.Context, docID, name string, data []byte) string {
	if s.files == nil {
		return ""
	}
	key := filestore.KeyFor(docID, name)
	if err := s.files.Save(ctx, key, bytes.NewReader(data), int64(len(data))); err != nil {
		logutil.GetLogger(ctx).Warn("save uploaded file failed", zap.String("document_id", docID), zap.Error(err))
		return ""
	}
	return key
}

// process returns the number of chunks stored, zero on failure.
func (s *IngestService) process(ctx context.Context, doc *model.Document, fileData []byte) int {
	logger := logutil.GetLogger(ctx).With(zap.String("document_id", doc.ID))

	logger.Info("ingest stage", zap.String("stage", "extracting"))
	text, err := s.extractor.Extract(ctx, extractor.Source{
		Kind:     doc.SourceType,
		URL:      doc.URL,
		FileName: doc.FileName,
		Data:     fileData,
		Text:     doc.TextContent,
	})
	if err != nil {
		s.fail(ctx, doc.ID, err.Error())
		return 0
	}

	logger.Info("ingest stage", zap.String("stage", "chunking"))
	pieces := s.chunker.Chunk(text)
	chunkMeta := chunkMetadata(doc)
	now := timeutil.NowUnix()
	chunks := make([]*model.Chunk, 0, len(pieces))
	for i, content := range pieces {
		chunks = append(chunks, &model.Chunk{
			ID:         vectorindex.RecordID(doc.ID, i),
			DocumentID: doc.ID,
			ChunkIndex: i,
			Content:    content,
			Metadata:   chunkMeta,
			Ctime:      now,
		})
	}
	logger.Info("document chunked", zap.Int("chunks", len(chunks)))

	logger.Info("ingest stage", zap.String("stage", "indexing"))
	if err := s.index.Add(ctx, doc.ID, pieces, vectorMetadata(doc)); err != nil {
		s.fail(ctx, doc.ID, "Error indexing document: "+err.Error())
		return 0
	}

	logger.Info("ingest stage", zap.String("stage", "persisting"))
	if err := s.docs.CompleteWithChunks(ctx, doc.ID, text, chunks, timeutil.NowUnix()); err != nil {
		logger.Error("persist chunks failed, rollback vectors", zap.Error(err))
		if derr := s.index.Delete(ctx, doc.ID, len(pieces)); derr != nil {
			logger.Error("rollback vectors failed", zap.Error(derr))
		}
		s.fail(ctx, doc.ID, "Error saving chunks: "+err.Error())
		return 0
	}
	logger.Info("document processed", zap.Int("chunks", len(chunks)))
	return len(chunks)
}

func (s *IngestService) fail(ctx context.Context, docID, msg string) {
	logger := logutil.GetLogger(ctx).With(zap.String("document_id", docID))
	logger.Error("document processing failed", zap.String("error_message", msg))
	if err := s.docs.MarkFailed(ctx, docID, msg, timeutil.NowUnix()); err != nil {
		logger.Error("mark document failed", zap.Error(err))
	}
}

func chunkMetadata(doc *model.Document) map[string]interface{} {
	switch doc.SourceType {
	case model.SourceTypeURL:
		return map[string]interface{}{"source_url": doc.URL}
	case model.SourceTypeFile:
		return map[string]interface{}{"filename": doc.FileName}
	default:
		return map[string]interface{}{"source_type": string(model.SourceTypeText)}
	}
}

func vectorMetadata(doc *model.Document) map[string]interface{} {
	meta := map[string]interface{}{
		"title":       doc.Title,
		"source_type": string(doc.SourceType),
	}
	switch doc.SourceType {
	case model.SourceTypeURL:
		meta["url"] = doc.URL
	case model.SourceTypeFile:
		meta["filename"] = doc.FileName
	}
	return meta
}
