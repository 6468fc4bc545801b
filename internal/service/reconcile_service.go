package service

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docsassist/internal/model"
	"github.com/xxxsen/docsassist/internal/repo"
	"github.com/xxxsen/docsassist/internal/vectorindex"
)

type ReconcileReport struct {
	RemovedInvalid int `json:"removed_invalid"`
	RemovedOrphans int `json:"removed_orphans"`
	Reindexed      int `json:"reindexed"`
	Failed         int `json:"failed"`
}

// ReconcileService repairs the vector index from the relational chunk
// records, which are the source of truth.
type ReconcileService struct {
	docs   *repo.DocumentRepo
	chunks *repo.ChunkRepo
	index  *vectorindex.Index
}

func NewReconcileService(docs *repo.DocumentRepo, chunks *repo.ChunkRepo, index *vectorindex.Index) *ReconcileService {
	return &ReconcileService{docs: docs, chunks: chunks, index: index}
}

// Run drops vectors of missing or failed documents and re-indexes
// completed documents whose vectors do not match their chunks. With full set
// every completed document is re-indexed.
func (s *ReconcileService) Run(ctx context.Context, full bool) (*ReconcileReport, error) {
	logger := logutil.GetLogger(ctx)
	report := &ReconcileReport{}

	groups, invalid, err := s.index.IDsByDocument(ctx)
	if err != nil {
		return nil, err
	}
	if len(invalid) > 0 {
		if err := s.index.DeleteIDs(ctx, invalid); err != nil {
			return nil, err
		}
		report.RemovedInvalid = len(invalid)
	}

	// pending is read before completed so a document finishing its ingest in
	// between is still seen in one of the two lists.
	pending, err := s.docs.ListIDsByStatus(ctx, model.StatusPending)
	if err != nil {
		return nil, err
	}
	completed, err := s.docs.ListIDsByStatus(ctx, model.StatusCompleted)
	if err != nil {
		return nil, err
	}
	live := make(map[string]bool, len(completed)+len(pending))
	for _, id := range pending {
		live[id] = true
	}
	for _, id := range completed {
		live[id] = true
	}
	for docID, ids := range groups {
		if live[docID] {
			continue
		}
		if err := s.index.DeleteIDs(ctx, ids); err != nil {
			return nil, err
		}
		report.RemovedOrphans += len(ids)
		logger.Info("orphan vectors removed", zap.String("document_id", docID), zap.Int("count", len(ids)))
	}

	if len(completed) == 0 {
		return report, nil
	}
	counts, err := s.chunks.CountByDocuments(ctx, completed)
	if err != nil {
		return nil, err
	}
	for _, docID := range completed {
		if !full && inSync(docID, groups[docID], counts[docID]) {
			continue
		}
		if err := s.reindex(ctx, docID, groups[docID]); err != nil {
			logger.Error("reindex document failed", zap.String("document_id", docID), zap.Error(err))
			report.Failed++
			continue
		}
		report.Reindexed++
	}
	logger.Info("reconcile finished",
		zap.Int("removed_invalid", report.RemovedInvalid),
		zap.Int("removed_orphans", report.RemovedOrphans),
		zap.Int("reindexed", report.Reindexed),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

func inSync(docID string, ids []string, chunkCount int) bool {
	if len(ids) != chunkCount {
		return false
	}
	have := make(map[string]bool, len(ids))
	for _, id := range ids {
		have[id] = true
	}
	for i := 0; i < chunkCount; i++ {
		if !have[vectorindex.RecordID(docID, i)] {
			return false
		}
	}
	return true
}

func (s *ReconcileService) reindex(ctx context.Context, docID string, stale []string) error {
	doc, err := s.docs.GetByID(ctx, docID)
	if err != nil {
		return err
	}
	chunks, err := s.chunks.ListByDocument(ctx, docID)
	if err != nil {
		return err
	}
	if len(stale) > 0 {
		if err := s.index.DeleteIDs(ctx, stale); err != nil {
			return err
		}
	}
	contents := make([]string, 0, len(chunks))
	for _, c := range chunks {
		contents = append(contents, c.Content)
	}
	return s.index.Add(ctx, docID, contents, vectorMetadata(doc))
}
