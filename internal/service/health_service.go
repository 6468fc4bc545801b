package service

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docsassist/internal/repo"
	"github.com/xxxsen/docsassist/internal/vectorindex"
)

const (
	generatorConnected    = "connected"
	generatorDisconnected = "disconnected"
)

type IPinger interface {
	Ping(ctx context.Context) error
}

type HealthReport struct {
	Status            string `json:"status"`
	GeneratorStatus   string `json:"generator_status"`
	DocumentsCount    int    `json:"documents_count"`
	ChatSessionsCount int    `json:"chat_sessions_count"`
	ChunksCount       int    `json:"chunks_count"`
	VectorsCount      int    `json:"vectors_count"`
}

type HealthService struct {
	docs      *repo.DocumentRepo
	chunks    *repo.ChunkRepo
	chats     *repo.ChatRepo
	index     *vectorindex.Index
	generator IPinger
}

func NewHealthService(docs *repo.DocumentRepo, chunks *repo.ChunkRepo, chats *repo.ChatRepo, index *vectorindex.Index, generator IPinger) *HealthService {
	return &HealthService{docs: docs, chunks: chunks, chats: chats, index: index, generator: generator}
}

// Check reports generator reachability and entity counts. An unreachable
// generator does not make the probe fail.
func (s *HealthService) Check(ctx context.Context) (*HealthReport, error) {
	report := &HealthReport{Status: "healthy", GeneratorStatus: generatorConnected}
	if s.generator == nil {
		report.GeneratorStatus = generatorDisconnected
	} else if err := s.generator.Ping(ctx); err != nil {
		logutil.GetLogger(ctx).Warn("generator ping failed", zap.Error(err))
		report.GeneratorStatus = generatorDisconnected
	}
	var err error
	if report.DocumentsCount, err = s.docs.Count(ctx); err != nil {
		return nil, err
	}
	if report.ChatSessionsCount, err = s.chats.CountSessions(ctx); err != nil {
		return nil, err
	}
	if report.ChunksCount, err = s.chunks.Count(ctx); err != nil {
		return nil, err
	}
	if report.VectorsCount, err = s.index.Count(ctx); err != nil {
		return nil, err
	}
	return report, nil
}
