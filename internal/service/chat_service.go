package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docsassist/internal/model"
	appErr "github.com/xxxsen/docsassist/internal/pkg/errors"
	"github.com/xxxsen/docsassist/internal/pkg/timeutil"
	"github.com/xxxsen/docsassist/internal/rag"
	"github.com/xxxsen/docsassist/internal/repo"
)

const (
	sessionTitleLimit = 50
	previewLimit      = 100
)

type IAnswerer interface {
	Answer(ctx context.Context, query string) *rag.Result
}

type ChatResult struct {
	SessionID      string              `json:"session_id"`
	Answer         string              `json:"answer"`
	Sources        []string            `json:"sources"`
	RelevantChunks []rag.RelevantChunk `json:"relevant_chunks"`
}

type ChatService struct {
	chats    *repo.ChatRepo
	answerer IAnswerer
}

func NewChatService(chats *repo.ChatRepo, answerer IAnswerer) *ChatService {
	return &ChatService{chats: chats, answerer: answerer}
}

// Chat answers query inside sessionID, creating a new session when sessionID
// is empty. Both turns are stored.
func (s *ChatService) Chat(ctx context.Context, query, sessionID string) (*ChatResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query is required: %w", appErr.ErrInvalid)
	}
	session, err := s.resolveSession(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	logger := logutil.GetLogger(ctx).With(zap.String("session_id", session.ID))

	if err := s.chats.AddMessage(ctx, &model.ChatMessage{
		ID:          newID(),
		SessionID:   session.ID,
		MessageType: model.MessageTypeUser,
		Content:     query,
		SourcesUsed: []string{},
		Ctime:       timeutil.NowUnix(),
	}); err != nil {
		return nil, err
	}

	res := s.answerer.Answer(ctx, query)
	if res.Err != nil {
		logger.Warn("answer degraded to error message", zap.Error(res.Err))
	}

	if err := s.chats.AddMessage(ctx, &model.ChatMessage{
		ID:          newID(),
		SessionID:   session.ID,
		MessageType: model.MessageTypeAssistant,
		Content:     res.Answer,
		SourcesUsed: res.Sources,
		Ctime:       timeutil.NowUnix(),
	}); err != nil {
		return nil, err
	}
	if err := s.chats.TouchSession(ctx, session.ID, timeutil.NowUnix()); err != nil {
		return nil, err
	}
	logger.Info("chat answered", zap.Int("sources", len(res.Sources)))
	return &ChatResult{
		SessionID:      session.ID,
		Answer:         res.Answer,
		Sources:        res.Sources,
		RelevantChunks: res.RelevantChunks,
	}, nil
}

func (s *ChatService) resolveSession(ctx context.Context, query, sessionID string) (*model.ChatSession, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID != "" {
		return s.chats.GetSession(ctx, sessionID)
	}
	now := timeutil.NowUnix()
	session := &model.ChatSession{
		ID:    newID(),
		Title: truncate(query, sessionTitleLimit),
		Ctime: now,
		Mtime: now,
	}
	if err := s.chats.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *ChatService) ListSessions(ctx context.Context) ([]model.ChatSession, error) {
	sessions, err := s.chats.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	for i := range sessions {
		if sessions[i].LastMessage != nil {
			sessions[i].LastMessage.Content = truncate(sessions[i].LastMessage.Content, previewLimit)
		}
	}
	return sessions, nil
}

func (s *ChatService) ListMessages(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	if _, err := s.chats.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.chats.ListMessages(ctx, sessionID)
}

func (s *ChatService) DeleteSession(ctx context.Context, sessionID string) error {
	return s.chats.DeleteSession(ctx, sessionID)
}

// truncate cuts s to limit characters and appends "..." when it was longer.
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
