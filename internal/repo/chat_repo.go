package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/docsassist/internal/model"
	appErr "github.com/xxxsen/docsassist/internal/pkg/errors"
)

var (
	sessionColumns = []string{"id", "title", "ctime", "mtime"}
	messageColumns = []string{"id", "session_id", "message_type", "content", "sources_used", "ctime"}
)

type ChatRepo struct {
	db *sql.DB
}

func NewChatRepo(db *sql.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

func (r *ChatRepo) CreateSession(ctx context.Context, session *model.ChatSession) error {
	data := map[string]interface{}{
		"id":    session.ID,
		"title": session.Title,
		"ctime": session.Ctime,
		"mtime": session.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("chat_sessions", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *ChatRepo) GetSession(ctx context.Context, id string) (*model.ChatSession, error) {
	sqlStr, args, err := builder.BuildSelect("chat_sessions", map[string]interface{}{"id": id}, sessionColumns)
	if err != nil {
		return nil, err
	}
	var session model.ChatSession
	err = r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&session.ID, &session.Title, &session.Ctime, &session.Mtime)
	if err == sql.ErrNoRows {
		return nil, appErr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *ChatRepo) TouchSession(ctx context.Context, id string, mtime int64) error {
	sqlStr, args, err := builder.BuildUpdate("chat_sessions", map[string]interface{}{"id": id}, map[string]interface{}{"mtime": mtime})
	if err != nil {
		return err
	}
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
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
	return nil
}

// ListSessions returns sessions by most recent activity, with message counts
// and the last message filled in.
func (r *ChatRepo) ListSessions(ctx context.Context) ([]model.ChatSession, error) {
	sqlStr, args, err := builder.BuildSelect("chat_sessions", map[string]interface{}{"_orderby": "mtime desc, rowid desc"}, sessionColumns)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	sessions := make([]model.ChatSession, 0)
	for rows.Next() {
		var session model.ChatSession
		if err := rows.Scan(&session.ID, &session.Title, &session.Ctime, &session.Mtime); err != nil {
			rows.Close()
			return nil, err
		}
		sessions = append(sessions, session)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return sessions, nil
	}

	ids := make([]string, 0, len(sessions))
	for _, s := range sessions {
		ids = append(ids, s.ID)
	}
	counts, err := r.countMessages(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range sessions {
		sessions[i].MessagesCount = counts[sessions[i].ID]
		if sessions[i].MessagesCount == 0 {
			continue
		}
		last, err := r.lastMessage(ctx, sessions[i].ID)
		if err != nil {
			return nil, err
		}
		sessions[i].LastMessage = last
	}
	return sessions, nil
}

func (r *ChatRepo) countMessages(ctx context.Context, sessionIDs []string) (map[string]int, error) {
	where := map[string]interface{}{
		"_custom_ids": builder.In{"session_id": toInterfaces(sessionIDs)},
		"_groupby":    "session_id",
	}
	sqlStr, args, err := builder.BuildSelect("chat_messages", where, []string{"session_id", "COUNT(1) AS cnt"})
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[string]int, len(sessionIDs))
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

func (r *ChatRepo) lastMessage(ctx context.Context, sessionID string) (*model.MessageTeaser, error) {
	where := map[string]interface{}{
		"session_id": sessionID,
		"_orderby":   "ctime desc, rowid desc",
		"_limit":     []uint{0, 1},
	}
	sqlStr, args, err := builder.BuildSelect("chat_messages", where, []string{"content", "ctime"})
	if err != nil {
		return nil, err
	}
	var teaser model.MessageTeaser
	err = r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&teaser.Content, &teaser.Ctime)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &teaser, nil
}

func (r *ChatRepo) AddMessage(ctx context.Context, msg *model.ChatMessage) error {
	sources := msg.SourcesUsed
	if sources == nil {
		sources = []string{}
	}
	raw, err := json.Marshal(sources)
	if err != nil {
		return err
	}
	data := map[string]interface{}{
		"id":           msg.ID,
		"session_id":   msg.SessionID,
		"message_type": string(msg.MessageType),
		"content":      msg.Content,
		"sources_used": string(raw),
		"ctime":        msg.Ctime,
	}
	sqlStr, args, err := builder.BuildInsert("chat_messages", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

// ListMessages returns the messages of a session in creation order.
func (r *ChatRepo) ListMessages(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	where := map[string]interface{}{
		"session_id": sessionID,
		"_orderby":   "ctime asc, rowid asc",
	}
	sqlStr, args, err := builder.BuildSelect("chat_messages", where, messageColumns)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	msgs := make([]model.ChatMessage, 0)
	for rows.Next() {
		var (
			msg     model.ChatMessage
			msgType string
			sources string
		)
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msgType, &msg.Content, &sources, &msg.Ctime); err != nil {
			return nil, err
		}
		msg.MessageType = model.MessageType(msgType)
		if err := json.Unmarshal([]byte(sources), &msg.SourcesUsed); err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// DeleteSession removes a session together with its messages.
func (r *ChatRepo) DeleteSession(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()
	sqlStr, args, err := builder.BuildDelete("chat_messages", map[string]interface{}{"session_id": id})
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return err
	}
	sqlStr, args, err = builder.BuildDelete("chat_sessions", map[string]interface{}{"id": id})
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

func (r *ChatRepo) CountSessions(ctx context.Context) (int, error) {
	var cnt int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM chat_sessions").Scan(&cnt); err != nil {
		return 0, err
	}
	return cnt, nil
}
