package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/docsassist/internal/pkg/errcode"
	"github.com/xxxsen/docsassist/internal/pkg/response"
	"github.com/xxxsen/docsassist/internal/service"
)

type ChatHandler struct {
	chat *service.ChatService
}

func NewChatHandler(chat *service.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

type chatRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id"`
}

func (h *ChatHandler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	res, err := h.chat.Chat(c.Request.Context(), req.Query, req.SessionID)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, res)
}

func (h *ChatHandler) ListSessions(c *gin.Context) {
	sessions, err := h.chat.ListSessions(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, sessions)
}

func (h *ChatHandler) ListMessages(c *gin.Context) {
	msgs, err := h.chat.ListMessages(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, msgs)
}

func (h *ChatHandler) DeleteSession(c *gin.Context) {
	if err := h.chat.DeleteSession(c.Request.Context(), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	response.OK(c)
}
