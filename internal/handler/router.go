package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/docsassist/internal/middleware"
)

type RouterDeps struct {
	Documents     *DocumentHandler
	Chat          *ChatHandler
	Health        *HealthHandler
	ChatRateLimit time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.POST("/documents/upload", deps.Documents.Upload)
	api.GET("/documents", deps.Documents.List)
	api.GET("/documents/:id", deps.Documents.Get)
	api.GET("/documents/:id/chunks", deps.Documents.Chunks)
	api.GET("/documents/:id/file", deps.Documents.File)
	api.DELETE("/documents/:id", deps.Documents.Delete)

	api.POST("/chat", middleware.RateLimit(deps.ChatRateLimit), deps.Chat.Chat)
	api.GET("/chat/sessions", deps.Chat.ListSessions)
	api.GET("/chat/sessions/:id/messages", deps.Chat.ListMessages)
	api.DELETE("/chat/sessions/:id", deps.Chat.DeleteSession)

	api.GET("/health", deps.Health.Check)
}
