package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/docchat/internal/middleware"
)

type RouterDeps struct {
	Documents *DocumentHandler
	Chat      *ChatHandler
	Retrieve  *RetrieveHandler
	Health    *HealthHandler
	RateLimit time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.GET("/healthz", deps.Health.Health)

	userGroup := api.Group("")
	userGroup.Use(middleware.Identity())
	userGroup.GET("/documents", deps.Documents.List)
	userGroup.GET("/documents/:id", deps.Documents.Get)
	userGroup.DELETE("/documents/:id", deps.Documents.Delete)
	userGroup.GET("/chats", deps.Chat.List)
	userGroup.GET("/chat/:chat_id/history", deps.Chat.History)
	userGroup.DELETE("/chat/:chat_id/history", deps.Chat.ClearHistory)
	userGroup.POST("/retrieve", deps.Retrieve.Retrieve)

	limited := userGroup.Group("")
	limited.Use(middleware.RateLimit(deps.RateLimit))
	limited.POST("/documents", deps.Documents.Upload)
	limited.POST("/chat", deps.Chat.Chat)
}
