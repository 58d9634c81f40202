package handler

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/docchat/internal/chat"
	"github.com/xxxsen/docchat/internal/pkg/errcode"
	"github.com/xxxsen/docchat/internal/pkg/response"
)

type ChatService interface {
	Chat(ctx context.Context, req chat.Request) (*chat.Reply, error)
	History(ownerID, chatID string) []chat.Turn
	ClearHistory(ownerID, chatID string)
	ListChats(ownerID string) []chat.Summary
}

type ChatHandler struct {
	chats     ChatService
	documents DocumentService
}

func NewChatHandler(chats ChatService, documents DocumentService) *ChatHandler {
	return &ChatHandler{chats: chats, documents: documents}
}

type chatRequest struct {
	Message    string `json:"message"`
	ChatID     string `json:"chat_id"`
	DocumentID string `json:"document_id"`
}

func (h *ChatHandler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		response.Error(c, errcode.ErrInvalid, "message required")
		return
	}
	userID := getUserID(c)
	docID := strings.TrimSpace(req.DocumentID)
	if docID != "" {
		if _, err := h.documents.Get(c.Request.Context(), userID, docID); err != nil {
			handleError(c, err)
			return
		}
	}
	reply, err := h.chats.Chat(c.Request.Context(), chat.Request{
		OwnerID:    userID,
		ChatID:     strings.TrimSpace(req.ChatID),
		DocumentID: docID,
		Message:    req.Message,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, reply)
}

func (h *ChatHandler) List(c *gin.Context) {
	response.Success(c, gin.H{"chats": h.chats.ListChats(getUserID(c))})
}

func (h *ChatHandler) History(c *gin.Context) {
	turns := h.chats.History(getUserID(c), c.Param("chat_id"))
	response.Success(c, gin.H{"chat_id": c.Param("chat_id"), "turns": turns})
}

func (h *ChatHandler) ClearHistory(c *gin.Context) {
	h.chats.ClearHistory(getUserID(c), c.Param("chat_id"))
	response.Success(c, gin.H{"ok": true})
}
