package handler

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/docchat/internal/pkg/errcode"
	"github.com/xxxsen/docchat/internal/pkg/response"
)

const maxRetrieveTopK = 50

type Retriever interface {
	Retrieve(ctx context.Context, query, documentID string, topK int) ([]string, error)
}

type RetrieveHandler struct {
	retriever Retriever
	documents DocumentService
}

func NewRetrieveHandler(retriever Retriever, documents DocumentService) *RetrieveHandler {
	return &RetrieveHandler{retriever: retriever, documents: documents}
}

type retrieveRequest struct {
	Query      string `json:"query"`
	DocumentID string `json:"document_id"`
	TopK       int    `json:"top_k"`
}

// Retrieve is restricted to a document owned by the caller.
func (h *RetrieveHandler) Retrieve(c *gin.Context) {
	var req retrieveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	docID := strings.TrimSpace(req.DocumentID)
	if strings.TrimSpace(req.Query) == "" || docID == "" {
		response.Error(c, errcode.ErrInvalid, "query and document_id required")
		return
	}
	if req.TopK < 0 || req.TopK > maxRetrieveTopK {
		response.Error(c, errcode.ErrInvalid, "top_k out of range")
		return
	}
	if _, err := h.documents.Get(c.Request.Context(), getUserID(c), docID); err != nil {
		handleError(c, err)
		return
	}
	chunks, err := h.retriever.Retrieve(c.Request.Context(), req.Query, docID, req.TopK)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"chunks": chunks})
}
