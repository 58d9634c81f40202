package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/docchat/internal/pkg/response"
)

type IndexStats interface {
	Len() int
	Dimension() int
}

type HealthHandler struct {
	index IndexStats
	model string
}

func NewHealthHandler(index IndexStats, model string) *HealthHandler {
	return &HealthHandler{index: index, model: model}
}

func (h *HealthHandler) Health(c *gin.Context) {
	data := gin.H{"status": "ok", "embedding_model": h.model}
	if h.index != nil {
		data["index_entries"] = h.index.Len()
		data["dimension"] = h.index.Dimension()
	}
	response.Success(c, data)
}
