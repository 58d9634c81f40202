package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docchat/internal/ai"
	"github.com/xxxsen/docchat/internal/chat"
	"github.com/xxxsen/docchat/internal/loader"
	"github.com/xxxsen/docchat/internal/middleware"
	"github.com/xxxsen/docchat/internal/pkg/errcode"
	appErr "github.com/xxxsen/docchat/internal/pkg/errors"
	"github.com/xxxsen/docchat/internal/pkg/response"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

func getUserID(c *gin.Context) string {
	return middleware.UserID(c)
}

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	requestID, _ := c.Get(middleware.ContextRequestIDKey)
	logger := logutil.GetLogger(c.Request.Context()).With(
		zap.Any("request_id", requestID),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.String("user_id", getUserID(c)),
		zap.Error(err),
	)
	switch {
	case errors.Is(err, appErr.ErrNotFound):
		logger.Debug("request failed")
		response.Error(c, errcode.ErrNotFound, "not found")
	case errors.Is(err, appErr.ErrInvalid), errors.Is(err, chat.ErrEmptyMessage):
		logger.Debug("request failed")
		response.Error(c, errcode.ErrInvalid, "invalid request")
	case errors.Is(err, appErr.ErrConflict):
		response.Error(c, errcode.ErrConflict, "conflict")
	case errors.Is(err, loader.ErrUnsupportedFormat):
		logger.Info("request failed")
		response.Error(c, errcode.ErrInvalidFile, "unsupported file format, use pdf, docx, txt or md")
	case errors.Is(err, appErr.ErrDocumentTooLarge):
		response.Error(c, errcode.ErrDocumentTooLarge, "document too large")
	case errors.Is(err, ai.ErrModelUnavailable), errors.Is(err, ai.ErrUnavailable):
		logger.Error("request failed")
		response.Error(c, errcode.ErrAIUnavailable, "ai service unavailable")
	default:
		logger.Error("request failed")
		response.Error(c, errcode.ErrInternal, "internal error")
	}
}

func parsePage(c *gin.Context) (uint, uint) {
	offset := parseUint(c.Query("offset"), 0)
	limit := parseUint(c.Query("limit"), defaultPageLimit)
	if limit == 0 {
		limit = defaultPageLimit
	}
	return offset, min(limit, maxPageLimit)
}

func parseUint(value string, fallback uint) uint {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return fallback
	}
	return uint(parsed)
}

// formatUploadLimit renders a byte limit for error messages, rounding up to
// whole KB or MB.
func formatUploadLimit(bytes int64) string {
	const (
		kb = 1024
		mb = 1024 * kb
	)
	switch {
	case bytes <= 0:
		return "no limit"
	case bytes < mb:
		return strconv.FormatInt((bytes+kb-1)/kb, 10) + "KB"
	default:
		return strconv.FormatInt((bytes+mb-1)/mb, 10) + "MB"
	}
}
