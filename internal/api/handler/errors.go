package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"go.uber.org/zap"

	"github.com/jmerrifield20/chainledger/internal/model"
)

// respondError maps engine errors to HTTP responses. Unexpected errors are
// logged and reported without detail.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	var ve *model.ValidationError
	var fieldErrs validation.Errors
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "problems": ve.Problems})
	case errors.As(err, &fieldErrs):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "fields": fieldErrs})
	case errors.Is(err, model.ErrValidation), errors.Is(err, model.ErrInvalidAccount), errors.Is(err, model.ErrUnbalanced):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, model.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, model.ErrNotDraft), errors.Is(err, model.ErrDraftChanged), errors.Is(err, model.ErrNotPosted),
		errors.Is(err, model.ErrAlreadyVoided), errors.Is(err, model.ErrReversalEntry),
		errors.Is(err, model.ErrAccountExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, model.ErrChainRace), errors.Is(err, context.DeadlineExceeded):
		c.Header("Retry-After", "1")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ledger busy, retry"})
	default:
		logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("request_id", RequestIDFrom(c)),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
