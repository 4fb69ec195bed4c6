package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bull/statute-rag/internal/embedding"
	"github.com/bull/statute-rag/internal/retrieval"
	"github.com/bull/statute-rag/internal/storage"
)

// Stable error codes shared by the HTTP API and the CLI.
const (
	CodeInvalidQuery         = "INVALID_QUERY"
	CodeInvalidFilter        = "INVALID_FILTER"
	CodeEmbeddingUnavailable = "EMBEDDING_UNAVAILABLE"
	CodeStoreUnavailable     = "STORE_UNAVAILABLE"
	CodeRetrievalTimeout     = "RETRIEVAL_TIMEOUT"
	CodeCollectionNotFound   = "COLLECTION_NOT_FOUND"
	CodeCollectionConflict   = "COLLECTION_CONFLICT"
	CodeDimensionMismatch    = "DIMENSION_MISMATCH"
	CodeInternal             = "INTERNAL"
)

// Classify maps an error to an HTTP status and a stable code.
// Order matters: a wrong embedding dimension also matches embedding.ErrUnavailable.
func Classify(err error) (int, string) {
	switch {
	case errors.Is(err, retrieval.ErrInvalidQuery), errors.Is(err, storage.ErrInvalidRequest):
		return http.StatusBadRequest, CodeInvalidQuery
	case errors.Is(err, storage.ErrInvalidFilter):
		return http.StatusBadRequest, CodeInvalidFilter
	case errors.Is(err, retrieval.ErrRetrievalTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, CodeRetrievalTimeout
	case errors.Is(err, embedding.ErrDimensionMismatch), errors.Is(err, storage.ErrDimensionMismatch):
		return http.StatusInternalServerError, CodeDimensionMismatch
	case errors.Is(err, embedding.ErrUnavailable):
		return http.StatusServiceUnavailable, CodeEmbeddingUnavailable
	case errors.Is(err, storage.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, CodeStoreUnavailable
	case errors.Is(err, storage.ErrCollectionNotFound):
		return http.StatusNotFound, CodeCollectionNotFound
	case errors.Is(err, storage.ErrCollectionConflict):
		return http.StatusConflict, CodeCollectionConflict
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

func writeError(c *gin.Context, err error) {
	status, code := Classify(err)
	writeErrorCode(c, status, code, err.Error())
}

func writeErrorCode(c *gin.Context, status int, code, message string) {
	_ = c.Error(errors.New(message))
	c.AbortWithStatusJSON(status, ErrorResponse{Error: ErrorBody{Code: code, Message: message}})
}
