package http

import (
	"errors"
	"net/http"

	"credanchor/internal/domain"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// writeError maps domain errors to stable codes. Collaborator details and
// internal errors are logged, never returned.
func writeError(c *gin.Context, log *zap.Logger, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.Is(err, domain.ErrPayloadTooLarge):
		writeValidation(c, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", err)
	case errors.Is(err, domain.ErrPolicyDenied):
		writeValidation(c, http.StatusUnprocessableEntity, "POLICY_DENIED", err)
	case errors.As(err, &verr):
		writeValidation(c, http.StatusBadRequest, "VALIDATION_ERROR", err)
	case errors.Is(err, domain.ErrSerialization):
		writeErrorCode(c, http.StatusBadRequest, "SERIALIZATION_ERROR", "payload cannot be serialized")
	case errors.Is(err, domain.ErrNotFound):
		writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "record not found")
	case errors.Is(err, domain.ErrVaultWrite), errors.Is(err, domain.ErrVaultRead):
		log.Error("vault error", zap.String("path", c.FullPath()), zap.Error(err))
		writeErrorCode(c, http.StatusBadGateway, "VAULT_ERROR", "encrypted storage unavailable")
	case errors.Is(err, domain.ErrConflict):
		writeErrorCode(c, http.StatusConflict, "CONFLICT", "latest anchor has not failed")
	case errors.Is(err, domain.ErrUnauthorized):
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
	case errors.Is(err, domain.ErrForbidden):
		writeErrorCode(c, http.StatusForbidden, "FORBIDDEN", "forbidden")
	default:
		log.Error("internal error", zap.String("path", c.FullPath()), zap.Error(err))
		writeErrorCode(c, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}

func writeValidation(c *gin.Context, status int, code string, err error) {
	resp := errorResponse{Code: code, Message: err.Error()}
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		resp.Details = map[string]any{"field": verr.Field, "constraint": verr.Constraint}
	}
	c.JSON(status, resp)
}

func writeErrorCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{
		Code:    code,
		Message: message,
	})
}
