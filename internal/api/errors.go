package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/safar/cosmetics-store/internal/auth"
	"github.com/safar/cosmetics-store/internal/copywriter"
	"github.com/safar/cosmetics-store/internal/database"
	"github.com/safar/cosmetics-store/internal/session"
	"github.com/safar/cosmetics-store/internal/store"
	"github.com/sirupsen/logrus"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": apiError{Code: code, Message: message}})
}

// respondError turns a domain error into a status and a stable code.
// Anything unrecognised is logged and answered with a generic 500.
func respondError(c *gin.Context, err error) {
	status, code, message := classify(err)
	if status == http.StatusInternalServerError {
		logrus.WithError(err).WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
		}).Error("request failed")
	}
	abortWithError(c, status, code, message)
}

func classify(err error) (int, string, string) {
	var stockErr *database.InsufficientStockError
	var validationErrs validator.ValidationErrors

	switch {
	case errors.As(err, &stockErr):
		return http.StatusConflict, "insufficient_stock", stockErr.Error()
	case errors.Is(err, database.ErrInsufficientStock):
		return http.StatusConflict, "insufficient_stock", err.Error()
	case errors.Is(err, database.ErrInvalidInput),
		errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, auth.ErrInvalidEmail):
		return http.StatusBadRequest, "invalid_input", err.Error()
	case errors.As(err, &validationErrs):
		return http.StatusBadRequest, "invalid_input", validationErrs.Error()
	case errors.Is(err, auth.ErrRequiresRecentLogin):
		return http.StatusUnauthorized, "requires_recent_login", "sign in again to complete this action"
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials", err.Error()
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrTokenRevoked), errors.Is(err, session.ErrNotSignedIn):
		return http.StatusUnauthorized, "unauthorized", "authentication required"
	case database.IsPermissionDenied(err):
		return http.StatusForbidden, "permission_denied", database.ErrPermissionDenied.Error()
	case errors.Is(err, store.ErrEmailTaken):
		return http.StatusConflict, "email_taken", err.Error()
	case errors.Is(err, database.ErrOptimisticLockFailed):
		return http.StatusConflict, "stale_version", "resource was modified, reload and retry"
	case errors.Is(err, database.ErrLockTimeout):
		return http.StatusServiceUnavailable, "busy", "resource is busy, retry shortly"
	case errors.Is(err, database.ErrProductNotFound),
		errors.Is(err, database.ErrVariantNotFound),
		errors.Is(err, database.ErrCartItemNotFound),
		errors.Is(err, database.ErrOrderNotFound),
		errors.Is(err, database.ErrUserNotFound),
		errors.Is(err, database.ErrProfileNotFound):
		return http.StatusNotFound, "not_found", err.Error()
	case errors.Is(err, copywriter.ErrNotConfigured):
		return http.StatusServiceUnavailable, "copywriter_unavailable", err.Error()
	case errors.Is(err, copywriter.ErrInvalidResponse):
		return http.StatusBadGateway, "copywriter_failed", "could not generate copy, try again"
	}
	return http.StatusInternalServerError, "internal", "something went wrong"
}
