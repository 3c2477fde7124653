package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/safar/cosmetics-store/internal/auth"
	"github.com/safar/cosmetics-store/internal/copywriter"
	"github.com/safar/cosmetics-store/internal/database"
	"github.com/safar/cosmetics-store/internal/session"
	"github.com/safar/cosmetics-store/internal/store"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	stockErr := &database.InsufficientStockError{
		ProductName: "Glycerin",
		VariantUnit: "1 kg",
		Available:   0,
		Requested:   1,
	}

	tests := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{"stock shortfall keeps text", fmt.Errorf("place order: %w", stockErr), http.StatusConflict, "insufficient_stock", "insufficient stock for Glycerin (1 kg): available 0, requested 1"},
		{"validation", database.Invalidf("rating must be between 1 and 5"), http.StatusBadRequest, "invalid_input", ""},
		{"weak password", auth.ErrWeakPassword, http.StatusBadRequest, "invalid_input", ""},
		{"recent login", auth.ErrRequiresRecentLogin, http.StatusUnauthorized, "requires_recent_login", ""},
		{"permission", fmt.Errorf("create product: %w", database.ErrPermissionDenied), http.StatusForbidden, "permission_denied", "permission denied, check permissions"},
		{"permission during account cleanup", fmt.Errorf("%w: clear cart: %w", session.ErrAccountCleanup, database.ErrPermissionDenied), http.StatusForbidden, "permission_denied", "permission denied, check permissions"},
		{"lock timeout during account cleanup", fmt.Errorf("%w: delete profile: %w", session.ErrAccountCleanup, database.ErrLockTimeout), http.StatusServiceUnavailable, "busy", ""},
		{"stale version", database.ErrOptimisticLockFailed, http.StatusConflict, "stale_version", ""},
		{"email taken", store.ErrEmailTaken, http.StatusConflict, "email_taken", ""},
		{"not found", database.ErrOrderNotFound, http.StatusNotFound, "not_found", ""},
		{"copy unavailable", copywriter.ErrNotConfigured, http.StatusServiceUnavailable, "copywriter_unavailable", ""},
		{"unknown", errors.New("connection reset by peer"), http.StatusInternalServerError, "internal", "something went wrong"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code, message := classify(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
			if tt.message != "" {
				assert.Equal(t, tt.message, message)
			}
		})
	}
}
