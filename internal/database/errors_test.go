package database

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		code  pq.ErrorCode
		class ErrorClass
	}{
		{"40001", ErrorClassSerialization},
		{"40P01", ErrorClassDeadlock},
		{"55P03", ErrorClassTransient},
		{"42501", ErrorClassPermission},
		{"23505", ErrorClassPermanent},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			err := fmt.Errorf("lock variant: %w", &pq.Error{Code: tt.code})
			assert.Equal(t, tt.class, ClassifyError(err))
		})
	}

	assert.Equal(t, ErrorClassPermanent, ClassifyError(sql.ErrNoRows))
	assert.Equal(t, ErrorClassPermanent, ClassifyError(errors.New("boom")))
}

func TestRetryAndPermissionHelpers(t *testing.T) {
	assert.True(t, IsRetryable(&pq.Error{Code: "40001"}))
	assert.False(t, IsRetryable(&pq.Error{Code: "23505"}))

	assert.True(t, IsPermissionDenied(&pq.Error{Code: "42501"}))
	assert.True(t, IsPermissionDenied(fmt.Errorf("create product: %w", ErrPermissionDenied)))
	assert.False(t, IsPermissionDenied(ErrOrderNotFound))

	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", &pq.Error{Code: "23505"})))
}

func TestInsufficientStockError(t *testing.T) {
	err := error(&InsufficientStockError{
		ProductName: "Glycerin",
		VariantUnit: "1 kg",
		Available:   0,
		Requested:   1,
	})

	assert.EqualError(t, err, "insufficient stock for Glycerin (1 kg): available 0, requested 1")
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.ErrorIs(t, Invalidf("rating %d", 9), ErrInvalidInput)
}
