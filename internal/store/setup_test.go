package store

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/safar/cosmetics-store/internal/models"
	"github.com/safar/cosmetics-store/internal/testutil"
	"github.com/shopspring/decimal"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	return testutil.NewPostgres(t)
}

func createTestUser(t *testing.T, db *sql.DB, role models.Role) *models.User {
	t.Helper()
	ctx := context.Background()

	email := fmt.Sprintf("%s-%s@example.com", role, uuid.NewString()[:8])
	identity, err := CreateIdentity(ctx, db, email, "not-a-real-hash")
	if err != nil {
		t.Fatalf("Create identity: %v", err)
	}

	user, err := CreateUser(ctx, db, identity.UID, email, "Test "+string(role), role)
	if err != nil {
		t.Fatalf("Create user: %v", err)
	}
	return user
}

func createTestProduct(t *testing.T, db *sql.DB, seller *models.User, name string, variants ...VariantInput) *models.Product {
	t.Helper()

	product, err := CreateProduct(context.Background(), db, CreateProductRequest{
		SellerID: seller.UID,
		Name:     name,
		Category: "Raw materials",
		Variants: variants,
	})
	if err != nil {
		t.Fatalf("Create product %s: %v", name, err)
	}
	return product
}

func variant(unit, price string, stock int) VariantInput {
	return VariantInput{Unit: unit, Price: decimal.RequireFromString(price), Stock: stock}
}

func variantStock(t *testing.T, db *sql.DB, productID, variantID int64) int {
	t.Helper()
	line, err := GetVariant(context.Background(), db, productID, variantID)
	if err != nil {
		t.Fatalf("Get variant: %v", err)
	}
	return line.Variant.Stock
}
