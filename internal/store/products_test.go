package store

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/safar/cosmetics-store/internal/database"
	"github.com/safar/cosmetics-store/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateProductRequiresSeller(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	buyer := createTestUser(t, db, models.RoleBuyer)

	_, err := CreateProduct(ctx, db, CreateProductRequest{
		SellerID: buyer.UID,
		Name:     "Glycerin",
		Variants: []VariantInput{variant("1 kg", "12.50", 1)},
	})
	assert.ErrorIs(t, err, database.ErrPermissionDenied)

	_, err = CreateProduct(ctx, db, CreateProductRequest{
		SellerID: uuid.New(),
		Name:     "Glycerin",
		Variants: []VariantInput{variant("1 kg", "12.50", 1)},
	})
	assert.ErrorIs(t, err, database.ErrProfileNotFound)
}

func TestCreateProductValidation(t *testing.T) {
	seller := uuid.New()

	tests := []struct {
		name string
		req  CreateProductRequest
	}{
		{"no name", CreateProductRequest{SellerID: seller, Variants: []VariantInput{variant("1 kg", "1", 1)}}},
		{"no variants", CreateProductRequest{SellerID: seller, Name: "X"}},
		{"zero price", CreateProductRequest{SellerID: seller, Name: "X", Variants: []VariantInput{variant("1 kg", "0", 1)}}},
		{"negative stock", CreateProductRequest{SellerID: seller, Name: "X", Variants: []VariantInput{variant("1 kg", "1", -1)}}},
		{"duplicate unit", CreateProductRequest{SellerID: seller, Name: "X", Variants: []VariantInput{variant("1 kg", "1", 1), variant("1 kg", "2", 1)}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.req.validate(), database.ErrInvalidInput)
		})
	}
}

func TestProductCatalog(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	seller := createTestUser(t, db, models.RoleSeller)
	other := createTestUser(t, db, models.RoleSeller)

	p := createTestProduct(t, db, seller, "Glycerin", variant("1 kg", "12.50", 10), variant("5 kg", "55.00", 2))
	createTestProduct(t, db, other, "Squalane", variant("100 ml", "8.00", 3))

	require.Len(t, p.Variants, 2)
	v, ok := p.Variant(p.Variants[1].ID)
	require.True(t, ok)
	assert.Equal(t, "5 kg", v.Unit)

	all, err := ListProducts(ctx, db, ProductFilter{}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), all.Total)

	mine, err := ListProducts(ctx, db, ProductFilter{SellerID: seller.UID}, 1, 10)
	require.NoError(t, err)
	products := mine.Items.([]models.Product)
	require.Len(t, products, 1)
	assert.Len(t, products[0].Variants, 2)

	none, err := ListProducts(ctx, db, ProductFilter{Category: "Fragrance"}, 1, 10)
	require.NoError(t, err)
	assert.Zero(t, none.Total)
}

func TestUpdateProductDetailsOptimisticLock(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	seller := createTestUser(t, db, models.RoleSeller)
	other := createTestUser(t, db, models.RoleSeller)
	p := createTestProduct(t, db, seller, "Glycerin", variant("1 kg", "12.50", 10))

	details := ProductDetails{Name: "Vegetable Glycerin", Description: "USP grade", Category: "Humectants"}

	updated, err := UpdateProductDetails(ctx, db, p.ID, seller.UID, p.Version, details)
	require.NoError(t, err)
	assert.Equal(t, "Vegetable Glycerin", updated.Name)
	assert.Equal(t, p.Version+1, updated.Version)

	_, err = UpdateProductDetails(ctx, db, p.ID, seller.UID, p.Version, details)
	assert.ErrorIs(t, err, database.ErrOptimisticLockFailed)

	_, err = UpdateProductDetails(ctx, db, p.ID, other.UID, updated.Version, details)
	assert.ErrorIs(t, err, database.ErrPermissionDenied)

	// Detail edits never touch stock.
	assert.Equal(t, 10, variantStock(t, db, p.ID, p.Variants[0].ID))
}

func TestDeleteProduct(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	seller := createTestUser(t, db, models.RoleSeller)
	other := createTestUser(t, db, models.RoleSeller)
	p := createTestProduct(t, db, seller, "Glycerin", variant("1 kg", "12.50", 10))

	assert.ErrorIs(t, DeleteProduct(ctx, db, p.ID, other.UID), database.ErrPermissionDenied)
	require.NoError(t, DeleteProduct(ctx, db, p.ID, seller.UID))

	_, err := GetProduct(ctx, db, p.ID)
	assert.ErrorIs(t, err, database.ErrProductNotFound)
	assert.ErrorIs(t, DeleteProduct(ctx, db, p.ID, seller.UID), database.ErrProductNotFound)
}
