package store

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/safar/cosmetics-store/internal/database"
	"github.com/safar/cosmetics-store/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateOrderNumber(t *testing.T) {
	now := time.Date(2026, 3, 9, 23, 30, 0, 0, time.UTC)
	number := generateOrderNumber(now)

	assert.Regexp(t, regexp.MustCompile(`^ORD-20260309-[0-9A-F]{6}$`), number)
	assert.NotEqual(t, number, generateOrderNumber(now))
}

func TestPlaceOrder(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	seller := createTestUser(t, db, models.RoleSeller)
	buyer := createTestUser(t, db, models.RoleBuyer)
	a := createTestProduct(t, db, seller, "Glycerin", variant("1 kg", "12.50", 10))
	va := a.Variants[0]

	_, err := AddToCart(ctx, db, buyer.UID, a.ID, va.ID, 3)
	require.NoError(t, err)

	order, err := PlaceOrder(ctx, db, buyer.UID)
	require.NoError(t, err)
	require.NotNil(t, order)

	assert.True(t, order.TotalAmount.Equal(decimal.RequireFromString("37.50")), "total %s", order.TotalAmount)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, models.PaymentStatusUnpaid, order.PaymentStatus)
	require.Len(t, order.Items, 1)
	assert.Equal(t, "Glycerin", order.Items[0].ProductName)
	assert.Equal(t, "1 kg", order.Items[0].VariantUnit)
	assert.Equal(t, 3, order.Items[0].Quantity)

	assert.Equal(t, 7, variantStock(t, db, a.ID, va.ID))

	cart, err := ListCart(ctx, db, buyer.UID)
	require.NoError(t, err)
	assert.Empty(t, cart)

	stored, err := GetOrder(ctx, db, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.OrderNumber, stored.OrderNumber)
	assert.Len(t, stored.Items, 1)

	sellers, err := OrderSellers(ctx, db, order.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{seller.UID}, sellers)
}

func TestPlaceOrderUsesFreshPrice(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	seller := createTestUser(t, db, models.RoleSeller)
	buyer := createTestUser(t, db, models.RoleBuyer)
	p := createTestProduct(t, db, seller, "Squalane", variant("100 ml", "8.00", 5))

	_, err := AddToCart(ctx, db, buyer.UID, p.ID, p.Variants[0].ID, 2)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, `UPDATE product_variants SET price = 9.25 WHERE id = $1`, p.Variants[0].ID)
	require.NoError(t, err)

	order, err := PlaceOrder(ctx, db, buyer.UID)
	require.NoError(t, err)
	assert.True(t, order.TotalAmount.Equal(decimal.RequireFromString("18.50")), "total %s", order.TotalAmount)
}

func TestPlaceOrderInsufficientStockRollsBack(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	seller := createTestUser(t, db, models.RoleSeller)
	buyer := createTestUser(t, db, models.RoleBuyer)
	a := createTestProduct(t, db, seller, "Shea Butter", variant("500 g", "9.00", 5))
	b := createTestProduct(t, db, seller, "Glycerin", variant("1 kg", "12.50", 1))

	_, err := AddToCart(ctx, db, buyer.UID, a.ID, a.Variants[0].ID, 2)
	require.NoError(t, err)
	_, err = AddToCart(ctx, db, buyer.UID, b.ID, b.Variants[0].ID, 1)
	require.NoError(t, err)

	// Someone else bought the last unit of B.
	_, err = db.ExecContext(ctx, `UPDATE product_variants SET stock = 0 WHERE id = $1`, b.Variants[0].ID)
	require.NoError(t, err)

	order, err := PlaceOrder(ctx, db, buyer.UID)
	assert.Nil(t, order)
	require.Error(t, err)
	assert.ErrorIs(t, err, database.ErrInsufficientStock)
	assert.EqualError(t, err, "insufficient stock for Glycerin (1 kg): available 0, requested 1")

	var stockErr *database.InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, b.Variants[0].ID, stockErr.VariantID)

	assert.Equal(t, 5, variantStock(t, db, a.ID, a.Variants[0].ID))

	cart, err := ListCart(ctx, db, buyer.UID)
	require.NoError(t, err)
	assert.Len(t, cart, 2)

	var orders int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`).Scan(&orders))
	assert.Zero(t, orders)
}

func TestPlaceOrderEmptyCart(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	buyer := createTestUser(t, db, models.RoleBuyer)

	order, err := PlaceOrder(ctx, db, buyer.UID)
	assert.NoError(t, err)
	assert.Nil(t, order)

	order, err = PlaceOrder(ctx, db, uuid.Nil)
	assert.NoError(t, err)
	assert.Nil(t, order)
}

func TestConcurrentPlaceOrder(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	database.SetMaxRetries(6)
	defer database.SetMaxRetries(3)

	seller := createTestUser(t, db, models.RoleSeller)
	p := createTestProduct(t, db, seller, "Jojoba Oil", variant("250 ml", "15.00", 3))
	v := p.Variants[0]

	const buyers = 6
	ids := make([]uuid.UUID, buyers)
	for i := range ids {
		buyer := createTestUser(t, db, models.RoleBuyer)
		ids[i] = buyer.UID
		_, err := AddToCart(ctx, db, buyer.UID, p.ID, v.ID, 1)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	var unexpected []error

	for _, uid := range ids {
		wg.Add(1)
		go func(uid uuid.UUID) {
			defer wg.Done()
			order, err := PlaceOrder(ctx, db, uid)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil && order != nil:
				successes++
			case errors.Is(err, database.ErrInsufficientStock):
			case database.IsRetryable(err):
			default:
				unexpected = append(unexpected, err)
			}
		}(uid)
	}
	wg.Wait()

	assert.Empty(t, unexpected)
	assert.LessOrEqual(t, successes, 3)
	assert.Positive(t, successes)
	assert.Equal(t, 3-successes, variantStock(t, db, p.ID, v.ID))

	var orders int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`).Scan(&orders))
	assert.Equal(t, successes, orders)
}

func TestListOrdersCursor(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	seller := createTestUser(t, db, models.RoleSeller)
	buyer := createTestUser(t, db, models.RoleBuyer)
	p := createTestProduct(t, db, seller, "Beeswax", variant("1 kg", "20.00", 10))

	for i := 0; i < 3; i++ {
		_, err := AddToCart(ctx, db, buyer.UID, p.ID, p.Variants[0].ID, 1)
		require.NoError(t, err)
		_, err = PlaceOrder(ctx, db, buyer.UID)
		require.NoError(t, err)
	}

	first, err := ListOrdersCursor(ctx, db, buyer.UID, "", 2)
	require.NoError(t, err)
	assert.True(t, first.HasMore)
	assert.Len(t, first.Items.([]models.Order), 2)
	require.NotEmpty(t, first.NextCursor)

	second, err := ListOrdersCursor(ctx, db, buyer.UID, first.NextCursor, 2)
	require.NoError(t, err)
	assert.False(t, second.HasMore)
	assert.Len(t, second.Items.([]models.Order), 1)

	other := createTestUser(t, db, models.RoleBuyer)
	none, err := ListOrdersCursor(ctx, db, other.UID, "", 2)
	require.NoError(t, err)
	assert.Empty(t, none.Items.([]models.Order))
}

func TestUpdateOrderStatusOptimisticLock(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	seller := createTestUser(t, db, models.RoleSeller)
	buyer := createTestUser(t, db, models.RoleBuyer)
	p := createTestProduct(t, db, seller, "Cocoa Butter", variant("1 kg", "18.00", 4))

	_, err := AddToCart(ctx, db, buyer.UID, p.ID, p.Variants[0].ID, 1)
	require.NoError(t, err)
	order, err := PlaceOrder(ctx, db, buyer.UID)
	require.NoError(t, err)

	updated, err := UpdateOrderStatus(ctx, db, order.ID, order.Version, models.OrderStatusConfirmed, models.PaymentStatusPaid)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusConfirmed, updated.Status)
	assert.Equal(t, order.Version+1, updated.Version)

	_, err = UpdateOrderStatus(ctx, db, order.ID, order.Version, models.OrderStatusShipped, models.PaymentStatusPaid)
	assert.ErrorIs(t, err, database.ErrOptimisticLockFailed)

	_, err = UpdateOrderStatus(ctx, db, order.ID, updated.Version, "lost", models.PaymentStatusPaid)
	assert.ErrorIs(t, err, database.ErrInvalidInput)

	_, err = UpdateOrderStatus(ctx, db, 999999, 1, models.OrderStatusShipped, models.PaymentStatusPaid)
	assert.ErrorIs(t, err, database.ErrOrderNotFound)
}
