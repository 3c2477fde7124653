package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/safar/cosmetics-store/internal/database"
	"github.com/safar/cosmetics-store/internal/models"
	"github.com/shopspring/decimal"
)

// generateOrderNumber yields e.g. ORD-20261016-3F9A1C.
func generateOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102"), suffix)
}

// PlaceOrder turns the user's cart into an order. Inside one serializable
// transaction it re-reads every variant, rejects the whole cart if any line
// is short, writes the order with fresh prices, decrements stock and deletes
// the cart lines. A nil user or an empty cart yields (nil, nil).
func PlaceOrder(ctx context.Context, db *sql.DB, userID uuid.UUID) (*models.Order, error) {
	if userID == uuid.Nil {
		return nil, nil
	}

	var order *models.Order

	err := database.WithRetry(ctx, db, database.SerializableTxOptions(), func(tx *sql.Tx) error {
		order = nil

		cart, err := listCart(ctx, tx, userID, "FOR UPDATE")
		if err != nil {
			return err
		}
		if len(cart) == 0 {
			return nil
		}

		// Lock variants in a stable order so two buyers sharing variants
		// cannot deadlock each other.
		lines := make([]models.CartItem, len(cart))
		copy(lines, cart)
		sort.Slice(lines, func(i, j int) bool { return lines[i].VariantID < lines[j].VariantID })

		var totalAmount decimal.Decimal
		fresh := make(map[int64]*VariantLine, len(lines))

		for _, item := range lines {
			line, err := LockVariant(ctx, tx, item.ProductID, item.VariantID)
			if err != nil {
				if errors.Is(err, database.ErrVariantNotFound) {
					return fmt.Errorf("%w: %s (%s) is no longer available", database.ErrVariantNotFound, item.ProductName, item.VariantUnit)
				}
				return err
			}

			if line.Variant.Stock < item.Quantity {
				return &database.InsufficientStockError{
					ProductName: line.ProductName,
					VariantUnit: line.Variant.Unit,
					VariantID:   line.Variant.ID,
					Available:   line.Variant.Stock,
					Requested:   item.Quantity,
				}
			}

			fresh[item.ID] = line
			totalAmount = totalAmount.Add(line.Variant.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
		}

		created := &models.Order{UserID: userID}
		err = tx.QueryRowContext(ctx,
			`INSERT INTO orders (user_id, order_number, status, payment_status, total_amount, created_at, updated_at, version)
			 VALUES ($1, $2, $3, $4, $5, NOW(), NOW(), 1)
			 RETURNING id, order_number, status, payment_status, total_amount, created_at, updated_at, version`,
			userID, generateOrderNumber(time.Now()), models.OrderStatusPending, models.PaymentStatusUnpaid, totalAmount).Scan(
			&created.ID,
			&created.OrderNumber,
			&created.Status,
			&created.PaymentStatus,
			&created.TotalAmount,
			&created.CreatedAt,
			&created.UpdatedAt,
			&created.Version,
		)
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		for _, item := range cart {
			line := fresh[item.ID]
			subtotal := line.Variant.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))

			orderItem := models.OrderItem{
				OrderID:     created.ID,
				ProductID:   item.ProductID,
				ProductName: line.ProductName,
				VariantID:   item.VariantID,
				VariantUnit: line.Variant.Unit,
				Quantity:    item.Quantity,
				UnitPrice:   line.Variant.Price,
				Subtotal:    subtotal,
			}

			err = tx.QueryRowContext(ctx,
				`INSERT INTO order_items (order_id, product_id, product_name, variant_id, variant_unit, seller_id, quantity, unit_price, subtotal, created_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
				 RETURNING id, created_at`,
				created.ID, item.ProductID, line.ProductName, item.VariantID, line.Variant.Unit,
				line.SellerID, item.Quantity, line.Variant.Price, subtotal).Scan(&orderItem.ID, &orderItem.CreatedAt)
			if err != nil {
				return fmt.Errorf("create order item: %w", err)
			}
			created.Items = append(created.Items, orderItem)
		}

		for _, item := range lines {
			if err := DecrementVariantStock(ctx, tx, item.VariantID, item.Quantity); err != nil {
				if errors.Is(err, database.ErrInsufficientStock) {
					line := fresh[item.ID]
					return &database.InsufficientStockError{
						ProductName: line.ProductName,
						VariantUnit: line.Variant.Unit,
						VariantID:   item.VariantID,
						Available:   line.Variant.Stock,
						Requested:   item.Quantity,
					}
				}
				return err
			}
		}

		ids := make([]int64, 0, len(cart))
		for _, item := range cart {
			ids = append(ids, item.ID)
		}
		if err := deleteCartItems(ctx, tx, userID, ids); err != nil {
			return err
		}

		order = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

func deleteCartItems(ctx context.Context, tx *sql.Tx, userID uuid.UUID, ids []int64) error {
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM cart_items WHERE id = $1 AND user_id = $2`, id, userID); err != nil {
			return fmt.Errorf("delete cart item %d: %w", id, err)
		}
	}
	return nil
}

const orderColumns = `id, user_id, order_number, status, payment_status, total_amount, created_at, updated_at, version`

func scanOrder(row interface{ Scan(...any) error }, order *models.Order) error {
	return row.Scan(
		&order.ID,
		&order.UserID,
		&order.OrderNumber,
		&order.Status,
		&order.PaymentStatus,
		&order.TotalAmount,
		&order.CreatedAt,
		&order.UpdatedAt,
		&order.Version,
	)
}

func GetOrder(ctx context.Context, db *sql.DB, id int64) (*models.Order, error) {
	order := &models.Order{}

	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	if err := scanOrder(db.QueryRowContext(ctx, query, id), order); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	itemsQuery := `
		SELECT id, order_id, product_id, product_name, variant_id, variant_unit, quantity, unit_price, subtotal, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY id`

	rows, err := db.QueryContext(ctx, itemsQuery, id)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var item models.OrderItem
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.ProductName,
			&item.VariantID,
			&item.VariantUnit,
			&item.Quantity,
			&item.UnitPrice,
			&item.Subtotal,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	order.Items = items

	return order, nil
}

// OrderSellers returns the distinct sellers whose products appear in an order.
func OrderSellers(ctx context.Context, q Querier, orderID int64) ([]uuid.UUID, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT DISTINCT seller_id FROM order_items WHERE order_id = $1`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order sellers: %w", err)
	}
	defer rows.Close()

	var sellers []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan seller: %w", err)
		}
		sellers = append(sellers, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return sellers, nil
}

func ListOrdersCursor(ctx context.Context, db *sql.DB, userID uuid.UUID, cursor string, limit int) (*CursorPage, error) {
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE user_id = $1
		  AND (created_at, id) < ($2, $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4`

	rows, err := db.QueryContext(ctx, query, userID, cursorData.CreatedAt, cursorData.ID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		var order models.Order
		if err := scanOrder(rows, &order); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}

	var nextCursor string
	if hasMore && len(orders) > 0 {
		lastOrder := orders[len(orders)-1]
		nextCursor = EncodeCursor(OrderCursor{
			CreatedAt: lastOrder.CreatedAt,
			ID:        lastOrder.ID,
		})
	}

	return &CursorPage{
		Items:      orders,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// UpdateOrderStatus is the fulfillment-side mutation; the version guard
// rejects edits made against a stale read.
func UpdateOrderStatus(ctx context.Context, db *sql.DB, id int64, version int, status, paymentStatus string) (*models.Order, error) {
	if !models.ValidOrderStatus(status) {
		return nil, database.Invalidf("unknown order status %q", status)
	}
	if !models.ValidPaymentStatus(paymentStatus) {
		return nil, database.Invalidf("unknown payment status %q", paymentStatus)
	}

	order := &models.Order{}
	err := scanOrder(db.QueryRowContext(ctx,
		`UPDATE orders
		 SET status = $1, payment_status = $2, version = version + 1, updated_at = NOW()
		 WHERE id = $3 AND version = $4
		 RETURNING `+orderColumns,
		status, paymentStatus, id, version), order)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if _, getErr := GetOrder(ctx, db, id); getErr != nil {
				return nil, getErr
			}
			return nil, database.ErrOptimisticLockFailed
		}
		return nil, fmt.Errorf("update order status: %w", err)
	}

	return order, nil
}
