package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/safar/cosmetics-store/internal/database"
	"github.com/safar/cosmetics-store/internal/models"
)

// StockWarning is returned instead of an error when a requested cart
// quantity had to be reduced to the stock on hand.
type StockWarning struct {
	ItemID      int64  `json:"item_id"`
	ProductName string `json:"product_name"`
	VariantUnit string `json:"variant_unit"`
	Requested   int    `json:"requested"`
	Available   int    `json:"available"`
}

func (w *StockWarning) Message() string {
	if w.Available == 0 {
		return fmt.Sprintf("%s (%s) is out of stock and was removed from the cart", w.ProductName, w.VariantUnit)
	}
	return fmt.Sprintf("only %d of %s (%s) available, quantity set to %d",
		w.Available, w.ProductName, w.VariantUnit, w.Available)
}

const cartColumns = `id, user_id, product_id, variant_id, product_name, variant_unit, unit_price, quantity, created_at, updated_at`

func scanCartItem(row interface{ Scan(...any) error }, item *models.CartItem) error {
	return row.Scan(
		&item.ID,
		&item.UserID,
		&item.ProductID,
		&item.VariantID,
		&item.ProductName,
		&item.VariantUnit,
		&item.UnitPrice,
		&item.Quantity,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
}

func ListCart(ctx context.Context, q Querier, userID uuid.UUID) ([]models.CartItem, error) {
	return listCart(ctx, q, userID, "")
}

func listCart(ctx context.Context, q Querier, userID uuid.UUID, lock string) ([]models.CartItem, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+cartColumns+`
		 FROM cart_items
		 WHERE user_id = $1
		 ORDER BY created_at, id `+lock,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list cart: %w", err)
	}
	defer rows.Close()

	items := []models.CartItem{}
	for rows.Next() {
		var item models.CartItem
		if err := scanCartItem(rows, &item); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

// AddToCart inserts a line or merges into the existing line for the same
// product and variant. The resulting quantity must fit the variant's stock.
func AddToCart(ctx context.Context, db *sql.DB, userID uuid.UUID, productID, variantID int64, quantity int) (*models.CartItem, error) {
	if quantity < 1 {
		return nil, database.Invalidf("quantity must be at least 1")
	}

	item := &models.CartItem{}

	err := database.WithRetry(ctx, db, database.SerializableTxOptions(), func(tx *sql.Tx) error {
		line, err := GetVariant(ctx, tx, productID, variantID)
		if err != nil {
			return err
		}

		if quantity > line.Variant.Stock {
			return &database.InsufficientStockError{
				ProductName: line.ProductName,
				VariantUnit: line.Variant.Unit,
				VariantID:   variantID,
				Available:   line.Variant.Stock,
				Requested:   quantity,
			}
		}

		var existingID int64
		var existingQty int
		err = tx.QueryRowContext(ctx,
			`SELECT id, quantity FROM cart_items
			 WHERE user_id = $1 AND product_id = $2 AND variant_id = $3
			 FOR UPDATE`,
			userID, productID, variantID).Scan(&existingID, &existingQty)

		switch {
		case errors.Is(err, sql.ErrNoRows):
			query := `
				INSERT INTO cart_items (user_id, product_id, variant_id, product_name, variant_unit, unit_price, quantity, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
				RETURNING ` + cartColumns
			if err := scanCartItem(tx.QueryRowContext(ctx, query,
				userID, productID, variantID, line.ProductName, line.Variant.Unit, line.Variant.Price, quantity), item); err != nil {
				return fmt.Errorf("insert cart item: %w", err)
			}
			return nil

		case err != nil:
			return fmt.Errorf("find cart item: %w", err)
		}

		merged := existingQty + quantity
		if merged > line.Variant.Stock {
			return &database.InsufficientStockError{
				ProductName: line.ProductName,
				VariantUnit: line.Variant.Unit,
				VariantID:   variantID,
				Available:   line.Variant.Stock,
				Requested:   merged,
			}
		}

		query := `
			UPDATE cart_items
			SET quantity = $1, unit_price = $2, product_name = $3, updated_at = NOW()
			WHERE id = $4
			RETURNING ` + cartColumns
		if err := scanCartItem(tx.QueryRowContext(ctx, query,
			merged, line.Variant.Price, line.ProductName, existingID), item); err != nil {
			return fmt.Errorf("merge cart item: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return item, nil
}

// UpdateCartItemQuantity sets a line's quantity. A quantity of zero or less
// removes the line. A quantity above the variant's stock is clamped to the
// stock and reported through the returned warning; when the stock is zero
// the line is removed. The returned item is nil whenever the line is gone.
func UpdateCartItemQuantity(ctx context.Context, db *sql.DB, userID uuid.UUID, itemID int64, quantity int) (*models.CartItem, *StockWarning, error) {
	if quantity <= 0 {
		return nil, nil, RemoveFromCart(ctx, db, userID, itemID)
	}

	var item *models.CartItem
	var warning *StockWarning

	err := database.WithRetry(ctx, db, database.SerializableTxOptions(), func(tx *sql.Tx) error {
		item, warning = nil, nil

		current := &models.CartItem{}
		err := scanCartItem(tx.QueryRowContext(ctx,
			`SELECT `+cartColumns+` FROM cart_items WHERE id = $1 AND user_id = $2 FOR UPDATE`,
			itemID, userID), current)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return database.ErrCartItemNotFound
			}
			return fmt.Errorf("get cart item: %w", err)
		}

		line, err := GetVariant(ctx, tx, current.ProductID, current.VariantID)
		if err != nil {
			return err
		}

		target := quantity
		if target > line.Variant.Stock {
			warning = &StockWarning{
				ItemID:      itemID,
				ProductName: line.ProductName,
				VariantUnit: line.Variant.Unit,
				Requested:   quantity,
				Available:   line.Variant.Stock,
			}
			target = line.Variant.Stock
		}

		if target == 0 {
			if _, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE id = $1`, itemID); err != nil {
				return fmt.Errorf("remove cart item: %w", err)
			}
			return nil
		}

		updated := &models.CartItem{}
		if err := scanCartItem(tx.QueryRowContext(ctx,
			`UPDATE cart_items SET quantity = $1, updated_at = NOW() WHERE id = $2 RETURNING `+cartColumns,
			target, itemID), updated); err != nil {
			return fmt.Errorf("update cart item: %w", err)
		}
		item = updated
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return item, warning, nil
}

// RemoveFromCart deletes a line; removing a line that is already gone is not
// an error.
func RemoveFromCart(ctx context.Context, db *sql.DB, userID uuid.UUID, itemID int64) error {
	_, err := db.ExecContext(ctx,
		`DELETE FROM cart_items WHERE id = $1 AND user_id = $2`, itemID, userID)
	if err != nil {
		return fmt.Errorf("remove cart item: %w", err)
	}
	return nil
}

func ClearCart(ctx context.Context, q Querier, userID uuid.UUID) (int64, error) {
	result, err := q.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("clear cart: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return n, nil
}
