package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/safar/cosmetics-store/internal/database"
	"github.com/safar/cosmetics-store/internal/models"
	"github.com/shopspring/decimal"
)

type VariantInput struct {
	Unit  string
	Price decimal.Decimal
	Stock int
}

type CreateProductRequest struct {
	SellerID    uuid.UUID
	Name        string
	Description string
	Category    string
	Variants    []VariantInput
}

func (r CreateProductRequest) validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return database.Invalidf("product name is required")
	}
	if len(r.Variants) == 0 {
		return database.Invalidf("at least one variant is required")
	}
	seen := make(map[string]bool, len(r.Variants))
	for _, v := range r.Variants {
		unit := strings.TrimSpace(v.Unit)
		if unit == "" {
			return database.Invalidf("variant unit is required")
		}
		if seen[unit] {
			return database.Invalidf("duplicate variant unit %q", unit)
		}
		seen[unit] = true
		if !v.Price.IsPositive() {
			return database.Invalidf("variant %s: price must be positive", unit)
		}
		if v.Stock < 0 {
			return database.Invalidf("variant %s: stock must not be negative", unit)
		}
	}
	return nil
}

const productColumns = `id, seller_id, name, description, category, average_rating, review_count, created_at, updated_at, version`

func scanProduct(row interface{ Scan(...any) error }, product *models.Product) error {
	return row.Scan(
		&product.ID,
		&product.SellerID,
		&product.Name,
		&product.Description,
		&product.Category,
		&product.AverageRating,
		&product.ReviewCount,
		&product.CreatedAt,
		&product.UpdatedAt,
		&product.Version,
	)
}

func CreateProduct(ctx context.Context, db *sql.DB, req CreateProductRequest) (*models.Product, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	var role string
	err := db.QueryRowContext(ctx, `SELECT role FROM users WHERE uid = $1`, req.SellerID).Scan(&role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrProfileNotFound
		}
		return nil, fmt.Errorf("check seller: %w", err)
	}
	if models.Role(role) != models.RoleSeller {
		return nil, database.ErrPermissionDenied
	}

	product := &models.Product{}
	err = database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		query := `
			INSERT INTO products (seller_id, name, description, category, created_at, updated_at, version)
			VALUES ($1, $2, $3, $4, NOW(), NOW(), 1)
			RETURNING ` + productColumns

		if err := scanProduct(tx.QueryRowContext(ctx, query,
			req.SellerID, strings.TrimSpace(req.Name), req.Description, req.Category), product); err != nil {
			return fmt.Errorf("create product: %w", err)
		}

		for _, v := range req.Variants {
			variant := models.Variant{ProductID: product.ID}
			err := tx.QueryRowContext(ctx,
				`INSERT INTO product_variants (product_id, unit, price, stock)
				 VALUES ($1, $2, $3, $4)
				 RETURNING id, unit, price, stock`,
				product.ID, strings.TrimSpace(v.Unit), v.Price, v.Stock).Scan(
				&variant.ID, &variant.Unit, &variant.Price, &variant.Stock)
			if err != nil {
				return fmt.Errorf("create variant %s: %w", v.Unit, err)
			}
			product.Variants = append(product.Variants, variant)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return product, nil
}

func GetProduct(ctx context.Context, q Querier, id int64) (*models.Product, error) {
	product := &models.Product{}

	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	if err := scanProduct(q.QueryRowContext(ctx, query, id), product); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	variants, err := listVariants(ctx, q, []int64{id})
	if err != nil {
		return nil, err
	}
	product.Variants = variants[id]

	return product, nil
}

func listVariants(ctx context.Context, q Querier, productIDs []int64) (map[int64][]models.Variant, error) {
	out := make(map[int64][]models.Variant, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}

	rows, err := q.QueryContext(ctx,
		`SELECT id, product_id, unit, price, stock
		 FROM product_variants
		 WHERE product_id = ANY($1)
		 ORDER BY product_id, id`,
		pq.Array(productIDs))
	if err != nil {
		return nil, fmt.Errorf("list variants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var v models.Variant
		if err := rows.Scan(&v.ID, &v.ProductID, &v.Unit, &v.Price, &v.Stock); err != nil {
			return nil, fmt.Errorf("scan variant: %w", err)
		}
		out[v.ProductID] = append(out[v.ProductID], v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return out, nil
}

// VariantLine is a variant joined with the product fields the cart and the
// order transaction need.
type VariantLine struct {
	Variant     models.Variant
	ProductName string
	SellerID    uuid.UUID
}

func GetVariant(ctx context.Context, q Querier, productID, variantID int64) (*VariantLine, error) {
	return getVariant(ctx, q, productID, variantID, "")
}

// LockVariant reads a variant row under FOR UPDATE so its stock cannot move
// until the surrounding transaction ends.
func LockVariant(ctx context.Context, tx *sql.Tx, productID, variantID int64) (*VariantLine, error) {
	return getVariant(ctx, tx, productID, variantID, "FOR UPDATE OF v")
}

func getVariant(ctx context.Context, q Querier, productID, variantID int64, lock string) (*VariantLine, error) {
	line := &VariantLine{}

	query := `
		SELECT v.id, v.product_id, v.unit, v.price, v.stock, p.name, p.seller_id
		FROM product_variants v
		JOIN products p ON p.id = v.product_id
		WHERE v.id = $1 AND v.product_id = $2 ` + lock

	err := q.QueryRowContext(ctx, query, variantID, productID).Scan(
		&line.Variant.ID,
		&line.Variant.ProductID,
		&line.Variant.Unit,
		&line.Variant.Price,
		&line.Variant.Stock,
		&line.ProductName,
		&line.SellerID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrVariantNotFound
		}
		return nil, fmt.Errorf("get variant %d: %w", variantID, err)
	}

	return line, nil
}

// DecrementVariantStock refuses to take stock below zero.
func DecrementVariantStock(ctx context.Context, tx *sql.Tx, variantID int64, quantity int) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE product_variants
		 SET stock = stock - $1
		 WHERE id = $2
		   AND stock >= $1`,
		quantity, variantID)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrInsufficientStock
	}

	return nil
}

type ProductDetails struct {
	Name        string
	Description string
	Category    string
}

// UpdateProductDetails applies a seller edit only if nobody changed the
// product since the caller read version.
func UpdateProductDetails(ctx context.Context, db *sql.DB, id int64, sellerID uuid.UUID, version int, details ProductDetails) (*models.Product, error) {
	if strings.TrimSpace(details.Name) == "" {
		return nil, database.Invalidf("product name is required")
	}

	result, err := db.ExecContext(ctx,
		`UPDATE products
		 SET name = $1, description = $2, category = $3, version = version + 1, updated_at = NOW()
		 WHERE id = $4 AND seller_id = $5 AND version = $6`,
		strings.TrimSpace(details.Name), details.Description, details.Category, id, sellerID, version)
	if err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		current, err := GetProduct(ctx, db, id)
		if err != nil {
			return nil, err
		}
		if current.SellerID != sellerID {
			return nil, database.ErrPermissionDenied
		}
		return nil, database.ErrOptimisticLockFailed
	}

	return GetProduct(ctx, db, id)
}

func DeleteProduct(ctx context.Context, db *sql.DB, id int64, sellerID uuid.UUID) error {
	result, err := db.ExecContext(ctx,
		`DELETE FROM products WHERE id = $1 AND seller_id = $2`, id, sellerID)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		if _, err := GetProduct(ctx, db, id); err != nil {
			return err
		}
		return database.ErrPermissionDenied
	}

	return nil
}

type ProductFilter struct {
	Category string
	SellerID uuid.UUID
}

func ListProducts(ctx context.Context, db *sql.DB, filter ProductFilter, page, pageSize int) (*OffsetPage, error) {
	where := []string{"TRUE"}
	var args []any
	if filter.Category != "" {
		args = append(args, filter.Category)
		where = append(where, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.SellerID != uuid.Nil {
		args = append(args, filter.SellerID)
		where = append(where, fmt.Sprintf("seller_id = $%d", len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products WHERE `+cond, args...).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}

	offset := (page - 1) * pageSize
	query := fmt.Sprintf(`
		SELECT %s
		FROM products
		WHERE %s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d`, productColumns, cond, len(args)+1, len(args)+2)

	rows, err := db.QueryContext(ctx, query, append(args, pageSize, offset)...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := []models.Product{}
	var ids []int64
	for rows.Next() {
		var product models.Product
		if err := scanProduct(rows, &product); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, product)
		ids = append(ids, product.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	variants, err := listVariants(ctx, db, ids)
	if err != nil {
		return nil, err
	}
	for i := range products {
		products[i].Variants = variants[products[i].ID]
	}

	return newOffsetPage(products, total, page, pageSize), nil
}
