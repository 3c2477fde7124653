package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/safar/cosmetics-store/internal/database"
	"github.com/safar/cosmetics-store/internal/models"
)

type CreateReviewRequest struct {
	ProductID  int64
	AuthorID   uuid.UUID
	AuthorName string
	Rating     int
	Comment    string
}

// AddReview stores a review and rewrites the product's average and count
// from the full review set in the same transaction. The aggregate is
// computed by the database so no review rows are pulled into the process.
func AddReview(ctx context.Context, db *sql.DB, req CreateReviewRequest) (*models.Review, *models.ReviewSummary, error) {
	if req.Rating < 1 || req.Rating > 5 {
		return nil, nil, database.Invalidf("rating must be between 1 and 5")
	}

	var review *models.Review
	var summary *models.ReviewSummary

	err := database.WithRetry(ctx, db, database.SerializableTxOptions(), func(tx *sql.Tx) error {
		var productID int64
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM products WHERE id = $1 FOR UPDATE`, req.ProductID).Scan(&productID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return database.ErrProductNotFound
			}
			return fmt.Errorf("lock product: %w", err)
		}

		created := &models.Review{}
		err = tx.QueryRowContext(ctx,
			`INSERT INTO reviews (product_id, author_id, author_name, rating, comment, created_at)
			 VALUES ($1, $2, $3, $4, $5, NOW())
			 RETURNING id, product_id, author_id, author_name, rating, comment, created_at`,
			req.ProductID, req.AuthorID, strings.TrimSpace(req.AuthorName), req.Rating, strings.TrimSpace(req.Comment)).Scan(
			&created.ID,
			&created.ProductID,
			&created.AuthorID,
			&created.AuthorName,
			&created.Rating,
			&created.Comment,
			&created.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("create review: %w", err)
		}

		s, err := recomputeRating(ctx, tx, req.ProductID)
		if err != nil {
			return err
		}

		review, summary = created, s
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return review, summary, nil
}

// RecomputeRating rewrites a product's aggregate from its reviews. It is
// safe to run at any time to repair drift.
func RecomputeRating(ctx context.Context, db *sql.DB, productID int64) (*models.ReviewSummary, error) {
	var summary *models.ReviewSummary
	err := database.WithRetry(ctx, db, database.SerializableTxOptions(), func(tx *sql.Tx) error {
		s, err := recomputeRating(ctx, tx, productID)
		summary = s
		return err
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

func recomputeRating(ctx context.Context, tx *sql.Tx, productID int64) (*models.ReviewSummary, error) {
	summary := &models.ReviewSummary{ProductID: productID}

	err := tx.QueryRowContext(ctx,
		`UPDATE products p
		 SET average_rating = agg.avg, review_count = agg.cnt, updated_at = NOW()
		 FROM (
		     SELECT COALESCE(AVG(rating), 0)::DOUBLE PRECISION AS avg, COUNT(*) AS cnt
		     FROM reviews
		     WHERE product_id = $1
		 ) agg
		 WHERE p.id = $1
		 RETURNING p.average_rating, p.review_count`,
		productID).Scan(&summary.AverageRating, &summary.ReviewCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("recompute rating: %w", err)
	}

	return summary, nil
}

func ListReviews(ctx context.Context, db *sql.DB, productID int64, page, pageSize int) (*OffsetPage, error) {
	var total int64
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reviews WHERE product_id = $1`, productID).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count reviews: %w", err)
	}

	offset := (page - 1) * pageSize
	rows, err := db.QueryContext(ctx,
		`SELECT id, product_id, author_id, author_name, rating, comment, created_at
		 FROM reviews
		 WHERE product_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2 OFFSET $3`,
		productID, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	reviews := []models.Review{}
	for rows.Next() {
		var r models.Review
		if err := rows.Scan(&r.ID, &r.ProductID, &r.AuthorID, &r.AuthorName, &r.Rating, &r.Comment, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		reviews = append(reviews, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return newOffsetPage(reviews, total, page, pageSize), nil
}
