package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/safar/cosmetics-store/internal/database"
	"github.com/safar/cosmetics-store/internal/models"
)

// MaxMessageLength bounds a message body in characters.
const MaxMessageLength = 2000

type SendMessageRequest struct {
	OrderID     int64
	SenderID    uuid.UUID
	SenderRole  models.Role
	RecipientID uuid.UUID
	Body        string
}

// SendMessage attaches a message to an order. A buyer may only write on
// their own order and to one of its sellers; a seller may only write on an
// order containing their products, and always to the buyer.
func SendMessage(ctx context.Context, db *sql.DB, req SendMessageRequest) (*models.Message, error) {
	body := strings.TrimSpace(req.Body)
	if body == "" {
		return nil, database.Invalidf("message body is required")
	}
	if utf8.RuneCountInString(body) > MaxMessageLength {
		return nil, database.Invalidf("message body exceeds %d characters", MaxMessageLength)
	}

	var buyerID uuid.UUID
	err := db.QueryRowContext(ctx, `SELECT user_id FROM orders WHERE id = $1`, req.OrderID).Scan(&buyerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order buyer: %w", err)
	}

	sellers, err := OrderSellers(ctx, db, req.OrderID)
	if err != nil {
		return nil, err
	}

	recipient := req.RecipientID
	switch req.SenderRole {
	case models.RoleBuyer:
		if req.SenderID != buyerID {
			return nil, database.ErrPermissionDenied
		}
		if recipient == uuid.Nil && len(sellers) == 1 {
			recipient = sellers[0]
		}
		if !slices.Contains(sellers, recipient) {
			return nil, database.Invalidf("recipient is not a seller on this order")
		}
	case models.RoleSeller:
		if !slices.Contains(sellers, req.SenderID) {
			return nil, database.ErrPermissionDenied
		}
		recipient = buyerID
	default:
		return nil, database.Invalidf("unknown sender role %q", req.SenderRole)
	}

	msg := &models.Message{}
	err = db.QueryRowContext(ctx,
		`INSERT INTO messages (order_id, sender_id, sender_role, recipient_id, body, read, created_at)
		 VALUES ($1, $2, $3, $4, $5, FALSE, NOW())
		 RETURNING id, order_id, sender_id, sender_role, recipient_id, body, read, created_at`,
		req.OrderID, req.SenderID, req.SenderRole, recipient, body).Scan(
		&msg.ID,
		&msg.OrderID,
		&msg.SenderID,
		&msg.SenderRole,
		&msg.RecipientID,
		&msg.Body,
		&msg.Read,
		&msg.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	return msg, nil
}

// ListOrderMessages returns the thread of an order visible to viewer.
func ListOrderMessages(ctx context.Context, db *sql.DB, orderID int64, viewer uuid.UUID) ([]models.Message, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, order_id, sender_id, sender_role, recipient_id, body, read, created_at
		 FROM messages
		 WHERE order_id = $1 AND (sender_id = $2 OR recipient_id = $2)
		 ORDER BY created_at, id`,
		orderID, viewer)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.OrderID, &m.SenderID, &m.SenderRole, &m.RecipientID, &m.Body, &m.Read, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return messages, nil
}

// MarkOrderRead flags every message on an order addressed to reader as read
// and returns how many changed.
func MarkOrderRead(ctx context.Context, db *sql.DB, orderID int64, reader uuid.UUID) (int64, error) {
	result, err := db.ExecContext(ctx,
		`UPDATE messages SET read = TRUE
		 WHERE order_id = $1 AND recipient_id = $2 AND NOT read`,
		orderID, reader)
	if err != nil {
		return 0, fmt.Errorf("mark messages read: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return n, nil
}

func UnreadCount(ctx context.Context, db *sql.DB, recipient uuid.UUID) (int, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE recipient_id = $1 AND NOT read`, recipient).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread messages: %w", err)
	}
	return count, nil
}
