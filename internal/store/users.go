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

var ErrEmailTaken = errors.New("email already registered")

func CreateIdentity(ctx context.Context, db *sql.DB, email, passwordHash string) (*models.Identity, error) {
	identity := &models.Identity{}

	query := `
		INSERT INTO identities (uid, email, password_hash, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING uid, email, password_hash, created_at`

	err := db.QueryRowContext(ctx, query, uuid.New(), normalizeEmail(email), passwordHash).Scan(
		&identity.UID,
		&identity.Email,
		&identity.PasswordHash,
		&identity.CreatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create identity: %w", err)
	}

	return identity, nil
}

func GetIdentityByEmail(ctx context.Context, db *sql.DB, email string) (*models.Identity, error) {
	return getIdentity(ctx, db, `email = $1`, normalizeEmail(email))
}

func GetIdentity(ctx context.Context, db *sql.DB, uid uuid.UUID) (*models.Identity, error) {
	return getIdentity(ctx, db, `uid = $1`, uid)
}

func getIdentity(ctx context.Context, db *sql.DB, cond string, arg any) (*models.Identity, error) {
	identity := &models.Identity{}

	err := db.QueryRowContext(ctx,
		`SELECT uid, email, password_hash, created_at FROM identities WHERE `+cond, arg).Scan(
		&identity.UID,
		&identity.Email,
		&identity.PasswordHash,
		&identity.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrUserNotFound
		}
		return nil, fmt.Errorf("get identity: %w", err)
	}

	return identity, nil
}

func DeleteIdentity(ctx context.Context, db *sql.DB, uid uuid.UUID) error {
	result, err := db.ExecContext(ctx, `DELETE FROM identities WHERE uid = $1`, uid)
	if err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return database.ErrUserNotFound
	}
	return nil
}

func CreateUser(ctx context.Context, db *sql.DB, uid uuid.UUID, email, displayName string, role models.Role) (*models.User, error) {
	if !role.Valid() {
		return nil, database.Invalidf("unknown role %q", role)
	}
	if strings.TrimSpace(displayName) == "" {
		return nil, database.Invalidf("display name is required")
	}

	user := &models.User{}

	query := `
		INSERT INTO users (uid, display_name, email, role, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, NOW(), NOW(), 1)
		RETURNING uid, display_name, email, role, created_at, updated_at, version`

	err := db.QueryRowContext(ctx, query, uid, strings.TrimSpace(displayName), normalizeEmail(email), role).Scan(
		&user.UID,
		&user.DisplayName,
		&user.Email,
		&user.Role,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.Version,
	)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	return user, nil
}

func GetUser(ctx context.Context, db *sql.DB, uid uuid.UUID) (*models.User, error) {
	user := &models.User{}

	query := `
		SELECT uid, display_name, email, role, created_at, updated_at, version
		FROM users
		WHERE uid = $1`

	err := db.QueryRowContext(ctx, query, uid).Scan(
		&user.UID,
		&user.DisplayName,
		&user.Email,
		&user.Role,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.Version,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrProfileNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return user, nil
}

func DeleteUser(ctx context.Context, db *sql.DB, uid uuid.UUID) error {
	result, err := db.ExecContext(ctx, `DELETE FROM users WHERE uid = $1`, uid)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return database.ErrProfileNotFound
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
