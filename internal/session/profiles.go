package session

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/safar/cosmetics-store/internal/models"
	"github.com/safar/cosmetics-store/internal/store"
)

// StoreProfiles reads and removes profiles in Postgres.
type StoreProfiles struct {
	DB *sql.DB
}

func (p StoreProfiles) GetUser(ctx context.Context, uid uuid.UUID) (*models.User, error) {
	return store.GetUser(ctx, p.DB, uid)
}

func (p StoreProfiles) DeleteUser(ctx context.Context, uid uuid.UUID) error {
	return store.DeleteUser(ctx, p.DB, uid)
}
