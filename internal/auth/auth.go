// Package auth is the email/password identity provider: it owns
// credentials, issues signed ID tokens and removes identities.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/safar/cosmetics-store/internal/config"
	"github.com/safar/cosmetics-store/internal/database"
	"github.com/safar/cosmetics-store/internal/models"
	"github.com/safar/cosmetics-store/internal/store"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrInvalidEmail       = errors.New("invalid email address")
	// ErrRequiresRecentLogin means the token is too old for a sensitive
	// operation; the user has to sign in again and retry.
	ErrRequiresRecentLogin = errors.New("requires recent login")
	ErrTokenRevoked        = errors.New("token revoked")
)

const minPasswordLength = 8

type Service struct {
	db           *sql.DB
	tokens       *TokenIssuer
	revoker      Revoker
	recentWindow time.Duration
	now          func() time.Time
}

func NewService(db *sql.DB, cfg config.AuthConfig, revoker Revoker) *Service {
	return &Service{
		db:           db,
		tokens:       NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL),
		revoker:      revoker,
		recentWindow: cfg.RecentLoginWindow,
		now:          time.Now,
	}
}

func (s *Service) Register(ctx context.Context, email, password string) (*models.Identity, error) {
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidEmail
	}
	if len(password) < minPasswordLength {
		return nil, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	identity, err := store.CreateIdentity(ctx, s.db, email, string(hash))
	if err != nil {
		return nil, err
	}

	logrus.WithField("uid", identity.UID).Info("identity registered")
	return identity, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (string, *Principal, error) {
	identity, err := store.GetIdentityByEmail(ctx, s.db, email)
	if err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(identity.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	return s.tokens.Issue(identity.UID, identity.Email)
}

// Verify checks the signature, expiry and revocation of a token.
func (s *Service) Verify(ctx context.Context, token string) (*Principal, error) {
	p, err := s.tokens.Parse(token)
	if err != nil {
		return nil, err
	}

	revoked, err := s.revoker.IsRevoked(ctx, p.TokenID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrTokenRevoked
	}
	return p, nil
}

func (s *Service) Logout(ctx context.Context, p *Principal) error {
	return s.revoker.Revoke(ctx, p.TokenID, p.ExpiresAt.Sub(s.now()))
}

// DeleteIdentity removes the credential record. It refuses tokens older
// than the recent-login window.
func (s *Service) DeleteIdentity(ctx context.Context, p *Principal) error {
	if s.now().Sub(p.IssuedAt) > s.recentWindow {
		return ErrRequiresRecentLogin
	}

	if err := store.DeleteIdentity(ctx, s.db, p.UID); err != nil {
		return err
	}

	if err := s.Logout(ctx, p); err != nil {
		logrus.WithError(err).WithField("uid", p.UID).Warn("revoke token of deleted identity")
	}
	logrus.WithField("uid", p.UID).Info("identity deleted")
	return nil
}
