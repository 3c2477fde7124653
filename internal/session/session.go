// Package session holds the per-sign-in context: who is signed in, whether
// they have a profile, and the live cart and unread feeds opened for them.
// Handlers receive a *Session explicitly; signing out tears everything down.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/safar/cosmetics-store/internal/auth"
	"github.com/safar/cosmetics-store/internal/database"
	"github.com/safar/cosmetics-store/internal/messaging"
	"github.com/safar/cosmetics-store/internal/models"
	"github.com/safar/cosmetics-store/internal/realtime"
	"github.com/sirupsen/logrus"
)

type State int

const (
	StateSignedOut State = iota
	StateLoading
	StateAuthenticatedNoProfile
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateSignedOut:
		return "signed-out"
	case StateLoading:
		return "loading"
	case StateAuthenticatedNoProfile:
		return "authenticated-no-profile"
	case StateAuthenticated:
		return "authenticated"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ErrAccountCleanup wraps failures in the steps that run before the
// identity itself is removed.
var ErrAccountCleanup = errors.New("account cleanup failed")

var ErrNotSignedIn = errors.New("not signed in")

type Profiles interface {
	GetUser(ctx context.Context, uid uuid.UUID) (*models.User, error)
	DeleteUser(ctx context.Context, uid uuid.UUID) error
}

type Carts interface {
	Watch(ctx context.Context, uid uuid.UUID) (*realtime.Feed[models.Cart], error)
	ClearCart(ctx context.Context, uid uuid.UUID) error
}

type UnreadCounters interface {
	WatchUnread(ctx context.Context, uid uuid.UUID) (*realtime.Feed[messaging.Unread], error)
}

type Identities interface {
	DeleteIdentity(ctx context.Context, p *auth.Principal) error
}

type Deps struct {
	Profiles   Profiles
	Carts      Carts
	Unread     UnreadCounters
	Identities Identities
}

type Session struct {
	deps Deps
	log  *logrus.Entry

	mu        sync.Mutex
	state     State
	principal *auth.Principal
	profile   *models.User
	cart      *realtime.Feed[models.Cart]
	unread    *realtime.Feed[messaging.Unread]
	watchers  map[chan State]struct{}
}

func New(deps Deps) *Session {
	return &Session{
		deps:     deps,
		log:      logrus.WithField("component", "session"),
		state:    StateSignedOut,
		watchers: make(map[chan State]struct{}),
	}
}

// SignIn loads the profile for p. Without a profile the session stays
// authenticated but may not reach the dashboard, and no feeds are opened.
func (s *Session) SignIn(ctx context.Context, p *auth.Principal) error {
	s.SignOut()

	s.mu.Lock()
	s.principal = p
	s.setStateLocked(StateLoading)
	s.mu.Unlock()

	profile, err := s.deps.Profiles.GetUser(ctx, p.UID)
	if errors.Is(err, database.ErrProfileNotFound) {
		s.mu.Lock()
		s.setStateLocked(StateAuthenticatedNoProfile)
		s.mu.Unlock()
		s.log.WithField("uid", p.UID).Info("signed in without profile")
		return nil
	}
	if err != nil {
		s.SignOut()
		return fmt.Errorf("load profile: %w", err)
	}

	cart, err := s.deps.Carts.Watch(ctx, p.UID)
	if err != nil {
		s.SignOut()
		return fmt.Errorf("watch cart: %w", err)
	}
	unread, err := s.deps.Unread.WatchUnread(ctx, p.UID)
	if err != nil {
		cart.Close()
		s.SignOut()
		return fmt.Errorf("watch unread messages: %w", err)
	}

	s.mu.Lock()
	s.profile = profile
	s.cart = cart
	s.unread = unread
	s.setStateLocked(StateAuthenticated)
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{"uid": p.UID, "role": profile.Role}).Info("signed in")
	return nil
}

// SignOut closes the cart and unread feeds and forgets the identity.
func (s *Session) SignOut() {
	s.mu.Lock()
	cart, unread := s.cart, s.unread
	s.cart, s.unread = nil, nil
	s.principal, s.profile = nil, nil
	changed := s.state != StateSignedOut
	s.setStateLocked(StateSignedOut)
	s.mu.Unlock()

	if cart != nil {
		cart.Close()
	}
	if unread != nil {
		unread.Close()
	}
	if changed {
		s.log.Debug("signed out")
	}
}

// DeleteAccount removes the cart, then the profile, then the identity, in
// that order. A stale login at the last step returns
// auth.ErrRequiresRecentLogin; the cart and profile are already gone then,
// so the session drops to authenticated-no-profile and a retry after a
// fresh sign-in completes the deletion. An identity that is already gone
// counts as deleted.
func (s *Session) DeleteAccount(ctx context.Context) error {
	s.mu.Lock()
	p := s.principal
	s.mu.Unlock()
	if p == nil {
		return ErrNotSignedIn
	}

	if err := s.deps.Carts.ClearCart(ctx, p.UID); err != nil {
		return fmt.Errorf("%w: clear cart: %w", ErrAccountCleanup, err)
	}

	if err := s.deps.Profiles.DeleteUser(ctx, p.UID); err != nil && !errors.Is(err, database.ErrProfileNotFound) {
		return fmt.Errorf("%w: delete profile: %w", ErrAccountCleanup, err)
	}

	err := s.deps.Identities.DeleteIdentity(ctx, p)
	if err != nil && !errors.Is(err, database.ErrUserNotFound) {
		s.dropProfile()
		if errors.Is(err, auth.ErrRequiresRecentLogin) {
			return err
		}
		return fmt.Errorf("delete identity: %w", err)
	}

	s.log.WithField("uid", p.UID).Info("account deleted")
	s.SignOut()
	return nil
}

func (s *Session) dropProfile() {
	s.mu.Lock()
	cart, unread := s.cart, s.unread
	s.cart, s.unread, s.profile = nil, nil, nil
	if s.principal != nil {
		s.setStateLocked(StateAuthenticatedNoProfile)
	}
	s.mu.Unlock()

	if cart != nil {
		cart.Close()
	}
	if unread != nil {
		unread.Close()
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Principal() *auth.Principal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.principal
}

func (s *Session) Profile() *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile
}

// CanAccessDashboard is true only once a profile is loaded.
func (s *Session) CanAccessDashboard() bool {
	return s.State() == StateAuthenticated
}

// CartUpdates is nil unless the session is authenticated with a profile.
func (s *Session) CartUpdates() <-chan models.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cart == nil {
		return nil
	}
	return s.cart.Updates()
}

func (s *Session) UnreadUpdates() <-chan messaging.Unread {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unread == nil {
		return nil
	}
	return s.unread.Updates()
}

// Watch reports state transitions, starting with the current state. Only
// the latest state is kept for a slow watcher. The returned func stops it.
func (s *Session) Watch() (<-chan State, func()) {
	ch := make(chan State, 1)

	s.mu.Lock()
	s.watchers[ch] = struct{}{}
	ch <- s.state
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.watchers, ch)
			s.mu.Unlock()
			close(ch)
		})
	}
}

func (s *Session) setStateLocked(next State) {
	if s.state == next {
		return
	}
	s.state = next
	for ch := range s.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- next
	}
}
