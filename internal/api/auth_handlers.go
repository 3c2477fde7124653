package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/safar/cosmetics-store/internal/auth"
	"github.com/safar/cosmetics-store/internal/database"
	"github.com/safar/cosmetics-store/internal/models"
	"github.com/safar/cosmetics-store/internal/store"
	"github.com/sirupsen/logrus"
)

type credentials struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type profileRequest struct {
	DisplayName string      `json:"display_name" binding:"required,max=100"`
	Role        models.Role `json:"role" binding:"required,oneof=buyer seller"`
}

type registerRequest struct {
	credentials
	profileRequest
}

type tokenResponse struct {
	Token     string       `json:"token"`
	ExpiresAt int64        `json:"expires_at"`
	Profile   *models.User `json:"profile,omitempty"`
}

// register creates the identity and then its profile. A failed profile
// insert leaves a profile-less identity that can finish via /me/profile.
func (s *Server) register(c *gin.Context) {
	var req registerRequest
	if !bindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()

	identity, err := s.auth.Register(ctx, req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	user, err := store.CreateUser(ctx, s.db, identity.UID, identity.Email, req.DisplayName, req.Role)
	if err != nil {
		logrus.WithError(err).WithField("uid", identity.UID).Warn("profile creation failed after registration")
		respondError(c, err)
		return
	}

	token, p, err := s.auth.Login(ctx, req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, tokenResponse{Token: token, ExpiresAt: p.ExpiresAt.Unix(), Profile: user})
}

func (s *Server) login(c *gin.Context) {
	var req credentials
	if !bindJSON(c, &req) {
		return
	}

	token, p, err := s.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, tokenResponse{Token: token, ExpiresAt: p.ExpiresAt.Unix()})
}

func (s *Server) logout(c *gin.Context) {
	if err := s.auth.Logout(c.Request.Context(), principal(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// me reports the caller's session state so clients can route a
// profile-less identity to onboarding.
func (s *Server) me(c *gin.Context) {
	p := principal(c)
	user, err := store.GetUser(c.Request.Context(), s.db, p.UID)
	if err != nil && !errors.Is(err, database.ErrProfileNotFound) {
		respondError(c, err)
		return
	}

	state := "authenticated-no-profile"
	if user != nil {
		state = "authenticated"
	}
	c.JSON(http.StatusOK, gin.H{
		"uid":                  p.UID,
		"email":                p.Email,
		"state":                state,
		"profile":              user,
		"can_access_dashboard": user != nil,
	})
}

func (s *Server) createProfile(c *gin.Context) {
	var req profileRequest
	if !bindJSON(c, &req) {
		return
	}
	p := principal(c)

	user, err := store.CreateUser(c.Request.Context(), s.db, p.UID, p.Email, req.DisplayName, req.Role)
	if err != nil {
		if database.IsUniqueViolation(err) {
			abortWithError(c, http.StatusConflict, "profile_exists", "profile already exists")
			return
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, user)
}

// deleteAccount runs the cart, profile, identity deletion through a
// session so the ordering and recent-login rule match the live client.
func (s *Server) deleteAccount(c *gin.Context) {
	ctx := c.Request.Context()
	sess := s.newSession()
	defer sess.SignOut()

	if err := sess.SignIn(ctx, principal(c)); err != nil {
		respondError(c, err)
		return
	}

	if err := sess.DeleteAccount(ctx); err != nil {
		if errors.Is(err, auth.ErrRequiresRecentLogin) {
			logrus.WithField("uid", principal(c).UID).Info("account deletion needs a fresh login")
		}
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
