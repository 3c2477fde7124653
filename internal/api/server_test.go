package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/safar/cosmetics-store/internal/auth"
	"github.com/safar/cosmetics-store/internal/config"
	"github.com/safar/cosmetics-store/internal/copywriter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

const testSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	authSvc := auth.NewService(nil, config.AuthConfig{
		JWTSecret:         testSecret,
		TokenTTL:          time.Hour,
		RecentLoginWindow: 5 * time.Minute,
	}, auth.NewMemoryRevoker())

	return NewServer(Deps{
		Auth:   authSvc,
		Server: config.ServerConfig{AllowedOrigins: []string{"http://localhost:3000"}},
	})
}

func issueToken(t *testing.T) string {
	t.Helper()
	token, _, err := auth.NewTokenIssuer(testSecret, time.Hour).Issue(uuid.New(), "buyer@example.com")
	require.NoError(t, err)
	return token
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apiError {
	t.Helper()
	var body struct {
		Error apiError `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestHealth(t *testing.T) {
	r := newTestServer(t).Router()

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestProtectedRouteRequiresToken(t *testing.T) {
	r := newTestServer(t).Router()

	for _, path := range []string{"/cart", "/orders", "/me", "/messages/unread"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
		assert.Equal(t, "unauthorized", decodeError(t, rec).Code, path)
	}
}

func TestForeignTokenRejected(t *testing.T) {
	r := newTestServer(t).Router()
	token, _, err := auth.NewTokenIssuer("another-secret", time.Hour).Issue(uuid.New(), "x@example.com")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutRevokesToken(t *testing.T) {
	r := newTestServer(t).Router()
	token := issueToken(t)

	logout := func() int {
		req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, logout())
	assert.Equal(t, http.StatusUnauthorized, logout())
}

func TestRegisterValidatesBody(t *testing.T) {
	r := newTestServer(t).Router()

	body := `{"email":"a@example.com","password":"longenough","display_name":"Ana","role":"admin"}`
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewBufferString(body)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_input", decodeError(t, rec).Code)
}

func TestCheckOrigin(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	assert.True(t, s.checkOrigin(req))

	req.Header.Set("Origin", "http://localhost:3000")
	assert.True(t, s.checkOrigin(req))

	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, s.checkOrigin(req))
}

func TestRateLimiterPerKey(t *testing.T) {
	rl := newRateLimiter(rate.Every(time.Hour), 2)

	assert.True(t, rl.allow("a"))
	assert.True(t, rl.allow("a"))
	assert.False(t, rl.allow("a"))
	assert.True(t, rl.allow("b"))
}

type fakeCopy struct {
	out *copywriter.Output
	err error
	in  copywriter.Input
}

func (f *fakeCopy) Generate(_ context.Context, in copywriter.Input) (*copywriter.Output, error) {
	f.in = in
	return f.out, f.err
}

func copyEngine(gen CopyGenerator) *gin.Engine {
	s := &Server{copy: gen}
	r := gin.New()
	r.POST("/copy/generate", s.generateCopy)
	return r
}

func TestGenerateCopy(t *testing.T) {
	gen := &fakeCopy{out: &copywriter.Output{
		Description:   "Cold-pressed and unrefined.",
		Ingredients:   []string{"Butyrospermum Parkii Butter"},
		MarketingCopy: "Pure shea, nothing else.",
	}}
	r := copyEngine(gen)

	body := `{"product_name":"Shea Butter","properties":["unrefined"]}`
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/copy/generate", bytes.NewBufferString(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Shea Butter", gen.in.ProductName)
	assert.Equal(t, []string{"unrefined"}, gen.in.Properties)

	var out copywriter.Output
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, gen.out.Ingredients, out.Ingredients)
}

func TestGenerateCopyBadModelReply(t *testing.T) {
	r := copyEngine(&fakeCopy{err: copywriter.ErrInvalidResponse})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/copy/generate", bytes.NewBufferString(`{"product_name":"x"}`)))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "copywriter_failed", decodeError(t, rec).Code)
}
