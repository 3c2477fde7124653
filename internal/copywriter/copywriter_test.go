package copywriter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/safar/cosmetics-store/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func modelServer(t *testing.T, status int, reply string) (*httptest.Server, *generateRequest) {
	t.Helper()
	captured := &generateRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/test-model:generateContent", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("x-goog-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(captured))

		w.WriteHeader(status)
		w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv, captured
}

func candidate(text string) string {
	body, _ := json.Marshal(map[string]any{
		"candidates": []any{
			map[string]any{"content": map[string]any{"parts": []any{map[string]any{"text": text}}}},
		},
	})
	return string(body)
}

func newClient(t *testing.T, endpoint string) *Client {
	t.Helper()
	c, err := New(config.CopywriterConfig{
		Endpoint:     endpoint,
		APIKey:       "key",
		Model:        "test-model",
		Timeout:      5 * time.Second,
		ResponseLang: "en",
	})
	require.NoError(t, err)
	return c
}

func TestGenerateDecodesStructuredReply(t *testing.T) {
	reply := candidate(`{"description":"A humectant.","ingredients":["Glycerin"],"marketing_copy":"Hydration, simplified."}`)
	srv, captured := modelServer(t, http.StatusOK, reply)

	out, err := newClient(t, srv.URL).Generate(context.Background(), Input{
		ProductName: "Vegetable Glycerin",
		Category:    "Humectants",
		Properties:  []string{"99.7% USP", "palm-free"},
	})
	require.NoError(t, err)

	assert.Equal(t, "A humectant.", out.Description)
	assert.Equal(t, []string{"Glycerin"}, out.Ingredients)
	assert.Equal(t, "Hydration, simplified.", out.MarketingCopy)

	require.Len(t, captured.Contents, 1)
	prompt := captured.Contents[0].Parts[0].Text
	assert.Contains(t, prompt, "Vegetable Glycerin")
	assert.Contains(t, prompt, "- palm-free")
	assert.Equal(t, "application/json", captured.GenerationConfig["responseMimeType"])
}

func TestGenerateRejectsIncompleteReply(t *testing.T) {
	srv, _ := modelServer(t, http.StatusOK, candidate(`{"description":"x","ingredients":[],"marketing_copy":"y"}`))

	_, err := newClient(t, srv.URL).Generate(context.Background(), Input{ProductName: "Squalane"})
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestGenerateSurfacesModelError(t *testing.T) {
	srv, _ := modelServer(t, http.StatusTooManyRequests, `{"error":{"code":429,"message":"quota exceeded"}}`)

	_, err := newClient(t, srv.URL).Generate(context.Background(), Input{ProductName: "Squalane"})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "quota exceeded"))
}

func TestGenerateValidatesInput(t *testing.T) {
	c := newClient(t, "http://127.0.0.1:0")

	_, err := c.Generate(context.Background(), Input{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid copy request")
}

func TestGenerateWithoutKey(t *testing.T) {
	c, err := New(config.CopywriterConfig{Endpoint: "http://unused", Model: "m"})
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), Input{ProductName: "Squalane"})
	assert.ErrorIs(t, err, ErrNotConfigured)
}
