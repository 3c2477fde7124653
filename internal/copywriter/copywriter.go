// Package copywriter drafts product copy for sellers with a single call to
// a generative model: structured input in, structured JSON out.
package copywriter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/template"

	"github.com/go-playground/validator/v10"
	"github.com/safar/cosmetics-store/internal/config"
	"github.com/sirupsen/logrus"
)

var (
	ErrNotConfigured   = errors.New("copywriter is not configured")
	ErrInvalidResponse = errors.New("model returned an unusable response")
)

type Input struct {
	ProductName string   `json:"product_name" validate:"required,max=200"`
	Category    string   `json:"category" validate:"max=100"`
	Properties  []string `json:"properties" validate:"max=20,dive,max=200"`
	Audience    string   `json:"audience" validate:"max=200"`
	Language    string   `json:"language" validate:"omitempty,bcp47_language_tag"`
}

type Output struct {
	Description   string   `json:"description" validate:"required"`
	Ingredients   []string `json:"ingredients" validate:"required,min=1,dive,required"`
	MarketingCopy string   `json:"marketing_copy" validate:"required"`
}

const defaultPrompt = `You write product copy for a marketplace selling cosmetic raw materials to formulators.
Product: {{.ProductName}}
{{- if .Category}}
Category: {{.Category}}
{{- end}}
{{- if .Properties}}
Key properties:
{{- range .Properties}}
- {{.}}
{{- end}}
{{- end}}
{{- if .Audience}}
Audience: {{.Audience}}
{{- end}}
Respond in language "{{.Language}}" with JSON containing:
"description" (two factual paragraphs), "ingredients" (INCI names), "marketing_copy" (one short persuasive paragraph).`

// responseSchema constrains the model's JSON reply.
var responseSchema = map[string]any{
	"type": "OBJECT",
	"properties": map[string]any{
		"description":    map[string]any{"type": "STRING"},
		"ingredients":    map[string]any{"type": "ARRAY", "items": map[string]any{"type": "STRING"}},
		"marketing_copy": map[string]any{"type": "STRING"},
	},
	"required": []string{"description", "ingredients", "marketing_copy"},
}

type Client struct {
	endpoint string
	apiKey   string
	model    string
	language string
	prompt   *template.Template
	http     *http.Client
	validate *validator.Validate
}

func New(cfg config.CopywriterConfig) (*Client, error) {
	text := defaultPrompt
	if cfg.PromptPath != "" {
		raw, err := os.ReadFile(cfg.PromptPath)
		if err != nil {
			return nil, fmt.Errorf("read prompt template: %w", err)
		}
		text = string(raw)
	}

	prompt, err := template.New("copy").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse prompt template: %w", err)
	}

	return &Client{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		language: cfg.ResponseLang,
		prompt:   prompt,
		http:     &http.Client{Timeout: cfg.Timeout},
		validate: validator.New(),
	}, nil
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents         []content      `json:"contents"`
	GenerationConfig map[string]any `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *Client) Generate(ctx context.Context, in Input) (*Output, error) {
	if c.apiKey == "" {
		return nil, ErrNotConfigured
	}
	if in.Language == "" {
		in.Language = c.language
	}
	if err := c.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("invalid copy request: %w", err)
	}

	var prompt bytes.Buffer
	if err := c.prompt.Execute(&prompt, in); err != nil {
		return nil, fmt.Errorf("render prompt: %w", err)
	}

	body, err := json.Marshal(generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt.String()}}}},
		GenerationConfig: map[string]any{
			"responseMimeType": "application/json",
			"responseSchema":   responseSchema,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.endpoint, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call model: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read model response: %w", err)
	}

	var decoded generateResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := resp.Status
		if decoded.Error != nil {
			msg = decoded.Error.Message
		}
		return nil, fmt.Errorf("model call failed: %s", msg)
	}
	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("%w: no candidates", ErrInvalidResponse)
	}

	out := &Output{}
	text := decoded.Candidates[0].Content.Parts[0].Text
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if err := c.validate.Struct(out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	logrus.WithFields(logrus.Fields{
		"product":     in.ProductName,
		"ingredients": len(out.Ingredients),
	}).Debug("product copy generated")

	return out, nil
}
