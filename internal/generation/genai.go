// Package generation calls the hosted language model through the Google GenAI SDK.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/PortNumber53/techpost-ai/internal/apperr"
	"github.com/PortNumber53/techpost-ai/internal/logging"
	"github.com/PortNumber53/techpost-ai/internal/models"
)

var errEmptyResponse = errors.New("model returned an empty response")

// contentGenerator is the subset of *genai.Models the client needs.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type Options struct {
	Model  string
	RPS    float64
	Burst  int
	Logger *zap.Logger
}

// Client generates post text. It is safe for concurrent use.
type Client struct {
	models  contentGenerator
	model   string
	limiter *rate.Limiter
	logger  *zap.Logger
}

// New creates a Gemini API client.
func New(ctx context.Context, apiKey string, opts Options) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return newClient(gc.Models, opts), nil
}

func newClient(m contentGenerator, opts Options) *Client {
	if opts.Model == "" {
		opts.Model = "gemini-2.5-flash"
	}
	lim := rate.NewLimiter(rate.Inf, 0)
	if opts.RPS > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(opts.RPS), burst)
	}
	return &Client{
		models:  m,
		model:   opts.Model,
		limiter: lim,
		logger:  logging.OrNop(opts.Logger).Named("generation"),
	}
}

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.model }

// Generate sends prompt and the optional attachment and returns the raw text answer.
func (c *Client) Generate(ctx context.Context, prompt string, att *models.Attachment) (string, error) {
	return c.generate(ctx, prompt, att, nil)
}

// GenerateStructured asks the model for a JSON object with title and body fields.
func (c *Client) GenerateStructured(ctx context.Context, prompt string, att *models.Attachment) (string, error) {
	return c.generate(ctx, prompt, att, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   postSchema,
	})
}

var postSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"title": {Type: genai.TypeString, Description: "Título curto do post, no máximo 4 palavras"},
		"body":  {Type: genai.TypeString, Description: "Texto completo do post, sem markdown, com hashtags no final"},
	},
	Required:         []string{"title", "body"},
	PropertyOrdering: []string{"title", "body"},
}

func (c *Client) generate(ctx context.Context, prompt string, att *models.Attachment, cfg *genai.GenerateContentConfig) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", apperr.Generation("rate limit wait", err)
	}

	parts := []*genai.Part{genai.NewPartFromText(prompt)}
	if att != nil && len(att.Data) > 0 {
		parts = append(parts, genai.NewPartFromBytes(att.Data, att.MIMEType))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	c.logger.Debug("generate content",
		zap.String("model", c.model),
		zap.Int("promptBytes", len(prompt)),
		zap.Bool("structured", cfg != nil),
		zap.Bool("attachment", att != nil),
	)

	resp, err := c.models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		c.logger.Warn("generate content failed", zap.String("model", c.model), zap.Error(err))
		return "", apperr.Generation("GenAI generate", err)
	}
	if resp == nil {
		return "", apperr.Generation("GenAI generate", errEmptyResponse)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", apperr.Generation("GenAI generate", errEmptyResponse)
	}
	return text, nil
}
