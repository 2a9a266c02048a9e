// Package advisor turns greenhouse readings into structured recommendations
// from a generative model.
package advisor

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// DefaultGeminiModel is used when no model name is configured.
const DefaultGeminiModel = "gemini-2.0-flash"

var (
	// ErrInvalidResponse is returned when the model's output cannot be parsed
	// or fails validation.
	ErrInvalidResponse = errors.New("advisor: invalid model response")
	// ErrNotConfigured is returned when no model credentials are available.
	ErrNotConfigured = errors.New("advisor: model not configured")
)

// Request is one structured generation call.
type Request struct {
	Name   string
	Prompt string
	Schema *genai.Schema
}

// Model produces a JSON document for a request.
type Model interface {
	Generate(ctx context.Context, req Request) ([]byte, error)
}

// ModelFunc adapts a function to Model.
type ModelFunc func(ctx context.Context, req Request) ([]byte, error)

func (f ModelFunc) Generate(ctx context.Context, req Request) ([]byte, error) { return f(ctx, req) }

// GeminiModel calls the Gemini API in JSON mode.
type GeminiModel struct {
	client      *genai.Client
	model       string
	temperature float32
	log         *zap.Logger
}

// NewGeminiModel creates a client for apiKey. An empty key yields ErrNotConfigured.
func NewGeminiModel(ctx context.Context, apiKey, model string, logger *zap.Logger) (*GeminiModel, error) {
	if apiKey == "" {
		return nil, ErrNotConfigured
	}
	if model == "" {
		model = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GeminiModel{
		client:      client,
		model:       model,
		temperature: 0.2,
		log:         logger.Named("gemini"),
	}, nil
}

// Generate sends the prompt with the request's response schema.
func (g *GeminiModel) Generate(ctx context.Context, req Request) ([]byte, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(g.temperature),
		ResponseMIMEType: "application/json",
		ResponseSchema:   req.Schema,
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(req.Prompt), cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini %s: %w", req.Name, err)
	}

	text := resp.Text()
	g.log.Debug("model response", zap.String("prompt", req.Name), zap.Int("bytes", len(text)))
	if text == "" {
		return nil, fmt.Errorf("%w: empty response for %s", ErrInvalidResponse, req.Name)
	}
	return []byte(text), nil
}

// Unavailable is a Model that always fails with ErrNotConfigured. It keeps the
// dashboard usable without credentials.
type Unavailable struct{}

func (Unavailable) Generate(context.Context, Request) ([]byte, error) { return nil, ErrNotConfigured }
