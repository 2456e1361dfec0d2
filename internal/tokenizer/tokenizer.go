// Package tokenizer counts tokens for context-size metrics. Counting is
// best-effort: failures default to zero and are never surfaced to users.
package tokenizer

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Tokenizer returns an approximate token count for text under a model.
type Tokenizer interface {
	CountTokens(ctx context.Context, model, text string) (int, error)
}

// Gemini counts tokens via the Gemini API, mirroring how the engine's own
// provider tokenizes.
type Gemini struct {
	client *genai.Client
}

func NewGemini(ctx context.Context, apiKey string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Gemini{client: client}, nil
}

func (g *Gemini) CountTokens(ctx context.Context, model, text string) (int, error) {
	resp, err := g.client.Models.CountTokens(ctx, model, genai.Text(text), nil)
	if err != nil {
		return 0, fmt.Errorf("count tokens: %w", err)
	}
	return int(resp.TotalTokens), nil
}

// Approximate is a heuristic fallback used when no API-backed tokenizer is
// configured: roughly four bytes per token.
type Approximate struct{}

func (Approximate) CountTokens(_ context.Context, _ string, text string) (int, error) {
	return (len(text) + 3) / 4, nil
}
