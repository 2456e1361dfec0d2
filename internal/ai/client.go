// Package ai constructs go-llms sessions for the configured provider.
package ai

import (
	"errors"
	"fmt"
	"strings"

	"github.com/flitsinc/go-llms/anthropic"
	"github.com/flitsinc/go-llms/google"
	"github.com/flitsinc/go-llms/llms"
	"github.com/flitsinc/go-llms/openai"
)

type Config struct {
	Provider string
	Model    string
	APIKey   string
}

// Client is a factory for per-run LLM sessions. Each run gets a fresh
// llms.LLM so tool wiring and system prompts never leak across sessions.
type Client struct {
	config Config
}

func NewClient(cfg Config) (*Client, error) {
	// Validate eagerly so a misconfigured process fails at startup, not
	// on the first run.
	if _, err := newLLM(cfg); err != nil {
		return nil, err
	}
	return &Client{config: cfg}, nil
}

// Configured reports whether an execution credential is present.
func (c *Client) Configured() bool {
	return c != nil && c.config.APIKey != ""
}

// NewSession returns a fresh LLM session with the configured model.
func (c *Client) NewSession() (*llms.LLM, error) {
	if c == nil {
		return nil, errors.New("client is nil")
	}
	return newLLM(c.config)
}

// NewSessionWithModel returns a fresh session, overriding the configured
// model when the caller requested one.
func (c *Client) NewSessionWithModel(model string) (*llms.LLM, error) {
	if c == nil {
		return nil, errors.New("client is nil")
	}
	cfg := c.config
	if strings.TrimSpace(model) != "" {
		cfg.Model = strings.TrimSpace(model)
	}
	return newLLM(cfg)
}

func newLLM(cfg Config) (*llms.LLM, error) {
	if cfg.Provider == "" {
		return nil, fmt.Errorf("llm provider is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm model is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm api key is required")
	}

	var provider llms.Provider
	switch cfg.Provider {
	case "google":
		provider = google.New(cfg.Model).WithGeminiAPI(cfg.APIKey)
	case "openai-responses":
		provider = openai.NewResponsesAPI(cfg.APIKey, cfg.Model)
	case "openai-chat":
		provider = openai.NewChatCompletionsAPI(cfg.APIKey, cfg.Model)
	case "anthropic":
		provider = anthropic.New(cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
	return llms.New(provider), nil
}
