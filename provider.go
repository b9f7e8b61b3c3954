package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type CompletionRequest struct {
	System    string
	Messages  []ChatMessage
	MaxTokens int
}

// Completion is the provider-neutral result of one model call.
type Completion struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
}

type Provider interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (Completion, error)
}

type ProviderConfig struct {
	Name    string
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext:           (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			MaxIdleConns:          10,
			IdleConnTimeout:       90 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// NewProvider picks the request/response contract once, from configuration.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	client := newHTTPClient(cfg.Timeout)
	switch strings.ToLower(strings.TrimSpace(cfg.Name)) {
	case ProviderAnthropic:
		return newAnthropicProvider(cfg, client), nil
	case ProviderOpenAI:
		return newOpenAIProvider(cfg, client), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Name)
	}
}
