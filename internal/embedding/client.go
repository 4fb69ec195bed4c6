package embedding

import (
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// ClientConfig describes how to reach an OpenAI-compatible embedding endpoint.
type ClientConfig struct {
	BaseURL string        // e.g. "http://localhost:9997/v1" for a local bge-m3 server
	APIKey  string        // Sent as a bearer token; local servers usually accept any value
	Timeout time.Duration // Per-request timeout; 0 keeps the client default
}

// Client wraps the OpenAI client for embedding generation.
type Client struct {
	client *openai.Client
}

// NewClient creates a client for the configured endpoint.
// SDK retries are disabled; the Embedder owns retry policy.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" && cfg.APIKey == "" {
		return nil, fmt.Errorf("embedding endpoint not configured: set EMBEDDING_BASE_URL or EMBEDDING_API_KEY")
	}

	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	} else {
		// Self-hosted endpoints often run without auth but the SDK requires a key.
		opts = append(opts, option.WithAPIKey("unused"))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	}

	client := openai.NewClient(opts...)
	return &Client{client: &client}, nil
}
