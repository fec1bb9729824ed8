// Package llm reaches the text generation oracle used for rule parsing and chat.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/aryan0dhankhar/rulemaster/internal/domain"
	"github.com/aryan0dhankhar/rulemaster/internal/observability/metrics"
)

const (
	// DefaultBaseURL is Gemini's OpenAI-compatible endpoint
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
	DefaultModel   = "gemini-1.5-flash"
)

// Provider is a text generation backend
type Provider interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Name() string
}

// Config configures the OpenAI-compatible provider
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// OpenAIProvider calls a chat completion endpoint with a single user message
type OpenAIProvider struct {
	client openai.Client
	model  string
	logger *slog.Logger
}

// NewOpenAIProvider builds a provider. Requests are traced through otelhttp and
// never retried by the SDK.
func NewOpenAIProvider(cfg Config, logger *slog.Logger) (*OpenAIProvider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("oracle API key is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	httpClient := &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	client := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(baseURL),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	)

	logger.Info("oracle provider configured", slog.String("base_url", baseURL), slog.String("model", model))
	return &OpenAIProvider{client: client, model: model, logger: logger}, nil
}

// Complete sends prompt as one user message and returns the first choice's text
func (p *OpenAIProvider) Complete(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		metrics.ObserveOracle(p.Name(), "error", time.Since(start))
		p.logger.Error("oracle request failed", slog.String("model", p.model), slog.String("error", err.Error()))
		return "", fmt.Errorf("%w: oracle request failed: %v", domain.ErrUpstream, err)
	}
	if len(resp.Choices) == 0 {
		metrics.ObserveOracle(p.Name(), "empty", time.Since(start))
		return "", fmt.Errorf("%w: oracle returned no choices", domain.ErrUpstream)
	}

	metrics.ObserveOracle(p.Name(), "success", time.Since(start))
	p.logger.Debug("oracle request succeeded", slog.Duration("duration", time.Since(start)))
	return resp.Choices[0].Message.Content, nil
}

// Name identifies the provider in metrics and logs
func (p *OpenAIProvider) Name() string {
	return "openai-compatible"
}
