package extract

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/IshaanNene/unitscout/internal/config"
	"github.com/IshaanNene/unitscout/internal/types"
)

// LLMProvider specifies which LLM backend to use.
type LLMProvider string

const (
	ProviderOllama LLMProvider = "ollama"
	ProviderOpenAI LLMProvider = "openai"

	defaultOllamaEndpoint = "http://localhost:11434"
)

// Completer turns a prompt into a single completion.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// LLMClient talks to an OpenAI-compatible chat completion API.
type LLMClient struct {
	cfg    config.LLMConfig
	client *openai.Client
	logger *slog.Logger
}

// NewLLMClient creates a new LLM client. Ollama is reached through its
// OpenAI-compatible /v1 endpoint.
func NewLLMClient(cfg config.LLMConfig, logger *slog.Logger) (*LLMClient, error) {
	var oc openai.ClientConfig
	switch LLMProvider(cfg.Provider) {
	case ProviderOpenAI:
		oc = openai.DefaultConfig(cfg.APIKey)
		if cfg.Endpoint != "" {
			oc.BaseURL = strings.TrimRight(cfg.Endpoint, "/")
		}
	case ProviderOllama:
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = defaultOllamaEndpoint
		}
		oc = openai.DefaultConfig("ollama")
		oc.BaseURL = strings.TrimRight(endpoint, "/") + "/v1"
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
	if cfg.Timeout > 0 {
		oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &LLMClient{
		cfg:    cfg,
		client: openai.NewClientWithConfig(oc),
		logger: logger.With("component", "llm_client", "provider", cfg.Provider, "model", cfg.Model),
	}, nil
}

// Complete sends a prompt as a single user message and returns the reply.
func (c *LLMClient) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%s chat completion: %w", c.cfg.Provider, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s chat completion: %w", c.cfg.Provider, types.ErrEmptyResponse)
	}

	c.logger.Debug("completion received",
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)
	return resp.Choices[0].Message.Content, nil
}
