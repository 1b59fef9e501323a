package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
)

const (
	OllamaName    = "ollama"
	AnthropicName = "anthropic"

	DefaultOllamaURL       = "http://localhost:11434"
	anthropicDefaultTokens = 4096
)

// EinoConfig configures a chat model reached through Eino.
type EinoConfig struct {
	Provider    string // "ollama" or "anthropic"
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// EinoClient adapts an Eino chat model to LLMClient.
type EinoClient struct {
	name        string
	model       string
	apiKey      string
	baseURL     string
	temperature float64
	maxTokens   int
	chat        model.BaseChatModel
}

// NewEinoClient builds the Eino chat model for cfg.Provider.
func NewEinoClient(ctx context.Context, cfg EinoConfig) (*EinoClient, error) {
	var (
		cm  model.BaseChatModel
		err error
	)
	switch cfg.Provider {
	case OllamaName:
		if cfg.BaseURL == "" {
			cfg.BaseURL = DefaultOllamaURL
		}
		cm, err = ollama.NewChatModel(ctx, &ollama.ChatModelConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		})
	case AnthropicName:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("anthropic API key is required")
		}
		maxTokens := cfg.MaxTokens
		if maxTokens <= 0 {
			maxTokens = anthropicDefaultTokens
		}
		cm, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			MaxTokens: maxTokens,
		})
	default:
		return nil, fmt.Errorf("unsupported eino provider: %s (supported: ollama, anthropic)", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s chat model: %w", cfg.Provider, err)
	}
	return newEinoClient(cfg, cm), nil
}

func newEinoClient(cfg EinoConfig, cm model.BaseChatModel) *EinoClient {
	return &EinoClient{
		name:        cfg.Provider,
		model:       cfg.Model,
		apiKey:      cfg.APIKey,
		baseURL:     cfg.BaseURL,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		chat:        cm,
	}
}

// Name returns the provider identifier.
func (c *EinoClient) Name() string {
	return c.name
}

// Chat sends the conversation through the Eino model.
func (c *EinoClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	start := time.Now()
	if req == nil || len(req.Messages) == 0 {
		err := fmt.Errorf("at least one message is required")
		return &ChatResult{Provider: c.name, ErrorMessage: err.Error()}, err
	}

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}

	var opts []model.Option
	if t := firstNonZero(req.Temperature, c.temperature); t > 0 {
		opts = append(opts, model.WithTemperature(float32(t)))
	}
	if req.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(req.MaxTokens))
	}
	if req.Model != "" {
		opts = append(opts, model.WithModel(req.Model))
	}

	out, err := c.chat.Generate(ctx, toEinoMessages(req.Messages), opts...)
	if err != nil {
		return &ChatResult{
			Provider:      c.name,
			ModelUsed:     c.model,
			RequestID:     requestID,
			ErrorMessage:  err.Error(),
			ExecutionTime: time.Since(start),
		}, fmt.Errorf("%s generate failed: %w", c.name, err)
	}

	result := &ChatResult{
		Content:       out.Content,
		ExecutionTime: time.Since(start),
		Provider:      c.name,
		ModelUsed:     c.model,
		RequestID:     requestID,
		Success:       true,
	}
	if out.ResponseMeta != nil && out.ResponseMeta.Usage != nil {
		result.PromptTokens = out.ResponseMeta.Usage.PromptTokens
		result.CompletionTokens = out.ResponseMeta.Usage.CompletionTokens
		result.TotalTokens = out.ResponseMeta.Usage.TotalTokens
	}
	return result, nil
}

func toEinoMessages(msgs []Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case "system":
			out = append(out, schema.SystemMessage(m.Content))
		case "assistant":
			out = append(out, schema.AssistantMessage(m.Content, nil))
		default:
			out = append(out, schema.UserMessage(m.Content))
		}
	}
	return out
}

var _ LLMClient = (*EinoClient)(nil)
