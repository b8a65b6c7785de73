package llm

import (
	"context"
	"fmt"
	"time"

	anthropic "github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"
)

const anthropicEndpoint = "https://api.anthropic.com"

// anthropicMaxTokens bounds completion length; the SQL payloads the engine
// asks for are far smaller.
const anthropicMaxTokens = 4096

// Anthropic talks to the Anthropic Messages API. It carries no embedding
// support; retrieval features need an openai-compatible embedding endpoint.
type Anthropic struct {
	client *anthropic.Client
	model  string
	logger *zap.Logger
}

var _ Client = (*Anthropic)(nil)

// NewAnthropic creates an Anthropic client.
func NewAnthropic(cfg Config, logger *zap.Logger) (*Anthropic, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required for the anthropic provider")
	}

	return &Anthropic{
		client: anthropic.NewClient(cfg.APIKey),
		model:  cfg.Model,
		logger: logger.Named("llm-anthropic"),
	}, nil
}

// GenerateResponse implements Client.
func (c *Anthropic) GenerateResponse(ctx context.Context, prompt, systemMessage string, temperature float64) (string, error) {
	temp := float32(temperature)

	c.logger.Debug("messages request",
		zap.String("model", c.model),
		zap.Int("prompt_tokens_est", CountTokens(c.model, systemMessage+prompt)))

	start := time.Now()
	resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:       anthropic.Model(c.model),
		System:      systemMessage,
		MaxTokens:   anthropicMaxTokens,
		Temperature: &temp,
		Messages: []anthropic.Message{
			{
				Role: anthropic.RoleUser,
				Content: []anthropic.MessageContent{
					{Type: anthropic.MessagesContentTypeText, Text: &prompt},
				},
			},
		},
	})
	if err != nil {
		c.logger.Error("messages request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return "", ClassifyError(err)
	}

	for _, block := range resp.Content {
		if block.Type == anthropic.MessagesContentTypeText && block.Text != nil {
			c.logger.Info("messages request done",
				zap.Int("input_tokens", resp.Usage.InputTokens),
				zap.Int("output_tokens", resp.Usage.OutputTokens),
				zap.Duration("elapsed", time.Since(start)))
			return *block.Text, nil
		}
	}

	return "", NewError(ErrorTypeUnknown, "no text content in response", true, nil)
}

// CreateEmbedding implements Client. Anthropic has no embedding API.
func (c *Anthropic) CreateEmbedding(ctx context.Context, input, model string) ([]float32, error) {
	return nil, fmt.Errorf("the anthropic provider does not serve embeddings; configure an openai-compatible embedding endpoint")
}

// CreateEmbeddings implements Client.
func (c *Anthropic) CreateEmbeddings(ctx context.Context, inputs []string, model string) ([][]float32, error) {
	return nil, fmt.Errorf("the anthropic provider does not serve embeddings; configure an openai-compatible embedding endpoint")
}

// GetModel implements Client.
func (c *Anthropic) GetModel() string {
	return c.model
}

// GetEndpoint implements Client.
func (c *Anthropic) GetEndpoint() string {
	return anthropicEndpoint
}
