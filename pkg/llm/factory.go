package llm

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/indaba-ai/indaba-engine/pkg/apperrors"
	"github.com/indaba-ai/indaba-engine/pkg/config"
)

// NewFromConfig builds the provider client selected by llm.provider.
func NewFromConfig(cfg config.LLMConfig, logger *zap.Logger) (Client, error) {
	clientCfg := Config{
		Endpoint: cfg.Endpoint,
		Model:    cfg.Model,
		APIKey:   cfg.APIKey,
	}

	switch strings.ToLower(cfg.Provider) {
	case "", "openai":
		return NewOpenAI(clientCfg, logger)
	case "anthropic":
		return NewAnthropic(clientCfg, logger)
	default:
		return nil, fmt.Errorf("%w: llm provider %q", apperrors.ErrConfigInvalid, cfg.Provider)
	}
}
