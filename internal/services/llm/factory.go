package llm

import (
	"context"
	"fmt"
	"os"

	"github.com/ternarybob/arbor"

	"github.com/kstocklab/finsight/internal/common"
)

// NewProvider builds the configured vision provider. The API key comes from
// the env var named in config; provider selection is config-driven.
func NewProvider(ctx context.Context, cfg *common.LLMConfig, logger arbor.ILogger) (VisionProvider, error) {
	apiKey := os.Getenv(cfg.APIKeyEnv)

	switch cfg.Provider {
	case "claude", "":
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		return NewClaudeProvider(apiKey, cfg.Model, cfg.MaxTokens, logger)
	case "gemini":
		if apiKey == "" {
			apiKey = os.Getenv("GOOGLE_API_KEY")
		}
		return NewGeminiProvider(ctx, apiKey, cfg.Model, logger)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q (expected \"claude\" or \"gemini\")", cfg.Provider)
	}
}
