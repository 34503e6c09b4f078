package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
)

const defaultClaudeModel = "claude-sonnet-4-20250514"

// ClaudeProvider implements VisionProvider using the Anthropic API.
type ClaudeProvider struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	logger    arbor.ILogger
}

var _ VisionProvider = (*ClaudeProvider)(nil)

// NewClaudeProvider creates a Claude vision provider.
func NewClaudeProvider(apiKey, model string, maxTokens int, logger arbor.ILogger) (*ClaudeProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required for the Claude provider")
	}
	if model == "" {
		model = defaultClaudeModel
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &ClaudeProvider{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     model,
		maxTokens: int64(maxTokens),
		logger:    logger,
	}, nil
}

// Name implements VisionProvider.
func (p *ClaudeProvider) Name() string { return "claude" }

// SummarizeImage implements VisionProvider.
func (p *ClaudeProvider) SummarizeImage(ctx context.Context, png []byte, prompt string) (string, error) {
	encoded := base64.StdEncoding.EncodeToString(png)
	msg := anthropic.NewUserMessage(
		anthropic.NewImageBlockBase64("image/png", encoded),
		anthropic.NewTextBlock(prompt),
	)
	return p.complete(ctx, []anthropic.MessageParam{msg})
}

// SummarizeText implements VisionProvider.
func (p *ClaudeProvider) SummarizeText(ctx context.Context, prompt string) (string, error) {
	msg := anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))
	return p.complete(ctx, []anthropic.MessageParam{msg})
}

func (p *ClaudeProvider) complete(ctx context.Context, messages []anthropic.MessageParam) (string, error) {
	resp, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: p.maxTokens,
		Messages:  messages,
	})
	if err != nil {
		return "", fmt.Errorf("Claude API call failed: %w", err)
	}

	var out strings.Builder
	for _, block := range resp.Content {
		if block.Type == anthropic.ContentBlockTypeText {
			out.WriteString(block.Text)
		}
	}
	if out.Len() == 0 {
		return "", fmt.Errorf("no response generated from Claude API")
	}
	return out.String(), nil
}
