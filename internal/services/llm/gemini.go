package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.5-flash"

// GeminiProvider implements VisionProvider using the Google Gemini API.
type GeminiProvider struct {
	client *genai.Client
	model  string
	logger arbor.ILogger
}

var _ VisionProvider = (*GeminiProvider)(nil)

// NewGeminiProvider creates a Gemini vision provider.
func NewGeminiProvider(ctx context.Context, apiKey, model string, logger arbor.ILogger) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Google API key is required for the Gemini provider")
	}
	if model == "" {
		model = defaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Gemini client: %w", err)
	}

	return &GeminiProvider{
		client: client,
		model:  model,
		logger: logger,
	}, nil
}

// Name implements VisionProvider.
func (p *GeminiProvider) Name() string { return "gemini" }

// SummarizeImage implements VisionProvider.
func (p *GeminiProvider) SummarizeImage(ctx context.Context, png []byte, prompt string) (string, error) {
	content := &genai.Content{
		Role: genai.RoleUser,
		Parts: []*genai.Part{
			genai.NewPartFromBytes(png, "image/png"),
			genai.NewPartFromText(prompt),
		},
	}
	return p.generate(ctx, []*genai.Content{content})
}

// SummarizeText implements VisionProvider.
func (p *GeminiProvider) SummarizeText(ctx context.Context, prompt string) (string, error) {
	return p.generate(ctx, []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)})
}

func (p *GeminiProvider) generate(ctx context.Context, contents []*genai.Content) (string, error) {
	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("Gemini generation failed: %w", err)
	}

	var out strings.Builder
	if resp != nil {
		for _, candidate := range resp.Candidates {
			if candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				out.WriteString(part.Text)
			}
			if out.Len() > 0 {
				break
			}
		}
	}
	if out.Len() == 0 {
		return "", fmt.Errorf("no response generated from Gemini API")
	}
	return out.String(), nil
}
