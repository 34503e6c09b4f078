// Package llm provides the multimodal summarizer providers used by the
// ingestion pipeline. Two providers are supported, selected by config:
// Claude (Anthropic) and Gemini (Google).
package llm

import "context"

// VisionProvider generates short textual summaries from page crops.
type VisionProvider interface {
	// Name identifies the provider ("claude" or "gemini").
	Name() string

	// SummarizeImage describes a PNG crop guided by the prompt.
	SummarizeImage(ctx context.Context, png []byte, prompt string) (string, error)

	// SummarizeText completes a plain text prompt.
	SummarizeText(ctx context.Context, prompt string) (string, error)
}
