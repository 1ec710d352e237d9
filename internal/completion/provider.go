package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// TipRequest asks for one coaching tip grounded in the live transcript.
type TipRequest struct {
	SessionID      string
	Mode           string
	TriggerKeyword string
	Seq            int64
	PriorNarrative string
	Transcript     string
}

type TipResult struct {
	Text     string `json:"text"`
	Category string `json:"category,omitempty"`
}

// SummaryRequest asks for a condensation of one compaction window.
type SummaryRequest struct {
	SessionID      string
	PriorNarrative string
	Transcript     string
}

type SummaryResult struct {
	Narrative     string   `json:"narrative"`
	PainPoints    []string `json:"pain_points"`
	Objections    []string `json:"objections"`
	InterestScore int      `json:"interest_score"`
}

// Provider is the external completion service seen from the gateway.
type Provider interface {
	Name() string
	AnalyzeTranscript(ctx context.Context, req TipRequest) (TipResult, error)
	Summarize(ctx context.Context, req SummaryRequest) (SummaryResult, error)
}

// Config controls provider construction.
type Config struct {
	Mode            string
	OpenAIAPIKey    string
	OpenAIModel     string
	AnthropicAPIKey string
	AnthropicModel  string
}

// NewProvider builds a completion provider by mode. Auto prefers OpenAI,
// then Anthropic, falling back to the deterministic mock.
func NewProvider(cfg Config) (Provider, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.OpenAIAPIKey) != "" {
			return NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIModel), nil
		}
		if strings.TrimSpace(cfg.AnthropicAPIKey) != "" {
			return NewAnthropicProvider(cfg.AnthropicAPIKey, cfg.AnthropicModel), nil
		}
		return NewMockProvider(), nil
	case "openai":
		if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
			return nil, errors.New("OPENAI_API_KEY is required for openai mode")
		}
		return NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIModel), nil
	case "anthropic":
		if strings.TrimSpace(cfg.AnthropicAPIKey) == "" {
			return nil, errors.New("ANTHROPIC_API_KEY is required for anthropic mode")
		}
		return NewAnthropicProvider(cfg.AnthropicAPIKey, cfg.AnthropicModel), nil
	case "mock":
		return NewMockProvider(), nil
	default:
		return nil, fmt.Errorf("unsupported completion provider mode %q", cfg.Mode)
	}
}
