package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/eliaslindqvist/salescoach/internal/reliability"
)

// AnthropicProvider runs analysis and summarization through the Anthropic
// Messages API.
type AnthropicProvider struct {
	client anthropic.Client
	model  anthropic.Model
}

func NewAnthropicProvider(apiKey, model string) *AnthropicProvider {
	if model == "" {
		model = "claude-3-5-haiku-latest"
	}
	return &AnthropicProvider{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropic.Model(model),
	}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) AnalyzeTranscript(ctx context.Context, req TipRequest) (TipResult, error) {
	raw, err := p.complete(ctx, tipSystemPrompt, buildTipPrompt(req))
	if err != nil {
		return TipResult{}, err
	}
	var out TipResult
	if err := decodeModelJSON(raw, &out); err != nil {
		return TipResult{}, fmt.Errorf("decode tip: %w", err)
	}
	if out.Text == "" {
		return TipResult{}, errors.New("empty tip text")
	}
	return out, nil
}

func (p *AnthropicProvider) Summarize(ctx context.Context, req SummaryRequest) (SummaryResult, error) {
	raw, err := p.complete(ctx, summarySystemPrompt, buildSummaryPrompt(req))
	if err != nil {
		return SummaryResult{}, err
	}
	var out SummaryResult
	if err := decodeModelJSON(raw, &out); err != nil {
		return SummaryResult{}, fmt.Errorf("decode summary: %w", err)
	}
	out.InterestScore = clampScore(out.InterestScore)
	return out, nil
}

func (p *AnthropicProvider) complete(ctx context.Context, system, user string) (string, error) {
	var content string
	err := reliability.Retry(ctx, 2, 300*time.Millisecond, 2*time.Second, isRetryableAnthropic, func() error {
		resp, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:       p.model,
			MaxTokens:   512,
			Temperature: anthropic.Float(0.3),
			System: []anthropic.TextBlockParam{
				{Text: system},
			},
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
			},
		})
		if err != nil {
			return fmt.Errorf("anthropic completion: %w", err)
		}

		var b strings.Builder
		for _, block := range resp.Content {
			if block.Type == "text" {
				b.WriteString(block.AsText().Text)
			}
		}
		if b.Len() == 0 {
			return errors.New("anthropic completion: empty response")
		}
		content = b.String()
		return nil
	})
	return content, err
}

func isRetryableAnthropic(err error) bool {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		return reliability.IsRetryableHTTPStatus(apierr.StatusCode)
	}
	return false
}
