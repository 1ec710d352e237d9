package completion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/eliaslindqvist/salescoach/internal/reliability"
)

// OpenAIProvider runs analysis and summarization through the OpenAI Chat
// Completions API.
type OpenAIProvider struct {
	client openai.Client
	model  string
}

func NewOpenAIProvider(apiKey, model string) *OpenAIProvider {
	if model == "" {
		model = openai.ChatModelGPT4oMini
	}
	return &OpenAIProvider{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) AnalyzeTranscript(ctx context.Context, req TipRequest) (TipResult, error) {
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

func (p *OpenAIProvider) Summarize(ctx context.Context, req SummaryRequest) (SummaryResult, error) {
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

func (p *OpenAIProvider) complete(ctx context.Context, system, user string) (string, error) {
	var content string
	err := reliability.Retry(ctx, 2, 300*time.Millisecond, 2*time.Second, isRetryableOpenAI, func() error {
		resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.SystemMessage(system),
				openai.UserMessage(user),
			},
			Model:               p.model,
			Temperature:         openai.Float(0.3),
			MaxCompletionTokens: openai.Int(512),
		})
		if err != nil {
			return fmt.Errorf("openai completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			return errors.New("openai completion: no choices returned")
		}
		content = resp.Choices[0].Message.Content
		return nil
	})
	return content, err
}

func isRetryableOpenAI(err error) bool {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		return reliability.IsRetryableHTTPStatus(apierr.StatusCode)
	}
	return false
}
