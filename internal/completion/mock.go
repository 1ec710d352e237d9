package completion

import (
	"context"
	"fmt"
	"strings"
)

// MockProvider returns deterministic results without network calls. Used in
// tests and when no API key is configured.
type MockProvider struct{}

func NewMockProvider() *MockProvider { return &MockProvider{} }

func (p *MockProvider) Name() string { return "mock" }

func (p *MockProvider) AnalyzeTranscript(_ context.Context, req TipRequest) (TipResult, error) {
	return TipResult{
		Text:     fmt.Sprintf("Acknowledge the concern behind %q and ask an open question.", req.TriggerKeyword),
		Category: "objection_handling",
	}, nil
}

func (p *MockProvider) Summarize(_ context.Context, req SummaryRequest) (SummaryResult, error) {
	lines := strings.Count(req.Transcript, "\n") + 1
	return SummaryResult{
		Narrative:     fmt.Sprintf("Mock summary of %d transcript lines.", lines),
		InterestScore: 55,
	}, nil
}
