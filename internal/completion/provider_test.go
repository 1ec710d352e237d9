package completion

import (
	"context"
	"strings"
	"testing"
)

func TestNewProviderModes(t *testing.T) {
	cases := []struct {
		name    string
		cfg     Config
		want    string
		wantErr bool
	}{
		{"auto without keys", Config{Mode: "auto"}, "mock", false},
		{"auto prefers openai", Config{Mode: "auto", OpenAIAPIKey: "sk-x", AnthropicAPIKey: "sk-y"}, "openai", false},
		{"auto falls back to anthropic", Config{Mode: "auto", AnthropicAPIKey: "sk-y"}, "anthropic", false},
		{"explicit mock", Config{Mode: "mock", OpenAIAPIKey: "sk-x"}, "mock", false},
		{"empty mode is auto", Config{}, "mock", false},
		{"openai without key", Config{Mode: "openai"}, "", true},
		{"anthropic without key", Config{Mode: "anthropic"}, "", true},
		{"unknown mode", Config{Mode: "oracle"}, "", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := NewProvider(tc.cfg)
			if tc.wantErr {
				if err == nil {
					t.Fatal("NewProvider() succeeded, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewProvider() error = %v", err)
			}
			if p.Name() != tc.want {
				t.Fatalf("Name() = %q, want %q", p.Name(), tc.want)
			}
		})
	}
}

func TestMockProviderIsDeterministic(t *testing.T) {
	p := NewMockProvider()

	tip, err := p.AnalyzeTranscript(context.Background(), TipRequest{TriggerKeyword: "too expensive"})
	if err != nil {
		t.Fatalf("AnalyzeTranscript() error = %v", err)
	}
	if !strings.Contains(tip.Text, "too expensive") {
		t.Fatalf("tip text = %q, want trigger keyword echoed", tip.Text)
	}
	if tip.Category != "objection_handling" {
		t.Fatalf("Category = %q", tip.Category)
	}

	sum, err := p.Summarize(context.Background(), SummaryRequest{Transcript: "[customer] a\n[seller] b"})
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if !strings.Contains(sum.Narrative, "2 transcript lines") {
		t.Fatalf("Narrative = %q", sum.Narrative)
	}
	if sum.InterestScore != 55 {
		t.Fatalf("InterestScore = %d, want 55", sum.InterestScore)
	}
}

func TestDecodeModelJSONToleratesSurroundingProse(t *testing.T) {
	var out TipResult
	raw := "Sure! Here's the tip:\n{\"text\": \"ask about timeline\", \"category\": \"discovery\"}\nHope that helps."
	if err := decodeModelJSON(raw, &out); err != nil {
		t.Fatalf("decodeModelJSON() error = %v", err)
	}
	if out.Text != "ask about timeline" || out.Category != "discovery" {
		t.Fatalf("decoded = %+v", out)
	}
}

func TestDecodeModelJSONRejectsNonJSON(t *testing.T) {
	var out TipResult
	if err := decodeModelJSON("I cannot help with that.", &out); err == nil {
		t.Fatal("decodeModelJSON() of prose succeeded, want error")
	}
}

func TestBuildTipPromptIncludesContext(t *testing.T) {
	prompt := buildTipPrompt(TipRequest{
		PriorNarrative: "customer cares about uptime",
		Transcript:     "[customer] is it reliable?",
		TriggerKeyword: "not sure",
		Seq:            12,
		Mode:           "live_call",
	})
	for _, want := range []string{"customer cares about uptime", "is it reliable?", "not sure", "segment 12"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestClampScore(t *testing.T) {
	if got := clampScore(-5); got != 0 {
		t.Fatalf("clampScore(-5) = %d, want 0", got)
	}
	if got := clampScore(150); got != 100 {
		t.Fatalf("clampScore(150) = %d, want 100", got)
	}
	if got := clampScore(73); got != 73 {
		t.Fatalf("clampScore(73) = %d, want 73", got)
	}
}
