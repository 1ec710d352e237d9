package completion

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const tipSystemPrompt = `You are a realtime sales coach listening to a live call. ` +
	`Given the conversation so far and the phrase that triggered this request, ` +
	`produce one short, actionable tip for the seller. Respond with strict JSON: ` +
	`{"text": string, "category": string}. Categories: objection_handling, ` +
	`discovery, closing, rapport.`

const summarySystemPrompt = `You condense sales-call transcripts. Given the prior ` +
	`summary and the new transcript window, respond with strict JSON: ` +
	`{"narrative": string, "pain_points": [string], "objections": [string], ` +
	`"interest_score": number}. interest_score is the customer's interest from 0 to 100.`

func buildTipPrompt(req TipRequest) string {
	var b strings.Builder
	if req.PriorNarrative != "" {
		fmt.Fprintf(&b, "Earlier in the call:\n%s\n\n", req.PriorNarrative)
	}
	fmt.Fprintf(&b, "Recent transcript:\n%s\n\n", req.Transcript)
	fmt.Fprintf(&b, "Trigger phrase: %q (segment %d, mode %s)\n", req.TriggerKeyword, req.Seq, req.Mode)
	return b.String()
}

func buildSummaryPrompt(req SummaryRequest) string {
	var b strings.Builder
	if req.PriorNarrative != "" {
		fmt.Fprintf(&b, "Prior summary:\n%s\n\n", req.PriorNarrative)
	}
	fmt.Fprintf(&b, "New transcript window:\n%s\n", req.Transcript)
	return b.String()
}

// decodeModelJSON tolerates prose around the JSON object some models emit.
func decodeModelJSON(raw string, out any) error {
	raw = strings.TrimSpace(raw)
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end <= start {
		return errors.New("no JSON object in model output")
	}
	return json.Unmarshal([]byte(raw[start:end+1]), out)
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
