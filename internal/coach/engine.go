package coach

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eliaslindqvist/salescoach/internal/completion"
	"github.com/eliaslindqvist/salescoach/internal/config"
	"github.com/eliaslindqvist/salescoach/internal/observability"
	"github.com/eliaslindqvist/salescoach/internal/policy"
	"github.com/eliaslindqvist/salescoach/internal/protocol"
	"github.com/eliaslindqvist/salescoach/internal/session"
)

// EventSink delivers a coaching event to whoever is bound to the session.
type EventSink func(sessionID string, t protocol.MessageType, payload any)

// analysisRequest is one queued deep-analysis trigger. A new trigger while
// a call is in flight overwrites the pending slot, coalescing into the next
// window instead of issuing a second concurrent call.
type analysisRequest struct {
	seq     int64
	keyword string
}

type analysisState struct {
	inFlight bool
	pending  *analysisRequest
}

// Engine decides when and what to analyze. Local trigger matching and the
// silence check are synchronous and never call the completion service; deep
// analysis runs asynchronously, at most one call in flight per session.
type Engine struct {
	provider        completion.Provider
	rules           []config.TriggerRule
	silenceGap      time.Duration
	analysisTimeout time.Duration
	metrics         *observability.Metrics

	sessions *session.Manager
	emit     EventSink

	mu       sync.Mutex
	analyses map[string]*analysisState
}

type EngineConfig struct {
	TriggerTable    []config.TriggerRule
	SilenceGap      time.Duration
	AnalysisTimeout time.Duration
}

func NewEngine(provider completion.Provider, cfg EngineConfig, metrics *observability.Metrics) *Engine {
	if cfg.SilenceGap <= 0 {
		cfg.SilenceGap = 12 * time.Second
	}
	if cfg.AnalysisTimeout <= 0 {
		cfg.AnalysisTimeout = 10 * time.Second
	}
	return &Engine{
		provider:        provider,
		rules:           cfg.TriggerTable,
		silenceGap:      cfg.SilenceGap,
		analysisTimeout: cfg.AnalysisTimeout,
		metrics:         metrics,
		emit:            func(string, protocol.MessageType, any) {},
		analyses:        make(map[string]*analysisState),
	}
}

// BindSessions attaches the session manager. Done after construction
// because the manager itself is built with this engine as its summarizer.
func (e *Engine) BindSessions(m *session.Manager) {
	e.sessions = m
}

// SetEmitter registers the fan-out sink for asynchronous coaching events.
func (e *Engine) SetEmitter(sink EventSink) {
	if sink != nil {
		e.emit = sink
	}
}

// Analyze runs the local pattern checks for one appended segment and
// schedules deep analysis when a trigger asks for it. Always synchronous,
// never calls the completion service.
func (e *Engine) Analyze(sessionID string, res session.AppendResult) {
	start := time.Now()
	seg := res.Segment
	lower := strings.ToLower(seg.Text)

	for _, rule := range e.rules {
		keyword, ok := matchRule(rule, lower)
		if !ok {
			continue
		}
		switch rule.Event {
		case "objection_detected":
			_ = e.sessions.RecordObjection(sessionID, session.ObjectionRecord{Keyword: keyword, Seq: seg.Seq})
			e.metrics.ObserveCoachingEvent("objection_detected", "emitted")
			e.emit(sessionID, protocol.TypeObjectionDetected, protocol.ObjectionDetected{
				SessionID: sessionID,
				Seq:       seg.Seq,
				Keyword:   keyword,
			})
			e.scheduleAnalysis(sessionID, analysisRequest{seq: seg.Seq, keyword: keyword})
		case "sentiment_update":
			score, err := e.sessions.AdjustSentiment(sessionID, seg.Seq, rule.Weight)
			if err != nil {
				continue
			}
			e.metrics.ObserveCoachingEvent("sentiment_update", "emitted")
			e.emit(sessionID, protocol.TypeSentimentUpdate, protocol.SentimentUpdate{
				SessionID: sessionID,
				Seq:       seg.Seq,
				Score:     score,
				Delta:     rule.Weight,
			})
		case "tip":
			e.scheduleAnalysis(sessionID, analysisRequest{seq: seg.Seq, keyword: keyword})
		}
	}

	if !res.PrevTimestamp.IsZero() {
		if gap := seg.Timestamp.Sub(res.PrevTimestamp); gap >= e.silenceGap {
			e.metrics.ObserveCoachingEvent("silence_alert", "emitted")
			e.emit(sessionID, protocol.TypeSilenceAlert, protocol.SilenceAlert{
				SessionID: sessionID,
				Seq:       seg.Seq,
				GapMs:     gap.Milliseconds(),
			})
		}
	}

	e.metrics.ObserveTriggerScan(time.Since(start))
}

func matchRule(rule config.TriggerRule, lowerText string) (string, bool) {
	for _, kw := range rule.Keywords {
		if strings.Contains(lowerText, strings.ToLower(kw)) {
			return kw, true
		}
	}
	return "", false
}

func (e *Engine) scheduleAnalysis(sessionID string, req analysisRequest) {
	e.mu.Lock()
	st, ok := e.analyses[sessionID]
	if !ok {
		st = &analysisState{}
		e.analyses[sessionID] = st
	}
	if st.inFlight {
		st.pending = &req
		e.mu.Unlock()
		return
	}
	st.inFlight = true
	e.mu.Unlock()

	go e.runAnalysis(sessionID, req)
}

// runAnalysis issues deep-analysis calls for sessionID until the pending
// slot is empty. Results for sessions that ended while the call was in
// flight are discarded, not applied.
func (e *Engine) runAnalysis(sessionID string, req analysisRequest) {
	for {
		e.analyzeOnce(sessionID, req)

		e.mu.Lock()
		st, ok := e.analyses[sessionID]
		if !ok {
			e.mu.Unlock()
			return
		}
		if st.pending == nil {
			st.inFlight = false
			e.mu.Unlock()
			return
		}
		req = *st.pending
		st.pending = nil
		e.mu.Unlock()
	}
}

func (e *Engine) analyzeOnce(sessionID string, req analysisRequest) {
	narrative, segments, err := e.sessions.ContextWindow(sessionID, 12)
	if err != nil {
		return
	}
	sess, err := e.sessions.Get(sessionID)
	if err != nil || sess.Status != session.StatusActive {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.analysisTimeout)
	defer cancel()

	start := time.Now()
	tip, err := e.provider.AnalyzeTranscript(ctx, completion.TipRequest{
		SessionID:      sessionID,
		Mode:           string(sess.Mode),
		TriggerKeyword: req.keyword,
		Seq:            req.seq,
		PriorNarrative: narrative,
		Transcript:     formatTranscript(segments),
	})
	e.metrics.ObserveAnalysis(time.Since(start))
	if err != nil {
		// Trigger-path upstream failures degrade to no event, never a
		// client-visible error.
		e.metrics.ObserveProviderError(e.provider.Name(), "analyze")
		return
	}

	rec := session.TipRecord{
		TipID:    uuid.NewString(),
		Text:     tip.Text,
		Category: tip.Category,
		Seq:      req.seq,
	}
	if err := e.sessions.RecordTip(sessionID, rec); err != nil {
		e.metrics.ObserveCoachingEvent("tip", "discarded")
		return
	}
	e.metrics.ObserveCoachingEvent("tip", "emitted")
	e.emit(sessionID, protocol.TypeCoachingTip, protocol.CoachingTip{
		SessionID: sessionID,
		Tip: protocol.Tip{
			TipID:    rec.TipID,
			Text:     rec.Text,
			Category: rec.Category,
			Seq:      rec.Seq,
		},
	})
}

// CleanupSession drops the per-session analysis state, including any
// pending coalesced request.
func (e *Engine) CleanupSession(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.analyses, sessionID)
}

// Summarize implements session.Summarizer. It never fails: a provider
// error or timeout yields a mechanical summary so compaction degrades in
// quality, not availability.
func (e *Engine) Summarize(ctx context.Context, prior *session.CompactionSummary, segments []session.TranscriptSegment) session.CompactionSummary {
	if len(segments) == 0 {
		if prior != nil {
			return *prior
		}
		return session.CompactionSummary{CreatedAt: time.Now().UTC()}
	}
	fromSeq := segments[0].Seq
	toSeq := segments[len(segments)-1].Seq

	priorNarrative := ""
	if prior != nil {
		priorNarrative = prior.Narrative
	}

	start := time.Now()
	res, err := e.provider.Summarize(ctx, completion.SummaryRequest{
		PriorNarrative: priorNarrative,
		Transcript:     formatTranscript(segments),
	})
	e.metrics.ObserveCompaction(time.Since(start))
	if err != nil {
		e.metrics.ObserveProviderError(e.provider.Name(), "summarize")
		return mechanicalSummary(prior, segments, fromSeq, toSeq)
	}

	return session.CompactionSummary{
		Narrative:     res.Narrative,
		PainPoints:    res.PainPoints,
		Objections:    res.Objections,
		InterestScore: res.InterestScore,
		FromSeq:       fromSeq,
		ToSeq:         toSeq,
		CreatedAt:     time.Now().UTC(),
	}
}

// mechanicalSummary is the fallback condensation: concatenated segment
// texts, truncated. It keeps the prior interest score since nothing better
// is known.
func mechanicalSummary(prior *session.CompactionSummary, segments []session.TranscriptSegment, fromSeq, toSeq int64) session.CompactionSummary {
	const maxLen = 600

	var b strings.Builder
	for _, seg := range segments {
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(seg.Text)
		if b.Len() >= maxLen {
			break
		}
	}
	narrative := b.String()
	if len(narrative) > maxLen {
		narrative = narrative[:maxLen] + "..."
	}

	interest := 50
	if prior != nil {
		interest = prior.InterestScore
	}

	return session.CompactionSummary{
		Narrative:     narrative,
		InterestScore: interest,
		FromSeq:       fromSeq,
		ToSeq:         toSeq,
		Mechanical:    true,
		CreatedAt:     time.Now().UTC(),
	}
}

func formatTranscript(segments []session.TranscriptSegment) string {
	var b strings.Builder
	for i, seg := range segments {
		if i > 0 {
			b.WriteString("\n")
		}
		text, _ := policy.RedactPII(seg.Text)
		b.WriteString("[")
		b.WriteString(string(seg.Speaker))
		b.WriteString("] ")
		b.WriteString(text)
	}
	return b.String()
}
