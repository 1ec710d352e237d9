package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrEnded    = errors.New("session already ended")
)

// Summarizer condenses a run of final segments into a CompactionSummary.
// Implementations must not fail: enrichment errors degrade to a mechanical
// summary so compaction never blocks the ingestion path.
type Summarizer interface {
	Summarize(ctx context.Context, prior *CompactionSummary, segments []TranscriptSegment) CompactionSummary
}

// Session is one coaching engagement. Values handed out by the Manager are
// clones; all mutation goes through Manager methods.
type Session struct {
	ID        string            `json:"session_id"`
	UserID    string            `json:"user_id"`
	Mode      Mode              `json:"mode"`
	ProductID string            `json:"product_id,omitempty"`
	Customer  map[string]string `json:"customer,omitempty"`
	Status    Status            `json:"status"`

	Segments []TranscriptSegment `json:"segments"`
	Summary  *CompactionSummary  `json:"summary,omitempty"`

	SegmentsSinceCompaction int   `json:"segments_since_compaction"`
	TotalSegments           int64 `json:"total_segments"`
	Compactions             int   `json:"compactions"`

	SentimentScore int `json:"sentiment_score"`

	Tips             []TipRecord       `json:"tips,omitempty"`
	Objections       []ObjectionRecord `json:"objections,omitempty"`
	SentimentSamples []SentimentSample `json:"sentiment_samples,omitempty"`

	CreatedAt      time.Time `json:"created_at"`
	EndedAt        time.Time `json:"ended_at,omitempty"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

type sessionState struct {
	mu sync.Mutex
	s  Session
	// compactedCount is how many retained segments the rolling summary
	// already covers. It only moves forward.
	compactedCount int
	nextSeq        int64
}

// ManagerConfig carries the injected session policy values.
type ManagerConfig struct {
	CompactionThreshold int
	IdleTimeout         time.Duration
	SummarizeTimeout    time.Duration
}

type Manager struct {
	mu     sync.RWMutex
	states map[string]*sessionState

	cfg        ManagerConfig
	summarizer Summarizer
	onExpire   func(Summary)
}

func NewManager(cfg ManagerConfig, summarizer Summarizer) *Manager {
	if cfg.CompactionThreshold <= 0 {
		cfg.CompactionThreshold = 30
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 2 * time.Minute
	}
	if cfg.SummarizeTimeout <= 0 {
		cfg.SummarizeTimeout = 8 * time.Second
	}
	return &Manager{
		states:     make(map[string]*sessionState),
		cfg:        cfg,
		summarizer: summarizer,
	}
}

// SetExpireHook registers a callback invoked with the final summary of every
// session the idle janitor force-ends.
func (m *Manager) SetExpireHook(hook func(Summary)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

func (m *Manager) Create(userID string, customer map[string]string, mode Mode, productID string) Session {
	now := time.Now().UTC()
	st := &sessionState{
		s: Session{
			ID:             uuid.NewString(),
			UserID:         userID,
			Mode:           mode,
			ProductID:      productID,
			Customer:       customer,
			Status:         StatusActive,
			SentimentScore: 50,
			CreatedAt:      now,
			LastActivityAt: now,
		},
		nextSeq: 1,
	}

	m.mu.Lock()
	m.states[st.s.ID] = st
	m.mu.Unlock()
	return cloneSession(&st.s)
}

func (m *Manager) Get(sessionID string) (Session, error) {
	st, ok := m.state(sessionID)
	if !ok {
		return Session{}, ErrNotFound
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return cloneSession(&st.s), nil
}

// Owns reports whether identity is the recorded owner of the session. A
// missing session is simply not owned.
func (m *Manager) Owns(sessionID, identity string) bool {
	st, ok := m.state(sessionID)
	if !ok {
		return false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.s.UserID == identity
}

// Append assigns the next sequence number and records the segment. Interim
// segments are echoed with the sequence number their final form will take
// but are neither retained nor counted. Reaching the compaction threshold
// compacts synchronously before returning, so callers always observe a
// consistent post-compaction counter.
func (m *Manager) Append(sessionID string, seg TranscriptSegment) (AppendResult, error) {
	st, ok := m.state(sessionID)
	if !ok {
		return AppendResult{}, ErrNotFound
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.s.Status != StatusActive {
		return AppendResult{}, ErrEnded
	}

	if seg.Timestamp.IsZero() {
		seg.Timestamp = time.Now().UTC()
	}
	var prevTS time.Time
	if n := len(st.s.Segments); n > 0 {
		prevTS = st.s.Segments[n-1].Timestamp
	}

	seg.Seq = st.nextSeq
	st.s.LastActivityAt = time.Now().UTC()

	if !seg.Final {
		return AppendResult{Segment: seg, PrevTimestamp: prevTS, SinceCompaction: st.s.SegmentsSinceCompaction}, nil
	}

	st.nextSeq++
	st.s.Segments = append(st.s.Segments, seg)
	st.s.TotalSegments++
	st.s.SegmentsSinceCompaction++

	compacted := false
	if st.s.SegmentsSinceCompaction >= m.cfg.CompactionThreshold {
		m.compactLocked(st)
		compacted = true
	}

	return AppendResult{
		Segment:         seg,
		PrevTimestamp:   prevTS,
		SinceCompaction: st.s.SegmentsSinceCompaction,
		Compacted:       compacted,
	}, nil
}

// compactLocked folds all final segments past the previous boundary into the
// rolling summary. The boundary advances and the counter resets before the
// summarizer runs, so a slow or failing enrichment can never re-cover the
// same range or corrupt counters. Caller holds st.mu.
func (m *Manager) compactLocked(st *sessionState) {
	window := st.s.Segments[st.compactedCount:]
	if len(window) == 0 {
		return
	}
	st.compactedCount = len(st.s.Segments)
	st.s.SegmentsSinceCompaction = 0
	st.s.Compactions++

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.SummarizeTimeout)
	defer cancel()
	next := m.summarizer.Summarize(ctx, st.s.Summary, window)
	st.s.Summary = mergeSummary(st.s.Summary, next)
	st.s.SentimentScore = st.s.Summary.InterestScore
}

func (m *Manager) End(sessionID string) (Summary, error) {
	st, ok := m.state(sessionID)
	if !ok {
		return Summary{}, ErrNotFound
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return m.endLocked(st)
}

func (m *Manager) endLocked(st *sessionState) (Summary, error) {
	if st.s.Status != StatusActive {
		return Summary{}, ErrEnded
	}
	now := time.Now().UTC()
	st.s.Status = StatusEnded
	st.s.EndedAt = now
	st.s.LastActivityAt = now
	return buildSummary(&st.s), nil
}

func buildSummary(s *Session) Summary {
	sum := Summary{
		SessionID:     s.ID,
		UserID:        s.UserID,
		Mode:          s.Mode,
		ProductID:     s.ProductID,
		Customer:      s.Customer,
		StartedAt:     s.CreatedAt,
		EndedAt:       s.EndedAt,
		DurationMs:    s.EndedAt.Sub(s.CreatedAt).Milliseconds(),
		TotalSegments: s.TotalSegments,
		InterestScore: s.SentimentScore,
		TipsIssued:    len(s.Tips),
		Compactions:   s.Compactions,
	}
	if s.Summary != nil {
		sum.PainPoints = append(sum.PainPoints, s.Summary.PainPoints...)
		sum.Objections = append(sum.Objections, s.Summary.Objections...)
	}
	for _, o := range s.Objections {
		sum.Objections = appendUnique(sum.Objections, o.Keyword)
	}
	return sum
}

// RecordTip stores an issued coaching tip on the session. Tips arriving
// after the session ended are discarded.
func (m *Manager) RecordTip(sessionID string, tip TipRecord) error {
	st, ok := m.state(sessionID)
	if !ok {
		return ErrNotFound
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.s.Status != StatusActive {
		return ErrEnded
	}
	if tip.IssuedAt.IsZero() {
		tip.IssuedAt = time.Now().UTC()
	}
	st.s.Tips = append(st.s.Tips, tip)
	return nil
}

func (m *Manager) DismissTip(sessionID, tipID string) error {
	st, ok := m.state(sessionID)
	if !ok {
		return ErrNotFound
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.s.Status != StatusActive {
		return ErrEnded
	}
	for i := range st.s.Tips {
		if st.s.Tips[i].TipID == tipID {
			st.s.Tips[i].Dismissed = true
			return nil
		}
	}
	return nil
}

func (m *Manager) RecordObjection(sessionID string, rec ObjectionRecord) error {
	st, ok := m.state(sessionID)
	if !ok {
		return ErrNotFound
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.s.Status != StatusActive {
		return ErrEnded
	}
	st.s.Objections = append(st.s.Objections, rec)
	return nil
}

// AdjustSentiment shifts the running interest score by delta, clamped to
// 0..100, and records a sample tied to seq.
func (m *Manager) AdjustSentiment(sessionID string, seq int64, delta int) (int, error) {
	st, ok := m.state(sessionID)
	if !ok {
		return 0, ErrNotFound
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.s.Status != StatusActive {
		return 0, ErrEnded
	}
	score := st.s.SentimentScore + delta
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	st.s.SentimentScore = score
	st.s.SentimentSamples = append(st.s.SentimentSamples, SentimentSample{Seq: seq, Score: score, Delta: delta})
	return score, nil
}

// ContextWindow returns the rolling summary narrative plus the uncompacted
// tail of the transcript, the working context for deep analysis.
func (m *Manager) ContextWindow(sessionID string, limit int) (string, []TranscriptSegment, error) {
	st, ok := m.state(sessionID)
	if !ok {
		return "", nil, ErrNotFound
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	narrative := ""
	if st.s.Summary != nil {
		narrative = st.s.Summary.Narrative
	}
	tail := st.s.Segments[st.compactedCount:]
	if limit > 0 && len(tail) > limit {
		tail = tail[len(tail)-limit:]
	}
	out := make([]TranscriptSegment, len(tail))
	copy(out, tail)
	return narrative, out, nil
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, st := range m.states {
		st.mu.Lock()
		if st.s.Status == StatusActive {
			count++
		}
		st.mu.Unlock()
	}
	return count
}

func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireIdle()
			}
		}
	}()
}

// expireIdle force-ends sessions with no transcript activity past the idle
// timeout, through the same End path a client-initiated end takes.
func (m *Manager) expireIdle() {
	now := time.Now().UTC()

	m.mu.RLock()
	candidates := make([]*sessionState, 0, len(m.states))
	for _, st := range m.states {
		candidates = append(candidates, st)
	}
	hook := m.onExpire
	m.mu.RUnlock()

	for _, st := range candidates {
		st.mu.Lock()
		if st.s.Status != StatusActive || now.Sub(st.s.LastActivityAt) < m.cfg.IdleTimeout {
			st.mu.Unlock()
			continue
		}
		sum, err := m.endLocked(st)
		st.mu.Unlock()
		if err == nil && hook != nil {
			hook(sum)
		}
	}
}

func (m *Manager) state(sessionID string) (*sessionState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.states[sessionID]
	return st, ok
}

func cloneSession(s *Session) Session {
	c := *s
	c.Segments = append([]TranscriptSegment(nil), s.Segments...)
	c.Tips = append([]TipRecord(nil), s.Tips...)
	c.Objections = append([]ObjectionRecord(nil), s.Objections...)
	c.SentimentSamples = append([]SentimentSample(nil), s.SentimentSamples...)
	if s.Summary != nil {
		sum := *s.Summary
		c.Summary = &sum
	}
	return c
}

func mergeSummary(prior *CompactionSummary, next CompactionSummary) *CompactionSummary {
	if prior == nil {
		return &next
	}
	merged := CompactionSummary{
		Narrative:     strings.TrimSpace(prior.Narrative + "\n\n" + next.Narrative),
		InterestScore: next.InterestScore,
		FromSeq:       prior.FromSeq,
		ToSeq:         next.ToSeq,
		Mechanical:    prior.Mechanical || next.Mechanical,
		CreatedAt:     next.CreatedAt,
	}
	merged.PainPoints = append(merged.PainPoints, prior.PainPoints...)
	for _, p := range next.PainPoints {
		merged.PainPoints = appendUnique(merged.PainPoints, p)
	}
	merged.Objections = append(merged.Objections, prior.Objections...)
	for _, o := range next.Objections {
		merged.Objections = appendUnique(merged.Objections, o)
	}
	return &merged
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if strings.EqualFold(existing, v) {
			return list
		}
	}
	return append(list, v)
}
