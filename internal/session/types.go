package session

import "time"

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

type Mode string

const (
	ModeLiveCall Mode = "live_call"
	ModeTraining Mode = "training"
)

type Speaker string

const (
	SpeakerCustomer Speaker = "customer"
	SpeakerSeller   Speaker = "seller"
)

// TranscriptSegment is one attributed utterance. Immutable once appended;
// sequence numbers are strictly increasing and gap-free per session.
type TranscriptSegment struct {
	Seq        int64     `json:"seq"`
	Speaker    Speaker   `json:"speaker"`
	Text       string    `json:"text"`
	Final      bool      `json:"is_final"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// CompactionSummary condenses all final segments up to its boundary.
// Raw segments stay on the session for final reporting; the summary only
// replaces them as analysis context.
type CompactionSummary struct {
	Narrative     string    `json:"narrative"`
	PainPoints    []string  `json:"pain_points,omitempty"`
	Objections    []string  `json:"objections,omitempty"`
	InterestScore int       `json:"interest_score"`
	FromSeq       int64     `json:"from_seq"`
	ToSeq         int64     `json:"to_seq"`
	Mechanical    bool      `json:"mechanical"`
	CreatedAt     time.Time `json:"created_at"`
}

// TipRecord is a coaching tip issued during the session.
type TipRecord struct {
	TipID     string    `json:"tip_id"`
	Text      string    `json:"text"`
	Category  string    `json:"category,omitempty"`
	Seq       int64     `json:"seq"`
	Dismissed bool      `json:"dismissed"`
	IssuedAt  time.Time `json:"issued_at"`
}

// ObjectionRecord marks a detected objection and the segment that raised it.
type ObjectionRecord struct {
	Keyword string `json:"keyword"`
	Seq     int64  `json:"seq"`
}

// SentimentSample is one point of the running customer-interest score.
type SentimentSample struct {
	Seq   int64 `json:"seq"`
	Score int   `json:"score"`
	Delta int   `json:"delta"`
}

// Summary is the final session report returned by End and handed to the
// persistent store.
type Summary struct {
	SessionID     string            `json:"session_id"`
	UserID        string            `json:"user_id"`
	Mode          Mode              `json:"mode"`
	ProductID     string            `json:"product_id,omitempty"`
	Customer      map[string]string `json:"customer,omitempty"`
	StartedAt     time.Time         `json:"started_at"`
	EndedAt       time.Time         `json:"ended_at"`
	DurationMs    int64             `json:"duration_ms"`
	TotalSegments int64             `json:"total_segments"`
	InterestScore int               `json:"interest_score"`
	PainPoints    []string          `json:"pain_points,omitempty"`
	Objections    []string          `json:"objections,omitempty"`
	TipsIssued    int               `json:"tips_issued"`
	Compactions   int               `json:"compactions"`
}

// AppendResult reports the outcome of one transcript append.
type AppendResult struct {
	Segment TranscriptSegment
	// PrevTimestamp is the timestamp of the previous final segment, zero
	// for the first one. Used for silence-gap detection.
	PrevTimestamp time.Time
	// SinceCompaction is the counter value after the append (and after
	// any compaction it triggered).
	SinceCompaction int
	Compacted       bool
}
