package store

import (
	"context"
	"time"
)

// SessionRecord is the durable form of one finished coaching session.
type SessionRecord struct {
	SessionID     string            `json:"session_id"`
	UserID        string            `json:"user_id"`
	Mode          string            `json:"mode"`
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

// Store persists finished session summaries. It is only touched at session
// end or expiry, never on the transcript ingestion path.
type Store interface {
	SaveSession(ctx context.Context, record SessionRecord) error
	Close() error
}
