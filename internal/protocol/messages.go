package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies websocket envelope variants.
type MessageType string

const (
	// Client -> server.
	TypeConnect           MessageType = "connect"
	TypeSessionStart      MessageType = "session.start"
	TypeSessionTranscript MessageType = "session.transcript"
	TypeSessionEnd        MessageType = "session.end"
	TypeTipDismiss        MessageType = "tip.dismiss"

	// Server -> client.
	TypeConnected         MessageType = "connected"
	TypeSessionStarted    MessageType = "session.started"
	TypeTranscription     MessageType = "transcription"
	TypeCoachingTip       MessageType = "coaching.tip"
	TypeObjectionDetected MessageType = "objection.detected"
	TypeSentimentUpdate   MessageType = "sentiment.update"
	TypeSilenceAlert      MessageType = "silence.alert"
	TypeSessionEnded      MessageType = "session.ended"
	TypeError             MessageType = "error"
)

// Error codes carried by the error envelope.
const (
	CodeInvalidToken     = "InvalidToken"
	CodeNotAuthenticated = "NotAuthenticated"
	CodeRateLimited      = "RateLimited"
	CodeSessionNotFound  = "SessionNotFound"
	CodeSessionEnded     = "SessionEnded"
	CodeForbidden        = "Forbidden"
	CodeProtocolError    = "ProtocolError"
	CodeInternalError    = "InternalError"
)

var ErrUnsupportedType = errors.New("unsupported message type")

// Envelope is the outer wire shape for every message in both directions.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type Connect struct {
	UserID    string `json:"user_id"`
	AuthToken string `json:"auth_token"`
	Device    string `json:"device,omitempty"`
}

type SessionStart struct {
	Customer  map[string]string `json:"customer,omitempty"`
	Mode      string            `json:"mode"`
	ProductID string            `json:"product_id,omitempty"`
}

type SessionTranscript struct {
	SessionID  string  `json:"session_id"`
	Text       string  `json:"text"`
	IsFinal    bool    `json:"is_final"`
	Speaker    string  `json:"speaker"`
	Confidence float64 `json:"confidence"`
	TSMs       int64   `json:"ts_ms,omitempty"`
}

type SessionEnd struct {
	SessionID string `json:"session_id"`
}

type TipDismiss struct {
	SessionID string `json:"session_id"`
	TipID     string `json:"tip_id"`
}

type Connected struct {
	ConnectionID string `json:"connection_id"`
}

type SessionStarted struct {
	SessionID string `json:"session_id"`
}

// Segment is the wire form of one transcript utterance.
type Segment struct {
	Seq        int64   `json:"seq"`
	Speaker    string  `json:"speaker"`
	Text       string  `json:"text"`
	IsFinal    bool    `json:"is_final"`
	Confidence float64 `json:"confidence"`
	TSMs       int64   `json:"ts_ms"`
}

type Transcription struct {
	SessionID string  `json:"session_id"`
	Segment   Segment `json:"segment"`
}

type Tip struct {
	TipID    string `json:"tip_id"`
	Text     string `json:"text"`
	Category string `json:"category,omitempty"`
	Seq      int64  `json:"seq"`
}

type CoachingTip struct {
	SessionID string `json:"session_id"`
	Tip       Tip    `json:"tip"`
}

type ObjectionDetected struct {
	SessionID string `json:"session_id"`
	Seq       int64  `json:"seq"`
	Keyword   string `json:"keyword"`
}

type SentimentUpdate struct {
	SessionID string `json:"session_id"`
	Seq       int64  `json:"seq"`
	Score     int    `json:"score"`
	Delta     int    `json:"delta"`
}

type SilenceAlert struct {
	SessionID string `json:"session_id"`
	Seq       int64  `json:"seq"`
	GapMs     int64  `json:"gap_ms"`
}

type SessionSummary struct {
	SessionID     string   `json:"session_id"`
	DurationMs    int64    `json:"duration_ms"`
	TotalSegments int64    `json:"total_segments"`
	InterestScore int      `json:"interest_score"`
	PainPoints    []string `json:"pain_points,omitempty"`
	Objections    []string `json:"objections,omitempty"`
	TipsIssued    int      `json:"tips_issued"`
}

type SessionEnded struct {
	SessionID string         `json:"session_id"`
	Summary   SessionSummary `json:"summary"`
}

type ErrorMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ParseClientMessage decodes and validates one inbound envelope. It fails
// closed: unknown types and malformed payloads are rejected without any
// state change in the caller.
func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeConnect:
		var msg Connect
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			return nil, err
		}
		if msg.AuthToken == "" {
			return nil, errors.New("connect requires auth_token")
		}
		return msg, nil
	case TypeSessionStart:
		var msg SessionStart
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			return nil, err
		}
		if msg.Mode != "live_call" && msg.Mode != "training" {
			return nil, fmt.Errorf("invalid session mode %q", msg.Mode)
		}
		return msg, nil
	case TypeSessionTranscript:
		var msg SessionTranscript
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" || msg.Text == "" {
			return nil, errors.New("invalid session.transcript")
		}
		if msg.Speaker != "customer" && msg.Speaker != "seller" {
			return nil, fmt.Errorf("invalid speaker %q", msg.Speaker)
		}
		if msg.Confidence < 0 || msg.Confidence > 1 {
			return nil, errors.New("confidence out of range")
		}
		return msg, nil
	case TypeSessionEnd:
		var msg SessionEnd
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" {
			return nil, errors.New("session.end requires session_id")
		}
		return msg, nil
	case TypeTipDismiss:
		var msg TipDismiss
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" || msg.TipID == "" {
			return nil, errors.New("invalid tip.dismiss")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}

// Encode wraps a payload in the outer envelope for the wire.
func Encode(t MessageType, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return json.Marshal(Envelope{Type: t, Payload: body})
}

// Decode is the inverse of Encode for server-side messages; used by tests
// and tooling that consume the gateway's output.
func Decode(raw []byte) (MessageType, json.RawMessage, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", nil, fmt.Errorf("invalid envelope: %w", err)
	}
	if env.Type == "" {
		return "", nil, errors.New("missing message type")
	}
	return env.Type, env.Payload, nil
}
