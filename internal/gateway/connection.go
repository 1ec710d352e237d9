package gateway

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/eliaslindqvist/salescoach/internal/protocol"
	"github.com/eliaslindqvist/salescoach/internal/session"
	"github.com/eliaslindqvist/salescoach/internal/store"
)

// conn is the gateway-side state of one websocket connection. State machine:
// connecting -> authenticated -> (session-bound)* -> closed.
type conn struct {
	id            string
	identity      string
	authenticated bool
	sessionID     string
	outbound      chan<- []byte
}

// RunConnection owns one connection's event stream: messages are applied
// strictly in arrival order, so all mutation of a bound session is
// serialized here. Returns when inbound closes, the context is cancelled,
// or a fault requires closing the connection.
func (g *Gateway) RunConnection(ctx context.Context, inbound <-chan []byte, outbound chan<- []byte) error {
	c := &conn{id: uuid.NewString(), outbound: outbound}
	defer close(outbound)
	defer g.unbindConn(c.id)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-inbound:
			if !ok {
				return nil
			}
			if err := g.handleMessage(ctx, c, raw); err != nil {
				if errors.Is(err, errConnectionClosed) {
					return nil
				}
				return err
			}
		}
	}
}

func (g *Gateway) handleMessage(ctx context.Context, c *conn, raw []byte) error {
	// Authenticated traffic is quota-checked before parsing so a flood of
	// malformed messages still trips the rate guard.
	if c.authenticated && !g.limiter.Allow(c.identity) {
		if g.metrics != nil {
			g.metrics.RateLimited.Inc()
		}
		g.sendError(c, protocol.CodeRateLimited, "request quota exceeded")
		return nil
	}

	msg, err := protocol.ParseClientMessage(raw)
	if err != nil {
		g.sendError(c, protocol.CodeProtocolError, err.Error())
		return nil
	}

	if connect, ok := msg.(protocol.Connect); ok {
		return g.handleConnect(ctx, c, connect)
	}
	if !c.authenticated {
		g.sendError(c, protocol.CodeNotAuthenticated, "authenticate with connect first")
		return nil
	}

	switch m := msg.(type) {
	case protocol.SessionStart:
		g.handleSessionStart(c, m)
	case protocol.SessionTranscript:
		g.handleTranscript(c, m)
	case protocol.SessionEnd:
		g.handleSessionEnd(ctx, c, m)
	case protocol.TipDismiss:
		g.handleTipDismiss(c, m)
	default:
		g.sendError(c, protocol.CodeProtocolError, "unhandled message type")
	}
	return nil
}

func (g *Gateway) handleConnect(ctx context.Context, c *conn, msg protocol.Connect) error {
	if c.authenticated {
		g.sendError(c, protocol.CodeProtocolError, "connection already authenticated")
		return nil
	}

	id, err := g.guard.Verify(ctx, msg.AuthToken)
	if err != nil {
		g.sendError(c, protocol.CodeInvalidToken, "token verification failed")
		// Failed initial authentication is the one client error that
		// closes the connection.
		return errConnectionClosed
	}

	c.identity = id.UserID
	if id.Service && msg.UserID != "" {
		// Service tokens act on behalf of the user named in connect.
		c.identity = msg.UserID
	}
	c.authenticated = true

	if g.metrics != nil {
		g.metrics.SessionEvents.WithLabelValues("authenticated").Inc()
	}
	g.send(c, protocol.TypeConnected, protocol.Connected{ConnectionID: c.id})
	return nil
}

func (g *Gateway) handleSessionStart(c *conn, msg protocol.SessionStart) {
	sess := g.sessions.Create(c.identity, msg.Customer, session.Mode(msg.Mode), msg.ProductID)
	c.sessionID = sess.ID
	g.bind(sess.ID, c)

	if g.metrics != nil {
		g.metrics.SessionEvents.WithLabelValues("created").Inc()
		g.metrics.ActiveSessions.Set(float64(g.sessions.ActiveCount()))
	}
	g.send(c, protocol.TypeSessionStarted, protocol.SessionStarted{SessionID: sess.ID})
}

func (g *Gateway) handleTranscript(c *conn, msg protocol.SessionTranscript) {
	if !g.checkOwnership(c, msg.SessionID) {
		return
	}

	seg := session.TranscriptSegment{
		Speaker:    session.Speaker(msg.Speaker),
		Text:       msg.Text,
		Final:      msg.IsFinal,
		Confidence: msg.Confidence,
	}
	if msg.TSMs > 0 {
		seg.Timestamp = time.UnixMilli(msg.TSMs).UTC()
	}

	res, err := g.sessions.Append(msg.SessionID, seg)
	if err != nil {
		g.sendSessionError(c, err)
		return
	}

	g.send(c, protocol.TypeTranscription, protocol.Transcription{
		SessionID: msg.SessionID,
		Segment: protocol.Segment{
			Seq:        res.Segment.Seq,
			Speaker:    string(res.Segment.Speaker),
			Text:       res.Segment.Text,
			IsFinal:    res.Segment.Final,
			Confidence: res.Segment.Confidence,
			TSMs:       res.Segment.Timestamp.UnixMilli(),
		},
	})

	if res.Segment.Final {
		g.engine.Analyze(msg.SessionID, res)
	}
}

func (g *Gateway) handleSessionEnd(ctx context.Context, c *conn, msg protocol.SessionEnd) {
	if !g.checkOwnership(c, msg.SessionID) {
		return
	}

	sum, err := g.sessions.End(msg.SessionID)
	if err != nil {
		g.sendSessionError(c, err)
		return
	}

	g.unbind(msg.SessionID)
	g.engine.CleanupSession(msg.SessionID)
	if c.sessionID == msg.SessionID {
		c.sessionID = ""
	}

	if err := g.persist(ctx, sum); err != nil {
		log.Printf("persist session %s failed: %v", sum.SessionID, err)
	}

	if g.metrics != nil {
		g.metrics.SessionEvents.WithLabelValues("ended").Inc()
		g.metrics.ActiveSessions.Set(float64(g.sessions.ActiveCount()))
	}
	g.send(c, protocol.TypeSessionEnded, protocol.SessionEnded{
		SessionID: msg.SessionID,
		Summary:   toWireSummary(sum),
	})
}

func (g *Gateway) handleTipDismiss(c *conn, msg protocol.TipDismiss) {
	if !g.checkOwnership(c, msg.SessionID) {
		return
	}
	if err := g.sessions.DismissTip(msg.SessionID, msg.TipID); err != nil {
		g.sendSessionError(c, err)
	}
}

// checkOwnership reports whether c's identity owns the session, replying
// in-band when it does not. Unknown sessions surface as SessionNotFound,
// foreign ones as Forbidden.
func (g *Gateway) checkOwnership(c *conn, sessionID string) bool {
	sess, err := g.sessions.Get(sessionID)
	if err != nil {
		g.sendError(c, protocol.CodeSessionNotFound, "unknown session")
		return false
	}
	if sess.UserID != c.identity {
		g.sendError(c, protocol.CodeForbidden, "session belongs to another caller")
		return false
	}
	return true
}

func (g *Gateway) sendSessionError(c *conn, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		g.sendError(c, protocol.CodeSessionNotFound, "unknown session")
	case errors.Is(err, session.ErrEnded):
		g.sendError(c, protocol.CodeSessionEnded, "session already ended")
	default:
		g.sendError(c, protocol.CodeInternalError, "internal error")
	}
}

// handleExpired runs on the janitor path when an idle session is
// force-ended, mirroring a client-initiated end.
func (g *Gateway) handleExpired(sum session.Summary) {
	g.engine.CleanupSession(sum.SessionID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := g.persist(ctx, sum); err != nil {
		log.Printf("persist expired session %s failed: %v", sum.SessionID, err)
	}

	if g.metrics != nil {
		g.metrics.SessionEvents.WithLabelValues("expired").Inc()
		g.metrics.ActiveSessions.Set(float64(g.sessions.ActiveCount()))
	}

	g.emitEvent(sum.SessionID, protocol.TypeSessionEnded, protocol.SessionEnded{
		SessionID: sum.SessionID,
		Summary:   toWireSummary(sum),
	})
	g.unbind(sum.SessionID)
}

func (g *Gateway) persist(ctx context.Context, sum session.Summary) error {
	return g.store.SaveSession(ctx, store.SessionRecord{
		SessionID:     sum.SessionID,
		UserID:        sum.UserID,
		Mode:          string(sum.Mode),
		ProductID:     sum.ProductID,
		Customer:      sum.Customer,
		StartedAt:     sum.StartedAt,
		EndedAt:       sum.EndedAt,
		DurationMs:    sum.DurationMs,
		TotalSegments: sum.TotalSegments,
		InterestScore: sum.InterestScore,
		PainPoints:    sum.PainPoints,
		Objections:    sum.Objections,
		TipsIssued:    sum.TipsIssued,
		Compactions:   sum.Compactions,
	})
}

func toWireSummary(sum session.Summary) protocol.SessionSummary {
	return protocol.SessionSummary{
		SessionID:     sum.SessionID,
		DurationMs:    sum.DurationMs,
		TotalSegments: sum.TotalSegments,
		InterestScore: sum.InterestScore,
		PainPoints:    sum.PainPoints,
		Objections:    sum.Objections,
		TipsIssued:    sum.TipsIssued,
	}
}

func (g *Gateway) sendError(c *conn, code, message string) {
	g.send(c, protocol.TypeError, protocol.ErrorMessage{Code: code, Message: message})
}

func (g *Gateway) send(c *conn, t protocol.MessageType, payload any) {
	raw, err := protocol.Encode(t, payload)
	if err != nil {
		return
	}
	select {
	case c.outbound <- raw:
		if g.metrics != nil {
			g.metrics.WSMessages.WithLabelValues("outbound", string(t)).Inc()
		}
	default:
		// Writes stay single-threaded per connection; drop when the
		// outbound queue is saturated.
		if g.metrics != nil {
			g.metrics.WSMessages.WithLabelValues("drop_full", string(t)).Inc()
		}
	}
}
