package gateway

import (
	"errors"
	"sync"

	"github.com/eliaslindqvist/salescoach/internal/auth"
	"github.com/eliaslindqvist/salescoach/internal/coach"
	"github.com/eliaslindqvist/salescoach/internal/observability"
	"github.com/eliaslindqvist/salescoach/internal/protocol"
	"github.com/eliaslindqvist/salescoach/internal/session"
	"github.com/eliaslindqvist/salescoach/internal/store"
)

// errConnectionClosed marks faults that close the offending connection.
// Every other error is reported in-band and the connection stays open.
var errConnectionClosed = errors.New("connection closed")

type binding struct {
	connID   string
	outbound chan<- []byte
}

// Gateway routes decoded protocol messages to the session manager and the
// coaching engine, and fans engine output back out to the one connection
// bound to each session.
type Gateway struct {
	sessions *session.Manager
	engine   *coach.Engine
	guard    *auth.Guard
	limiter  *auth.Limiter
	store    store.Store
	metrics  *observability.Metrics

	mu       sync.Mutex
	bindings map[string]*binding
}

func New(sessions *session.Manager, engine *coach.Engine, guard *auth.Guard, limiter *auth.Limiter, st store.Store, metrics *observability.Metrics) *Gateway {
	g := &Gateway{
		sessions: sessions,
		engine:   engine,
		guard:    guard,
		limiter:  limiter,
		store:    st,
		metrics:  metrics,
	}
	g.bindings = make(map[string]*binding)
	engine.SetEmitter(g.emitEvent)
	sessions.SetExpireHook(g.handleExpired)
	return g
}

// bind routes a session's asynchronous events to c's outbound queue. A
// session has at most one bound connection; a later bind replaces an
// earlier one.
func (g *Gateway) bind(sessionID string, c *conn) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.bindings[sessionID] = &binding{connID: c.id, outbound: c.outbound}
}

func (g *Gateway) unbind(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.bindings, sessionID)
}

// unbindConn removes every binding that points at a closed connection, so
// engine output for its sessions is dropped instead of sent on a closed
// channel.
func (g *Gateway) unbindConn(connID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for sessionID, b := range g.bindings {
		if b.connID == connID {
			delete(g.bindings, sessionID)
		}
	}
}

// emitEvent delivers one engine event to the connection bound to the
// session. Events for unbound sessions are dropped, never queued.
func (g *Gateway) emitEvent(sessionID string, t protocol.MessageType, payload any) {
	// The lock is held across the non-blocking send: unbindConn runs
	// before the connection closes its outbound channel, so a binding
	// found here is always safe to send on.
	g.mu.Lock()
	defer g.mu.Unlock()
	b, ok := g.bindings[sessionID]
	if !ok {
		g.metrics.ObserveCoachingEvent(string(t), "dropped")
		return
	}

	raw, err := protocol.Encode(t, payload)
	if err != nil {
		return
	}
	select {
	case b.outbound <- raw:
		if g.metrics != nil {
			g.metrics.WSMessages.WithLabelValues("outbound", string(t)).Inc()
		}
	default:
		if g.metrics != nil {
			g.metrics.WSMessages.WithLabelValues("drop_full", string(t)).Inc()
		}
	}
}
