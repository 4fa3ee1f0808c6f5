package propagation

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Responder answers the requests an observer may send over its connection.
type Responder interface {
	Snapshot() Snapshot
	VerifyPayment(ctx context.Context, sessionID string) VerifyResult
}

var upgrader = websocket.Upgrader{
	// observers run in arbitrary page origins
	CheckOrigin: func(r *http.Request) bool { return true },
}

const defaultWriteWait = 5 * time.Second

// Hub keeps the websocket connections of live observers. Each connection is
// a broadcast target; a failed write drops it.
type Hub struct {
	responder Responder
	logger    *zap.Logger

	mu     sync.Mutex
	conns  map[*hubConn]struct{}
	nextID int
}

func NewHub(responder Responder, logger *zap.Logger) *Hub {
	return &Hub{
		responder: responder,
		logger:    logger,
		conns:     make(map[*hubConn]struct{}),
	}
}

// ServeHTTP upgrades the request, pushes the current snapshot and then serves
// getSnippets and verifyPayment requests until the observer goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade", zap.Error(err))
		return
	}

	c := h.register(ws)
	defer h.drop(c)

	if err := c.push(r.Context(), h.snapshotMessage); err != nil {
		return
	}

	for {
		var msg Message
		if err := ws.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Action {
		case ActionGetSnippets:
			err = c.push(r.Context(), h.snapshotMessage)
		case ActionVerifyPayment:
			res := h.responder.VerifyPayment(r.Context(), msg.SessionID)
			err = c.write(r.Context(), Message{Action: ActionVerifyPayment, SessionID: msg.SessionID, Result: &res})
		default:
			h.logger.Debug("ignoring message", zap.String("action", msg.Action), zap.String("observer", c.Name()))
			continue
		}
		if err != nil {
			return
		}
	}
}

func (h *Hub) snapshotMessage() Message {
	return UpdateMessage(h.responder.Snapshot())
}

// Targets returns the live connections.
func (h *Hub) Targets() []Target {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Target, 0, len(h.conns))
	for c := range h.conns {
		out = append(out, c)
	}
	return out
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Close disconnects every observer.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := h.conns
	h.conns = make(map[*hubConn]struct{})
	h.mu.Unlock()

	for c := range conns {
		c.close()
	}
}

func (h *Hub) register(ws *websocket.Conn) *hubConn {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	c := &hubConn{id: fmt.Sprintf("observer-%d", h.nextID), ws: ws, hub: h}
	h.conns[c] = struct{}{}
	h.logger.Debug("observer connected", zap.String("observer", c.id))
	return c
}

func (h *Hub) drop(c *hubConn) {
	h.mu.Lock()
	_, ok := h.conns[c]
	delete(h.conns, c)
	h.mu.Unlock()

	if ok {
		h.logger.Debug("observer disconnected", zap.String("observer", c.id))
	}
	c.close()
}

type hubConn struct {
	id  string
	ws  *websocket.Conn
	hub *Hub

	// gorilla/websocket forbids concurrent writers
	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (c *hubConn) Name() string { return c.id }

func (c *hubConn) Deliver(ctx context.Context, msg Message) error {
	if err := c.write(ctx, msg); err != nil {
		c.hub.drop(c)
		return err
	}
	return nil
}

func (c *hubConn) write(ctx context.Context, msg Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.writeLocked(ctx, msg)
}

// push builds the message while holding the write lock, so a broadcast that
// lands meanwhile is written after it and never overtaken by older state.
func (c *hubConn) push(ctx context.Context, build func() Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.writeLocked(ctx, build())
}

func (c *hubConn) writeLocked(ctx context.Context, msg Message) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultWriteWait)
	}
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.ws.WriteJSON(msg)
}

func (c *hubConn) close() {
	c.closeOnce.Do(func() { _ = c.ws.Close() })
}
