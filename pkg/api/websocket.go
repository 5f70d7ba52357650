package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/amtlich/amtlich/pkg/progress"
	"github.com/amtlich/amtlich/pkg/service"
)

// wsWriteTimeout bounds a single WebSocket send. A client that cannot
// keep up within it is disconnected rather than blocking the stream
// fan-out forever.
const wsWriteTimeout = 10 * time.Second

// ClientMessage is the envelope for messages from WebSocket clients.
type ClientMessage struct {
	Type      string        `json:"type,omitempty"`
	Query     string        `json:"query,omitempty"`
	SessionID string        `json:"session_id,omitempty"`
	Options   *QueryOptions `json:"options,omitempty"`
	TreeID    string        `json:"tree_id,omitempty"`
	AfterSeq  int64         `json:"after_seq,omitempty"`
	Cancel    bool          `json:"cancel,omitempty"`
}

// ConnectionManager owns the WebSocket connections. Each connection can
// submit queries, subscribe to tree event streams, and cancel its
// running query with a {"cancel": true} control frame.
type ConnectionManager struct {
	svc *service.QueryService

	mu          sync.RWMutex
	connections map[string]*Connection
}

// Connection is a single WebSocket client. The read loop is the only
// goroutine mutating lastTree; event forwarding goroutines serialise
// their sends through writeMu.
type Connection struct {
	ID     string
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc

	writeMu  sync.Mutex
	lastTree string
}

// NewConnectionManager creates the manager.
func NewConnectionManager(svc *service.QueryService) *ConnectionManager {
	return &ConnectionManager{
		svc:         svc,
		connections: make(map[string]*Connection),
	}
}

// HandleConnection runs a connection's read loop. Blocks until the
// WebSocket closes; closing the connection cancels the client's
// running query.
func (m *ConnectionManager) HandleConnection(parentCtx context.Context, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(parentCtx)
	c := &Connection{
		ID:     uuid.NewString(),
		conn:   conn,
		ctx:    ctx,
		cancel: cancel,
	}

	m.register(c)
	defer m.unregister(c)

	m.sendJSON(c, map[string]string{
		"type":          "connection.established",
		"connection_id": c.ID,
	})

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			// Connection gone; abandon the in-flight query.
			if c.lastTree != "" {
				m.svc.Cancel(c.lastTree)
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("Invalid WebSocket message", "connection_id", c.ID, "error", err)
			continue
		}
		m.handleMessage(c, &msg)
	}
}

func (m *ConnectionManager) handleMessage(c *Connection, msg *ClientMessage) {
	switch {
	case msg.Cancel || msg.Type == "cancel":
		treeID := msg.TreeID
		if treeID == "" {
			treeID = c.lastTree
		}
		if treeID != "" {
			m.svc.Cancel(treeID)
		}

	case msg.Type == "subscribe":
		if msg.TreeID == "" {
			m.sendError(c, "subscribe requires tree_id")
			return
		}
		stream := m.svc.Broker().Get(msg.TreeID)
		if stream == nil {
			m.sendError(c, "unknown tree id")
			return
		}
		go m.forward(c, stream, msg.AfterSeq)

	case msg.Query != "" || msg.Type == "query":
		opts := QueryRequest{Options: msg.Options}
		query, err := m.svc.NewQuery(msg.Query, msg.SessionID, opts.modelOptions())
		if err != nil {
			m.sendError(c, "query text is invalid")
			return
		}
		treeID, done := m.svc.Submit(context.WithoutCancel(c.ctx), query)
		c.lastTree = treeID
		m.sendJSON(c, map[string]string{"type": "query.accepted", "tree_id": treeID})

		stream := m.svc.Broker().Get(treeID)
		if stream != nil {
			go m.forward(c, stream, 0)
		}
		go func() {
			outcome := <-done
			if outcome.Response != nil {
				m.sendJSON(c, map[string]any{
					"type":     "final",
					"tree_id":  treeID,
					"response": outcome.Response,
				})
			}
		}()

	default:
		m.sendError(c, "unrecognised message")
	}
}

// forward relays a tree's events to the connection until the stream or
// the connection closes.
func (m *ConnectionManager) forward(c *Connection, stream *progress.Stream, afterSeq int64) {
	events, cancel := stream.Subscribe(afterSeq)
	defer cancel()
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if !m.sendJSON(c, map[string]any{"type": "event", "event": event}) {
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (m *ConnectionManager) sendJSON(c *Connection, payload any) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		return false
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	writeCtx, cancel := context.WithTimeout(c.ctx, wsWriteTimeout)
	defer cancel()
	if err := c.conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		c.cancel()
		return false
	}
	return true
}

func (m *ConnectionManager) sendError(c *Connection, message string) {
	m.sendJSON(c, map[string]string{"type": "error", "message": message})
}

func (m *ConnectionManager) register(c *Connection) {
	m.mu.Lock()
	m.connections[c.ID] = c
	m.mu.Unlock()
}

func (m *ConnectionManager) unregister(c *Connection) {
	c.cancel()
	m.mu.Lock()
	delete(m.connections, c.ID)
	m.mu.Unlock()
	_ = c.conn.CloseNow()
}

// Shutdown closes all connections.
func (m *ConnectionManager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.connections {
		c.cancel()
		_ = c.conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}
