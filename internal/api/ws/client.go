// Package ws implements the duplex channel web clients use to submit queries and
// receive results.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"query-broker/internal/broker"
	"query-broker/internal/domain"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 << 10

	// Send buffer size
	sendBufSize = 64
)

// Event names on the wire.
const (
	EventSubmitQuery   = "submit-query"
	EventSession       = "session"
	EventResponseReady = "response-ready"
	EventQueued        = "queued"
	EventTaskRejected  = "task-rejected"
	EventError         = "error"
)

var (
	// ErrClientClosed is returned when sending to a connection that has gone away.
	ErrClientClosed = errors.New("client connection closed")
	// ErrSendBufferFull is returned when a slow client has too many pending messages.
	ErrSendBufferFull = errors.New("client send buffer full")
)

// Envelope is the frame format in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// SessionStarted is the first message a client receives.
type SessionStarted struct {
	SessionID string `json:"session_id"`
}

// ErrorMessage reports a rejected client request.
type ErrorMessage struct {
	Message string `json:"message"`
}

// SessionService is the broker surface a client connection drives.
type SessionService interface {
	OpenSession(ctx context.Context, sink domain.ResultSink) string
	CloseSession(ctx context.Context, sessionID string)
	SubmitQuery(ctx context.Context, sessionID string, q *domain.SubmitQuery) (broker.SubmitOutcome, error)
}

// Client represents a single WebSocket connection from a web client. It is the
// session's ResultSink: sends never block, they queue onto the write pump.
type Client struct {
	conn    *websocket.Conn
	service SessionService
	logger  *slog.Logger

	sessionID string
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient wraps a WebSocket connection.
func NewClient(conn *websocket.Conn, service SessionService, logger *slog.Logger) *Client {
	return &Client{
		conn:    conn,
		service: service,
		logger:  logger.With("component", "ws-client"),
		send:    make(chan []byte, sendBufSize),
		done:    make(chan struct{}),
	}
}

// Run opens the session and starts read and write pumps. Blocks until the connection
// closes, then closes the session.
func (c *Client) Run(ctx context.Context) {
	c.sessionID = c.service.OpenSession(ctx, c)
	c.logger = c.logger.With("session_id", c.sessionID)
	if err := c.emit(EventSession, SessionStarted{SessionID: c.sessionID}); err != nil {
		c.logger.Warn("failed to queue session event", "error", err)
	}

	go c.writePump()
	c.readPump(ctx) // blocks

	c.closeOnce.Do(func() { close(c.done) })
	c.service.CloseSession(ctx, c.sessionID)
}

// SessionID returns the id assigned when the connection was opened.
func (c *Client) SessionID() string {
	return c.sessionID
}

func (c *Client) SendResponse(r domain.ResponseReady) error {
	return c.emit(EventResponseReady, r)
}

func (c *Client) SendQueued(q domain.Queued) error {
	return c.emit(EventQueued, q)
}

func (c *Client) SendRejected(r domain.TaskRejected) error {
	return c.emit(EventTaskRejected, r)
}

func (c *Client) emit(event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Read pump: client -> broker.
func (c *Client) readPump(ctx context.Context) {
	defer c.conn.Close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("read error", "error", err)
			}
			return
		}
		c.handleMessage(ctx, message)
	}
}

func (c *Client) handleMessage(ctx context.Context, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.replyError("invalid message: " + err.Error())
		return
	}

	switch env.Event {
	case EventSubmitQuery:
		var q domain.SubmitQuery
		if err := json.Unmarshal(env.Data, &q); err != nil {
			c.replyError("bad submit-query payload: " + err.Error())
			return
		}
		if _, err := c.service.SubmitQuery(ctx, c.sessionID, &q); err != nil {
			c.replyError(err.Error())
		}

	default:
		c.replyError("unknown event: " + env.Event)
	}
}

func (c *Client) replyError(msg string) {
	c.logger.Warn("client request rejected", "reason", msg)
	if err := c.emit(EventError, ErrorMessage{Message: msg}); err != nil {
		c.logger.Warn("failed to queue error event", "error", err)
	}
}

// Write pump: broker -> client.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
