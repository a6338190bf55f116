package socket

import (
	"context"
	"duo-chat/domain"
	"duo-chat/domain/event"
	"duo-chat/errors"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Clients only send control frames, anything bigger is dropped.
	maxMessageSize = 4096
)

// Client is one live websocket of a participant. It implements
// contract.Connection: Consume only enqueues, the write pump does the I/O.
type Client struct {
	id       domain.ConnectionID
	identity domain.Identity
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	once     sync.Once
	log      *slog.Logger
}

func NewClient(identity domain.Identity, conn *websocket.Conn, bufferSize int, log *slog.Logger) *Client {
	id := domain.ConnectionID(uuid.NewString())
	return &Client{
		id:       id,
		identity: identity,
		conn:     conn,
		send:     make(chan []byte, bufferSize),
		done:     make(chan struct{}),
		log:      log.With("identity", identity, "connection", id),
	}
}

func (c *Client) ID() domain.ConnectionID {
	return c.id
}

// Consume never blocks: a full buffer is reported as backpressure and the
// event is dropped for this connection.
func (c *Client) Consume(_ context.Context, e event.DomainEvent) error {
	data, err := json.Marshal(event.ToEnvelope(e))
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", e.Name(), err)
	}
	select {
	case <-c.done:
		return errors.ErrConnectionClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return errors.ErrConnectionClosed
	default:
		return errors.ErrConnectionBackpressure
	}
}

// Close stops both pumps. The send channel is never closed so a concurrent
// Consume cannot panic.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// ReadPump keeps the read side alive for control frames and returns when the
// peer goes away or stops answering pings.
func (c *Client) ReadPump() {
	defer c.Close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.log.Warn("Websocket read error", "error", err)
			}
			return
		}
	}
}

// WritePump drains the send buffer and pings the peer until the client is
// closed or ctx is done.
func (c *Client) WritePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		case <-c.done:
			return
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Warn("Failed to write to websocket", "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
