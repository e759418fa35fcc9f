package http

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"live-quiz-service/internal/domain"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 25 * time.Second
	sendBuffer   = 64
)

// client is one websocket connection. Writes go through a single writer
// goroutine; a connection whose buffer fills up is dropped.
type client struct {
	id     string
	conn   *websocket.Conn
	hub    *Hub
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger

	// room is guarded by hub.mu.
	room string

	// Identity bound by HOST_JOIN_GAME, PLAYER_JOIN or PLAYER_RESUME; only
	// touched by the read loop.
	hostPIN   string
	playerPIN string
	playerID  string
}

func newClient(id string, conn *websocket.Conn, hub *Hub, logger *slog.Logger) *client {
	return &client{
		id:     id,
		conn:   conn,
		hub:    hub,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
		logger: logger.With("client", id),
	}
}

func (c *client) ID() string {
	return c.id
}

func (c *client) Send(event domain.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		c.logger.Error("marshal event", "event", event.Type, "err", err)
		return
	}
	c.enqueue(data)
}

func (c *client) JoinRoom(pin string) {
	c.hub.join(c, pin)
}

func (c *client) enqueue(data []byte) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- data:
	default:
		c.logger.Warn("send buffer full, dropping connection")
		c.close()
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug("ws write error", "err", err)
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}
