package session

import (
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"collabhub/internal/models"
)

// Client is one live websocket connection. A user may hold several at once.
type Client struct {
	ID   string
	Conn *websocket.Conn
	mu   sync.Mutex
	hook func(models.Frame)
}

func NewClient(conn *websocket.Conn) *Client {
	return &Client{ID: uuid.NewString(), Conn: conn}
}

// SetSendHook replaces the default WebSocket sender (used in tests).
func (c *Client) SetSendHook(fn func(models.Frame)) {
	c.mu.Lock()
	c.hook = fn
	c.mu.Unlock()
}

// Send writes a frame to the connection. Best effort: write errors are
// dropped here and surface as a read error on the connection's own loop.
func (c *Client) Send(frame models.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hook != nil {
		c.hook(frame)
		return
	}
	if c.Conn == nil {
		return
	}
	_ = c.Conn.WriteJSON(frame)
}
