package streambridge

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kandev/agentengine/internal/common/logger"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Client is one websocket connection tailing a single task's entries.
type Client struct {
	conn *websocket.Conn
	hub  *Hub
	out  chan []byte

	mu     sync.Mutex
	closed bool
	log    *logger.Logger
}

// Upgrade promotes an HTTP request to a websocket connection and returns a
// Client subscribed to taskID on hub. The caller must invoke ReadPump and
// WritePump (typically each in its own goroutine).
func Upgrade(w http.ResponseWriter, r *http.Request, hub *Hub, taskID string, log *logger.Logger) (*Client, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	c := &Client{
		conn: conn,
		hub:  hub,
		out:  make(chan []byte, 256),
		log:  log.WithFields(zap.String("component", "streambridge-client")),
	}
	hub.Subscribe(taskID, c)
	return c, nil
}

func (c *Client) send(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.out <- data:
	default:
		c.log.Warn("client send buffer full, dropping entry")
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.out)
}

// ReadPump discards inbound frames (this bridge is output-only) but keeps
// the read deadline alive so pings are acknowledged and disconnects detected.
func (c *Client) ReadPump() {
	defer c.conn.Close()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// WritePump pumps queued entries (and periodic pings) to the connection
// until out closes or a write fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.out:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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
