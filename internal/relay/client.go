package relay

import (
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

// Client is a websocket Observer. readPump feeds inbound frames to the relay and
// writePump drains the send buffer to the connection.
type Client struct {
	id    string
	relay *Relay
	conn  *websocket.Conn
	send  chan Message
	done  chan struct{}
	once  sync.Once
}

// NewClient wraps conn as an observer of relay.
func NewClient(relay *Relay, conn *websocket.Conn) *Client {
	return &Client{
		id:    uuid.NewString(),
		relay: relay,
		conn:  conn,
		send:  make(chan Message, sendBuffer),
		done:  make(chan struct{}),
	}
}

// ID returns the observer id.
func (c *Client) ID() string { return c.id }

// Send queues msg without blocking.
func (c *Client) Send(msg Message) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Close stops the write pump, which closes the connection.
func (c *Client) Close() {
	c.once.Do(func() { close(c.done) })
}

// Start registers the client and begins pumping.
func (c *Client) Start() {
	c.relay.Register(c)
	go c.writePump()
	go c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.relay.Unregister(c.id)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.WithError(err).WithField("observer_id", c.id).Warn("Unexpected websocket close")
			}
			return
		}
		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Event == "" {
			log.WithField("observer_id", c.id).Debug("Ignoring malformed frame")
			continue
		}
		c.relay.Handle(c.id, msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case msg := <-c.send:
			payload, err := json.Marshal(msg)
			if err != nil {
				log.WithError(err).WithField("event", msg.Event).Error("Failed to encode relay message")
				continue
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Handler upgrades requests to websocket observers. Browsers must send an Origin in
// allowedOrigins; native driver apps that send no Origin are accepted.
func Handler(relay *Relay, allowedOrigins ...string) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, allowed := range allowedOrigins {
				if allowed == "*" || allowed == origin {
					return true
				}
			}
			log.WithField("origin", origin).Warn("WebSocket connection rejected from unauthorized origin")
			return false
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.WithError(err).Warn("WebSocket upgrade failed")
			return
		}
		NewClient(relay, conn).Start()
	}
}
