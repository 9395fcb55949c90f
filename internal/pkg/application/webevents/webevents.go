package webevents

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/diwise/farm-operations/internal/pkg/infrastructure/metrics"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/gorilla/websocket"
)

//go:generate moq -rm -out webevents_mock.go . WebEvents

type WebEvents interface {
	Handler() http.HandlerFunc
	Publish(event string, data any) error
	Clients() int
	Shutdown()
}

type message struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

const (
	sendBuffer   = 64
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second
)

type client struct {
	conn *websocket.Conn
	send chan []byte
}

type webEvents struct {
	mu       sync.Mutex
	clients  map[*client]struct{}
	closed   bool
	upgrader websocket.Upgrader
}

// New creates the live feed. originAllowed decides which browser origins may
// connect. Requests without an Origin header are always accepted and a nil
// originAllowed only accepts the service's own host.
func New(originAllowed func(r *http.Request) bool) WebEvents {
	we := &webEvents{
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	if originAllowed != nil {
		we.upgrader.CheckOrigin = func(r *http.Request) bool {
			if r.Header.Get("Origin") == "" {
				return true
			}
			return originAllowed(r)
		}
	}

	return we
}

func (we *webEvents) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := logging.GetFromContext(r.Context())

		conn, err := we.upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error().Err(err).Msg("failed to upgrade connection")
			return
		}

		c := &client{
			conn: conn,
			send: make(chan []byte, sendBuffer),
		}

		if !we.add(c) {
			conn.Close()
			return
		}

		go we.writePump(c)
		go we.readPump(c)
	}
}

func (we *webEvents) add(c *client) bool {
	we.mu.Lock()
	defer we.mu.Unlock()

	if we.closed {
		return false
	}

	we.clients[c] = struct{}{}
	metrics.LiveFeedClients.Set(float64(len(we.clients)))

	return true
}

func (we *webEvents) remove(c *client) {
	we.mu.Lock()
	defer we.mu.Unlock()

	if _, ok := we.clients[c]; ok {
		delete(we.clients, c)
		close(c.send)
	}

	metrics.LiveFeedClients.Set(float64(len(we.clients)))
}

// Publish sends the event to every connected client. A client whose buffer
// is full is disconnected.
func (we *webEvents) Publish(event string, data any) error {
	b, err := json.Marshal(message{Event: event, Data: data})
	if err != nil {
		return err
	}

	we.mu.Lock()
	defer we.mu.Unlock()

	for c := range we.clients {
		select {
		case c.send <- b:
		default:
			delete(we.clients, c)
			close(c.send)
		}
	}

	metrics.LiveFeedClients.Set(float64(len(we.clients)))

	return nil
}

func (we *webEvents) Clients() int {
	we.mu.Lock()
	defer we.mu.Unlock()

	return len(we.clients)
}

func (we *webEvents) Shutdown() {
	we.mu.Lock()
	defer we.mu.Unlock()

	we.closed = true
	for c := range we.clients {
		delete(we.clients, c)
		close(c.send)
	}
}

// readPump only handles control frames. Anything sent by the client is discarded.
func (we *webEvents) readPump(c *client) {
	defer func() {
		we.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})

	for {
		if _, _, err := c.conn.NextReader(); err != nil {
			return
		}
	}
}

func (we *webEvents) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
