package main

import (
	"errors"
	"net/http"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"campus-bus-tracker/internal/logging"
	"campus-bus-tracker/internal/mapview"
)

const (
	sendQueueSize = 1024
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = (pongWait * 9) / 10
	maxMessage    = 4096
)

var (
	errClientGone = errors.New("client gone")
	errClientSlow = errors.New("client send queue full")
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// clientMessage is what the browser sends back.
type clientMessage struct {
	Type   string `json:"type"`   // "activate", "deselect"
	Marker string `json:"marker"` // marker handle id for "activate"
}

type wsClient struct {
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	session *session
}

// sink queues a command without blocking the synchronizer that produced it.
func (c *wsClient) sink(cmd mapview.Command) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return errClientGone
	default:
	}
	select {
	case c.send <- data:
		return nil
	default:
		c.shutdown()
		return errClientSlow
	}
}

func (c *wsClient) shutdown() {
	c.once.Do(func() { close(c.done) })
}

type wsHub struct {
	mu      sync.Mutex
	clients map[*wsClient]struct{}
	routes  routeCatalog
	last    func() []Vehicle
	log     zerolog.Logger
}

func newHub(routes routeCatalog, last func() []Vehicle) *wsHub {
	return &wsHub{
		clients: make(map[*wsClient]struct{}),
		routes:  routes,
		last:    last,
		log:     logging.With("ws"),
	}
}

func (h *wsHub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("ws upgrade error")
		return
	}
	c := &wsClient{
		conn: conn,
		send: make(chan []byte, sendQueueSize),
		done: make(chan struct{}),
	}
	c.session = newSession(c.sink, h.routes)
	h.add(c)
	h.log.Info().Str("session", c.session.id).Str("remote", r.RemoteAddr).Msg("map session opened")

	go h.writePump(c)
	go h.readPump(c)

	// Send the most recent snapshot if available to center the map quickly
	if h.last != nil {
		if snapshot := h.last(); len(snapshot) > 0 {
			c.session.update(snapshot)
		}
	}
}

func (h *wsHub) add(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	mapSessions.Inc()
}

// remove retires a client once; its session is torn down synchronously.
func (h *wsHub) remove(c *wsClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if !ok {
		return
	}
	mapSessions.Dec()
	c.shutdown()
	c.session.close()
	_ = c.conn.Close()
	h.log.Info().Str("session", c.session.id).Msg("map session closed")
}

// broadcast hands the roster to every session. Sessions whose queue
// overflowed are dropped.
func (h *wsHub) broadcast(vehicles []Vehicle) {
	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.session.update(vehicles)
		select {
		case <-c.done:
			h.remove(c)
		default:
		}
	}
}

// closeAll tears down every session, used on shutdown.
func (h *wsHub) closeAll() {
	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		h.remove(c)
	}
}

func (h *wsHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *wsHub) readPump(c *wsClient) {
	defer h.remove(c)
	c.conn.SetReadLimit(maxMessage)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.log.Debug().Err(err).Msg("ignoring malformed client message")
			continue
		}
		switch msg.Type {
		case "activate":
			if !c.session.activate(msg.Marker) {
				h.log.Debug().Str("marker", msg.Marker).Msg("activation for unknown marker")
			}
		case "deselect":
			c.session.clearSelection()
		default:
			h.log.Debug().Str("type", msg.Type).Msg("ignoring client message")
		}
	}
}

func (h *wsHub) writePump(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		h.remove(c)
	}()
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.log.Debug().Err(err).Msg("ws write error")
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
