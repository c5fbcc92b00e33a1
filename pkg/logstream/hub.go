package logstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	defaultHistory = 200
	subscriberBuf  = 256
	writeWait      = 10 * time.Second
	pingInterval   = 30 * time.Second
)

// Hub fans log lines out to live subscribers and keeps a ring of recent
// lines for late joiners. It is an io.Writer so the logger can tee into it,
// and a logger.Publisher so collector digests reach the same stream.
type Hub struct {
	mu      sync.RWMutex
	ring    []string
	next    int
	full    bool
	subs    map[chan string]struct{}
	dropped uint64

	upgrader websocket.Upgrader
}

// NewHub creates a hub that remembers the last history lines.
func NewHub(history int) *Hub {
	if history <= 0 {
		history = defaultHistory
	}
	return &Hub{
		ring: make([]string, history),
		subs: make(map[chan string]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Write splits p into lines and broadcasts each one.
func (h *Hub) Write(p []byte) (int, error) {
	for _, line := range bytes.Split(bytes.TrimRight(p, "\n"), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		h.Broadcast(string(line))
	}
	return len(p), nil
}

// PublishMessage encodes payload as one JSON line tagged with topic.
func (h *Hub) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	b, err := json.Marshal(map[string]interface{}{"topic": topic, "payload": payload})
	if err != nil {
		return fmt.Errorf("logstream: encode %s: %w", topic, err)
	}
	h.Broadcast(string(b))
	return nil
}

// Broadcast records line and delivers it to every subscriber. Slow
// subscribers miss lines rather than block the writer.
func (h *Hub) Broadcast(line string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ring[h.next] = line
	h.next = (h.next + 1) % len(h.ring)
	if h.next == 0 {
		h.full = true
	}
	for ch := range h.subs {
		select {
		case ch <- line:
		default:
			h.dropped++
		}
	}
}

// Recent returns the remembered lines, oldest first.
func (h *Hub) Recent() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.full {
		return append([]string(nil), h.ring[:h.next]...)
	}
	out := make([]string, 0, len(h.ring))
	out = append(out, h.ring[h.next:]...)
	return append(out, h.ring[:h.next]...)
}

// Subscribe returns a channel of new lines and a function that detaches it.
func (h *Hub) Subscribe() (<-chan string, func()) {
	ch := make(chan string, subscriberBuf)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers reports how many clients are attached.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped reports how many deliveries were skipped for slow subscribers.
func (h *Hub) Dropped() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}

// ServeSSE streams the history followed by live lines as server-sent events.
func (h *Hub) ServeSSE(c echo.Context) error {
	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set(echo.HeaderConnection, "keep-alive")
	w.WriteHeader(http.StatusOK)

	lines, cancel := h.Subscribe()
	defer cancel()

	for _, line := range h.Recent() {
		if _, err := fmt.Fprintf(w, "data: %s\n\n", line); err != nil {
			return nil
		}
	}
	w.Flush()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", line); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}

// ServeWS upgrades the request to a websocket and streams lines as text frames.
func (h *Hub) ServeWS(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	lines, cancel := h.Subscribe()
	defer cancel()

	// read loop only notices the peer going away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for _, line := range h.Recent() {
		if err := h.send(conn, line); err != nil {
			return nil
		}
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-gone:
			return nil
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := h.send(conn, line); err != nil {
				return nil
			}
		}
	}
}

func (h *Hub) send(conn *websocket.Conn, line string) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, []byte(line))
}
