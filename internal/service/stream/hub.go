package stream

import (
	"net/http"
	"sync"
	"time"

	applogger "CopyRelay/pkg/logger"

	"github.com/gorilla/websocket"
)

const (
	// sendBuffer bounds how far a subscriber may fall behind before it is
	// dropped. The endpoint is unauthenticated, so a subscriber that stops
	// reading must never be able to stall the publish path.
	sendBuffer   = 32
	writeTimeout = 10 * time.Second
)

// subscriber owns one connection and its outbound buffer. The send channel
// is closed exactly once, by whoever removes the subscriber from the hub
// map while holding the hub mutex.
type subscriber struct {
	conn *websocket.Conn
	send chan interface{}
}

// Hub fans published signals out to WebSocket subscribers so slaves can
// receive pushes instead of polling GET /signals. Delivery is best-effort:
// each subscriber has a bounded buffer drained by its own writer goroutine,
// and a subscriber that falls behind or fails a write is dropped and must
// reconnect. Broadcast never blocks on a connection.
type Hub struct {
	logger   *applogger.Logger
	upgrader websocket.Upgrader

	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

func NewHub(logger *applogger.Logger) *Hub {
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			// Browser dashboards connect cross-origin, same policy as CORS.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		subs: make(map[*subscriber]struct{}),
	}
}

// Subscribe upgrades the request and registers the connection. A writer
// goroutine drains the send buffer; a reader goroutine discards inbound
// frames and unregisters on close.
func (h *Hub) Subscribe(w http.ResponseWriter, r *http.Request) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	sub := &subscriber{conn: conn, send: make(chan interface{}, sendBuffer)}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()
	h.logger.Info("stream subscriber connected",
		applogger.String("remote", conn.RemoteAddr().String()),
		applogger.Int("subscribers", n),
	)

	go h.writeLoop(sub)
	go h.readLoop(sub)
	return nil
}

// Broadcast queues v for every subscriber. A full buffer means the
// subscriber stopped reading; it is dropped rather than waited for.
func (h *Hub) Broadcast(v interface{}) {
	h.mu.Lock()
	var dead []*subscriber
	for sub := range h.subs {
		select {
		case sub.send <- v:
		default:
			dead = append(dead, sub)
		}
	}
	for _, sub := range dead {
		delete(h.subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range dead {
		close(sub.send)
		_ = sub.conn.Close()
		h.logger.Warn("stream subscriber dropped",
			applogger.String("remote", sub.conn.RemoteAddr().String()),
		)
	}
}

// Count reports the current number of subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := make([]*subscriber, 0, len(h.subs))
	for sub := range h.subs {
		subs = append(subs, sub)
		delete(h.subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		close(sub.send)
		_ = sub.conn.Close()
	}
}

func (h *Hub) writeLoop(sub *subscriber) {
	for v := range sub.send {
		_ = sub.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := sub.conn.WriteJSON(v); err != nil {
			h.drop(sub)
			return
		}
	}
}

func (h *Hub) readLoop(sub *subscriber) {
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			h.drop(sub)
			return
		}
	}
}

// drop removes the subscriber if it is still registered. Only the goroutine
// that removes it from the map closes the send channel, so a concurrent
// Broadcast can never publish into a closed channel.
func (h *Hub) drop(sub *subscriber) {
	h.mu.Lock()
	_, ok := h.subs[sub]
	delete(h.subs, sub)
	h.mu.Unlock()

	_ = sub.conn.Close()
	if ok {
		close(sub.send)
		h.logger.Info("stream subscriber disconnected",
			applogger.String("remote", sub.conn.RemoteAddr().String()),
		)
	}
}
