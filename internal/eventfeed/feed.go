package eventfeed

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sheerbytes/streamplan/internal/streaming"
	"github.com/sheerbytes/streamplan/pkg/protocol"
)

const (
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second
	sendBuffer   = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// subscriber is one websocket client and its outgoing queue.
type subscriber struct {
	planID string // empty means every plan
	send   chan protocol.Envelope

	// kicked is closed when the queue overflowed; the write loop then
	// closes the connection so the client sees the gap as a disconnect.
	kicked   chan struct{}
	kickOnce sync.Once
}

func newSubscriber(planID string, buffer int) *subscriber {
	return &subscriber{
		planID: planID,
		send:   make(chan protocol.Envelope, buffer),
		kicked: make(chan struct{}),
	}
}

func (s *subscriber) kick() {
	s.kickOnce.Do(func() { close(s.kicked) })
}

// Feed pushes stream events to websocket subscribers. It is a
// streaming.Listener and an http.Handler.
//
// Delivery never blocks the reporting session: a subscriber whose queue is
// full is disconnected rather than left with a gap in its events.
type Feed struct {
	logger *slog.Logger

	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

var _ streaming.Listener = (*Feed)(nil)

// New returns a feed with no subscribers.
func New(logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{
		logger: logger,
		subs:   make(map[*subscriber]struct{}),
	}
}

// HandleStreamEvent queues ev for every subscriber interested in its plan.
func (f *Feed) HandleStreamEvent(ev streaming.Event) {
	env, err := Encode(ev)
	if err != nil {
		f.logger.Warn("dropping event", "error", err)
		return
	}

	f.mu.RLock()
	targets := make([]*subscriber, 0, len(f.subs))
	for s := range f.subs {
		if s.planID == "" || s.planID == env.PlanID {
			targets = append(targets, s)
		}
	}
	f.mu.RUnlock()

	for _, s := range targets {
		select {
		case s.send <- env:
		default:
			f.logger.Warn("subscriber queue full, disconnecting", "type", env.Type, "plan_id", env.PlanID)
			f.mu.Lock()
			delete(f.subs, s)
			f.mu.Unlock()
			s.kick()
		}
	}
}

// Subscribers returns the number of connected subscribers.
func (f *Feed) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

// ServeHTTP upgrades the request to a websocket and streams events until the
// client goes away. The optional plan_id query parameter restricts the feed
// to one plan.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	planID := r.URL.Query().Get("plan_id")
	if planID != "" {
		if _, err := streaming.ParsePlanID(planID); err != nil {
			http.Error(w, "invalid plan_id", http.StatusBadRequest)
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	s := newSubscriber(planID, sendBuffer)
	f.mu.Lock()
	f.subs[s] = struct{}{}
	f.mu.Unlock()
	f.logger.Info("feed subscriber connected", "remote_addr", r.RemoteAddr, "plan_id", planID)

	done := make(chan struct{})
	go f.writeLoop(conn, s, done)
	f.readLoop(conn)

	f.mu.Lock()
	delete(f.subs, s)
	f.mu.Unlock()
	close(done)
	conn.Close()
	f.logger.Info("feed subscriber disconnected", "remote_addr", r.RemoteAddr)
}

// readLoop discards client messages and returns once the connection fails.
func (f *Feed) readLoop(conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(pongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				f.logger.Debug("feed read error", "error", err)
			}
			return
		}
	}
}

func (f *Feed) writeLoop(conn *websocket.Conn, s *subscriber, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-s.kicked:
			deadline := time.Now().Add(writeTimeout)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "event queue overflow"), deadline)
			conn.Close()
			return
		case env := <-s.send:
			data, err := json.Marshal(env)
			if err != nil {
				f.logger.Error("marshal envelope", "error", err)
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				conn.Close()
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}
		}
	}
}
