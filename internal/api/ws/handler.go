package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/GriffinCanCode/sitepack/internal/domain/mirror"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	eventBuf   = 64
)

var upgrader = websocket.Upgrader{
	// CORS already allows every origin
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Feed is the job event source
type Feed interface {
	Active() []mirror.Snapshot
	Subscribe(buf int) (<-chan mirror.Snapshot, func())
}

// Message is a server to client frame
type Message struct {
	Type      string            `json:"type"`
	Jobs      []mirror.Snapshot `json:"jobs,omitempty"`
	Job       *mirror.Snapshot  `json:"job,omitempty"`
	Message   string            `json:"message,omitempty"`
	Timestamp int64             `json:"timestamp"`
}

// inbound is a client to server frame
type inbound struct {
	Type string `json:"type"`
}

// Handler manages WebSocket connections
type Handler struct {
	feed   Feed
	logger *zap.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(feed Feed, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{feed: feed, logger: logger}
}

// HandleConnection upgrades the request and streams job events until the
// client goes away.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	// Subscribe before the snapshot so no transition falls in between
	events, cancel := h.feed.Subscribe(eventBuf)
	defer cancel()

	out := &writer{conn: conn}
	if err := out.send(Message{Type: "jobs", Jobs: h.feed.Active()}); err != nil {
		return
	}

	done := make(chan struct{})
	go h.readLoop(conn, out, done)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case snap, ok := <-events:
			if !ok {
				return
			}
			if err := out.send(Message{Type: "job", Job: &snap}); err != nil {
				h.logger.Debug("WebSocket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := out.ping(); err != nil {
				return
			}
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}

// readLoop answers pings and notices when the client disconnects
func (h *Handler) readLoop(conn *websocket.Conn, out *writer, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg inbound
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("WebSocket read error", zap.Error(err))
			}
			return
		}

		switch msg.Type {
		case "ping":
			if err := out.send(Message{Type: "pong"}); err != nil {
				return
			}
		case "jobs":
			if err := out.send(Message{Type: "jobs", Jobs: h.feed.Active()}); err != nil {
				return
			}
		default:
			if err := out.send(Message{Type: "error", Message: "unknown message type"}); err != nil {
				return
			}
		}
	}
}

// writer serializes writes; gorilla connections allow one writer at a time
type writer struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *writer) send(msg Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	msg.Timestamp = time.Now().Unix()
	_ = w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteJSON(msg)
}

func (w *writer) ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}
