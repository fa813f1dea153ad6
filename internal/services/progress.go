package services

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Progress event types broadcast while a blueprint executes.
const (
	EventRunStarted    = "run_started"
	EventStepCompleted = "step_completed"
	EventRunFinished   = "run_finished"
)

// ProgressEvent is one execution update pushed to connected clients.
type ProgressEvent struct {
	Type         string      `json:"type"`
	AutomationID string      `json:"automation_id"`
	RunID        string      `json:"run_id"`
	Data         interface{} `json:"data,omitempty"`
	Timestamp    time.Time   `json:"timestamp"`
}

type progressClient struct {
	id   string
	conn *websocket.Conn
	send chan ProgressEvent
}

// ProgressHub fans execution progress out to websocket subscribers. The
// stream is server-to-client only; inbound frames are drained and
// dropped.
type ProgressHub struct {
	clients    map[string]*progressClient
	broadcast  chan ProgressEvent
	register   chan *progressClient
	unregister chan *progressClient
	mutex      sync.RWMutex
	logger     *logrus.Logger
}

var progressUpgrader = websocket.Upgrader{
	// origin checks belong to the deployment's reverse proxy
	CheckOrigin: func(r *http.Request) bool { return true },
}

func NewProgressHub(logger *logrus.Logger) *ProgressHub {
	if logger == nil {
		logger = logrus.New()
	}
	return &ProgressHub{
		clients:    make(map[string]*progressClient),
		broadcast:  make(chan ProgressEvent, 64),
		register:   make(chan *progressClient),
		unregister: make(chan *progressClient),
		logger:     logger,
	}
}

// Run processes hub events until the channel-driven loop is abandoned.
// Call it from a goroutine at startup.
func (h *ProgressHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client.id] = client
			h.mutex.Unlock()
			h.logger.Debugf("progress: client %s connected", client.id)
		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				close(client.send)
			}
			h.mutex.Unlock()
		case event := <-h.broadcast:
			h.mutex.RLock()
			for _, client := range h.clients {
				select {
				case client.send <- event:
				default:
					// slow consumer, drop the event rather than block
					// the execution path
				}
			}
			h.mutex.RUnlock()
		}
	}
}

// Broadcast queues an event for all connected clients. Safe to call from
// any goroutine; never blocks the caller.
func (h *ProgressHub) Broadcast(event ProgressEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("progress: broadcast buffer full, dropping event")
	}
}

// ClientCount reports connected subscribers (for the health endpoint).
func (h *ProgressHub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// HandleWebSocket upgrades the request and streams progress events until
// the client disconnects.
func (h *ProgressHub) HandleWebSocket(c *gin.Context) {
	conn, err := progressUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warnf("progress: websocket upgrade failed: %v", err)
		return
	}

	client := &progressClient{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan ProgressEvent, 16),
	}
	h.register <- client

	go h.writePump(client)
	h.readPump(client)
}

func (h *ProgressHub) writePump(client *progressClient) {
	defer client.conn.Close()
	for event := range client.send {
		if err := client.conn.WriteJSON(event); err != nil {
			return
		}
	}
}

func (h *ProgressHub) readPump(client *progressClient) {
	defer func() {
		h.unregister <- client
		client.conn.Close()
	}()
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}
