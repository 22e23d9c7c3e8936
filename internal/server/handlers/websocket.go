// internal/server/handlers/websocket.go

package handlers

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"adintel/internal/adapter/events"
)

// Subscriber delivers raw event payloads for a subject until the returned
// unsubscribe func is called
type Subscriber interface {
	Subscribe(subject string, handler func(data []byte)) (unsubscribe func(), err error)
}

// NATSSubscriber subscribes through a NATS connection
type NATSSubscriber struct {
	Conn *nats.Conn
}

// Subscribe implements Subscriber
func (s NATSSubscriber) Subscribe(subject string, handler func(data []byte)) (func(), error) {
	sub, err := s.Conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return nil, err
	}
	return func() { _ = sub.Unsubscribe() }, nil
}

// WebSocketConfig contains configuration for WebSocket connections
type WebSocketConfig struct {
	// Time allowed to write a message to the peer
	WriteWait time.Duration

	// Time allowed to read the next pong message from the peer
	PongWait time.Duration

	// Send pings to peer with this period
	PingPeriod time.Duration

	MaxMessageSize int64
	SendBuffer     int
}

// DefaultWebSocketConfig returns the default WebSocket configuration
func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     (60 * time.Second * 9) / 10,
		MaxMessageSize: 4096,
		SendBuffer:     256,
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// alertClient is one websocket subscriber to a job's event stream
type alertClient struct {
	conn        *websocket.Conn
	send        chan []byte
	jobID       string
	config      WebSocketConfig
	unsubscribe func()
	closeOnce   sync.Once
	done        chan struct{}
	logger      *zap.Logger
}

// AlertStreamHandler relays a job's snapshot, creative and brand events to a
// websocket client. The job is selected with ?job_id= and must exist.
func AlertStreamHandler(jobs jobGetter, sub Subscriber, prefix string, logger *zap.Logger) http.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := r.URL.Query().Get("job_id")
		if jobID == "" {
			respondWithError(w, http.StatusBadRequest, "Missing job_id")
			return
		}
		if _, err := jobs.GetJob(r.Context(), jobID); err != nil {
			respondWithServiceError(w, logger, "Failed to load job", err)
			return
		}
		if sub == nil {
			respondWithError(w, http.StatusServiceUnavailable, "Event stream unavailable")
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("Failed to upgrade to WebSocket", zap.Error(err))
			return
		}

		config := DefaultWebSocketConfig()
		client := &alertClient{
			conn:   conn,
			send:   make(chan []byte, config.SendBuffer),
			jobID:  jobID,
			config: config,
			done:   make(chan struct{}),
			logger: logger.With(zap.String("job_id", jobID)),
		}

		unsubscribe, err := sub.Subscribe(events.Wildcard(prefix), client.deliver)
		if err != nil {
			logger.Error("Failed to subscribe to events", zap.Error(err))
			conn.Close()
			return
		}
		client.unsubscribe = unsubscribe

		welcome, _ := json.Marshal(map[string]interface{}{
			"type":   "welcome",
			"job_id": jobID,
			"time":   time.Now().UTC(),
		})
		client.send <- welcome

		go client.writePump()
		go client.readPump()

		client.logger.Info("Alert stream connected")
	}
}

// deliver forwards events for the client's job, dropping them when the
// client cannot keep up
func (c *alertClient) deliver(data []byte) {
	var env events.Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.JobID != c.jobID {
		return
	}
	select {
	case <-c.done:
	case c.send <- data:
	default:
		c.logger.Warn("Dropping event for slow client", zap.String("topic", env.Topic))
	}
}

// readPump drains control frames; clients send nothing meaningful
func (c *alertClient) readPump() {
	defer c.close()

	c.conn.SetReadLimit(c.config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("WebSocket read error", zap.Error(err))
			}
			return
		}
	}
}

// writePump pumps queued events to the WebSocket connection
func (c *alertClient) writePump() {
	ticker := time.NewTicker(c.config.PingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// close releases the subscription and connection exactly once. The send
// channel is never closed; done signals shutdown instead.
func (c *alertClient) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.unsubscribe != nil {
			c.unsubscribe()
		}
		c.conn.Close()
		c.logger.Info("Alert stream closed")
	})
}
