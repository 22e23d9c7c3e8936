// internal/adapter/events/publisher.go

package events

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Topics published under the configured subject prefix
const (
	TopicSnapshotRecorded = "snapshot.recorded"
	TopicBrandViolation   = "brand.violation"
	// creative alerts publish as "creative.<alert type>"
	TopicCreativePrefix = "creative."
)

// Envelope is the wire form of every event
type Envelope struct {
	Topic      string          `json:"topic"`
	JobID      string          `json:"job_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

type conn interface {
	Publish(subject string, data []byte) error
}

// Publisher publishes domain events to NATS. A Publisher without a
// connection drops events, so services work the same with NATS down.
type Publisher struct {
	conn   conn
	prefix string
	logger *zap.Logger
}

// NewPublisher creates a new publisher. nc may be nil.
func NewPublisher(nc *nats.Conn, prefix string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Publisher{prefix: prefix, logger: logger}
	if nc != nil {
		p.conn = nc
	}
	return p
}

// Subject returns the full NATS subject for a topic
func Subject(prefix, topic string) string {
	if prefix == "" {
		return topic
	}
	return prefix + "." + topic
}

// Wildcard matches every topic under prefix
func Wildcard(prefix string) string {
	return Subject(prefix, ">")
}

// Publish sends payload under topic. Failures are logged, never returned:
// events are published after the state they describe has committed.
func (p *Publisher) Publish(topic, jobID string, payload interface{}) {
	if p == nil || p.conn == nil {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("Failed to encode event", zap.String("topic", topic), zap.Error(err))
		return
	}

	msg, err := json.Marshal(Envelope{
		Topic:      topic,
		JobID:      jobID,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	})
	if err != nil {
		p.logger.Error("Failed to encode envelope", zap.String("topic", topic), zap.Error(err))
		return
	}

	if err := p.conn.Publish(Subject(p.prefix, topic), msg); err != nil {
		p.logger.Warn("Failed to publish event", zap.String("topic", topic), zap.Error(err))
	}
}
