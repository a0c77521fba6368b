// Package mail hands rendered notifications to an outbound channel. Delivery
// itself (SMTP relay) happens downstream of the queue.
package mail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ovaphlow/pitchfork/service-identity-go/internal/mq"
	"go.uber.org/zap"
)

// Channel sends one message. Implementations must honour ctx.
type Channel interface {
	Send(ctx context.Context, msg Message) error
}

// Envelope is the JSON document published to the mail queue.
type Envelope struct {
	To       string    `json:"to"`
	Subject  string    `json:"subject"`
	Body     string    `json:"body"`
	Template string    `json:"template,omitempty"`
	QueuedAt time.Time `json:"queued_at"`
}

// QueueChannel publishes envelopes to a broker queue.
type QueueChannel struct {
	backend mq.Backend
	queue   string
	now     func() time.Time
}

func NewQueueChannel(backend mq.Backend, queue string) *QueueChannel {
	return &QueueChannel{backend: backend, queue: queue, now: time.Now}
}

func (q *QueueChannel) Send(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	data, err := json.Marshal(Envelope{
		To:       msg.To,
		Subject:  msg.Subject,
		Body:     msg.Body,
		Template: msg.Template,
		QueuedAt: q.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode mail envelope: %w", err)
	}
	attrs := map[string]string{"template": msg.Template}
	if _, err := q.backend.Publish(ctx, q.queue, data, attrs); err != nil {
		return fmt.Errorf("queue mail to %s: %w", msg.To, err)
	}
	return nil
}

// LogChannel writes messages to the log instead of sending them. It is the
// development default.
type LogChannel struct {
	logger *zap.SugaredLogger
}

func NewLogChannel(logger *zap.SugaredLogger) *LogChannel {
	return &LogChannel{logger: logger}
}

func (l *LogChannel) Send(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	l.logger.Infow("mail", "to", msg.To, "subject", msg.Subject, "template", msg.Template, "body", msg.Body)
	return nil
}

// DecodeEnvelope parses a queued message.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("decode mail envelope: %w", err)
	}
	if strings.TrimSpace(e.To) == "" {
		return Envelope{}, errors.New("decode mail envelope: missing recipient")
	}
	return e, nil
}
