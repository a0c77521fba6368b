// Package mq carries outbound notifications over a message broker. The
// identity service only ever publishes; the mail-log command subscribes.
package mq

import (
	"context"
	"fmt"

	"github.com/ovaphlow/pitchfork/service-identity-go/internal/config"
)

// Message is a broker-neutral delivery.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// Handler processes one delivery. A non-nil error requeues it.
type Handler func(ctx context.Context, msg Message) error

// Backend is implemented by RabbitMQClient and PubSubClient.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Close() error
}

// Open builds the backend named by cfg.Mail.Backend. The "log" backend has
// no broker and returns nil, nil.
func Open(ctx context.Context, cfg config.Config) (Backend, error) {
	switch cfg.Mail.Backend {
	case "rabbitmq":
		return NewRabbitMQClient(cfg.RabbitMQ)
	case "pubsub":
		return NewPubSubClient(ctx, cfg.PubSub)
	case "log", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("mq: unsupported backend %q", cfg.Mail.Backend)
	}
}
