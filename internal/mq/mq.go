package mq

import "context"

// Message is a broker-agnostic payload as delivered to a subscriber.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// Handler processes one message. Returning an error nacks the delivery so
// the broker redelivers it.
type Handler func(ctx context.Context, msg Message) error

// Backend abstracts the broker carrying loan events. RabbitMQ and Google
// Cloud Pub/Sub implementations are provided.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Close() error
}

// MQ is the broker handle the rest of the app works against.
type MQ struct {
	backend Backend
}

// New wraps a backend.
func New(backend Backend) *MQ {
	return &MQ{backend: backend}
}

// Publish sends a message on the named channel and returns its broker id.
func (m *MQ) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	return m.backend.Publish(ctx, channel, data, attrs)
}

// Subscribe consumes the named channel until the context is cancelled.
func (m *MQ) Subscribe(ctx context.Context, channel string, handler Handler) error {
	return m.backend.Subscribe(ctx, channel, handler)
}

// Close shuts down the backend connection.
func (m *MQ) Close() error {
	return m.backend.Close()
}
