package chatws

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// GroupMessage is one payload addressed to every connection bound to a chat's
// broadcast group.
type GroupMessage struct {
	ChatID  uuid.UUID
	Payload []byte
}

// Broker is the fan-out primitive behind the hub. Publishes for one chat are
// observed on Messages in publish order; delivery to connections is
// at-most-once with no replay for connections that join later.
type Broker interface {
	Publish(ctx context.Context, chatID uuid.UUID, payload []byte) error
	Messages() <-chan GroupMessage
	Close() error
}

// MemoryBroker is the single-process broker: published payloads loop straight
// back to the hub's delivery channel.
type MemoryBroker struct {
	messages  chan GroupMessage
	closeOnce sync.Once
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		messages: make(chan GroupMessage, 256),
	}
}

func (b *MemoryBroker) Publish(_ context.Context, chatID uuid.UUID, payload []byte) error {
	b.messages <- GroupMessage{ChatID: chatID, Payload: payload}
	return nil
}

func (b *MemoryBroker) Messages() <-chan GroupMessage {
	return b.messages
}

func (b *MemoryBroker) Close() error {
	b.closeOnce.Do(func() {
		close(b.messages)
	})
	return nil
}
