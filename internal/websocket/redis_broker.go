package chatws

import (
	"context"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const chatChannelPrefix = "chat:"

// RedisBroker fans broadcasts out through Redis Pub/Sub so that hubs in
// different processes see each other's publishes. One pattern subscription
// (chat:*) feeds every group.
type RedisBroker struct {
	client   *redis.Client
	pubsub   *redis.PubSub
	messages chan GroupMessage
}

func NewRedisBroker(client *redis.Client) *RedisBroker {
	b := &RedisBroker{
		client:   client,
		pubsub:   client.PSubscribe(context.Background(), chatChannelPrefix+"*"),
		messages: make(chan GroupMessage, 256),
	}
	go b.listen()
	return b
}

func (b *RedisBroker) listen() {
	defer close(b.messages)

	for msg := range b.pubsub.Channel() {
		chatID, err := uuid.Parse(strings.TrimPrefix(msg.Channel, chatChannelPrefix))
		if err != nil {
			log.Printf("broker: unexpected channel %q: %v", msg.Channel, err)
			continue
		}
		b.messages <- GroupMessage{ChatID: chatID, Payload: []byte(msg.Payload)}
	}
}

func (b *RedisBroker) Publish(ctx context.Context, chatID uuid.UUID, payload []byte) error {
	return b.client.Publish(ctx, chatChannelPrefix+chatID.String(), payload).Err()
}

func (b *RedisBroker) Messages() <-chan GroupMessage {
	return b.messages
}

func (b *RedisBroker) Close() error {
	return b.pubsub.Close()
}
