package chatws

import (
	"context"
	"encoding/json"
	"log"

	"github.com/google/uuid"
)

// Hub binds live connections to per-chat broadcast groups and fans published
// events out to every bound connection, the sender included. All group state
// is owned by the Run goroutine; one broker subscription feeds deliveries, so
// each connection observes a chat's events in publish order.
type Hub struct {
	clients    map[uuid.UUID]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broker     Broker
}

func NewHub(broker Broker) *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broker:     broker,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			set, ok := h.clients[client.chatID]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[client.chatID] = set
			}
			set[client] = struct{}{}
		case client := <-h.unregister:
			set, ok := h.clients[client.chatID]
			if !ok {
				continue
			}
			if _, exists := set[client]; exists {
				delete(set, client)
				client.closeSend()
			}
			if len(set) == 0 {
				delete(h.clients, client.chatID)
			}
		case message, ok := <-h.broker.Messages():
			if !ok {
				return
			}
			h.deliver(message)
		}
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Publish encodes event and hands it to the broker for fan-out to the chat's
// group. Delivery is at-most-once per bound connection; nothing is retained
// for connections that are not bound when the event goes out.
func (h *Hub) Publish(ctx context.Context, chatID uuid.UUID, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return h.broker.Publish(ctx, chatID, payload)
}

func (h *Hub) deliver(message GroupMessage) {
	set, ok := h.clients[message.ChatID]
	if !ok {
		return
	}

	for client := range set {
		if !client.enqueue(message.Payload) {
			// Slow client: drop it rather than stall the group.
			log.Printf("ws: dropping slow client %s in chat %s", client.user.ID, message.ChatID)
			delete(set, client)
			client.closeSend()
		}
	}
	if len(set) == 0 {
		delete(h.clients, message.ChatID)
	}
}
