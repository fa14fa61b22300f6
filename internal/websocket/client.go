package chatws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"

	"chathub/backend/internal/models"
	"chathub/backend/internal/services"
)

type chatEventService interface {
	SendMessage(ctx context.Context, senderID, chatID uuid.UUID, text, attachment string) (*models.ChatMessage, error)
	MarkMessageRead(ctx context.Context, readerID, chatID, messageID uuid.UUID) (*models.ReadReceipt, error)
	MarkMessageDelivered(ctx context.Context, recipientID, chatID, messageID uuid.UUID) error
}

type presenceUpdater interface {
	SetStatusMessage(ctx context.Context, userID uuid.UUID, status string)
}

type publisher interface {
	Publish(ctx context.Context, chatID uuid.UUID, event any) error
}

// Client is the per-connection state: one authenticated identity bound to one
// chat's broadcast group. It is constructed at bind time and never shared
// across connections.
type Client struct {
	hub  *Hub
	pub  publisher
	conn *websocket.Conn

	// send is guarded so the hub can retire a slow connection while its read
	// goroutine is still mid-dispatch. closeSend is the only closer.
	sendMu     sync.Mutex
	sendClosed bool
	send       chan []byte

	user     models.User
	chatID   uuid.UUID
	service  chatEventService
	presence presenceUpdater
}

func NewClient(
	hub *Hub,
	conn *websocket.Conn,
	user models.User,
	chatID uuid.UUID,
	service chatEventService,
	presence presenceUpdater,
) *Client {
	return &Client{
		hub:      hub,
		pub:      hub,
		conn:     conn,
		send:     make(chan []byte, 32),
		user:     user,
		chatID:   chatID,
		service:  service,
		presence: presence,
	}
}

func (c *Client) ChatID() uuid.UUID {
	return c.chatID
}

// ReadPump consumes inbound frames until the connection drops, dispatching
// each event envelope. Events for one connection are handled strictly one at
// a time.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.handleEvent(context.Background(), payload)
	}
}

func (c *Client) WritePump() {
	defer func() {
		_ = c.conn.Close()
	}()

	for payload := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

// handleEvent is the single dispatch point for inbound events. A failing
// handler is reported to this connection only and never tears it down.
func (c *Client) handleEvent(ctx context.Context, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ws: handler panic for user %s in chat %s: %v", c.user.ID, c.chatID, r)
			c.sendError("Internal error while processing your request.")
		}
	}()

	var event inboundEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		log.Printf("ws: bad payload from user %s: %v", c.user.ID, err)
		c.sendError("Invalid message payload.")
		return
	}

	switch event.Type {
	case EventMessageSend:
		c.handleMessageSend(ctx, event)
	case EventMessageRead:
		c.handleMessageRead(ctx, event)
	case EventMessageDelivered:
		c.handleMessageDelivered(ctx, event)
	case EventUserTyping:
		c.broadcastTyping(ctx, true)
	case EventUserStopTyping:
		c.broadcastTyping(ctx, false)
	case EventUserStatus:
		c.handleUserStatus(ctx, event)
	default:
		// Unknown event types are ignored for forward compatibility.
	}
}

func (c *Client) handleMessageSend(ctx context.Context, event inboundEvent) {
	message, err := c.service.SendMessage(ctx, c.user.ID, c.chatID, event.Text, event.Attachment)
	if err != nil {
		if !errors.Is(err, services.ErrInvalidInput) {
			log.Printf("ws: send message for user %s in chat %s: %v", c.user.ID, c.chatID, err)
		}
		c.sendError("Message could not be sent.")
		return
	}

	c.publish(ctx, MessageReceiveEvent{
		Type:        EventMessageReceive,
		ChatID:      c.chatID.String(),
		MessageID:   message.ID.String(),
		Sender:      c.user.Username,
		SenderID:    c.user.ID.String(),
		Content:     message.Content,
		MessageType: message.MessageType,
		Status:      message.Status,
		CreatedAt:   formatTimestamp(message.CreatedAt),
	})
}

func (c *Client) handleMessageRead(ctx context.Context, event inboundEvent) {
	messageID, err := uuid.Parse(event.MessageID)
	if err != nil {
		log.Printf("ws: malformed message id %q from user %s", event.MessageID, c.user.ID)
		return
	}

	receipt, err := c.service.MarkMessageRead(ctx, c.user.ID, c.chatID, messageID)
	if err != nil {
		if errors.Is(err, services.ErrMessageNotFound) {
			// Unresolvable ids are dropped silently.
			log.Printf("ws: read receipt for unknown message %s from user %s", messageID, c.user.ID)
			return
		}
		log.Printf("ws: mark message %s read for user %s: %v", messageID, c.user.ID, err)
		c.sendError("Internal error while processing your request.")
		return
	}

	c.publish(ctx, MessageReadEvent{
		Type:           EventMessageRead,
		ChatID:         c.chatID.String(),
		MessageID:      receipt.MessageID.String(),
		ReaderID:       receipt.ReaderID.String(),
		ReaderUsername: c.user.Username,
		ReadAt:         formatTimestamp(receipt.ReadAt),
	})
}

// handleMessageDelivered acknowledges receipt of a peer's message, advancing
// it from sent to delivered. Acks for unknown messages or one's own messages
// are dropped.
func (c *Client) handleMessageDelivered(ctx context.Context, event inboundEvent) {
	messageID, err := uuid.Parse(event.MessageID)
	if err != nil {
		log.Printf("ws: malformed message id %q from user %s", event.MessageID, c.user.ID)
		return
	}

	if err := c.service.MarkMessageDelivered(ctx, c.user.ID, c.chatID, messageID); err != nil {
		if errors.Is(err, services.ErrMessageNotFound) || errors.Is(err, services.ErrInvalidInput) {
			log.Printf("ws: delivery ack for message %s from user %s dropped: %v", messageID, c.user.ID, err)
			return
		}
		log.Printf("ws: mark message %s delivered for user %s: %v", messageID, c.user.ID, err)
		c.sendError("Internal error while processing your request.")
		return
	}

	c.publish(ctx, MessageDeliveredEvent{
		Type:        EventMessageDelivered,
		ChatID:      c.chatID.String(),
		MessageID:   messageID.String(),
		RecipientID: c.user.ID.String(),
	})
}

// broadcastTyping publishes an ephemeral typing indicator. Nothing is
// persisted.
func (c *Client) broadcastTyping(ctx context.Context, isTyping bool) {
	c.publish(ctx, TypingEvent{
		Type:     EventUserTyping,
		UserID:   c.user.ID.String(),
		Username: c.user.Username,
		IsTyping: isTyping,
		ChatID:   c.chatID.String(),
	})
}

func (c *Client) handleUserStatus(ctx context.Context, event inboundEvent) {
	c.presence.SetStatusMessage(ctx, c.user.ID, event.StatusMessage)
	c.publish(ctx, NewStatusEvent(EventUserStatusUpdate, c.user.ID, c.chatID))
}

func (c *Client) publish(ctx context.Context, event any) {
	if err := c.pub.Publish(ctx, c.chatID, event); err != nil {
		log.Printf("ws: publish to chat %s: %v", c.chatID, err)
		c.sendError("Internal error while processing your request.")
	}
}

func (c *Client) sendError(message string) {
	payload, err := json.Marshal(ErrorEvent{Type: EventError, Message: message})
	if err != nil {
		return
	}
	if !c.enqueue(payload) {
		log.Printf("ws: dropping error event for retired or slow client %s", c.user.ID)
	}
}

// enqueue hands a payload to the write pump without blocking. It reports false
// when the buffer is full or the client has already been retired.
func (c *Client) enqueue(payload []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.sendClosed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.sendClosed {
		return
	}
	c.sendClosed = true
	close(c.send)
}
