package chatws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/saeid-a/ChefConnectBack/internal/models"
	"github.com/saeid-a/ChefConnectBack/internal/services"
)

// Hub owns the per-room membership registries. All membership mutation and
// fan-out happens on the single Run goroutine, so delivery never observes
// a half-updated room set.
type Hub struct {
	rooms      map[int64]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan *envelope
}

type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID int64
	roomID int64
	send   chan []byte
}

// envelope routes one encoded event to a room's connections. origin (a
// single connection) or excludeUserID (every connection of a user) narrow
// the audience. targetUserID restricts delivery to one user's connections;
// only restricts it to one specific connection.
type envelope struct {
	roomID        int64
	origin        *Client
	only          *Client
	excludeUserID int64
	targetUserID  int64
	payload       []byte
}

// Event is the wire shape of everything the hub emits.
type Event struct {
	Type      string          `json:"type"`
	RoomID    int64           `json:"room_id,omitempty"`
	UserID    int64           `json:"user_id,omitempty"`
	MessageID int64           `json:"message_id,omitempty"`
	IsTyping  *bool           `json:"is_typing,omitempty"`
	Message   *models.Message `json:"message,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

const (
	EventChatMessage = "chat_message"
	EventTyping      = "typing"
	EventReadReceipt = "read_receipt"
	EventUserJoin    = "user_join"
	EventUserLeave   = "user_leave"
	EventError       = "error"
)

func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[int64]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *envelope, 64),
	}
}

func NewClient(hub *Hub, conn *websocket.Conn, userID int64, roomID int64) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		userID: userID,
		roomID: roomID,
		send:   make(chan []byte, 32),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			room, ok := h.rooms[client.roomID]
			if !ok {
				room = make(map[*Client]struct{})
				h.rooms[client.roomID] = room
			}
			room[client] = struct{}{}
			h.deliver(&envelope{
				roomID:  client.roomID,
				origin:  client,
				payload: encodeEvent(Event{Type: EventUserJoin, RoomID: client.roomID, UserID: client.userID}),
			})
		case client := <-h.unregister:
			room, ok := h.rooms[client.roomID]
			if !ok {
				continue
			}
			if _, exists := room[client]; !exists {
				continue
			}
			delete(room, client)
			close(client.send)
			if len(room) == 0 {
				delete(h.rooms, client.roomID)
				continue
			}
			h.deliver(&envelope{
				roomID:  client.roomID,
				payload: encodeEvent(Event{Type: EventUserLeave, RoomID: client.roomID, UserID: client.userID}),
			})
		case env := <-h.broadcast:
			h.deliver(env)
		}
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// BroadcastMessage fans a persisted message out to every connection joined
// to the room except the originating one. Callers must only invoke this
// after the ledger write has committed.
func (h *Hub) BroadcastMessage(roomID int64, origin *Client, message *models.Message) {
	event := Event{
		Type:      EventChatMessage,
		RoomID:    roomID,
		UserID:    message.SenderID,
		MessageID: message.ID,
		Message:   message,
		Timestamp: services.FormatChatTimestamp(message.CreatedAt),
	}
	h.broadcast <- &envelope{
		roomID:  roomID,
		origin:  origin,
		payload: encodeEvent(event),
	}
}

// BroadcastTyping sends an ephemeral typing indicator to everyone in the
// room except the typist's own connections. Nothing is persisted.
func (h *Hub) BroadcastTyping(roomID int64, userID int64, isTyping bool) {
	event := Event{
		Type:     EventTyping,
		RoomID:   roomID,
		UserID:   userID,
		IsTyping: &isTyping,
	}
	h.broadcast <- &envelope{
		roomID:        roomID,
		excludeUserID: userID,
		payload:       encodeEvent(event),
	}
}

// SendReadReceipt notifies the message sender's joined connections that
// readerID has read the message.
func (h *Hub) SendReadReceipt(roomID int64, senderID int64, messageID int64, readerID int64) {
	event := Event{
		Type:      EventReadReceipt,
		RoomID:    roomID,
		UserID:    readerID,
		MessageID: messageID,
	}
	h.broadcast <- &envelope{
		roomID:       roomID,
		targetUserID: senderID,
		payload:      encodeEvent(event),
	}
}

func (h *Hub) deliver(env *envelope) {
	if env.payload == nil {
		return
	}

	room, ok := h.rooms[env.roomID]
	if !ok {
		return
	}

	var evicted []*Client
	for client := range room {
		if client == env.origin {
			continue
		}
		if env.only != nil && client != env.only {
			continue
		}
		if env.excludeUserID != 0 && client.userID == env.excludeUserID {
			continue
		}
		if env.targetUserID != 0 && client.userID != env.targetUserID {
			continue
		}
		select {
		case client.send <- env.payload:
		default:
			// Slow consumer: evict rather than block the room.
			delete(room, client)
			close(client.send)
			evicted = append(evicted, client)
		}
	}

	if len(room) == 0 {
		delete(h.rooms, env.roomID)
		return
	}
	for _, client := range evicted {
		h.deliver(&envelope{
			roomID:  env.roomID,
			payload: encodeEvent(Event{Type: EventUserLeave, RoomID: env.roomID, UserID: client.userID}),
		})
	}
}

func encodeEvent(event Event) []byte {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("chat hub encode event: %v", err)
		return nil
	}
	return payload
}

type chatService interface {
	PostMessage(ctx context.Context, actorID int64, input services.PostMessageInput) (*services.ChatDelivery, error)
	MarkMessageRead(ctx context.Context, actorID int64, messageID int64) (*services.ReadReceipt, error)
}

type inboundEvent struct {
	Type        string  `json:"type"`
	Kind        string  `json:"kind"`
	Content     string  `json:"content"`
	Attachment  *string `json:"attachment"`
	ClientNonce *string `json:"client_nonce"`
	MessageID   int64   `json:"message_id"`
	IsTyping    bool    `json:"is_typing"`
}

// ReadPump consumes inbound frames for one joined connection. Malformed or
// rejected events produce a local error event only; the connection stays
// joined.
func (c *Client) ReadPump(service chatService) {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var incoming inboundEvent
		if err := json.Unmarshal(payload, &incoming); err != nil {
			c.writeError("invalid event payload")
			continue
		}

		switch incoming.Type {
		case EventChatMessage:
			c.handleChatMessage(service, incoming)
		case EventTyping:
			c.hub.BroadcastTyping(c.roomID, c.userID, incoming.IsTyping)
		case EventReadReceipt:
			c.handleReadReceipt(service, incoming)
		default:
			c.writeError("unsupported event type")
		}
	}
}

func (c *Client) handleChatMessage(service chatService, incoming inboundEvent) {
	kind := models.MessageKind(incoming.Kind)
	if incoming.Kind == "" {
		kind = models.MessageKindText
	}

	delivery, err := service.PostMessage(context.Background(), c.userID, services.PostMessageInput{
		RoomID:      c.roomID,
		Kind:        kind,
		Content:     incoming.Content,
		Attachment:  incoming.Attachment,
		ClientNonce: incoming.ClientNonce,
	})
	if err != nil {
		c.writeError(describeChatError(err))
		return
	}

	c.hub.BroadcastMessage(c.roomID, c, delivery.Message)
}

func (c *Client) handleReadReceipt(service chatService, incoming inboundEvent) {
	if incoming.MessageID <= 0 {
		c.writeError("invalid message id")
		return
	}

	receipt, err := service.MarkMessageRead(context.Background(), c.userID, incoming.MessageID)
	if err != nil {
		c.writeError(describeChatError(err))
		return
	}
	if !receipt.First {
		return
	}

	c.hub.SendReadReceipt(receipt.RoomID, receipt.SenderID, incoming.MessageID, c.userID)
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

// writeError queues a local error event for this connection. It travels
// through the hub like any other delivery, so every send on c.send stays
// on the Run goroutine; a connection already evicted there is no longer
// in the registry and the event is dropped instead of hitting a closed
// channel.
func (c *Client) writeError(message string) {
	payload := encodeEvent(Event{
		Type:      EventError,
		Error:     message,
		Timestamp: services.FormatChatTimestamp(time.Now().UTC()),
	})
	if payload == nil {
		return
	}
	c.hub.broadcast <- &envelope{roomID: c.roomID, only: c, payload: payload}
}

func describeChatError(err error) string {
	switch {
	case errors.Is(err, services.ErrInvalidContent):
		return "invalid message content"
	case errors.Is(err, services.ErrInactiveRoom):
		return "room is inactive"
	case errors.Is(err, services.ErrForbidden):
		return "forbidden"
	case errors.Is(err, services.ErrInvalidInput):
		return "invalid input"
	default:
		return "failed to process event"
	}
}
