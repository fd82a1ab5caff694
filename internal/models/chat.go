package models

import "time"

type MessageKind string

const (
	MessageKindText   MessageKind = "text"
	MessageKindImage  MessageKind = "image"
	MessageKindFile   MessageKind = "file"
	MessageKindSystem MessageKind = "system"
)

func (k MessageKind) Valid() bool {
	switch k {
	case MessageKindText, MessageKindImage, MessageKindFile, MessageKindSystem:
		return true
	}
	return false
}

// MessageStatus is the derived lifecycle state of a message. Deleted is
// absorbing; Edited is only reachable from text messages that are not
// deleted.
type MessageStatus string

const (
	MessageStatusActive  MessageStatus = "active"
	MessageStatusEdited  MessageStatus = "edited"
	MessageStatusDeleted MessageStatus = "deleted"
)

type ChatRoom struct {
	ID        int64     `json:"id"`
	BookingID *int64    `json:"booking_id"`
	ClientID  int64     `json:"client_id"`
	ChefID    int64     `json:"chef_id"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasParticipant reports whether userID is the room's client or chef.
func (r *ChatRoom) HasParticipant(userID int64) bool {
	return r.ClientID == userID || r.ChefID == userID
}

// OtherParticipant returns the counterpart of userID in the room.
func (r *ChatRoom) OtherParticipant(userID int64) int64 {
	if userID == r.ClientID {
		return r.ChefID
	}
	return r.ClientID
}

type Message struct {
	ID         int64       `json:"id"`
	RoomID     int64       `json:"room_id"`
	SenderID   int64       `json:"sender_id"`
	Kind       MessageKind `json:"kind"`
	Content    string      `json:"content"`
	Attachment *string     `json:"attachment"`
	IsRead     bool        `json:"is_read"`
	IsEdited   bool        `json:"is_edited"`
	IsDeleted  bool        `json:"is_deleted"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
	ReadAt     *time.Time  `json:"read_at"`
}

func (m *Message) Status() MessageStatus {
	switch {
	case m.IsDeleted:
		return MessageStatusDeleted
	case m.IsEdited:
		return MessageStatusEdited
	default:
		return MessageStatusActive
	}
}

// Editable reports whether the sender may still rewrite the content.
func (m *Message) Editable() bool {
	return m.Kind == MessageKindText && m.Status() != MessageStatusDeleted
}

// Redact blanks out the payload of a soft-deleted message. The stored
// content is kept for audit but never leaves the service layer.
func (m *Message) Redact() {
	if m.IsDeleted {
		m.Content = ""
		m.Attachment = nil
	}
}

type MessageReadStatus struct {
	ID        int64     `json:"id"`
	MessageID int64     `json:"message_id"`
	UserID    int64     `json:"user_id"`
	ReadAt    time.Time `json:"read_at"`
}

type RoomSummary struct {
	ChatRoom
	LastMessage *Message `json:"last_message,omitempty"`
	UnreadCount int      `json:"unread_count"`
}
