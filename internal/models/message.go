package models

import "time"

// Message is one entry in the append-only support log. Everything except
// IsRead/ReadAt is fixed at creation.
type Message struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	SenderID   uint   `gorm:"index;not null" json:"senderId"`
	ReceiverID *uint  `gorm:"index" json:"receiverId"` // nil: broadcast to the employee pool

	SenderName string `gorm:"not null" json:"senderName"`
	SenderRole Role   `gorm:"type:text;not null" json:"senderRole"`

	Body      string    `gorm:"type:text;not null" json:"body"`
	CreatedAt time.Time `gorm:"index" json:"createdAt"`

	IsRead bool       `gorm:"default:false;index" json:"isRead"`
	ReadAt *time.Time `json:"readAt,omitempty"`
}

// IsBroadcast reports whether the message was addressed to the employee pool.
func (m *Message) IsBroadcast() bool {
	return m.ReceiverID == nil
}

// Involves reports whether userID is the sender or the explicit receiver.
func (m *Message) Involves(userID uint) bool {
	return m.SenderID == userID || (m.ReceiverID != nil && *m.ReceiverID == userID)
}

// ReceivedBy reports whether userID is the explicit receiver.
func (m *Message) ReceivedBy(userID uint) bool {
	return m.ReceiverID != nil && *m.ReceiverID == userID
}

// Before orders messages by creation time, falling back to id when two
// messages share a timestamp.
func (m *Message) Before(o *Message) bool {
	if !m.CreatedAt.Equal(o.CreatedAt) {
		return m.CreatedAt.Before(o.CreatedAt)
	}
	return m.ID < o.ID
}

// ConversationSummary is one row of the employee pool's inbox.
type ConversationSummary struct {
	CustomerID    uint      `json:"customerId"`
	Name          string    `json:"name"`
	Role          Role      `json:"role"`
	Avatar        string    `json:"avatar"`
	LastMessage   string    `json:"lastMessage"`
	LastMessageAt time.Time `json:"lastMessageAt"`
	Time          string    `json:"time"`
	UnreadCount   int64     `json:"unreadCount"`
}
