package model

import (
	"fmt"
	"time"
)

// MessageType kind of chat message payload
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypePost  MessageType = "post"
)

// IsValid reports whether t is a known message type
func (t MessageType) IsValid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypePost:
		return true
	}
	return false
}

// ChatRoom a conversation. Direct rooms carry a PairKey that is unique per
// unordered pair of users.
type ChatRoom struct {
	ID            uint64                `gorm:"primaryKey;autoIncrement" json:"id"`
	PairKey       *string               `gorm:"type:varchar(64);uniqueIndex" json:"-"`
	LastMessageAt *time.Time            `gorm:"type:timestamp;index" json:"last_message_at,omitempty"`
	CreatedAt     time.Time             `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time             `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP" json:"updated_at"`
	Participants  []ChatRoomParticipant `gorm:"foreignKey:RoomID" json:"participants,omitempty"`
}

// TableName set name
func (ChatRoom) TableName() string {
	return "chat_rooms"
}

// HasParticipant reports whether userID is a member of the loaded room
func (r *ChatRoom) HasParticipant(userID uint64) bool {
	for _, p := range r.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// DirectPairKey returns the canonical key for the unordered pair {a, b}
func DirectPairKey(a, b uint64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}

// ChatRoomParticipant membership row holding the per-user unread counter
type ChatRoomParticipant struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	RoomID      uint64    `gorm:"type:bigint unsigned;not null;uniqueIndex:uk_room_user,priority:1" json:"room_id"`
	UserID      uint64    `gorm:"type:bigint unsigned;not null;uniqueIndex:uk_room_user,priority:2;index" json:"user_id"`
	UnreadCount int       `gorm:"type:int;not null;default:0" json:"unread_count"`
	JoinedAt    time.Time `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP" json:"joined_at"`
}

// TableName set name
func (ChatRoomParticipant) TableName() string {
	return "chat_room_participants"
}

// Message one chat message. Content is set for text and image messages,
// PostID for post messages.
type Message struct {
	ID          uint64      `gorm:"primaryKey;autoIncrement" json:"id"`
	RoomID      uint64      `gorm:"type:bigint unsigned;not null;index:idx_messages_room_id,priority:1" json:"room_id"`
	SenderID    *uint64     `gorm:"type:bigint unsigned" json:"sender_id,omitempty"`
	MessageType MessageType `gorm:"type:varchar(10);not null" json:"message_type"`
	Content     *string     `gorm:"type:text" json:"content,omitempty"`
	PostID      *uint64     `gorm:"type:bigint unsigned" json:"post_id,omitempty"`
	CreatedAt   time.Time   `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP;index:idx_messages_room_id,priority:2" json:"created_at"`
}

// TableName set name
func (Message) TableName() string {
	return "messages"
}

// SentBy reports whether userID authored the message
func (m *Message) SentBy(userID uint64) bool {
	return m.SenderID != nil && *m.SenderID == userID
}

// MessageReadBy read receipt, one per (message, user)
type MessageReadBy struct {
	MessageID uint64    `gorm:"primaryKey;autoIncrement:false" json:"message_id"`
	UserID    uint64    `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	ReadAt    time.Time `gorm:"type:timestamp;not null" json:"read_at"`
}

// TableName set name
func (MessageReadBy) TableName() string {
	return "message_read_by"
}
