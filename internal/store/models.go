package store

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when an insert violates a uniqueness constraint.
	ErrConflict = errors.New("conflict")
)

const (
	MessageTypeText  = "text"
	MessageTypeImage = "image"
)

type User struct {
	ID         string    `json:"id"` // UUID
	Email      *string   `json:"email,omitempty"`
	Name       string    `json:"name"`
	Avatar     *string   `json:"avatar,omitempty"`
	IsGuest    bool      `json:"isGuest"`
	GuestName  *string   `json:"guestName,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	LastActive time.Time `json:"lastActive"`
}

type GuestSession struct {
	Token     string    `json:"token"`
	GuestName string    `json:"guestName"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type Conversation struct {
	ID            string    `json:"id"` // UUID
	Participants  []string  `json:"participants"`
	LastMessage   *Message  `json:"lastMessage,omitempty"`
	LastMessageAt time.Time `json:"lastMessageAt"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type Message struct {
	ID             string    `json:"id"` // UUID
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	Content        string    `json:"content"`
	ImageURL       *string   `json:"imageUrl,omitempty"`
	ImageAlt       *string   `json:"imageAlt,omitempty"`
	Type           string    `json:"type"` // "text" or "image"
	ReadBy         []string  `json:"readBy"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Call rows exist for the placeholder call UI. No documented flow writes them
// beyond the schema; they are kept so the relations match the deployed store.
type Call struct {
	ID             string     `json:"id"` // UUID
	ConversationID string     `json:"conversationId"`
	CallerID       string     `json:"callerId"`
	ReceiverID     string     `json:"receiverId"`
	Type           string     `json:"type"`   // "voice" or "video"
	Status         string     `json:"status"` // "pending", "active" or "ended"
	StartedAt      *time.Time `json:"startedAt,omitempty"`
	EndedAt        *time.Time `json:"endedAt,omitempty"`
	Duration       *int64     `json:"duration,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}
