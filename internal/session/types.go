// Package session holds the in-memory conversation model and its persistence.
package session

import (
	"time"

	"github.com/google/uuid"
)

// Role distinguishes the two message authors
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Attachment is an encoded file carried by a user message. The payload lives
// only in memory: it is never serialized, only its metadata survives
// persistence.
type Attachment struct {
	Name     string `json:"name"`
	MIMEType string `json:"mime_type"`
	Size     int64  `json:"size"`
	Data     string `json:"-"` // base64, in-memory only
}

// GroundingSource is one cited web source attached to a model message
type GroundingSource struct {
	Title string `json:"title,omitempty"`
	URI   string `json:"uri,omitempty"`
}

// Message is one conversation message. Text is mutated in place while a
// response streams and is final afterwards. Thinking marks the placeholder
// state of a model message with no content yet.
type Message struct {
	ID          string            `json:"id"`
	Role        Role              `json:"role"`
	Text        string            `json:"text"`
	CreatedAt   time.Time         `json:"created_at"`
	Attachments []Attachment      `json:"attachments,omitempty"`
	Sources     []GroundingSource `json:"sources,omitempty"`
	Thinking    bool              `json:"-"`
}

// NewMessage creates a message with a fresh id
func NewMessage(role Role, text string) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		CreatedAt: time.Now(),
	}
}

// ChatSession is one ordered conversation
type ChatSession struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Messages  []*Message `json:"messages"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// NewChatSession creates an empty session with a fresh id
func NewChatSession() *ChatSession {
	return &ChatSession{
		ID:        uuid.NewString(),
		Title:     "Новый чат",
		Messages:  []*Message{},
		UpdatedAt: time.Now(),
	}
}

// titleRunes caps derived session titles
const titleRunes = 30

// DeriveTitle truncates the first user message into a session title
func DeriveTitle(text string) string {
	runes := []rune(text)
	if len(runes) <= titleRunes {
		return text
	}
	return string(runes[:titleRunes])
}
