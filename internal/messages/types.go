// Package messages implements message sending with identity overlays:
// a sender may speak through one of their personas or through a shared
// stream puppet, and may restrict visibility with a whisper.
package messages

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrEmptyContent = errors.New("message content is empty")
	ErrNotMember    = errors.New("user is not subscribed to the stream")
	ErrBadRecipient = errors.New("whisper recipient is not a valid user id")
)

// Message is a stored and fanned-out message. DisplayName and the avatar
// and color fields reflect the identity overlay in effect when it was sent.
type Message struct {
	ID          string          `json:"id"`
	RealmID     string          `json:"realm_id"`
	StreamID    string          `json:"stream_id"`
	SenderID    string          `json:"sender_id"`
	PersonaID   string          `json:"persona_id,omitempty"`
	PuppetID    string          `json:"puppet_id,omitempty"`
	DisplayName string          `json:"display_name"`
	AvatarURL   string          `json:"avatar_url,omitempty"`
	Color       string          `json:"color,omitempty"`
	Topic       string          `json:"topic,omitempty"`
	Content     string          `json:"content"`
	Widget      json.RawMessage `json:"widget,omitempty"`
	IsWhisper   bool            `json:"is_whisper"`
	CreatedAt   time.Time       `json:"created_at"`
}

// SendRequest is the client shape of a new message. Setting PuppetName
// registers the puppet in the stream on first use. Whisper fields restrict
// who receives the message.
type SendRequest struct {
	StreamID     string `json:"stream_id"`
	Topic        string `json:"topic,omitempty"`
	Content      string `json:"content"`
	PersonaID    string `json:"persona_id,omitempty"`
	PuppetName   string `json:"puppet_name,omitempty"`
	PuppetAvatar string `json:"puppet_avatar,omitempty"`
	PuppetColor  string `json:"puppet_color,omitempty"`

	WhisperToUserIDs   []string `json:"whisper_to_user_ids,omitempty"`
	WhisperToPuppetIDs []string `json:"whisper_to_puppet_ids,omitempty"`
}
