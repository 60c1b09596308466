// Package interactions implements the bot interaction pipeline: slash
// command invocations and widget clicks are validated, persisted to the
// delivery queue, and dispatched to the owning bot via webhook or an
// embedded handler, with the bot's response fanned back out.
package interactions

import (
	"encoding/json"
	"errors"
	"time"
)

// Interaction types.
const (
	TypeCommandInvocation = "command_invocation"
	TypeWidgetClick       = "widget_click"
)

var (
	ErrUnknownType         = errors.New("unknown interaction type")
	ErrUnknownCommand      = errors.New("unknown command")
	ErrBotNotFound         = errors.New("bot not found")
	ErrAlreadyConsumed     = errors.New("interaction already consumed")
	ErrMissingWidgetID     = errors.New("widget_id is required for widget clicks")
	ErrBadInteractionID    = errors.New("interaction id is not a valid uuid")
	ErrInteractionNotFound = errors.New("interaction not found")
)

// Interaction is one user action directed at a bot. It is the payload
// persisted on the delivery queue.
type Interaction struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	BotID     string         `json:"bot_id"`
	UserID    string         `json:"user_id"`
	RealmID   string         `json:"realm_id"`
	StreamID  string         `json:"stream_id,omitempty"`
	Command   string         `json:"command,omitempty"`
	WidgetID  string         `json:"widget_id,omitempty"`
	Arguments map[string]any `json:"arguments,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// SubmitRequest is the client-side shape of a new interaction.
type SubmitRequest struct {
	Type      string         `json:"type"`
	BotID     string         `json:"bot_id"`
	StreamID  string         `json:"stream_id,omitempty"`
	Command   string         `json:"command,omitempty"`
	WidgetID  string         `json:"widget_id,omitempty"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// SubmitResponse acknowledges an accepted interaction.
type SubmitResponse struct {
	InteractionID string `json:"interaction_id"`
}

// UserRef identifies the acting user in the payload sent to the bot.
type UserRef struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// OutgoingPayload is the JSON body POSTed to the bot's webhook.
type OutgoingPayload struct {
	Type          string         `json:"type"`
	Command       string         `json:"command,omitempty"`
	WidgetID      string         `json:"widget_id,omitempty"`
	Arguments     map[string]any `json:"arguments,omitempty"`
	InteractionID string         `json:"interaction_id"`
	User          UserRef        `json:"user"`
	StreamID      string         `json:"stream_id,omitempty"`
}

// BotResponse is what a bot may return from its webhook, or post back
// through the response endpoint when handling asynchronously.
type BotResponse struct {
	Content string          `json:"content,omitempty"`
	Widget  json.RawMessage `json:"widget,omitempty"`
}
