package puppets

import "time"

// Visibility modes controlling who receives whispers sent to a puppet.
const (
	// VisibilityOpen delivers whispers to any handler active within the
	// puppet's recency window.
	VisibilityOpen = "open"
	// VisibilityClaimed delivers whispers only to explicitly claimed handlers.
	VisibilityClaimed = "claimed"
)

// Handler types: how a user came to handle a puppet.
const (
	// HandlerRecent marks a user who recently sent a message as the puppet.
	HandlerRecent = "recent"
	// HandlerClaimed marks a user who explicitly claimed the puppet.
	HandlerClaimed = "claimed"
)

// DefaultHandlerWindowHours is the recency window for open puppets.
const DefaultHandlerWindowHours = 24

// Puppet is a character name registered in a stream, shared by whoever
// sends messages under it.
type Puppet struct {
	ID                       string    `json:"id"`
	StreamID                 string    `json:"stream_id"`
	Name                     string    `json:"name"`
	AvatarURL                string    `json:"avatar_url,omitempty"`
	Color                    string    `json:"color,omitempty"`
	VisibilityMode           string    `json:"visibility_mode"`
	RecentHandlerWindowHours int       `json:"recent_handler_window_hours"`
	CreatedBy                string    `json:"created_by,omitempty"`
	LastUsed                 time.Time `json:"last_used"`
}

// Handler records that a user handles a puppet (receives its whispers).
type Handler struct {
	PuppetID    string    `json:"puppet_id"`
	UserID      string    `json:"user_id"`
	HandlerType string    `json:"handler_type"`
	LastUsed    time.Time `json:"last_used"`
}

// ListResponse wraps the per-stream puppet list payload.
type ListResponse struct {
	Puppets []Puppet `json:"puppets"`
}
