package commands

import "time"

// Option value types accepted in a command registration.
const (
	OptionString  = "string"
	OptionInt     = "int"
	OptionBool    = "bool"
	OptionUser    = "user"
	OptionChannel = "channel"
)

// MaxOptions bounds the option list of one command.
const MaxOptions = 20

// Option describes one typed argument of a slash command.
type Option struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type"`
	Required    bool   `json:"required,omitempty"`
}

// Command is a slash command registered by a bot, unique per bot and realm.
type Command struct {
	ID          string    `json:"id"`
	BotID       string    `json:"bot_id"`
	RealmID     string    `json:"-"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Options     []Option  `json:"options"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RegisterRequest is the body for POST /json/bot_commands.
type RegisterRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Options     []Option `json:"options,omitempty"`
}

// ListResponse wraps a command list payload.
type ListResponse struct {
	Commands []Command `json:"commands"`
}
