package personas

import "time"

// Limits on persona fields and per-user persona count.
const (
	MaxNameLength      = 100
	MaxBioLength       = 500
	MaxAvatarURLLength = 500
	MaxPerUser         = 20
)

// Persona is a user-owned display identity. Unlike stream puppets, personas
// are personal and portable: they belong to one user and can be used in any
// stream.
type Persona struct {
	ID        string    `json:"id"`
	UserID    string    `json:"-"`
	Name      string    `json:"name"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	Color     string    `json:"color,omitempty"`
	Bio       string    `json:"bio"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"date_created"`
}

// RealmPersona is a persona with its owner, for @-mention typeahead.
type RealmPersona struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	AvatarURL    string `json:"avatar_url,omitempty"`
	Color        string `json:"color,omitempty"`
	UserID       string `json:"user_id"`
	UserFullName string `json:"user_full_name"`
}

// CreateRequest is the body for POST /json/users/me/personas.
type CreateRequest struct {
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Color     string `json:"color,omitempty"`
	Bio       string `json:"bio,omitempty"`
}

// UpdateRequest is the body for PATCH /json/users/me/personas/{id};
// nil fields are left unchanged.
type UpdateRequest struct {
	Name      *string `json:"name,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`
	Color     *string `json:"color,omitempty"`
	Bio       *string `json:"bio,omitempty"`
}

// ListResponse wraps the persona list payload.
type ListResponse struct {
	Personas []Persona `json:"personas"`
}
