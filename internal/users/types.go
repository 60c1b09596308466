package users

import "time"

// Roles assignable to a user within a realm.
const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

// Realm is an organization: the unit of command registration and
// realm-wide event fan-out.
type Realm struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Host      string    `json:"host"`
	CreatedAt time.Time `json:"created_at"`
}

// User is a human or bot account.
type User struct {
	ID         string    `json:"id"`
	RealmID    string    `json:"realm_id"`
	Email      string    `json:"email"`
	FullName   string    `json:"full_name"`
	Role       string    `json:"role"`
	IsBot      bool      `json:"is_bot"`
	WebhookURL string    `json:"webhook_url,omitempty"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
}

// CreateUserParams is the input for creating an account.
type CreateUserParams struct {
	RealmID      string
	Email        string
	FullName     string
	Role         string
	IsBot        bool
	WebhookURL   string
	APIKey       string
	PasswordHash string
}
