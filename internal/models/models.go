package models

import "time"

type Role string

const (
	RoleRegular   Role = "regular"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
)

// One-time token purposes.
const (
	PurposeMagicLink     = "magic_link"
	PurposePasswordReset = "password_reset"
)

type User struct {
	ID            int64
	Email         string
	DisplayName   string
	PassHash      []byte // nil for accounts created through a magic link
	Role          Role
	Status        Status
	EmailVerified bool
	CreatedAt     time.Time
}

// Public is the JSON shape of a user exposed over the API.
type Public struct {
	ID            int64  `json:"id"`
	Email         string `json:"email"`
	DisplayName   string `json:"display_name,omitempty"`
	Role          string `json:"role"`
	EmailVerified bool   `json:"email_verified"`
}

func (u User) Public() Public {
	return Public{
		ID:            u.ID,
		Email:         u.Email,
		DisplayName:   u.DisplayName,
		Role:          string(u.Role),
		EmailVerified: u.EmailVerified,
	}
}

type Session struct {
	ID        int64
	UserID    int64
	TokenHash string
	UserAgent string
	IP        string
	ExpiresAt time.Time
	CreatedAt time.Time
}

type OneTimeToken struct {
	ID         int64
	TokenHash  string
	Email      string
	Purpose    string
	ExpiresAt  time.Time
	ConsumedAt *time.Time
	CreatedAt  time.Time
}

// Message is the email job published to the queue.
type Message struct {
	Email   string `json:"to"`
	Link    string `json:"link"`
	Purpose string `json:"purpose"`
}
