package domain

import "time"

// Account providers. Local accounts carry a bcrypt hash; Google accounts
// authenticate through ID-token verification and have no password.
const (
	AccountProviderEmail  = "email"
	AccountProviderGoogle = "google"
)

// User is one dashboard account. Sync configs and stored reports reference
// it by ID.
type User struct {
	ID          string     `json:"id" gorm:"primaryKey"`
	Email       string     `json:"email" gorm:"uniqueIndex;not null"`
	Password    string     `json:"-"` // bcrypt hash, empty for Google accounts
	Name        string     `json:"name"`
	AvatarURL   string     `json:"avatar_url,omitempty"`
	Provider    string     `json:"provider" gorm:"size:20;not null"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// RefreshToken is a single-use session continuation token. Presenting one
// rotates it; expired rows are swept whenever a new token is saved.
type RefreshToken struct {
	Token     string    `json:"token" gorm:"primaryKey"`
	UserID    string    `json:"user_id" gorm:"index;not null"`
	ExpiresAt time.Time `json:"expires_at"`
}
