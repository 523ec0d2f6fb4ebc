package domain

import "time"

// Provider identifies which mailbox backend a sync config talks to.
type Provider string

const (
	ProviderGmail   Provider = "gmail"
	ProviderOutlook Provider = "outlook"
	ProviderIMAP    Provider = "imap"
)

// IsValidProvider checks if the provider tag is known
func IsValidProvider(p Provider) bool {
	switch p {
	case ProviderGmail, ProviderOutlook, ProviderIMAP:
		return true
	default:
		return false
	}
}

// SyncStatus is the persisted state of a sync config's last/current run.
type SyncStatus string

const (
	SyncStatusIdle      SyncStatus = "idle"
	SyncStatusSyncing   SyncStatus = "syncing"
	SyncStatusCompleted SyncStatus = "completed"
	SyncStatusError     SyncStatus = "error"
)

// SyncConfig represents one connected mailbox for one user.
// Token columns are written only by the credential service.
type SyncConfig struct {
	ID                string     `json:"id" gorm:"primaryKey"`
	UserID            string     `json:"user_id" gorm:"index;not null"`
	Provider          Provider   `json:"provider" gorm:"size:20;not null"`
	EmailAddress      string     `json:"email_address" gorm:"not null"`
	Active            bool       `json:"active" gorm:"default:true"`
	DeleteAfterImport bool       `json:"delete_after_import" gorm:"default:false"`
	SyncUnreadOnly    bool       `json:"sync_unread_only" gorm:"default:false"`
	SyncStatus        SyncStatus `json:"sync_status" gorm:"size:20;default:idle"`
	LastSyncAt        *time.Time `json:"last_sync_at,omitempty"`
	// LastSyncCursor is the receivedDate watermark for incremental sync.
	// It only advances, never regresses.
	LastSyncCursor *time.Time `json:"last_sync_cursor,omitempty"`
	LastSyncError  string     `json:"last_sync_error,omitempty"`

	// Encrypted OAuth material (or IMAP password for imap configs).
	AccessToken  string     `json:"-" gorm:"size:4096"`
	RefreshToken string     `json:"-" gorm:"size:4096"`
	TokenExpiry  *time.Time `json:"-"`

	// IMAP connection details, unused for OAuth providers.
	ImapServer string `json:"imap_server,omitempty"`
	ImapPort   int    `json:"imap_port,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
