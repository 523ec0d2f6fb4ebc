package repository

import (
	syncdomain "dmarcview-backend/internal/sync/domain"
	"time"
)

// SyncConfigRepository persists mailbox connections. Token columns are only
// mutated through UpdateTokens, called by the credential service.
type SyncConfigRepository interface {
	Create(config *syncdomain.SyncConfig) error
	FindByID(id, userID string) (*syncdomain.SyncConfig, error)
	FindByUser(userID string) ([]*syncdomain.SyncConfig, error)
	FindActive() ([]*syncdomain.SyncConfig, error)
	FindByEmailAndProvider(email string, provider syncdomain.Provider) (*syncdomain.SyncConfig, error)
	Update(config *syncdomain.SyncConfig) error
	Delete(id, userID string) error

	// MarkSyncing conditionally flips sync_status from a non-syncing state
	// to syncing. Returns false if another run already holds the config.
	// A syncing row older than StaleSyncTakeover counts as abandoned and
	// is reclaimed.
	MarkSyncing(id string) (bool, error)
	// FinishSync records the terminal status and error detail of a run.
	FinishSync(id string, status syncdomain.SyncStatus, syncErr string) error
	// AdvanceCursor moves the incremental-sync watermark forward. A cursor
	// older than the stored one is ignored.
	AdvanceCursor(id string, cursor time.Time) error
	// UpdateTokens writes the encrypted token columns.
	UpdateTokens(id, accessToken, refreshToken string, expiry *time.Time) error
}
