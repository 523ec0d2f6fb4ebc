package repository

import (
	"errors"
	"time"

	syncdomain "dmarcview-backend/internal/sync/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// syncConfigRepository implements SyncConfigRepository
type syncConfigRepository struct {
	db *gorm.DB
}

func NewSyncConfigRepository(db *gorm.DB) SyncConfigRepository {
	return &syncConfigRepository{db: db}
}

func (r *syncConfigRepository) Create(config *syncdomain.SyncConfig) error {
	if config.ID == "" {
		config.ID = uuid.New().String()
	}
	config.CreatedAt = time.Now()
	config.UpdatedAt = time.Now()
	if config.SyncStatus == "" {
		config.SyncStatus = syncdomain.SyncStatusIdle
	}
	return r.db.Create(config).Error
}

func (r *syncConfigRepository) FindByID(id, userID string) (*syncdomain.SyncConfig, error) {
	var config syncdomain.SyncConfig
	err := r.db.Where("id = ? AND user_id = ?", id, userID).First(&config).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &config, nil
}

func (r *syncConfigRepository) FindByUser(userID string) ([]*syncdomain.SyncConfig, error) {
	var configs []*syncdomain.SyncConfig
	err := r.db.Where("user_id = ?", userID).Order("created_at ASC").Find(&configs).Error
	return configs, err
}

func (r *syncConfigRepository) FindActive() ([]*syncdomain.SyncConfig, error) {
	var configs []*syncdomain.SyncConfig
	err := r.db.Where("active = ?", true).Find(&configs).Error
	return configs, err
}

func (r *syncConfigRepository) FindByEmailAndProvider(email string, provider syncdomain.Provider) (*syncdomain.SyncConfig, error) {
	var config syncdomain.SyncConfig
	err := r.db.Where("email_address = ? AND provider = ?", email, provider).First(&config).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &config, nil
}

func (r *syncConfigRepository) Update(config *syncdomain.SyncConfig) error {
	config.UpdatedAt = time.Now()
	return r.db.Save(config).Error
}

func (r *syncConfigRepository) Delete(id, userID string) error {
	return r.db.Where("id = ? AND user_id = ?", id, userID).Delete(&syncdomain.SyncConfig{}).Error
}

// StaleSyncTakeover bounds how long a crashed run can hold the syncing
// lease. A syncing row untouched for this long is treated as abandoned and
// taken over by the next caller; live runs refresh updated_at on every
// status transition, so they are never inside the window.
const StaleSyncTakeover = 30 * time.Minute

// MarkSyncing is the per-config run lease: the conditional update succeeds
// for exactly one caller when two runs race on the same config. A syncing
// row older than StaleSyncTakeover is reclaimed so a crash between
// MarkSyncing and FinishSync cannot leave the config unsyncable.
func (r *syncConfigRepository) MarkSyncing(id string) (bool, error) {
	staleBefore := time.Now().Add(-StaleSyncTakeover)
	result := r.db.Model(&syncdomain.SyncConfig{}).
		Where("id = ? AND (sync_status <> ? OR updated_at < ?)", id, syncdomain.SyncStatusSyncing, staleBefore).
		Updates(map[string]interface{}{
			"sync_status": syncdomain.SyncStatusSyncing,
			"updated_at":  time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *syncConfigRepository) FinishSync(id string, status syncdomain.SyncStatus, syncErr string) error {
	now := time.Now()
	return r.db.Model(&syncdomain.SyncConfig{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"sync_status":     status,
			"last_sync_at":    now,
			"last_sync_error": syncErr,
			"updated_at":      now,
		}).Error
}

func (r *syncConfigRepository) AdvanceCursor(id string, cursor time.Time) error {
	return r.db.Model(&syncdomain.SyncConfig{}).
		Where("id = ? AND (last_sync_cursor IS NULL OR last_sync_cursor < ?)", id, cursor).
		Updates(map[string]interface{}{
			"last_sync_cursor": cursor,
			"updated_at":       time.Now(),
		}).Error
}

func (r *syncConfigRepository) UpdateTokens(id, accessToken, refreshToken string, expiry *time.Time) error {
	return r.db.Model(&syncdomain.SyncConfig{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"access_token":  accessToken,
			"refresh_token": refreshToken,
			"token_expiry":  expiry,
			"updated_at":    time.Now(),
		}).Error
}
