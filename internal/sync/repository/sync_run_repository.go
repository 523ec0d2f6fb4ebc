package repository

import (
	"time"

	syncdomain "dmarcview-backend/internal/sync/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// syncRunRepository implements SyncRunRepository
type syncRunRepository struct {
	db *gorm.DB
}

func NewSyncRunRepository(db *gorm.DB) SyncRunRepository {
	return &syncRunRepository{db: db}
}

func (r *syncRunRepository) CreateRun(run *syncdomain.SyncRunLog) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	run.Status = syncdomain.RunStatusRunning
	run.StartedAt = time.Now()
	run.CreatedAt = time.Now()
	run.UpdatedAt = time.Now()
	return r.db.Create(run).Error
}

func (r *syncRunRepository) FinalizeRun(run *syncdomain.SyncRunLog) error {
	now := time.Now()
	run.FinishedAt = &now
	run.UpdatedAt = now
	return r.db.Save(run).Error
}

func (r *syncRunRepository) ListRuns(configID, userID string, limit int) ([]*syncdomain.SyncRunLog, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []*syncdomain.SyncRunLog
	err := r.db.Where("sync_config_id = ? AND user_id = ?", configID, userID).
		Order("started_at DESC").
		Limit(limit).
		Find(&runs).Error
	return runs, err
}

func (r *syncRunRepository) CreateAuditEntry(entry *syncdomain.DeletionAuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	entry.CreatedAt = time.Now()
	return r.db.Create(entry).Error
}

func (r *syncRunRepository) ListAuditEntries(configID, userID string, limit int) ([]*syncdomain.DeletionAuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	var entries []*syncdomain.DeletionAuditEntry
	err := r.db.Where("sync_config_id = ? AND user_id = ?", configID, userID).
		Order("deleted_at DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}
