package repository

import (
	"time"

	syncdomain "dmarcview-backend/internal/sync/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// processedMessageRepository implements ProcessedMessageRepository
type processedMessageRepository struct {
	db *gorm.DB
}

func NewProcessedMessageRepository(db *gorm.DB) ProcessedMessageRepository {
	return &processedMessageRepository{db: db}
}

func (r *processedMessageRepository) FilterNew(userID, configID string, messageIDs []string) ([]string, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}

	var known []string
	err := r.db.Model(&syncdomain.ProcessedMessage{}).
		Where("user_id = ? AND sync_config_id = ? AND message_id IN ?", userID, configID, messageIDs).
		Pluck("message_id", &known).Error
	if err != nil {
		// Degrade: a missing tracking table must not fail the run.
		return messageIDs, err
	}

	knownSet := make(map[string]struct{}, len(known))
	for _, id := range known {
		knownSet[id] = struct{}{}
	}

	fresh := make([]string, 0, len(messageIDs))
	for _, id := range messageIDs {
		if _, ok := knownSet[id]; !ok {
			fresh = append(fresh, id)
		}
	}
	return fresh, nil
}

func (r *processedMessageRepository) MarkProcessed(userID, configID, messageID string) error {
	now := time.Now()
	entry := syncdomain.ProcessedMessage{
		ID:           uuid.New().String(),
		UserID:       userID,
		SyncConfigID: configID,
		MessageID:    messageID,
		ProcessedAt:  now,
		CreatedAt:    now,
	}
	// FirstOrCreate keeps repeat marks idempotent under the unique index.
	return r.db.Where("user_id = ? AND sync_config_id = ? AND message_id = ?", userID, configID, messageID).
		FirstOrCreate(&entry).Error
}
