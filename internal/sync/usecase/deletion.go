package usecase

import (
	"context"
	"log"
	"time"

	syncdomain "dmarcview-backend/internal/sync/domain"
	"dmarcview-backend/internal/sync/repository"
)

// DeletionEngine removes fully processed messages from the mailbox at a
// bounded rate. Failures are per-message; the batch always runs to the end.
type DeletionEngine struct {
	runRepo repository.SyncRunRepository
	// Delay between deletes, to stay under provider rate limits.
	Delay time.Duration
}

func NewDeletionEngine(runRepo repository.SyncRunRepository) *DeletionEngine {
	return &DeletionEngine{
		runRepo: runRepo,
		Delay:   500 * time.Millisecond,
	}
}

// Run deletes the given messages strictly sequentially. Every confirmed
// deletion produces an audit entry; errors are counted and skipped over.
func (e *DeletionEngine) Run(ctx context.Context, provider syncdomain.MailProvider, creds *syncdomain.Credentials, config *syncdomain.SyncConfig, records []*syncdomain.ProcessingRecord) *syncdomain.DeletionResult {
	result := &syncdomain.DeletionResult{}

	for i, rec := range records {
		if !rec.Processed {
			// Never delete a message with any failed attachment.
			result.TotalSkipped++
			continue
		}

		result.TotalAttempted++
		deleteRes := provider.DeleteMessage(ctx, creds, rec.MessageID)
		if !deleteRes.Success || !deleteRes.Deleted {
			log.Printf("[Deletion] Failed to delete message %s: %s", rec.MessageID, deleteRes.Error)
			result.TotalErrors++
		} else {
			meta := syncdomain.DeletedEmailMeta{
				MessageID: rec.MessageID,
				Subject:   rec.Subject,
				From:      rec.From,
				DeletedAt: time.Now(),
				Filenames: rec.Filenames,
			}
			result.TotalDeleted++
			result.DeletedEmails = append(result.DeletedEmails, meta)

			entry := &syncdomain.DeletionAuditEntry{
				SyncConfigID: config.ID,
				UserID:       config.UserID,
				MessageID:    rec.MessageID,
				Subject:      rec.Subject,
				From:         rec.From,
				DeletedAt:    meta.DeletedAt,
				Filenames:    rec.Filenames,
			}
			if err := e.runRepo.CreateAuditEntry(entry); err != nil {
				log.Printf("[Deletion] Failed to record audit entry for %s: %v", rec.MessageID, err)
			}
		}

		if e.Delay > 0 && i < len(records)-1 {
			time.Sleep(e.Delay)
		}
	}

	return result
}
