package domain

import "time"

// ProcessedMessage is the cross-run ledger row marking a mailbox message as
// handled for a given sync config. Reads and writes degrade gracefully when
// the table is unavailable. Message ids are only unique within one mailbox
// (IMAP UIDs are small integers), so the unique constraint spans the full
// (user, config, message) identity.
type ProcessedMessage struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	UserID       string    `json:"user_id" gorm:"uniqueIndex:idx_processed_identity;not null"`
	SyncConfigID string    `json:"sync_config_id" gorm:"uniqueIndex:idx_processed_identity;not null"`
	MessageID    string    `json:"message_id" gorm:"uniqueIndex:idx_processed_identity;not null"`
	ProcessedAt  time.Time `json:"processed_at"`
	CreatedAt    time.Time `json:"created_at"`
}

// AttachmentOutcome is the terminal state of one attachment within a run.
type AttachmentOutcome string

const (
	OutcomeProcessed AttachmentOutcome = "processed"
	OutcomeSkipped   AttachmentOutcome = "skipped"
	OutcomeFailed    AttachmentOutcome = "failed"
)

// ProcessingRecord is the in-memory per-message outcome for one run. It
// exists only to decide deletion eligibility and populate the run log.
type ProcessingRecord struct {
	MessageID       string
	Subject         string
	From            string
	AttachmentCount int
	SuccessCount    int
	Processed       bool
	Filenames       []string
}

// SyncPhase enumerates orchestrator run phases.
type SyncPhase string

const (
	PhaseInitializing SyncPhase = "initializing"
	PhaseSearching    SyncPhase = "searching"
	PhaseDownloading  SyncPhase = "downloading"
	PhaseProcessing   SyncPhase = "processing"
	PhaseDeleting     SyncPhase = "deleting"
	PhaseCompleted    SyncPhase = "completed"
	PhaseError        SyncPhase = "error"
)

// ProgressUpdate is delivered to the optional progress callback on every
// phase transition. The callback is invoked synchronously.
type ProgressUpdate struct {
	Phase            SyncPhase
	Message          string
	EmailsFound      int
	ReportsProcessed int
	ReportsSkipped   int
	EmailsDeleted    int
	ErrorCount       int
}

// ProgressFunc observes run progress. It is the only progress channel.
type ProgressFunc func(ProgressUpdate)

// SyncSummary is the uniform per-run result handed back to the caller on
// every path: success, partial success, or failure.
type SyncSummary struct {
	Success          bool          `json:"success"`
	EmailsFound      int           `json:"emails_found"`
	NewEmails        int           `json:"new_emails"`
	AttachmentsFound int           `json:"attachments_found"`
	ReportsProcessed int           `json:"reports_processed"`
	ReportsSkipped   int           `json:"reports_skipped"`
	EmailsDeleted    int           `json:"emails_deleted"`
	DeletionErrors   int           `json:"deletion_errors"`
	Errors           []string      `json:"errors"`
	Duration         time.Duration `json:"duration"`
}

// DeletionResult aggregates one deletion batch.
type DeletionResult struct {
	TotalAttempted int
	TotalDeleted   int
	TotalSkipped   int
	TotalErrors    int
	DeletedEmails  []DeletedEmailMeta
}
