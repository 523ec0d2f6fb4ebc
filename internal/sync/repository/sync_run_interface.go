package repository

import syncdomain "dmarcview-backend/internal/sync/domain"

// SyncRunRepository persists run logs and deletion audit entries.
type SyncRunRepository interface {
	CreateRun(run *syncdomain.SyncRunLog) error
	// FinalizeRun writes the terminal state of a run. Called exactly once
	// per run on every exit path.
	FinalizeRun(run *syncdomain.SyncRunLog) error
	ListRuns(configID, userID string, limit int) ([]*syncdomain.SyncRunLog, error)
	CreateAuditEntry(entry *syncdomain.DeletionAuditEntry) error
	ListAuditEntries(configID, userID string, limit int) ([]*syncdomain.DeletionAuditEntry, error)
}
