package repository

// ProcessedMessageRepository is the message-level deduplication ledger.
// It is best-effort: implementations degrade to "treat all messages as new"
// when the tracking table is unavailable, rather than failing the run.
type ProcessedMessageRepository interface {
	// FilterNew returns the subset of messageIDs with no ledger entry for
	// this (user, config).
	FilterNew(userID, configID string, messageIDs []string) ([]string, error)
	MarkProcessed(userID, configID, messageID string) error
}
