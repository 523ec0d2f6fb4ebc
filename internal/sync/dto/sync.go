package dto

import syncdomain "dmarcview-backend/internal/sync/domain"

type CreateImapConfigRequest struct {
	EmailAddress      string `json:"email_address" binding:"required,email"`
	Password          string `json:"password" binding:"required"`
	ImapServer        string `json:"imap_server" binding:"required"`
	ImapPort          int    `json:"imap_port"`
	DeleteAfterImport bool   `json:"delete_after_import"`
	SyncUnreadOnly    bool   `json:"sync_unread_only"`
}

type UpdateConfigRequest struct {
	Active            *bool `json:"active"`
	DeleteAfterImport *bool `json:"delete_after_import"`
	SyncUnreadOnly    *bool `json:"sync_unread_only"`
}

type ConfigsResponse struct {
	Configs []*syncdomain.SyncConfig `json:"configs"`
}

type ConnectResponse struct {
	URL string `json:"url"`
}

type RunsResponse struct {
	Runs []*syncdomain.SyncRunLog `json:"runs"`
}

type AuditEntriesResponse struct {
	Entries []*syncdomain.DeletionAuditEntry `json:"entries"`
}

// OAuthState rides through the provider consent round trip.
type OAuthState struct {
	UserID   string              `json:"user_id"`
	ConfigID string              `json:"config_id,omitempty"`
	Provider syncdomain.Provider `json:"provider"`
	Elevated bool                `json:"elevated,omitempty"`
	Nonce    string              `json:"nonce"`
}
