package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// RunStatus is the lifecycle state of one sync run log row.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// DeletedEmailMeta captures what was removed from the mailbox, for the
// run log's audit column.
type DeletedEmailMeta struct {
	MessageID string    `json:"message_id"`
	Subject   string    `json:"subject"`
	From      string    `json:"from"`
	DeletedAt time.Time `json:"deleted_at"`
	Filenames []string  `json:"filenames"`
}

// DeletedEmailList stores deletion metadata as a JSON text column.
type DeletedEmailList []DeletedEmailMeta

func (l DeletedEmailList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	return string(b), err
}

func (l *DeletedEmailList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return errors.New("unsupported type for DeletedEmailList")
	}
}

// StringList stores an error list as a JSON text column.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	return string(b), err
}

func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return errors.New("unsupported type for StringList")
	}
}

// SyncRunLog is the audit/metrics row for one run. It is created when the
// run starts and finalized exactly once, on every exit path.
type SyncRunLog struct {
	ID               string           `json:"id" gorm:"primaryKey"`
	SyncConfigID     string           `json:"sync_config_id" gorm:"index;not null"`
	UserID           string           `json:"user_id" gorm:"index;not null"`
	Status           RunStatus        `json:"status" gorm:"size:20;not null"`
	StartedAt        time.Time        `json:"started_at"`
	FinishedAt       *time.Time       `json:"finished_at,omitempty"`
	EmailsFound      int              `json:"emails_found"`
	EmailsFetched    int              `json:"emails_fetched"`
	AttachmentsFound int              `json:"attachments_found"`
	ReportsProcessed int              `json:"reports_processed"`
	ReportsSkipped   int              `json:"reports_skipped"`
	EmailsDeleted    int              `json:"emails_deleted"`
	ErrorCount       int              `json:"error_count"`
	Errors           StringList       `json:"errors" gorm:"type:text"`
	DeletedEmails    DeletedEmailList `json:"deleted_emails" gorm:"type:text"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// DeletionAuditEntry records one confirmed mailbox deletion.
type DeletionAuditEntry struct {
	ID           string     `json:"id" gorm:"primaryKey"`
	SyncConfigID string     `json:"sync_config_id" gorm:"index;not null"`
	UserID       string     `json:"user_id" gorm:"index;not null"`
	MessageID    string     `json:"message_id" gorm:"not null"`
	Subject      string     `json:"subject"`
	From         string     `json:"from"`
	DeletedAt    time.Time  `json:"deleted_at"`
	Filenames    StringList `json:"filenames" gorm:"type:text"`
	CreatedAt    time.Time  `json:"created_at"`
}
