package domain

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
)

// Credentials is the decrypted, live auth material handed to an adapter.
// OAuth providers use AccessToken/RefreshToken; imap configs carry the
// mailbox password instead.
type Credentials struct {
	Provider     Provider
	EmailAddress string
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
	Password     string
	ImapServer   string
	ImapPort     int
}

// CanonicalMessage is the provider-agnostic view of one mailbox message.
// Native keeps the provider record so delete/re-extract don't re-fetch.
type CanonicalMessage struct {
	ID             string
	ThreadID       string
	Subject        string
	Snippet        string
	From           string
	ReceivedAt     time.Time
	HasAttachments bool
	Provider       Provider
	Native         interface{}
}

// CanonicalAttachment is one extracted attachment, base64-encoded as the
// provider APIs deliver it. Consumed once by the codec.
type CanonicalAttachment struct {
	Filename   string
	Data       string // base64 payload (URL-safe or standard alphabet)
	MessageID  string
	ReceivedAt time.Time
	Provider   Provider
}

// SearchOptions narrows the mailbox search for candidate DMARC emails.
type SearchOptions struct {
	UnreadOnly bool
	MaxResults int64
	AfterDate  *time.Time
	BeforeDate *time.Time
}

// SearchResult is one page of search output. NextPageToken is opaque and
// provider-specific.
type SearchResult struct {
	Messages      []*CanonicalMessage
	NextPageToken string
	TotalEstimate int64
	Query         string
}

// DeleteResult reports one message deletion. Errors are captured, never
// propagated past the adapter boundary.
type DeleteResult struct {
	MessageID string
	Success   bool
	Deleted   bool
	Error     string
}

// MailProvider is the uniform capability contract every adapter implements.
type MailProvider interface {
	Search(ctx context.Context, creds *Credentials, opts SearchOptions, pageToken string) (*SearchResult, error)
	ExtractAttachments(ctx context.Context, creds *Credentials, messages []*CanonicalMessage) ([]*CanonicalAttachment, error)
	DeleteMessage(ctx context.Context, creds *Credentials, messageID string) *DeleteResult
}

// TokenUpdateFunc persists refreshed OAuth tokens back to the config row.
type TokenUpdateFunc func(accessToken, refreshToken string, expiry time.Time) error

// AuthError marks a failure caused by expired or invalid credentials so the
// orchestrator can apply its single refresh-and-retry.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return "authentication failed: " + e.Err.Error()
	}
	return "authentication failed: " + e.Reason
}

func (e *AuthError) Unwrap() error { return e.Err }

// IsAuthError reports whether err is (or wraps) an authentication failure.
// Provider SDK errors that surface raw 401s are caught by message sniffing
// as a fallback.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "401") || strings.Contains(msg, "Unauthorized") ||
		strings.Contains(msg, "invalid_grant")
}

// vendorReportPattern matches the common DMARC vendor filename shape
// sender!receiver!start!end.xml (possibly compressed).
var vendorReportPattern = regexp.MustCompile(`^[^!]+![^!]+!\d+!\d+.*\.(xml|zip|gz)$`)

// IsDMARCAttachment is the permissive candidate filter: false positives are
// cheap because the XML parser is the real gate.
func IsDMARCAttachment(filename string) bool {
	name := strings.ToLower(filename)
	if name == "" {
		return false
	}
	if strings.Contains(name, "dmarc") || strings.Contains(name, "report") {
		return true
	}
	if strings.HasSuffix(name, ".xml") || strings.HasSuffix(name, ".zip") ||
		strings.HasSuffix(name, ".gz") || strings.HasSuffix(name, ".gzip") {
		return true
	}
	return vendorReportPattern.MatchString(name)
}
