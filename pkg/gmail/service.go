package gmail

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	syncdomain "dmarcview-backend/internal/sync/domain"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// dmarcQuery matches the common senders and attachment shapes of DMARC
// aggregate reports. Deliberately permissive; the XML parser is the real
// filter.
const dmarcQuery = `has:attachment (subject:"report domain" OR dmarc OR filename:xml OR filename:zip OR filename:gz)`

// Service is the Gmail provider adapter.
type Service struct {
	config *oauth2.Config
}

func NewService(clientID, clientSecret, redirectURI string) *Service {
	return &Service{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes: []string{
				gmail.GmailReadonlyScope,
				"https://www.googleapis.com/auth/userinfo.email",
			},
			Endpoint: google.Endpoint,
		},
	}
}

// AuthCodeURL builds the consent URL. elevated requests the modify scope
// needed for delete-after-import.
func (s *Service) AuthCodeURL(state string, elevated bool) string {
	if elevated {
		cfg := *s.config
		cfg.Scopes = []string{
			gmail.GmailModifyScope,
			"https://www.googleapis.com/auth/userinfo.email",
		}
		return cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	}
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

func (s *Service) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := s.config.Exchange(ctx, code)
	if err != nil {
		return nil, wrapError(err, "failed to exchange authorization code")
	}
	return token, nil
}

// RefreshToken calls the Google token endpoint with a refresh token.
func (s *Service) RefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	src := s.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := src.Token()
	if err != nil {
		return nil, wrapError(err, "failed to refresh token")
	}
	return token, nil
}

// getService builds a Gmail client from a static access token. Refresh is
// owned by the credential service; an expired token surfaces as a 401 that
// the orchestrator's retry policy handles.
func (s *Service) getService(ctx context.Context, creds *syncdomain.Credentials) (*gmail.Service, error) {
	token := &oauth2.Token{AccessToken: creds.AccessToken, TokenType: "Bearer"}
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))
	srv, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}
	return srv, nil
}

func (s *Service) Search(ctx context.Context, creds *syncdomain.Credentials, opts syncdomain.SearchOptions, pageToken string) (*syncdomain.SearchResult, error) {
	srv, err := s.getService(ctx, creds)
	if err != nil {
		return nil, err
	}

	q := buildQuery(opts)

	maxResults := opts.MaxResults
	if maxResults <= 0 || maxResults > 500 {
		maxResults = 100
	}

	call := srv.Users.Messages.List("me").Q(q).MaxResults(maxResults)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	resp, err := call.Context(ctx).Do()
	if err != nil {
		return nil, wrapError(err, "unable to search messages")
	}

	messages := make([]*syncdomain.CanonicalMessage, 0, len(resp.Messages))
	for _, ref := range resp.Messages {
		// Sequential fetch on purpose: Gmail enforces per-second quotas
		// that parallel fetching would blow through.
		full, err := srv.Users.Messages.Get("me", ref.Id).Format("full").Context(ctx).Do()
		if err != nil {
			if isAuthStatus(err) {
				return nil, wrapError(err, "unable to fetch message")
			}
			log.Printf("[Gmail] Skipping message %s: %v", ref.Id, err)
			continue
		}
		messages = append(messages, convertMessage(full))
	}

	return &syncdomain.SearchResult{
		Messages:      messages,
		NextPageToken: resp.NextPageToken,
		TotalEstimate: resp.ResultSizeEstimate,
		Query:         q,
	}, nil
}

func buildQuery(opts syncdomain.SearchOptions) string {
	parts := []string{dmarcQuery}
	if opts.UnreadOnly {
		parts = append(parts, "is:unread")
	}
	if opts.AfterDate != nil {
		parts = append(parts, "after:"+opts.AfterDate.Format("2006/01/02"))
	}
	if opts.BeforeDate != nil {
		parts = append(parts, "before:"+opts.BeforeDate.Format("2006/01/02"))
	}
	return strings.Join(parts, " ")
}

func (s *Service) ExtractAttachments(ctx context.Context, creds *syncdomain.Credentials, messages []*syncdomain.CanonicalMessage) ([]*syncdomain.CanonicalAttachment, error) {
	srv, err := s.getService(ctx, creds)
	if err != nil {
		return nil, err
	}

	var attachments []*syncdomain.CanonicalAttachment
	for _, msg := range messages {
		native, ok := msg.Native.(*gmail.Message)
		if !ok {
			full, err := srv.Users.Messages.Get("me", msg.ID).Format("full").Context(ctx).Do()
			if err != nil {
				if isAuthStatus(err) {
					return nil, wrapError(err, "unable to fetch message")
				}
				log.Printf("[Gmail] Skipping attachments of message %s: %v", msg.ID, err)
				continue
			}
			native = full
		}

		for _, part := range findDmarcParts(native.Payload) {
			data := part.Body.Data
			if data == "" && part.Body.AttachmentId != "" {
				attachPart, err := srv.Users.Messages.Attachments.Get("me", msg.ID, part.Body.AttachmentId).Context(ctx).Do()
				if err != nil {
					if isAuthStatus(err) {
						return nil, wrapError(err, "unable to download attachment")
					}
					log.Printf("[Gmail] Failed to download attachment %s of message %s: %v", part.Filename, msg.ID, err)
					continue
				}
				data = attachPart.Data
			}
			if data == "" {
				continue
			}
			attachments = append(attachments, &syncdomain.CanonicalAttachment{
				Filename:   part.Filename,
				Data:       data,
				MessageID:  msg.ID,
				ReceivedAt: msg.ReceivedAt,
				Provider:   syncdomain.ProviderGmail,
			})
		}
	}

	return attachments, nil
}

// DeleteMessage moves the message to trash. Errors are captured, never
// thrown past this boundary.
func (s *Service) DeleteMessage(ctx context.Context, creds *syncdomain.Credentials, messageID string) *syncdomain.DeleteResult {
	result := &syncdomain.DeleteResult{MessageID: messageID}

	srv, err := s.getService(ctx, creds)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	if _, err := srv.Users.Messages.Trash("me", messageID).Context(ctx).Do(); err != nil {
		result.Error = err.Error()
		return result
	}

	result.Success = true
	result.Deleted = true
	return result
}

// Helper functions

func convertMessage(msg *gmail.Message) *syncdomain.CanonicalMessage {
	return &syncdomain.CanonicalMessage{
		ID:             msg.Id,
		ThreadID:       msg.ThreadId,
		Subject:        getHeader(msg.Payload, "Subject"),
		Snippet:        msg.Snippet,
		From:           getHeader(msg.Payload, "From"),
		ReceivedAt:     time.Unix(msg.InternalDate/1000, 0),
		HasAttachments: len(findDmarcParts(msg.Payload)) > 0,
		Provider:       syncdomain.ProviderGmail,
		Native:         msg,
	}
}

func getHeader(payload *gmail.MessagePart, name string) string {
	if payload == nil {
		return ""
	}
	for _, header := range payload.Headers {
		if strings.EqualFold(header.Name, name) {
			return header.Value
		}
	}
	return ""
}

// findDmarcParts walks the MIME tree for parts whose filename matches the
// DMARC attachment heuristic.
func findDmarcParts(payload *gmail.MessagePart) []*gmail.MessagePart {
	var found []*gmail.MessagePart
	if payload == nil {
		return found
	}

	var walk func(part *gmail.MessagePart)
	walk = func(part *gmail.MessagePart) {
		if part.Filename != "" && part.Body != nil && syncdomain.IsDMARCAttachment(part.Filename) {
			found = append(found, part)
		}
		for _, child := range part.Parts {
			walk(child)
		}
	}
	walk(payload)
	return found
}

func isAuthStatus(err error) bool {
	if apiErr, ok := err.(*googleapi.Error); ok {
		return apiErr.Code == 401
	}
	return false
}

func wrapError(err error, msg string) error {
	if isAuthStatus(err) {
		return &syncdomain.AuthError{Reason: msg, Err: err}
	}
	return fmt.Errorf("%s: %w", msg, err)
}
