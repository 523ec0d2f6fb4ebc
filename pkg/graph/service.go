package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	syncdomain "dmarcview-backend/internal/sync/domain"

	"golang.org/x/oauth2"
)

const graphBaseURL = "https://graph.microsoft.com/v1.0"

var baseScopes = []string{
	"offline_access",
	"https://graph.microsoft.com/Mail.Read",
	"https://graph.microsoft.com/User.Read",
}

var elevatedScopes = []string{
	"offline_access",
	"https://graph.microsoft.com/Mail.ReadWrite",
	"https://graph.microsoft.com/User.Read",
}

// Service is the Microsoft Graph (Outlook) provider adapter. Graph has no
// official Go SDK in our stack, so this speaks REST directly.
type Service struct {
	config *oauth2.Config
	client *http.Client
}

func NewService(clientID, clientSecret, redirectURI, tenant string) *Service {
	if tenant == "" {
		tenant = "common"
	}
	return &Service{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       baseScopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/authorize", tenant),
				TokenURL: fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", tenant),
			},
		},
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// AuthCodeURL builds the consent URL. elevated requests Mail.ReadWrite for
// delete-after-import.
func (s *Service) AuthCodeURL(state string, elevated bool) string {
	if elevated {
		cfg := *s.config
		cfg.Scopes = elevatedScopes
		return cfg.AuthCodeURL(state)
	}
	return s.config.AuthCodeURL(state)
}

func (s *Service) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := s.config.Exchange(ctx, code)
	if err != nil {
		return nil, wrapError(err, http.StatusUnauthorized, "failed to exchange authorization code")
	}
	return token, nil
}

func (s *Service) RefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	src := s.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := src.Token()
	if err != nil {
		return nil, &syncdomain.AuthError{Reason: "failed to refresh token", Err: err}
	}
	return token, nil
}

// Graph wire types, trimmed to the fields the pipeline reads.

type graphMessage struct {
	ID               string    `json:"id"`
	ConversationID   string    `json:"conversationId"`
	Subject          string    `json:"subject"`
	BodyPreview      string    `json:"bodyPreview"`
	ReceivedDateTime time.Time `json:"receivedDateTime"`
	HasAttachments   bool      `json:"hasAttachments"`
	From             struct {
		EmailAddress struct {
			Name    string `json:"name"`
			Address string `json:"address"`
		} `json:"emailAddress"`
	} `json:"from"`
}

type graphMessageList struct {
	Value    []graphMessage `json:"value"`
	NextLink string         `json:"@odata.nextLink"`
}

type graphAttachment struct {
	ODataType    string `json:"@odata.type"`
	ID           string `json:"id"`
	Name         string `json:"name"`
	ContentBytes string `json:"contentBytes"`
}

type graphAttachmentList struct {
	Value []graphAttachment `json:"value"`
}

func (s *Service) Search(ctx context.Context, creds *syncdomain.Credentials, opts syncdomain.SearchOptions, pageToken string) (*syncdomain.SearchResult, error) {
	// pageToken is a full @odata.nextLink; the first page builds the URL.
	reqURL := pageToken
	filter := buildFilter(opts)
	if reqURL == "" {
		maxResults := opts.MaxResults
		if maxResults <= 0 || maxResults > 500 {
			maxResults = 100
		}
		q := url.Values{}
		q.Set("$filter", filter)
		q.Set("$top", fmt.Sprintf("%d", maxResults))
		q.Set("$orderby", "receivedDateTime asc")
		q.Set("$select", "id,conversationId,subject,bodyPreview,from,receivedDateTime,hasAttachments")
		reqURL = graphBaseURL + "/me/messages?" + q.Encode()
	}

	var list graphMessageList
	if err := s.doJSON(ctx, creds, http.MethodGet, reqURL, &list); err != nil {
		return nil, err
	}

	messages := make([]*syncdomain.CanonicalMessage, 0, len(list.Value))
	for _, m := range list.Value {
		from := m.From.EmailAddress.Address
		if m.From.EmailAddress.Name != "" {
			from = fmt.Sprintf("%s <%s>", m.From.EmailAddress.Name, m.From.EmailAddress.Address)
		}
		messages = append(messages, &syncdomain.CanonicalMessage{
			ID:             m.ID,
			ThreadID:       m.ConversationID,
			Subject:        m.Subject,
			Snippet:        m.BodyPreview,
			From:           from,
			ReceivedAt:     m.ReceivedDateTime,
			HasAttachments: m.HasAttachments,
			Provider:       syncdomain.ProviderOutlook,
		})
	}

	return &syncdomain.SearchResult{
		Messages:      messages,
		NextPageToken: list.NextLink,
		TotalEstimate: int64(len(messages)),
		Query:         filter,
	}, nil
}

// buildFilter keeps to $filter because $search and $filter cannot be
// combined on the messages endpoint. Subject matching is left to the
// attachment-name heuristic downstream.
func buildFilter(opts syncdomain.SearchOptions) string {
	parts := []string{"hasAttachments eq true"}
	if opts.UnreadOnly {
		parts = append(parts, "isRead eq false")
	}
	if opts.AfterDate != nil {
		parts = append(parts, fmt.Sprintf("receivedDateTime ge %s", opts.AfterDate.UTC().Format(time.RFC3339)))
	}
	if opts.BeforeDate != nil {
		parts = append(parts, fmt.Sprintf("receivedDateTime le %s", opts.BeforeDate.UTC().Format(time.RFC3339)))
	}
	return strings.Join(parts, " and ")
}

func (s *Service) ExtractAttachments(ctx context.Context, creds *syncdomain.Credentials, messages []*syncdomain.CanonicalMessage) ([]*syncdomain.CanonicalAttachment, error) {
	var attachments []*syncdomain.CanonicalAttachment
	for _, msg := range messages {
		reqURL := fmt.Sprintf("%s/me/messages/%s/attachments", graphBaseURL, url.PathEscape(msg.ID))

		var list graphAttachmentList
		if err := s.doJSON(ctx, creds, http.MethodGet, reqURL, &list); err != nil {
			if syncdomain.IsAuthError(err) {
				return nil, err
			}
			log.Printf("[Graph] Skipping attachments of message %s: %v", msg.ID, err)
			continue
		}

		for _, att := range list.Value {
			if att.ODataType != "#microsoft.graph.fileAttachment" {
				continue
			}
			if !syncdomain.IsDMARCAttachment(att.Name) || att.ContentBytes == "" {
				continue
			}
			attachments = append(attachments, &syncdomain.CanonicalAttachment{
				Filename:   att.Name,
				Data:       att.ContentBytes,
				MessageID:  msg.ID,
				ReceivedAt: msg.ReceivedAt,
				Provider:   syncdomain.ProviderOutlook,
			})
		}
	}
	return attachments, nil
}

func (s *Service) DeleteMessage(ctx context.Context, creds *syncdomain.Credentials, messageID string) *syncdomain.DeleteResult {
	result := &syncdomain.DeleteResult{MessageID: messageID}

	reqURL := fmt.Sprintf("%s/me/messages/%s", graphBaseURL, url.PathEscape(messageID))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, reqURL, nil)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)

	resp, err := s.client.Do(req)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		result.Error = fmt.Sprintf("graph delete returned %d: %s", resp.StatusCode, string(body))
		return result
	}

	result.Success = true
	result.Deleted = true
	return result
}

// doJSON performs one authenticated Graph call and decodes the JSON body.
func (s *Service) doJSON(ctx context.Context, creds *syncdomain.Credentials, method, reqURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("graph request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return wrapError(fmt.Errorf("graph returned %d: %s", resp.StatusCode, string(body)), resp.StatusCode, "graph request failed")
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func wrapError(err error, status int, msg string) error {
	if status == http.StatusUnauthorized {
		return &syncdomain.AuthError{Reason: msg, Err: err}
	}
	return fmt.Errorf("%s: %w", msg, err)
}
