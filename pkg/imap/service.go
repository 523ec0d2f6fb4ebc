package imap

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"io"
	"log"
	"strconv"

	syncdomain "dmarcview-backend/internal/sync/domain"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
)

// Service is the generic IMAP provider adapter for mailboxes without an
// OAuth API. Each call dials, authenticates, and logs out: DMARC sync runs
// are minutes apart, so holding connections open buys nothing.
type Service struct{}

func NewService() *Service {
	return &Service{}
}

func (s *Service) connect(creds *syncdomain.Credentials) (*client.Client, error) {
	if creds.ImapServer == "" {
		return nil, fmt.Errorf("imap server not configured")
	}
	port := creds.ImapPort
	if port == 0 {
		port = 993
	}

	addr := fmt.Sprintf("%s:%d", creds.ImapServer, port)
	c, err := client.DialTLS(addr, &tls.Config{
		ServerName: creds.ImapServer,
		MinVersion: tls.VersionTLS12,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IMAP server: %w", err)
	}

	if err := c.Login(creds.EmailAddress, creds.Password); err != nil {
		c.Logout() //nolint:errcheck
		return nil, &syncdomain.AuthError{Reason: "IMAP login rejected", Err: err}
	}

	return c, nil
}

// Search selects INBOX and fetches candidate messages. IMAP search has no
// attachment predicate, so candidates are every message in the window and
// the attachment-name heuristic filters during extraction.
func (s *Service) Search(ctx context.Context, creds *syncdomain.Credentials, opts syncdomain.SearchOptions, pageToken string) (*syncdomain.SearchResult, error) {
	c, err := s.connect(creds)
	if err != nil {
		return nil, err
	}
	defer c.Logout() //nolint:errcheck

	if _, err := c.Select("INBOX", false); err != nil {
		return nil, fmt.Errorf("failed to select INBOX: %w", err)
	}

	criteria := imap.NewSearchCriteria()
	if opts.UnreadOnly {
		criteria.WithoutFlags = append(criteria.WithoutFlags, imap.SeenFlag)
	}
	if opts.AfterDate != nil {
		criteria.Since = *opts.AfterDate
	}
	if opts.BeforeDate != nil {
		criteria.Before = *opts.BeforeDate
	}

	uids, err := c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search mailbox: %w", err)
	}
	if len(uids) == 0 {
		return &syncdomain.SearchResult{}, nil
	}

	// Pagination: pageToken is the index into the UID list.
	offset := 0
	if pageToken != "" {
		offset, err = strconv.Atoi(pageToken)
		if err != nil || offset < 0 || offset >= len(uids) {
			return nil, fmt.Errorf("invalid page token %q", pageToken)
		}
	}
	maxResults := int(opts.MaxResults)
	if maxResults <= 0 || maxResults > 500 {
		maxResults = 100
	}
	end := offset + maxResults
	if end > len(uids) {
		end = len(uids)
	}
	page := uids[offset:end]

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(page...)

	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchInternalDate, imap.FetchUid, imap.FetchBodyStructure}
	ch := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqSet, items, ch)
	}()

	var messages []*syncdomain.CanonicalMessage
	for msg := range ch {
		if !hasCandidateAttachment(msg.BodyStructure) {
			continue
		}
		messages = append(messages, convertMessage(msg))
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	nextToken := ""
	if end < len(uids) {
		nextToken = strconv.Itoa(end)
	}

	return &syncdomain.SearchResult{
		Messages:      messages,
		NextPageToken: nextToken,
		TotalEstimate: int64(len(uids)),
		Query:         "INBOX since cursor",
	}, nil
}

func convertMessage(msg *imap.Message) *syncdomain.CanonicalMessage {
	out := &syncdomain.CanonicalMessage{
		ID:             strconv.FormatUint(uint64(msg.Uid), 10),
		ReceivedAt:     msg.InternalDate,
		HasAttachments: true,
		Provider:       syncdomain.ProviderIMAP,
	}
	if msg.Envelope != nil {
		out.Subject = msg.Envelope.Subject
		if len(msg.Envelope.From) > 0 {
			addr := msg.Envelope.From[0]
			out.From = addr.Address()
			if addr.PersonalName != "" {
				out.From = fmt.Sprintf("%s <%s>", addr.PersonalName, addr.Address())
			}
		}
		if !msg.Envelope.Date.IsZero() {
			out.ReceivedAt = msg.Envelope.Date
		}
	}
	return out
}

// hasCandidateAttachment walks the BODYSTRUCTURE for a filename that looks
// like a DMARC report.
func hasCandidateAttachment(bs *imap.BodyStructure) bool {
	if bs == nil {
		return false
	}
	if filename, _ := bs.Filename(); filename != "" && syncdomain.IsDMARCAttachment(filename) {
		return true
	}
	for _, part := range bs.Parts {
		if hasCandidateAttachment(part) {
			return true
		}
	}
	return false
}

// ExtractAttachments re-fetches each message body and walks its MIME parts.
// Raw bytes are base64-encoded so the codec sees the same shape every
// provider delivers.
func (s *Service) ExtractAttachments(ctx context.Context, creds *syncdomain.Credentials, messages []*syncdomain.CanonicalMessage) ([]*syncdomain.CanonicalAttachment, error) {
	if len(messages) == 0 {
		return nil, nil
	}

	c, err := s.connect(creds)
	if err != nil {
		return nil, err
	}
	defer c.Logout() //nolint:errcheck

	if _, err := c.Select("INBOX", false); err != nil {
		return nil, fmt.Errorf("failed to select INBOX: %w", err)
	}

	seqSet := new(imap.SeqSet)
	byUID := make(map[uint32]*syncdomain.CanonicalMessage, len(messages))
	for _, msg := range messages {
		uid, err := strconv.ParseUint(msg.ID, 10, 32)
		if err != nil {
			log.Printf("[IMAP] Skipping message with non-UID id %q", msg.ID)
			continue
		}
		seqSet.AddNum(uint32(uid))
		byUID[uint32(uid)] = msg
	}

	section := &imap.BodySectionName{}
	items := []imap.FetchItem{imap.FetchUid, section.FetchItem()}
	ch := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqSet, items, ch)
	}()

	var attachments []*syncdomain.CanonicalAttachment
	for imapMsg := range ch {
		canonical, ok := byUID[imapMsg.Uid]
		if !ok {
			continue
		}
		body := imapMsg.GetBody(section)
		if body == nil {
			log.Printf("[IMAP] Message %d returned no body", imapMsg.Uid)
			continue
		}
		found, err := extractFromBody(body, canonical)
		if err != nil {
			log.Printf("[IMAP] Failed to parse message %d: %v", imapMsg.Uid, err)
			continue
		}
		attachments = append(attachments, found...)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch message bodies: %w", err)
	}

	return attachments, nil
}

func extractFromBody(body imap.Literal, msg *syncdomain.CanonicalMessage) ([]*syncdomain.CanonicalAttachment, error) {
	mr, err := mail.CreateReader(body)
	if err != nil {
		return nil, err
	}

	var attachments []*syncdomain.CanonicalAttachment
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return attachments, err
		}

		ah, ok := part.Header.(*mail.AttachmentHeader)
		if !ok {
			continue
		}
		filename, err := ah.Filename()
		if err != nil || filename == "" || !syncdomain.IsDMARCAttachment(filename) {
			continue
		}
		data, err := io.ReadAll(part.Body)
		if err != nil {
			return attachments, err
		}
		attachments = append(attachments, &syncdomain.CanonicalAttachment{
			Filename:   filename,
			Data:       base64.StdEncoding.EncodeToString(data),
			MessageID:  msg.ID,
			ReceivedAt: msg.ReceivedAt,
			Provider:   syncdomain.ProviderIMAP,
		})
	}
	return attachments, nil
}

// DeleteMessage flags the message \Deleted and expunges. IMAP has no trash
// semantics, so this is a hard delete.
func (s *Service) DeleteMessage(ctx context.Context, creds *syncdomain.Credentials, messageID string) *syncdomain.DeleteResult {
	result := &syncdomain.DeleteResult{MessageID: messageID}

	uid, err := strconv.ParseUint(messageID, 10, 32)
	if err != nil {
		result.Error = fmt.Sprintf("invalid message id %q", messageID)
		return result
	}

	c, err := s.connect(creds)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	defer c.Logout() //nolint:errcheck

	if _, err := c.Select("INBOX", false); err != nil {
		result.Error = err.Error()
		return result
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uint32(uid))

	item := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := c.UidStore(seqSet, item, []interface{}{imap.DeletedFlag}, nil); err != nil {
		result.Error = err.Error()
		return result
	}
	if err := c.Expunge(nil); err != nil {
		result.Error = err.Error()
		return result
	}

	result.Success = true
	result.Deleted = true
	return result
}
