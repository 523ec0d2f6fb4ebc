package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	reportusecase "dmarcview-backend/internal/report/usecase"
	syncdomain "dmarcview-backend/internal/sync/domain"
	"dmarcview-backend/internal/sync/repository"
	"dmarcview-backend/pkg/attachment"
)

var ErrSyncInProgress = errors.New("a sync is already running for this config")

// SyncUsecase is the top-level run orchestrator.
type SyncUsecase interface {
	// SyncEmails runs one full pipeline pass for a config. On an
	// authentication failure in the first pass it refreshes the token and
	// retries the entire run exactly once.
	SyncEmails(ctx context.Context, configID, userID string, progress syncdomain.ProgressFunc) (*syncdomain.SyncSummary, error)
}

type syncUsecase struct {
	configRepo    repository.SyncConfigRepository
	runRepo       repository.SyncRunRepository
	processedRepo repository.ProcessedMessageRepository
	credentials   CredentialService
	registry      ProviderRegistry
	ingest        reportusecase.IngestService
	deletion      *DeletionEngine

	// AttachmentDelay paces the processing loop so the parser/datastore
	// aren't saturated.
	AttachmentDelay time.Duration
	MaxResults      int64

	runLocks map[string]struct{}
	mu       sync.Mutex
}

func NewSyncUsecase(
	configRepo repository.SyncConfigRepository,
	runRepo repository.SyncRunRepository,
	processedRepo repository.ProcessedMessageRepository,
	credentials CredentialService,
	registry ProviderRegistry,
	ingest reportusecase.IngestService,
	deletion *DeletionEngine,
	maxResults int64,
) SyncUsecase {
	if maxResults <= 0 {
		maxResults = 100
	}
	return &syncUsecase{
		configRepo:      configRepo,
		runRepo:         runRepo,
		processedRepo:   processedRepo,
		credentials:     credentials,
		registry:        registry,
		ingest:          ingest,
		deletion:        deletion,
		AttachmentDelay: 100 * time.Millisecond,
		MaxResults:      maxResults,
		runLocks:        make(map[string]struct{}),
	}
}

// attemptResult carries the counters of one pipeline pass.
type attemptResult struct {
	emailsFound      int
	newEmails        int
	attachmentsFound int
	reportsProcessed int
	reportsSkipped   int
	emailsDeleted    int
	deletionErrors   int
	errors           []string
	deletedEmails    []syncdomain.DeletedEmailMeta
	maxReceived      time.Time
}

func (u *syncUsecase) acquireLock(configID string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, held := u.runLocks[configID]; held {
		return false
	}
	u.runLocks[configID] = struct{}{}
	return true
}

func (u *syncUsecase) releaseLock(configID string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.runLocks, configID)
}

func (u *syncUsecase) SyncEmails(ctx context.Context, configID, userID string, progress syncdomain.ProgressFunc) (*syncdomain.SyncSummary, error) {
	if !u.acquireLock(configID) {
		return nil, ErrSyncInProgress
	}
	defer u.releaseLock(configID)

	config, err := u.configRepo.FindByID(configID, userID)
	if err != nil {
		return nil, err
	}
	if config == nil {
		return nil, ErrConfigNotFound
	}

	// DB-level lease, the backstop when multiple processes share the
	// datastore.
	acquired, err := u.configRepo.MarkSyncing(configID)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, ErrSyncInProgress
	}

	runLog := &syncdomain.SyncRunLog{
		SyncConfigID: configID,
		UserID:       userID,
	}
	if err := u.runRepo.CreateRun(runLog); err != nil {
		// Release the DB lease before giving up.
		_ = u.configRepo.FinishSync(configID, syncdomain.SyncStatusError, err.Error())
		return nil, err
	}

	start := time.Now()
	res, runErr := u.attempt(ctx, configID, userID, progress, false)

	if runErr != nil && syncdomain.IsAuthError(runErr) {
		log.Printf("[Sync] Auth failure for config %s, refreshing token and retrying once: %v", configID, runErr)
		creds, refreshErr := u.credentials.RefreshTokenForConfig(ctx, configID, userID)
		if refreshErr == nil && creds != nil {
			res, runErr = u.attempt(ctx, configID, userID, progress, true)
		} else if refreshErr != nil {
			log.Printf("[Sync] Token refresh failed for config %s: %v", configID, refreshErr)
		}
	}

	summary := u.finalize(configID, runLog, res, runErr, start, progress)
	return summary, runErr
}

// finalize writes the run log and config status exactly once, on every exit
// path, and returns the uniform summary.
func (u *syncUsecase) finalize(configID string, runLog *syncdomain.SyncRunLog, res *attemptResult, runErr error, start time.Time, progress syncdomain.ProgressFunc) *syncdomain.SyncSummary {
	summary := &syncdomain.SyncSummary{Duration: time.Since(start)}

	if runErr != nil {
		// Fatal path: zero counts, one error message.
		msg := runErr.Error()
		if syncdomain.IsAuthError(runErr) {
			msg = userFacingAuthMessage(runErr)
		}
		summary.Success = false
		summary.Errors = []string{msg}

		runLog.Status = syncdomain.RunStatusFailed
		runLog.Errors = []string{msg}
		runLog.ErrorCount = 1
		if err := u.runRepo.FinalizeRun(runLog); err != nil {
			log.Printf("[Sync] Failed to finalize run log %s: %v", runLog.ID, err)
		}
		if err := u.configRepo.FinishSync(configID, syncdomain.SyncStatusError, msg); err != nil {
			log.Printf("[Sync] Failed to update config status %s: %v", configID, err)
		}
		u.report(progress, syncdomain.PhaseError, msg, res)
		return summary
	}

	summary.Success = true
	summary.EmailsFound = res.emailsFound
	summary.NewEmails = res.newEmails
	summary.AttachmentsFound = res.attachmentsFound
	summary.ReportsProcessed = res.reportsProcessed
	summary.ReportsSkipped = res.reportsSkipped
	summary.EmailsDeleted = res.emailsDeleted
	summary.DeletionErrors = res.deletionErrors
	summary.Errors = res.errors

	runLog.Status = syncdomain.RunStatusCompleted
	runLog.EmailsFound = res.emailsFound
	runLog.EmailsFetched = res.newEmails
	runLog.AttachmentsFound = res.attachmentsFound
	runLog.ReportsProcessed = res.reportsProcessed
	runLog.ReportsSkipped = res.reportsSkipped
	runLog.EmailsDeleted = res.emailsDeleted
	runLog.ErrorCount = len(res.errors) + res.deletionErrors
	runLog.Errors = res.errors
	runLog.DeletedEmails = res.deletedEmails
	if err := u.runRepo.FinalizeRun(runLog); err != nil {
		log.Printf("[Sync] Failed to finalize run log %s: %v", runLog.ID, err)
	}

	status := syncdomain.SyncStatusCompleted
	errDetail := ""
	if len(res.errors) > 0 || res.deletionErrors > 0 {
		status = syncdomain.SyncStatusError
		errDetail = fmt.Sprintf("%d errors during sync", len(res.errors)+res.deletionErrors)
	}
	if err := u.configRepo.FinishSync(configID, status, errDetail); err != nil {
		log.Printf("[Sync] Failed to update config status %s: %v", configID, err)
	}

	if !res.maxReceived.IsZero() {
		if err := u.configRepo.AdvanceCursor(configID, res.maxReceived); err != nil {
			log.Printf("[Sync] Failed to advance cursor for config %s: %v", configID, err)
		}
	}

	return summary
}

// attempt runs one full pass: search, download, process, delete.
func (u *syncUsecase) attempt(ctx context.Context, configID, userID string, progress syncdomain.ProgressFunc, isRetry bool) (*attemptResult, error) {
	res := &attemptResult{}

	config, err := u.configRepo.FindByID(configID, userID)
	if err != nil {
		return res, err
	}
	if config == nil {
		return res, ErrConfigNotFound
	}

	initMsg := "starting sync"
	if isRetry {
		initMsg = "retrying sync after token refresh"
	}
	u.report(progress, syncdomain.PhaseInitializing, initMsg, res)

	creds, err := u.credentials.GetCredentials(ctx, configID, userID)
	if err != nil {
		return res, err
	}
	if creds == nil {
		return res, &syncdomain.AuthError{Reason: "authentication required, please reconnect the mailbox"}
	}

	provider, err := u.registry.Get(config.Provider)
	if err != nil {
		return res, err
	}

	u.report(progress, syncdomain.PhaseSearching, "searching mailbox for DMARC reports", res)

	opts := syncdomain.SearchOptions{
		UnreadOnly: config.SyncUnreadOnly,
		MaxResults: u.MaxResults,
		AfterDate:  config.LastSyncCursor,
	}

	var messages []*syncdomain.CanonicalMessage
	pageToken := ""
	for {
		page, err := provider.Search(ctx, creds, opts, pageToken)
		if err != nil {
			return res, err
		}
		messages = append(messages, page.Messages...)
		if page.NextPageToken == "" || int64(len(messages)) >= u.MaxResults {
			break
		}
		pageToken = page.NextPageToken
	}

	res.emailsFound = len(messages)
	for _, msg := range messages {
		if msg.ReceivedAt.After(res.maxReceived) {
			res.maxReceived = msg.ReceivedAt
		}
	}

	if len(messages) == 0 {
		u.report(progress, syncdomain.PhaseCompleted, "no candidate emails found", res)
		return res, nil
	}

	// Message-level dedup is best-effort: a broken tracking table means
	// every message is treated as new.
	ids := make([]string, len(messages))
	for i, msg := range messages {
		ids[i] = msg.ID
	}
	fresh, err := u.processedRepo.FilterNew(userID, configID, ids)
	if err != nil {
		log.Printf("[Sync] Message tracking unavailable for config %s, treating all messages as new: %v", configID, err)
		if fresh == nil {
			fresh = ids
		}
	}
	freshSet := make(map[string]struct{}, len(fresh))
	for _, id := range fresh {
		freshSet[id] = struct{}{}
	}
	var newMessages []*syncdomain.CanonicalMessage
	for _, msg := range messages {
		if _, ok := freshSet[msg.ID]; ok {
			newMessages = append(newMessages, msg)
		}
	}
	res.newEmails = len(newMessages)

	if len(newMessages) == 0 {
		u.report(progress, syncdomain.PhaseCompleted, "all candidate emails already processed", res)
		return res, nil
	}

	u.report(progress, syncdomain.PhaseDownloading, fmt.Sprintf("downloading attachments from %d emails", len(newMessages)), res)

	attachments, err := provider.ExtractAttachments(ctx, creds, newMessages)
	if err != nil {
		return res, err
	}
	res.attachmentsFound = len(attachments)

	u.report(progress, syncdomain.PhaseProcessing, fmt.Sprintf("processing %d attachments", len(attachments)), res)

	msgByID := make(map[string]*syncdomain.CanonicalMessage, len(newMessages))
	for _, msg := range newMessages {
		msgByID[msg.ID] = msg
	}

	tracker := NewTracker()
	for i, att := range attachments {
		msg, ok := msgByID[att.MessageID]
		if !ok {
			continue
		}

		u.processAttachment(att, msg, userID, tracker, res)

		if u.AttachmentDelay > 0 && i < len(attachments)-1 {
			time.Sleep(u.AttachmentDelay)
		}
	}

	for _, rec := range tracker.FullyProcessed() {
		if err := u.processedRepo.MarkProcessed(userID, configID, rec.MessageID); err != nil {
			log.Printf("[Sync] Failed to record processed message %s: %v", rec.MessageID, err)
		}
	}

	if config.DeleteAfterImport {
		eligible := tracker.FullyProcessed()
		if len(eligible) > 0 {
			u.report(progress, syncdomain.PhaseDeleting, fmt.Sprintf("deleting %d processed emails", len(eligible)), res)
			delRes := u.deletion.Run(ctx, provider, creds, config, eligible)
			res.emailsDeleted = delRes.TotalDeleted
			res.deletionErrors = delRes.TotalErrors
			res.deletedEmails = delRes.DeletedEmails
		}
	}

	u.report(progress, syncdomain.PhaseCompleted, "sync finished", res)
	return res, nil
}

// processAttachment decompresses one attachment and ingests every XML
// payload it contains. Failures are contained to the attachment.
func (u *syncUsecase) processAttachment(att *syncdomain.CanonicalAttachment, msg *syncdomain.CanonicalMessage, userID string, tracker *Tracker, res *attemptResult) {
	payloads, err := attachment.Decompress(att)
	if err != nil {
		res.errors = append(res.errors, err.Error())
		tracker.RecordOutcome(msg, att.Filename, syncdomain.OutcomeFailed)
		return
	}

	anyFailed := false
	anyProcessed := false
	for _, payload := range payloads {
		outcome, ingestErr := u.ingest.IngestPayload(payload, userID)
		switch outcome {
		case syncdomain.OutcomeProcessed:
			res.reportsProcessed++
			anyProcessed = true
		case syncdomain.OutcomeSkipped:
			res.reportsSkipped++
		case syncdomain.OutcomeFailed:
			anyFailed = true
			if ingestErr != nil {
				res.errors = append(res.errors, fmt.Sprintf("%s: %v", att.Filename, ingestErr))
			}
		}
	}

	switch {
	case anyFailed:
		tracker.RecordOutcome(msg, att.Filename, syncdomain.OutcomeFailed)
	case anyProcessed:
		tracker.RecordOutcome(msg, att.Filename, syncdomain.OutcomeProcessed)
	default:
		tracker.RecordOutcome(msg, att.Filename, syncdomain.OutcomeSkipped)
	}
}

func (u *syncUsecase) report(progress syncdomain.ProgressFunc, phase syncdomain.SyncPhase, message string, res *attemptResult) {
	if progress == nil {
		return
	}
	update := syncdomain.ProgressUpdate{Phase: phase, Message: message}
	if res != nil {
		update.EmailsFound = res.emailsFound
		update.ReportsProcessed = res.reportsProcessed
		update.ReportsSkipped = res.reportsSkipped
		update.EmailsDeleted = res.emailsDeleted
		update.ErrorCount = len(res.errors)
	}
	progress(update)
}

// userFacingAuthMessage distinguishes expired from corrupted credentials.
func userFacingAuthMessage(err error) string {
	var authErr *syncdomain.AuthError
	if errors.As(err, &authErr) && authErr.Reason != "" {
		return authErr.Reason
	}
	return "mailbox authentication expired, please reconnect the mailbox"
}
