package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	syncdomain "dmarcview-backend/internal/sync/domain"
	"dmarcview-backend/internal/sync/repository"

	"golang.org/x/oauth2"
)

// In-memory stand-ins for the GORM repositories and provider adapters.

type fakeConfigRepo struct {
	configs     map[string]*syncdomain.SyncConfig
	finishCalls []syncdomain.SyncStatus
	cursors     map[string]time.Time
	tokenWrites int
	deleted     []string
}

func newFakeConfigRepo(configs ...*syncdomain.SyncConfig) *fakeConfigRepo {
	r := &fakeConfigRepo{
		configs: make(map[string]*syncdomain.SyncConfig),
		cursors: make(map[string]time.Time),
	}
	for _, cfg := range configs {
		r.configs[cfg.ID] = cfg
	}
	return r
}

func (r *fakeConfigRepo) Create(cfg *syncdomain.SyncConfig) error {
	if cfg.ID == "" {
		cfg.ID = fmt.Sprintf("cfg-%d", len(r.configs)+1)
	}
	r.configs[cfg.ID] = cfg
	return nil
}

func (r *fakeConfigRepo) FindByID(id, userID string) (*syncdomain.SyncConfig, error) {
	cfg, ok := r.configs[id]
	if !ok || cfg.UserID != userID {
		return nil, nil
	}
	return cfg, nil
}

func (r *fakeConfigRepo) FindByUser(userID string) ([]*syncdomain.SyncConfig, error) {
	var out []*syncdomain.SyncConfig
	for _, cfg := range r.configs {
		if cfg.UserID == userID {
			out = append(out, cfg)
		}
	}
	return out, nil
}

func (r *fakeConfigRepo) FindActive() ([]*syncdomain.SyncConfig, error) {
	var out []*syncdomain.SyncConfig
	for _, cfg := range r.configs {
		if cfg.Active {
			out = append(out, cfg)
		}
	}
	return out, nil
}

func (r *fakeConfigRepo) FindByEmailAndProvider(email string, provider syncdomain.Provider) (*syncdomain.SyncConfig, error) {
	for _, cfg := range r.configs {
		if cfg.EmailAddress == email && cfg.Provider == provider {
			return cfg, nil
		}
	}
	return nil, nil
}

func (r *fakeConfigRepo) Update(cfg *syncdomain.SyncConfig) error {
	r.configs[cfg.ID] = cfg
	return nil
}

func (r *fakeConfigRepo) Delete(id, userID string) error {
	delete(r.configs, id)
	r.deleted = append(r.deleted, id)
	return nil
}

func (r *fakeConfigRepo) MarkSyncing(id string) (bool, error) {
	cfg, ok := r.configs[id]
	if !ok {
		return false, nil
	}
	if cfg.SyncStatus == syncdomain.SyncStatusSyncing &&
		time.Since(cfg.UpdatedAt) < repository.StaleSyncTakeover {
		return false, nil
	}
	cfg.SyncStatus = syncdomain.SyncStatusSyncing
	cfg.UpdatedAt = time.Now()
	return true, nil
}

func (r *fakeConfigRepo) FinishSync(id string, status syncdomain.SyncStatus, syncErr string) error {
	if cfg, ok := r.configs[id]; ok {
		cfg.SyncStatus = status
		cfg.LastSyncError = syncErr
		now := time.Now()
		cfg.LastSyncAt = &now
		cfg.UpdatedAt = now
	}
	r.finishCalls = append(r.finishCalls, status)
	return nil
}

func (r *fakeConfigRepo) AdvanceCursor(id string, cursor time.Time) error {
	if existing, ok := r.cursors[id]; !ok || cursor.After(existing) {
		r.cursors[id] = cursor
		if cfg, found := r.configs[id]; found {
			c := cursor
			cfg.LastSyncCursor = &c
		}
	}
	return nil
}

func (r *fakeConfigRepo) UpdateTokens(id, accessToken, refreshToken string, expiry *time.Time) error {
	cfg, ok := r.configs[id]
	if !ok {
		return errors.New("config not found")
	}
	cfg.AccessToken = accessToken
	cfg.RefreshToken = refreshToken
	cfg.TokenExpiry = expiry
	r.tokenWrites++
	return nil
}

type fakeRunRepo struct {
	runs      []*syncdomain.SyncRunLog
	finalized int
	audits    []*syncdomain.DeletionAuditEntry
	auditErr  error
}

func (r *fakeRunRepo) CreateRun(run *syncdomain.SyncRunLog) error {
	run.ID = fmt.Sprintf("run-%d", len(r.runs)+1)
	run.Status = syncdomain.RunStatusRunning
	run.StartedAt = time.Now()
	r.runs = append(r.runs, run)
	return nil
}

func (r *fakeRunRepo) FinalizeRun(run *syncdomain.SyncRunLog) error {
	r.finalized++
	now := time.Now()
	run.FinishedAt = &now
	return nil
}

func (r *fakeRunRepo) ListRuns(configID, userID string, limit int) ([]*syncdomain.SyncRunLog, error) {
	return r.runs, nil
}

func (r *fakeRunRepo) CreateAuditEntry(entry *syncdomain.DeletionAuditEntry) error {
	if r.auditErr != nil {
		return r.auditErr
	}
	r.audits = append(r.audits, entry)
	return nil
}

func (r *fakeRunRepo) ListAuditEntries(configID, userID string, limit int) ([]*syncdomain.DeletionAuditEntry, error) {
	return r.audits, nil
}

type fakeProcessedRepo struct {
	processed map[string]bool
	filterErr error
}

func newFakeProcessedRepo() *fakeProcessedRepo {
	return &fakeProcessedRepo{processed: make(map[string]bool)}
}

func (r *fakeProcessedRepo) key(userID, configID, messageID string) string {
	return userID + "|" + configID + "|" + messageID
}

func (r *fakeProcessedRepo) FilterNew(userID, configID string, messageIDs []string) ([]string, error) {
	if r.filterErr != nil {
		// Mirrors the real repo: degrade to all-new on error.
		return messageIDs, r.filterErr
	}
	var fresh []string
	for _, id := range messageIDs {
		if !r.processed[r.key(userID, configID, id)] {
			fresh = append(fresh, id)
		}
	}
	return fresh, nil
}

func (r *fakeProcessedRepo) MarkProcessed(userID, configID, messageID string) error {
	r.processed[r.key(userID, configID, messageID)] = true
	return nil
}

// fakeProvider is a scripted MailProvider. Messages and attachments are
// returned as configured; deletions succeed unless listed in failDeletes.
type fakeProvider struct {
	messages    []*syncdomain.CanonicalMessage
	attachments []*syncdomain.CanonicalAttachment

	// alwaysAuthFail makes every Search return an AuthError, counting calls.
	alwaysAuthFail bool
	searchCalls    int
	lastOpts       syncdomain.SearchOptions

	failDeletes map[string]bool
	deleted     []string
}

func (p *fakeProvider) Search(ctx context.Context, creds *syncdomain.Credentials, opts syncdomain.SearchOptions, pageToken string) (*syncdomain.SearchResult, error) {
	p.searchCalls++
	p.lastOpts = opts
	if p.alwaysAuthFail {
		return nil, &syncdomain.AuthError{Reason: "token expired"}
	}
	return &syncdomain.SearchResult{Messages: p.messages}, nil
}

func (p *fakeProvider) ExtractAttachments(ctx context.Context, creds *syncdomain.Credentials, messages []*syncdomain.CanonicalMessage) ([]*syncdomain.CanonicalAttachment, error) {
	wanted := make(map[string]bool, len(messages))
	for _, m := range messages {
		wanted[m.ID] = true
	}
	var out []*syncdomain.CanonicalAttachment
	for _, att := range p.attachments {
		if wanted[att.MessageID] {
			out = append(out, att)
		}
	}
	return out, nil
}

func (p *fakeProvider) DeleteMessage(ctx context.Context, creds *syncdomain.Credentials, messageID string) *syncdomain.DeleteResult {
	if p.failDeletes[messageID] {
		return &syncdomain.DeleteResult{MessageID: messageID, Error: "delete rejected"}
	}
	p.deleted = append(p.deleted, messageID)
	return &syncdomain.DeleteResult{MessageID: messageID, Success: true, Deleted: true}
}

type fakeRegistry struct {
	provider syncdomain.MailProvider
}

func (r *fakeRegistry) Get(provider syncdomain.Provider) (syncdomain.MailProvider, error) {
	return r.provider, nil
}

// fakeCredentialService serves static credentials and counts refreshes.
type fakeCredentialService struct {
	creds        *syncdomain.Credentials
	refreshCalls int
	refreshErr   error
}

func (s *fakeCredentialService) GetCredentials(ctx context.Context, configID, userID string) (*syncdomain.Credentials, error) {
	return s.creds, nil
}

func (s *fakeCredentialService) RefreshTokenForConfig(ctx context.Context, configID, userID string) (*syncdomain.Credentials, error) {
	s.refreshCalls++
	if s.refreshErr != nil {
		return nil, s.refreshErr
	}
	return s.creds, nil
}

func (s *fakeCredentialService) UpgradeScopeURL(configID, userID, state string) (string, error) {
	return "https://consent.example/" + configID, nil
}

func (s *fakeCredentialService) StoreCredentials(configID string, token *oauth2.Token) error {
	return nil
}

// fakeIngest treats each distinct payload as a report: first sight is
// processed, repeats are skipped, payloads containing "poison" fail.
type fakeIngest struct {
	seen map[string]bool
}

func newFakeIngest() *fakeIngest {
	return &fakeIngest{seen: make(map[string]bool)}
}

func (s *fakeIngest) IngestPayload(xml, userID string) (syncdomain.AttachmentOutcome, error) {
	if strings.Contains(xml, "poison") {
		return syncdomain.OutcomeFailed, errors.New("failed to parse report")
	}
	key := userID + "|" + xml
	if s.seen[key] {
		return syncdomain.OutcomeSkipped, nil
	}
	s.seen[key] = true
	return syncdomain.OutcomeProcessed, nil
}

func (s *fakeIngest) UploadReport(xml, userID string) (string, error) {
	outcome, err := s.IngestPayload(xml, userID)
	if err != nil {
		return "", err
	}
	if outcome == syncdomain.OutcomeSkipped {
		return "", errors.New("report already exists")
	}
	return "report-id", nil
}

// fakeRefresher scripts the provider token endpoint.
type fakeRefresher struct {
	token        *oauth2.Token
	err          error
	refreshCalls int
	lastRefresh  string
}

func (r *fakeRefresher) RefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	r.refreshCalls++
	r.lastRefresh = refreshToken
	if r.err != nil {
		return nil, r.err
	}
	return r.token, nil
}

func (r *fakeRefresher) AuthCodeURL(state string, elevated bool) string {
	if elevated {
		return "https://consent.example/elevated?state=" + state
	}
	return "https://consent.example/?state=" + state
}

func (r *fakeRefresher) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return r.token, r.err
}
