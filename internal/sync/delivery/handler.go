package delivery

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	syncdomain "dmarcview-backend/internal/sync/domain"
	syncdto "dmarcview-backend/internal/sync/dto"
	"dmarcview-backend/internal/sync/repository"
	"dmarcview-backend/internal/sync/usecase"
	"dmarcview-backend/pkg/config"
	"dmarcview-backend/pkg/utils/crypto"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type SyncHandler struct {
	configRepo  repository.SyncConfigRepository
	runRepo     repository.SyncRunRepository
	syncUsecase usecase.SyncUsecase
	credentials usecase.CredentialService
	refreshers  map[syncdomain.Provider]usecase.TokenRefresher
	cfg         *config.Config
}

func NewSyncHandler(
	configRepo repository.SyncConfigRepository,
	runRepo repository.SyncRunRepository,
	syncUsecase usecase.SyncUsecase,
	credentials usecase.CredentialService,
	refreshers map[syncdomain.Provider]usecase.TokenRefresher,
	cfg *config.Config,
) *SyncHandler {
	return &SyncHandler{
		configRepo:  configRepo,
		runRepo:     runRepo,
		syncUsecase: syncUsecase,
		credentials: credentials,
		refreshers:  refreshers,
		cfg:         cfg,
	}
}

func (h *SyncHandler) ListConfigs(c *gin.Context) {
	userID := c.GetString("userID")
	configs, err := h.configRepo.FindByUser(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, syncdto.ConfigsResponse{Configs: configs})
}

func (h *SyncHandler) GetConfig(c *gin.Context) {
	userID := c.GetString("userID")
	cfg, err := h.configRepo.FindByID(c.Param("id"), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if cfg == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "sync config not found"})
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (h *SyncHandler) UpdateConfig(c *gin.Context) {
	userID := c.GetString("userID")

	var req syncdto.UpdateConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg, err := h.configRepo.FindByID(c.Param("id"), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if cfg == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "sync config not found"})
		return
	}

	if req.Active != nil {
		cfg.Active = *req.Active
	}
	if req.DeleteAfterImport != nil {
		cfg.DeleteAfterImport = *req.DeleteAfterImport
	}
	if req.SyncUnreadOnly != nil {
		cfg.SyncUnreadOnly = *req.SyncUnreadOnly
	}

	if err := h.configRepo.Update(cfg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (h *SyncHandler) DeleteConfig(c *gin.Context) {
	userID := c.GetString("userID")
	if err := h.configRepo.Delete(c.Param("id"), userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "sync config deleted"})
}

// CreateImapConfig connects a plain IMAP mailbox. The password is encrypted
// into the token column; there is no OAuth round trip.
func (h *SyncHandler) CreateImapConfig(c *gin.Context) {
	userID := c.GetString("userID")

	var req syncdto.CreateImapConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	encPassword, err := crypto.Encrypt(req.Password, h.cfg.EncryptionKey)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encrypt credentials"})
		return
	}

	port := req.ImapPort
	if port == 0 {
		port = 993
	}

	cfg := &syncdomain.SyncConfig{
		UserID:            userID,
		Provider:          syncdomain.ProviderIMAP,
		EmailAddress:      req.EmailAddress,
		Active:            true,
		DeleteAfterImport: req.DeleteAfterImport,
		SyncUnreadOnly:    req.SyncUnreadOnly,
		AccessToken:       encPassword,
		ImapServer:        req.ImapServer,
		ImapPort:          port,
	}
	if err := h.configRepo.Create(cfg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, cfg)
}

// TriggerSync runs the pipeline synchronously and returns the summary.
func (h *SyncHandler) TriggerSync(c *gin.Context) {
	userID := c.GetString("userID")
	configID := c.Param("id")

	summary, err := h.syncUsecase.SyncEmails(c.Request.Context(), configID, userID, nil)
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrSyncInProgress):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, usecase.ErrConfigNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		default:
			// The run log already captured the detail; the summary carries
			// the user-facing message.
			if summary != nil {
				c.JSON(http.StatusOK, summary)
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *SyncHandler) ListRuns(c *gin.Context) {
	userID := c.GetString("userID")
	limit := parseLimit(c, 20)

	runs, err := h.runRepo.ListRuns(c.Param("id"), userID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, syncdto.RunsResponse{Runs: runs})
}

func (h *SyncHandler) ListAuditEntries(c *gin.Context) {
	userID := c.GetString("userID")
	limit := parseLimit(c, 50)

	entries, err := h.runRepo.ListAuditEntries(c.Param("id"), userID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, syncdto.AuditEntriesResponse{Entries: entries})
}

// Connect returns the provider consent URL for a new mailbox connection.
func (h *SyncHandler) Connect(c *gin.Context) {
	userID := c.GetString("userID")
	provider := syncdomain.Provider(c.Param("provider"))

	refresher, ok := h.refreshers[provider]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unsupported provider: %s", provider)})
		return
	}

	elevated := c.Query("elevated") == "true"
	state, err := encodeState(&syncdto.OAuthState{
		UserID:   userID,
		Provider: provider,
		Elevated: elevated,
		Nonce:    uuid.New().String(),
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, syncdto.ConnectResponse{URL: refresher.AuthCodeURL(state, elevated)})
}

// UpgradeScope returns a consent URL requesting the mailbox-modify scope for
// an existing config. The callback overwrites the stored credentials.
func (h *SyncHandler) UpgradeScope(c *gin.Context) {
	userID := c.GetString("userID")
	configID := c.Param("id")

	cfg, err := h.configRepo.FindByID(configID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if cfg == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "sync config not found"})
		return
	}

	state, err := encodeState(&syncdto.OAuthState{
		UserID:   userID,
		ConfigID: configID,
		Provider: cfg.Provider,
		Elevated: true,
		Nonce:    uuid.New().String(),
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	url, err := h.credentials.UpgradeScopeURL(configID, userID, state)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, syncdto.ConnectResponse{URL: url})
}

// Callback completes the OAuth round trip: exchange the code, resolve the
// mailbox address, store encrypted tokens on a new or existing config.
func (h *SyncHandler) Callback(c *gin.Context) {
	code := c.Query("code")
	rawState := c.Query("state")
	if code == "" || rawState == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing code or state"})
		return
	}

	state, err := decodeState(rawState)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid state"})
		return
	}

	refresher, ok := h.refreshers[state.Provider]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unsupported provider: %s", state.Provider)})
		return
	}

	token, err := refresher.Exchange(c.Request.Context(), code)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	if state.ConfigID != "" {
		// Scope upgrade on an existing config.
		if err := h.credentials.StoreCredentials(state.ConfigID, token); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "mailbox permissions updated"})
		return
	}

	email, err := fetchMailboxAddress(c.Request.Context(), state.Provider, token.AccessToken)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	// Reconnecting a known mailbox refreshes its tokens in place.
	existing, err := h.configRepo.FindByEmailAndProvider(email, state.Provider)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if existing != nil && existing.UserID == state.UserID {
		if err := h.credentials.StoreCredentials(existing.ID, token); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, existing)
		return
	}

	cfg := &syncdomain.SyncConfig{
		UserID:            state.UserID,
		Provider:          state.Provider,
		EmailAddress:      email,
		Active:            true,
		DeleteAfterImport: state.Elevated,
	}
	if err := h.configRepo.Create(cfg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := h.credentials.StoreCredentials(cfg.ID, token); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, cfg)
}

func parseLimit(c *gin.Context, fallback int) int {
	limit := fallback
	if limitStr := c.Query("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	return limit
}

func encodeState(state *syncdto.OAuthState) (string, error) {
	b, err := json.Marshal(state)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func decodeState(raw string) (*syncdto.OAuthState, error) {
	b, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return nil, err
	}
	var state syncdto.OAuthState
	if err := json.Unmarshal(b, &state); err != nil {
		return nil, err
	}
	if state.UserID == "" || state.Provider == "" {
		return nil, errors.New("incomplete state")
	}
	return &state, nil
}

// fetchMailboxAddress resolves the authenticated account's email address
// from the provider's profile endpoint.
func fetchMailboxAddress(ctx context.Context, provider syncdomain.Provider, accessToken string) (string, error) {
	var profileURL string
	switch provider {
	case syncdomain.ProviderGmail:
		profileURL = "https://www.googleapis.com/oauth2/v2/userinfo"
	case syncdomain.ProviderOutlook:
		profileURL = "https://graph.microsoft.com/v1.0/me"
	default:
		return "", fmt.Errorf("no profile endpoint for provider %s", provider)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, profileURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("profile lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("profile lookup returned %d: %s", resp.StatusCode, string(body))
	}

	var profile struct {
		Email             string `json:"email"`
		Mail              string `json:"mail"`
		UserPrincipalName string `json:"userPrincipalName"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return "", err
	}

	switch {
	case profile.Email != "":
		return profile.Email, nil
	case profile.Mail != "":
		return profile.Mail, nil
	case profile.UserPrincipalName != "":
		return profile.UserPrincipalName, nil
	}
	return "", errors.New("profile response carried no email address")
}
