package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	syncdomain "dmarcview-backend/internal/sync/domain"
	"dmarcview-backend/internal/sync/repository"
	"dmarcview-backend/pkg/config"
	"dmarcview-backend/pkg/utils/crypto"

	"golang.org/x/oauth2"
)

// refreshWindow triggers a refresh slightly before the access token expires.
const refreshWindow = 5 * time.Minute

var ErrConfigNotFound = errors.New("sync config not found")

// TokenRefresher exchanges a refresh token for fresh OAuth material at the
// provider's token endpoint. Implemented by pkg/gmail and pkg/graph.
type TokenRefresher interface {
	RefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error)
	// AuthCodeURL builds the consent URL; elevated requests the modify
	// scope needed for mailbox deletion.
	AuthCodeURL(state string, elevated bool) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
}

// CredentialService owns the token lifecycle for sync configs. It is the
// only writer of the encrypted token columns.
type CredentialService interface {
	// GetCredentials returns decrypted credentials, refreshing the access
	// token when it is within the expiry window. A nil result with nil
	// error means re-authentication is required.
	GetCredentials(ctx context.Context, configID, userID string) (*syncdomain.Credentials, error)
	// RefreshTokenForConfig forces a refresh regardless of expiry. Used by
	// the orchestrator's single auth retry.
	RefreshTokenForConfig(ctx context.Context, configID, userID string) (*syncdomain.Credentials, error)
	// UpgradeScopeURL re-runs the OAuth consent flow asking for the modify
	// scope; the callback overwrites stored credentials.
	UpgradeScopeURL(configID, userID, state string) (string, error)
	// StoreCredentials encrypts and persists a freshly exchanged token.
	StoreCredentials(configID string, token *oauth2.Token) error
}

type credentialService struct {
	configRepo repository.SyncConfigRepository
	refreshers map[syncdomain.Provider]TokenRefresher
	cfg        *config.Config
}

func NewCredentialService(configRepo repository.SyncConfigRepository, refreshers map[syncdomain.Provider]TokenRefresher, cfg *config.Config) CredentialService {
	return &credentialService{
		configRepo: configRepo,
		refreshers: refreshers,
		cfg:        cfg,
	}
}

func (s *credentialService) GetCredentials(ctx context.Context, configID, userID string) (*syncdomain.Credentials, error) {
	cfg, err := s.configRepo.FindByID(configID, userID)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, ErrConfigNotFound
	}

	accessToken, err := crypto.Decrypt(cfg.AccessToken, s.cfg.EncryptionKey)
	if err != nil {
		// Irrecoverable: without a readable access token the config can
		// only produce auth failures later. Delete it so the user is
		// forced to reconnect.
		log.Printf("[Credentials] Access token for config %s is corrupted, removing config", configID)
		if delErr := s.configRepo.Delete(configID, userID); delErr != nil {
			log.Printf("[Credentials] Failed to delete corrupted config %s: %v", configID, delErr)
		}
		return nil, nil
	}

	if cfg.Provider == syncdomain.ProviderIMAP {
		// IMAP configs store the mailbox password in the access token
		// column; there is nothing to refresh.
		return &syncdomain.Credentials{
			Provider:     cfg.Provider,
			EmailAddress: cfg.EmailAddress,
			Password:     accessToken,
			ImapServer:   cfg.ImapServer,
			ImapPort:     cfg.ImapPort,
		}, nil
	}

	refreshToken := ""
	if cfg.RefreshToken != "" {
		refreshToken, err = crypto.Decrypt(cfg.RefreshToken, s.cfg.EncryptionKey)
		if err != nil {
			// Only the refresh token is unreadable: keep going with the
			// access token and treat the config as refresh-less.
			log.Printf("[Credentials] Refresh token for config %s is corrupted, proceeding without it", configID)
			refreshToken = ""
		}
	}

	creds := &syncdomain.Credentials{
		Provider:     cfg.Provider,
		EmailAddress: cfg.EmailAddress,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}
	if cfg.TokenExpiry != nil {
		creds.Expiry = *cfg.TokenExpiry
	}

	if cfg.TokenExpiry != nil && time.Now().After(cfg.TokenExpiry.Add(-refreshWindow)) {
		if refreshToken == "" {
			return nil, nil
		}
		return s.refresh(ctx, cfg, creds)
	}

	return creds, nil
}

func (s *credentialService) RefreshTokenForConfig(ctx context.Context, configID, userID string) (*syncdomain.Credentials, error) {
	cfg, err := s.configRepo.FindByID(configID, userID)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, ErrConfigNotFound
	}
	if cfg.Provider == syncdomain.ProviderIMAP {
		// Password credentials don't expire; nothing to refresh.
		return s.GetCredentials(ctx, configID, userID)
	}
	if cfg.RefreshToken == "" {
		return nil, nil
	}

	refreshToken, err := crypto.Decrypt(cfg.RefreshToken, s.cfg.EncryptionKey)
	if err != nil {
		return nil, nil
	}

	creds := &syncdomain.Credentials{
		Provider:     cfg.Provider,
		EmailAddress: cfg.EmailAddress,
		RefreshToken: refreshToken,
	}
	return s.refresh(ctx, cfg, creds)
}

// refresh calls the provider token endpoint and persists the result. The
// original refresh token is retained when the provider response omits one.
func (s *credentialService) refresh(ctx context.Context, cfg *syncdomain.SyncConfig, creds *syncdomain.Credentials) (*syncdomain.Credentials, error) {
	refresher, ok := s.refreshers[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("no token refresher for provider %s", cfg.Provider)
	}

	token, err := refresher.RefreshToken(ctx, creds.RefreshToken)
	if err != nil {
		return nil, &syncdomain.AuthError{Reason: "token refresh failed", Err: err}
	}

	newRefresh := token.RefreshToken
	if newRefresh == "" {
		newRefresh = creds.RefreshToken
	}

	if err := s.persistTokens(cfg.ID, token.AccessToken, newRefresh, token.Expiry); err != nil {
		return nil, err
	}

	creds.AccessToken = token.AccessToken
	creds.RefreshToken = newRefresh
	creds.Expiry = token.Expiry
	return creds, nil
}

func (s *credentialService) persistTokens(configID, accessToken, refreshToken string, expiry time.Time) error {
	encAccess, err := crypto.Encrypt(accessToken, s.cfg.EncryptionKey)
	if err != nil {
		return err
	}
	encRefresh := ""
	if refreshToken != "" {
		encRefresh, err = crypto.Encrypt(refreshToken, s.cfg.EncryptionKey)
		if err != nil {
			return err
		}
	}

	var exp *time.Time
	if !expiry.IsZero() {
		exp = &expiry
	}
	return s.configRepo.UpdateTokens(configID, encAccess, encRefresh, exp)
}

func (s *credentialService) UpgradeScopeURL(configID, userID, state string) (string, error) {
	cfg, err := s.configRepo.FindByID(configID, userID)
	if err != nil {
		return "", err
	}
	if cfg == nil {
		return "", ErrConfigNotFound
	}
	refresher, ok := s.refreshers[cfg.Provider]
	if !ok {
		return "", fmt.Errorf("provider %s does not support scope upgrade", cfg.Provider)
	}
	return refresher.AuthCodeURL(state, true), nil
}

func (s *credentialService) StoreCredentials(configID string, token *oauth2.Token) error {
	return s.persistTokens(configID, token.AccessToken, token.RefreshToken, token.Expiry)
}
