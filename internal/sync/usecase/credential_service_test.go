package usecase

import (
	"context"
	"testing"
	"time"

	syncdomain "dmarcview-backend/internal/sync/domain"
	"dmarcview-backend/pkg/config"
	"dmarcview-backend/pkg/utils/crypto"

	"golang.org/x/oauth2"
)

const testKey = "unit-test-encryption-key"

func encrypt(t *testing.T, plaintext string) string {
	t.Helper()
	out, err := crypto.Encrypt(plaintext, testKey)
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func oauthConfig(t *testing.T, expiry time.Time) *syncdomain.SyncConfig {
	exp := expiry
	return &syncdomain.SyncConfig{
		ID:           "cfg-1",
		UserID:       "user-1",
		Provider:     syncdomain.ProviderGmail,
		EmailAddress: "dmarc@example.org",
		AccessToken:  encrypt(t, "access-token"),
		RefreshToken: encrypt(t, "refresh-token"),
		TokenExpiry:  &exp,
	}
}

func newCredentialService(repo *fakeConfigRepo, refresher TokenRefresher) CredentialService {
	refreshers := map[syncdomain.Provider]TokenRefresher{}
	if refresher != nil {
		refreshers[syncdomain.ProviderGmail] = refresher
	}
	return NewCredentialService(repo, refreshers, &config.Config{EncryptionKey: testKey})
}

func TestGetCredentialsDecryptsTokens(t *testing.T) {
	cfg := oauthConfig(t, time.Now().Add(time.Hour))
	repo := newFakeConfigRepo(cfg)
	refresher := &fakeRefresher{}
	svc := newCredentialService(repo, refresher)

	creds, err := svc.GetCredentials(context.Background(), "cfg-1", "user-1")
	if err != nil {
		t.Fatalf("GetCredentials: %v", err)
	}
	if creds == nil {
		t.Fatal("expected credentials")
	}
	if creds.AccessToken != "access-token" || creds.RefreshToken != "refresh-token" {
		t.Fatalf("tokens were not decrypted: %+v", creds)
	}
	if refresher.refreshCalls != 0 {
		t.Fatal("a token outside the expiry window must not be refreshed")
	}
}

func TestGetCredentialsCorruptedAccessTokenDeletesConfig(t *testing.T) {
	cfg := oauthConfig(t, time.Now().Add(time.Hour))
	cfg.AccessToken = "garbage-not-ciphertext"
	repo := newFakeConfigRepo(cfg)
	svc := newCredentialService(repo, &fakeRefresher{})

	creds, err := svc.GetCredentials(context.Background(), "cfg-1", "user-1")
	if err != nil {
		t.Fatalf("GetCredentials: %v", err)
	}
	if creds != nil {
		t.Fatal("corrupted access token must surface as re-auth required")
	}
	if len(repo.deleted) != 1 || repo.deleted[0] != "cfg-1" {
		t.Fatalf("config should be deleted, got deletions %v", repo.deleted)
	}
}

func TestGetCredentialsRefreshesInsideExpiryWindow(t *testing.T) {
	// Expires in one minute, inside the five-minute refresh window.
	cfg := oauthConfig(t, time.Now().Add(time.Minute))
	repo := newFakeConfigRepo(cfg)
	refresher := &fakeRefresher{token: &oauth2.Token{
		AccessToken: "fresh-access",
		Expiry:      time.Now().Add(time.Hour),
	}}
	svc := newCredentialService(repo, refresher)

	creds, err := svc.GetCredentials(context.Background(), "cfg-1", "user-1")
	if err != nil {
		t.Fatalf("GetCredentials: %v", err)
	}
	if refresher.refreshCalls != 1 {
		t.Fatalf("refreshCalls=%d, want 1", refresher.refreshCalls)
	}
	if creds.AccessToken != "fresh-access" {
		t.Fatalf("got access token %q, want the refreshed one", creds.AccessToken)
	}
	// Provider omitted the refresh token: the original must survive.
	if creds.RefreshToken != "refresh-token" {
		t.Fatalf("original refresh token was lost: %q", creds.RefreshToken)
	}
	if repo.tokenWrites != 1 {
		t.Fatalf("tokenWrites=%d, want 1", repo.tokenWrites)
	}

	// The persisted columns must be ciphertext, not the raw tokens.
	stored := repo.configs["cfg-1"]
	if stored.AccessToken == "fresh-access" {
		t.Fatal("access token was persisted unencrypted")
	}
	if decrypted, err := crypto.Decrypt(stored.AccessToken, testKey); err != nil || decrypted != "fresh-access" {
		t.Fatalf("stored access token does not decrypt to the fresh one: %v", err)
	}
}

func TestGetCredentialsExpiredWithoutRefreshTokenRequiresReauth(t *testing.T) {
	cfg := oauthConfig(t, time.Now().Add(-time.Minute))
	cfg.RefreshToken = ""
	repo := newFakeConfigRepo(cfg)
	svc := newCredentialService(repo, &fakeRefresher{})

	creds, err := svc.GetCredentials(context.Background(), "cfg-1", "user-1")
	if err != nil {
		t.Fatalf("GetCredentials: %v", err)
	}
	if creds != nil {
		t.Fatal("expired token without refresh token must require re-auth")
	}
}

func TestGetCredentialsImapReturnsPassword(t *testing.T) {
	cfg := &syncdomain.SyncConfig{
		ID:           "cfg-imap",
		UserID:       "user-1",
		Provider:     syncdomain.ProviderIMAP,
		EmailAddress: "dmarc@example.org",
		AccessToken:  encrypt(t, "mailbox-password"),
		ImapServer:   "mail.example.org",
		ImapPort:     993,
	}
	repo := newFakeConfigRepo(cfg)
	svc := newCredentialService(repo, nil)

	creds, err := svc.GetCredentials(context.Background(), "cfg-imap", "user-1")
	if err != nil {
		t.Fatalf("GetCredentials: %v", err)
	}
	if creds == nil || creds.Password != "mailbox-password" {
		t.Fatalf("imap credentials mismatch: %+v", creds)
	}
	if creds.ImapServer != "mail.example.org" || creds.ImapPort != 993 {
		t.Fatalf("imap connection details missing: %+v", creds)
	}
}

func TestRefreshTokenForConfigForcesRefresh(t *testing.T) {
	// Token still valid for an hour; the forced path refreshes anyway.
	cfg := oauthConfig(t, time.Now().Add(time.Hour))
	repo := newFakeConfigRepo(cfg)
	refresher := &fakeRefresher{token: &oauth2.Token{
		AccessToken:  "forced-access",
		RefreshToken: "rotated-refresh",
		Expiry:       time.Now().Add(time.Hour),
	}}
	svc := newCredentialService(repo, refresher)

	creds, err := svc.RefreshTokenForConfig(context.Background(), "cfg-1", "user-1")
	if err != nil {
		t.Fatalf("RefreshTokenForConfig: %v", err)
	}
	if refresher.refreshCalls != 1 || refresher.lastRefresh != "refresh-token" {
		t.Fatalf("refresher saw %d calls with token %q", refresher.refreshCalls, refresher.lastRefresh)
	}
	if creds.AccessToken != "forced-access" || creds.RefreshToken != "rotated-refresh" {
		t.Fatalf("rotated tokens not returned: %+v", creds)
	}
}

func TestRefreshTokenForConfigFailureIsAuthError(t *testing.T) {
	cfg := oauthConfig(t, time.Now().Add(time.Hour))
	repo := newFakeConfigRepo(cfg)
	refresher := &fakeRefresher{err: &syncdomain.AuthError{Reason: "invalid_grant"}}
	svc := newCredentialService(repo, refresher)

	_, err := svc.RefreshTokenForConfig(context.Background(), "cfg-1", "user-1")
	if err == nil || !syncdomain.IsAuthError(err) {
		t.Fatalf("got %v, want an auth error", err)
	}
}
