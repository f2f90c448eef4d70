package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"classroom-sync-service/internal/config"
	"classroom-sync-service/internal/logger"
	syncerrors "classroom-sync-service/pkg/errors"
)

// Store manages the one persisted OAuth credential for this service.
// Callers get either a usable token or ErrReauthRequired; an expired
// token is never handed out.
type Store struct {
	oauthCfg  *oauth2.Config
	tokenFile string
	mu        sync.Mutex
}

// persistedToken is the on-disk shape. oauth2.Token does not carry granted
// scopes, so they are stored alongside it.
type persistedToken struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Expiry       time.Time `json:"expiry"`
	Scopes       []string  `json:"scopes"`
}

func NewStore(cfg config.OAuthConfig) *Store {
	return &Store{
		oauthCfg: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
			Scopes: cfg.Scopes,
		},
		tokenFile: cfg.TokenFile,
	}
}

// Credential returns a usable token, refreshing and re-persisting it first
// if it has expired. ErrReauthRequired means the interactive grant has to
// be repeated; the caller must not fetch anything in that case.
func (s *Store) Credential(ctx context.Context) (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	saved, err := s.load()
	if err != nil {
		return nil, err
	}
	if saved == nil {
		return nil, syncerrors.ErrReauthRequired
	}

	if !coversScopes(saved.Scopes, s.oauthCfg.Scopes) {
		logger.Log.Warn("Persisted credential is missing required scopes",
			zap.Strings("granted", saved.Scopes),
			zap.Strings("required", s.oauthCfg.Scopes),
		)
		return nil, syncerrors.ErrReauthRequired
	}

	token := &oauth2.Token{
		AccessToken:  saved.AccessToken,
		TokenType:    saved.TokenType,
		RefreshToken: saved.RefreshToken,
		Expiry:       saved.Expiry,
	}

	if token.Valid() {
		return token, nil
	}

	if token.RefreshToken == "" {
		return nil, syncerrors.ErrReauthRequired
	}

	logger.Log.Info("Access token expired, refreshing")

	refreshed, err := s.oauthCfg.TokenSource(ctx, token).Token()
	if err != nil {
		logger.Log.Warn("Token refresh failed", zap.Error(err))
		return nil, fmt.Errorf("%w: refresh failed: %v", syncerrors.ErrReauthRequired, err)
	}

	// The provider may omit the refresh token on refresh responses.
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = token.RefreshToken
	}

	if err := s.persist(refreshed, saved.Scopes); err != nil {
		return nil, fmt.Errorf("failed to persist refreshed token: %w", err)
	}

	return refreshed, nil
}

// Save stores a freshly granted token. Used by the interactive grant path.
func (s *Store) Save(token *oauth2.Token, scopes []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persist(token, scopes)
}

// AuthCodeURL returns the provider URL a user visits to grant access.
func (s *Store) AuthCodeURL(state string) string {
	return s.oauthCfg.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange trades an authorization code for a token and persists it.
func (s *Store) Exchange(ctx context.Context, code string) error {
	token, err := s.oauthCfg.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("code exchange failed: %w", err)
	}
	return s.Save(token, s.oauthCfg.Scopes)
}

func (s *Store) load() (*persistedToken, error) {
	data, err := os.ReadFile(s.tokenFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var saved persistedToken
	if err := json.Unmarshal(data, &saved); err != nil {
		return nil, fmt.Errorf("failed to decode token file: %w", err)
	}
	return &saved, nil
}

// persist writes the token with write-to-temp-then-rename so a crash never
// leaves a truncated credential behind.
func (s *Store) persist(token *oauth2.Token, scopes []string) error {
	data, err := json.Marshal(persistedToken{
		AccessToken:  token.AccessToken,
		TokenType:    token.TokenType,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
		Scopes:       scopes,
	})
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.tokenFile)
	tmp, err := os.CreateTemp(dir, ".token-*")
	if err != nil {
		return fmt.Errorf("failed to create temp token file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), s.tokenFile)
}

func coversScopes(granted, required []string) bool {
	have := make(map[string]bool, len(granted))
	for _, s := range granted {
		have[s] = true
	}
	for _, s := range required {
		if !have[s] {
			return false
		}
	}
	return true
}
