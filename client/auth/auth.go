// Package auth owns the current credential record. It is the only
// component that talks to the /user/* endpoints and the only writer of
// the credential store.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"chatclient/client/model"
	"chatclient/client/store"
)

// ErrNoCredential is returned by Refresh when there is no stored
// credential to exchange.
var ErrNoCredential = errors.New("auth: no credential")

// Error is an API rejection. Message is the server's response body
// verbatim and is safe to show to the user.
type Error struct {
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

type authRequest struct {
	Nickname string `json:"nickname"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	Nickname     string `json:"nickname"`
	UserID       string `json:"user_id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// ManagerConfig holds configuration for creating a Manager.
type ManagerConfig struct {
	// BaseURL is the base URL of the chat API (e.g. "http://localhost:8080").
	BaseURL string
	// Store persists the credential record between runs.
	Store *store.FileStore
	// HTTPClient is used for all requests. If nil, http.DefaultClient is used.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Manager holds the current credential record and exchanges the
// refresh token for a new one when the API reports the access token
// invalid. Not safe for concurrent use; all calls come from the UI
// goroutine.
type Manager struct {
	baseURL    string
	store      *store.FileStore
	httpClient *http.Client
	logger     *slog.Logger

	current *model.Credential
	loaded  bool
}

func NewManager(config ManagerConfig) (*Manager, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("auth: BaseURL is required")
	}
	if config.Store == nil {
		return nil, fmt.Errorf("auth: Store is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		baseURL:    config.BaseURL,
		store:      config.Store,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Current returns the credential record, reading the store on first
// use. Returns nil when unauthenticated. A store read failure is
// logged and treated as absent.
func (m *Manager) Current() *model.Credential {
	if m.loaded {
		return m.current
	}
	m.loaded = true

	cred, err := m.store.Load()
	if err != nil {
		m.logger.Error("failed to load credential record", slog.String("error", err.Error()))
		return nil
	}
	m.current = cred
	return m.current
}

// Login exchanges nickname and password for a credential record. On
// success the record is persisted and becomes current.
func (m *Manager) Login(ctx context.Context, nickname, password string) (*model.Credential, error) {
	var tokens tokenResponse
	err := m.postJSON(ctx, "/user/login", authRequest{Nickname: nickname, Password: password}, &tokens)
	if err != nil {
		return nil, err
	}

	cred := &model.Credential{
		Nickname:     tokens.Nickname,
		ID:           tokens.UserID,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	}
	m.install(cred)

	m.logger.Info("logged in", slog.String("nickname", cred.Nickname))
	return cred, nil
}

// Register creates an account. The caller must log in separately.
func (m *Manager) Register(ctx context.Context, nickname, password string) error {
	return m.postJSON(ctx, "/user/register", authRequest{Nickname: nickname, Password: password}, nil)
}

// Refresh exchanges the current refresh token for a new credential
// record and persists it. On failure the caller must treat the session
// as unauthenticated and return to login.
func (m *Manager) Refresh(ctx context.Context) (*model.Credential, error) {
	current := m.Current()
	if current == nil {
		return nil, ErrNoCredential
	}

	var tokens tokenResponse
	err := m.postJSON(ctx, "/user/refresh", refreshRequest{RefreshToken: current.RefreshToken}, &tokens)
	if err != nil {
		return nil, err
	}

	cred := &model.Credential{
		Nickname:     tokens.Nickname,
		ID:           tokens.UserID,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	}
	m.install(cred)

	m.logger.Info("refreshed access token", slog.String("nickname", cred.Nickname))
	return cred, nil
}

// Logout clears the cached record and the store.
func (m *Manager) Logout() error {
	m.current = nil
	m.loaded = true
	return m.store.Clear()
}

func (m *Manager) install(cred *model.Credential) {
	m.current = cred
	m.loaded = true
	if err := m.store.Save(cred); err != nil {
		// The session still works with the in-memory record; only
		// persistence across restarts is lost.
		m.logger.Error("failed to persist credential record", slog.String("error", err.Error()))
	}
}

// postJSON posts body to path. On 2xx the response is decoded into out
// (when non-nil). On any other status the server's {message} body is
// returned as *Error.
func (m *Manager) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("auth: failed to encode request body: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("auth: failed to create request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := m.httpClient.Do(request)
	if err != nil {
		m.logger.Error("auth request failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return fmt.Errorf("auth: request to %s failed: %w", path, err)
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(response.Body)
	if err != nil {
		return fmt.Errorf("auth: failed to read response body: %w", err)
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		var apiErr Error
		if jsonErr := json.Unmarshal(responseBody, &apiErr); jsonErr != nil || apiErr.Message == "" {
			apiErr.Message = fmt.Sprintf("unexpected %d response from %s", response.StatusCode, path)
		}
		return &apiErr
	}

	if out != nil {
		if err := json.Unmarshal(responseBody, out); err != nil {
			return fmt.Errorf("auth: failed to parse response from %s: %w", path, err)
		}
	}
	return nil
}
