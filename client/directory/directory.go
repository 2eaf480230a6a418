// Package directory is the client for the room listing and creation
// API. Authorization failures are recovered locally exactly once by
// refreshing through the auth manager; a second failure always
// surfaces so the caller can return to login.
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"chatclient/client/auth"
	"chatclient/client/model"
)

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// BaseURL is the base URL of the chat API.
	BaseURL string
	// Auth supplies the bearer token and the refresh path.
	Auth *auth.Manager
	// HTTPClient is used for all requests. If nil, http.DefaultClient is used.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

type Client struct {
	baseURL    string
	auth       *auth.Manager
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(config ClientConfig) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("directory: BaseURL is required")
	}
	if config.Auth == nil {
		return nil, fmt.Errorf("directory: Auth is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    config.BaseURL,
		auth:       config.Auth,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

type createRoomRequest struct {
	Name string `json:"name"`
}

// Rooms lists the available rooms. On 401 it refreshes the credential
// and retries exactly once. Every other failure is logged and degrades
// to an empty list, so callers cannot distinguish "no rooms" from
// "fetch failed".
func (c *Client) Rooms(ctx context.Context) ([]model.Room, error) {
	var rooms []model.Room
	status, err := c.doAuthorized(ctx, http.MethodGet, "/chat/rooms", nil, &rooms)
	if err != nil {
		c.logger.Error("failed to list rooms", slog.String("error", err.Error()))
		return nil, nil
	}
	if status == http.StatusUnauthorized {
		if err := c.refreshAndRetry(ctx, http.MethodGet, "/chat/rooms", nil, &rooms); err != nil {
			return nil, err
		}
	}
	return rooms, nil
}

// CreateRoom creates a room with the given display name, with the same
// single refresh-and-retry on 401 as Rooms.
func (c *Client) CreateRoom(ctx context.Context, name string) (*model.Room, error) {
	body := createRoomRequest{Name: name}

	var room model.Room
	status, err := c.doAuthorized(ctx, http.MethodPost, "/chat/rooms", body, &room)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		if err := c.refreshAndRetry(ctx, http.MethodPost, "/chat/rooms", body, &room); err != nil {
			return nil, err
		}
	}
	return &room, nil
}

// Participants lists the current members of a room. A plain authorized
// fetch: unlike Rooms and CreateRoom there is no refresh-and-retry on
// 401. The asymmetry is deliberate and matches the per-operation
// behavior of the original client.
func (c *Client) Participants(ctx context.Context, roomID string) ([]model.Participant, error) {
	var participants []model.Participant
	status, err := c.doAuthorized(ctx, http.MethodGet, "/chat/rooms/"+roomID+"/clients", nil, &participants)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		return nil, &auth.Error{Message: "unauthorized"}
	}
	return participants, nil
}

// refreshAndRetry runs the single recovery pass: refresh the
// credential, reissue the request once, and surface any remaining
// authorization failure as an *auth.Error.
func (c *Client) refreshAndRetry(ctx context.Context, method, path string, body, out any) error {
	if _, err := c.auth.Refresh(ctx); err != nil {
		return err
	}

	status, err := c.doAuthorized(ctx, method, path, body, out)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized {
		return &auth.Error{Message: "unauthorized after token refresh"}
	}
	return nil
}

// doAuthorized performs a bearer-authorized request. A 401 is not an
// error: it is returned as the status so callers can run the refresh
// path. Any other non-2xx status is an error.
func (c *Client) doAuthorized(ctx context.Context, method, path string, body, out any) (int, error) {
	cred := c.auth.Current()
	if cred == nil {
		return 0, auth.ErrNoCredential
	}

	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("directory: failed to encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return 0, fmt.Errorf("directory: failed to create request: %w", err)
	}
	request.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return 0, fmt.Errorf("directory: request to %s %s failed: %w", method, path, err)
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(response.Body)
	if err != nil {
		return 0, fmt.Errorf("directory: failed to read response body: %w", err)
	}

	if response.StatusCode == http.StatusUnauthorized {
		return http.StatusUnauthorized, nil
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return response.StatusCode, fmt.Errorf("directory: unexpected %d response from %s %s: %s",
			response.StatusCode, method, path, string(responseBody))
	}

	if out != nil {
		if err := json.Unmarshal(responseBody, out); err != nil {
			return response.StatusCode, fmt.Errorf("directory: failed to parse response from %s: %w", path, err)
		}
	}
	return response.StatusCode, nil
}
