// Package store persists the user credential record between runs. The
// record is a single JSON blob under a fixed name; absence means
// unauthenticated.
package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"chatclient/client/model"
)

const fileName = "user_info.json"

type FileStore struct {
	path   string
	logger *slog.Logger
}

// New creates a store writing to dir. An empty dir falls back to the
// user config directory.
func New(dir string, logger *slog.Logger) (*FileStore, error) {
	if dir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("store.New: %w", err)
		}
		dir = filepath.Join(base, "chatclient")
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("store.New: %w", err)
	}

	return &FileStore{
		path:   filepath.Join(dir, fileName),
		logger: logger,
	}, nil
}

// Load reads the stored credential record. A missing file is not an
// error: it returns (nil, nil), meaning unauthenticated.
func (s *FileStore) Load() (*model.Credential, error) {
	payload, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("store.Load: %w", err)
	}

	var cred model.Credential
	if err := json.Unmarshal(payload, &cred); err != nil {
		return nil, fmt.Errorf("store.Load: %w", err)
	}

	return &cred, nil
}

// Save overwrites the stored record with cred.
func (s *FileStore) Save(cred *model.Credential) error {
	payload, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("store.Save: %w", err)
	}

	if err := os.WriteFile(s.path, payload, 0o600); err != nil {
		return fmt.Errorf("store.Save: %w", err)
	}

	s.logger.Debug("credential record saved", slog.String("nickname", cred.Nickname))
	return nil
}

// Clear removes the stored record. Clearing an absent record is a no-op.
func (s *FileStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("store.Clear: %w", err)
	}
	return nil
}
