package auth

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatclient/chattest"
	"chatclient/client/store"
)

func testManager(t *testing.T) (*Manager, *store.FileStore) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	backend := chattest.New(logger)
	baseURL := backend.Start()
	t.Cleanup(backend.Close)

	st, err := store.New(t.TempDir(), logger)
	require.NoError(t, err)

	m, err := NewManager(ManagerConfig{BaseURL: baseURL, Store: st, Logger: logger})
	require.NoError(t, err)
	return m, st
}

func TestLoginPersistsCredential(t *testing.T) {
	m, st := testManager(t)
	ctx := context.Background()

	require.NoError(t, m.Register(ctx, "alice", "password123"))

	cred, err := m.Login(ctx, "alice", "password123")
	require.NoError(t, err)
	assert.Equal(t, "alice", cred.Nickname)
	assert.NotEmpty(t, cred.ID)
	assert.NotEmpty(t, cred.AccessToken)
	assert.NotEmpty(t, cred.RefreshToken)

	// The full record went to durable storage.
	stored, err := st.Load()
	require.NoError(t, err)
	assert.Equal(t, cred, stored)

	assert.Equal(t, cred, m.Current())
}

func TestLoginRejectionCarriesServerMessage(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()

	require.NoError(t, m.Register(ctx, "alice", "password123"))

	_, err := m.Login(ctx, "alice", "wrong")
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "invalid nickname or password", apiErr.Message)
	assert.Nil(t, m.Current())
}

func TestRegisterDuplicateNickname(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()

	require.NoError(t, m.Register(ctx, "alice", "password123"))

	err := m.Register(ctx, "alice", "password123")
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.NotEmpty(t, apiErr.Message)
}

func TestRefreshReplacesCredentialWholesale(t *testing.T) {
	m, st := testManager(t)
	ctx := context.Background()

	require.NoError(t, m.Register(ctx, "alice", "password123"))
	first, err := m.Login(ctx, "alice", "password123")
	require.NoError(t, err)

	second, err := m.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.Nickname, second.Nickname)
	assert.Equal(t, first.ID, second.ID)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	stored, err := st.Load()
	require.NoError(t, err)
	assert.Equal(t, second, stored)
}

func TestRefreshWithoutCredential(t *testing.T) {
	m, _ := testManager(t)

	_, err := m.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrNoCredential)
}

func TestRefreshWithRevokedToken(t *testing.T) {
	m, st := testManager(t)
	ctx := context.Background()

	require.NoError(t, m.Register(ctx, "alice", "password123"))
	_, err := m.Login(ctx, "alice", "password123")
	require.NoError(t, err)

	// A second login rotates the server-side refresh token, orphaning
	// a stale stored record.
	stale := m.Current()
	_, err = m.Login(ctx, "alice", "password123")
	require.NoError(t, err)
	require.NoError(t, st.Save(stale))
	m.current = stale

	_, err = m.Refresh(ctx)
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
}

func TestCurrentReadsStoreOnFirstUse(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir := t.TempDir()

	st, err := store.New(dir, logger)
	require.NoError(t, err)

	backend := chattest.New(logger)
	baseURL := backend.Start()
	t.Cleanup(backend.Close)

	first, err := NewManager(ManagerConfig{BaseURL: baseURL, Store: st, Logger: logger})
	require.NoError(t, err)
	require.NoError(t, first.Register(context.Background(), "alice", "password123"))
	cred, err := first.Login(context.Background(), "alice", "password123")
	require.NoError(t, err)

	// A fresh manager over the same store sees the persisted session.
	second, err := NewManager(ManagerConfig{BaseURL: baseURL, Store: st, Logger: logger})
	require.NoError(t, err)
	assert.Equal(t, cred, second.Current())
}

func TestLogoutClearsStore(t *testing.T) {
	m, st := testManager(t)
	ctx := context.Background()

	require.NoError(t, m.Register(ctx, "alice", "password123"))
	_, err := m.Login(ctx, "alice", "password123")
	require.NoError(t, err)

	require.NoError(t, m.Logout())
	assert.Nil(t, m.Current())

	stored, err := st.Load()
	require.NoError(t, err)
	assert.Nil(t, stored)
}
