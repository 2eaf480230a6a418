package session

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatclient/chattest"
	"chatclient/client/auth"
	"chatclient/client/channel"
	"chatclient/client/directory"
	"chatclient/client/model"
	"chatclient/client/store"
)

const waitFor = 3 * time.Second

type testUser struct {
	auth *auth.Manager
	dir  *directory.Client
	ctl  *channel.Controller
}

func newTestUser(t *testing.T, apiBase, wsBase, nickname string, logger *slog.Logger) *testUser {
	t.Helper()
	ctx := context.Background()

	st, err := store.New(t.TempDir(), logger)
	require.NoError(t, err)

	mgr, err := auth.NewManager(auth.ManagerConfig{BaseURL: apiBase, Store: st, Logger: logger})
	require.NoError(t, err)
	require.NoError(t, mgr.Register(ctx, nickname, "password123"))
	_, err = mgr.Login(ctx, nickname, "password123")
	require.NoError(t, err)

	dir, err := directory.NewClient(directory.ClientConfig{BaseURL: apiBase, Auth: mgr, Logger: logger})
	require.NoError(t, err)

	ctl, err := channel.NewController(channel.ControllerConfig{BaseURL: wsBase, Logger: logger})
	require.NoError(t, err)

	return &testUser{auth: mgr, dir: dir, ctl: ctl}
}

func (u *testUser) join(t *testing.T, room model.Room, participants []model.Participant, logger *slog.Logger) (*Engine, *recorder) {
	t.Helper()

	rec := &recorder{}
	engine, err := NewEngine(EngineConfig{
		SelfNickname: u.auth.Current().Nickname,
		OnUpdate:     rec.onUpdate,
		OnTerminate:  rec.onTerminate,
		Logger:       logger,
	})
	require.NoError(t, err)

	ch, err := u.ctl.Open(context.Background(), room.ID, u.auth.Current())
	require.NoError(t, err)
	require.NoError(t, engine.Start(ch, room, participants))
	return engine, rec
}

func contents(messages []model.Message) []string {
	out := make([]string, len(messages))
	for i, m := range messages {
		out[i] = m.Content
	}
	return out
}

func hasParticipant(list []model.Participant, nickname string) bool {
	for _, p := range list {
		if p.Nickname == nickname {
			return true
		}
	}
	return false
}

// TestRoomSessionEndToEnd drives the full flow against the in-process
// backend: register, login, create a room, join, receive the history
// snapshot, exchange messages, and observe membership churn.
func TestRoomSessionEndToEnd(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	backend := chattest.New(logger)
	apiBase := backend.Start()
	defer backend.Close()
	wsBase := backend.WSBase()
	ctx := context.Background()

	alice := newTestUser(t, apiBase, wsBase, "alice", logger)
	bob := newTestUser(t, apiBase, wsBase, "bob", logger)

	room, err := alice.dir.CreateRoom(ctx, "general")
	require.NoError(t, err)
	require.NotEmpty(t, room.ID)

	rooms, err := alice.dir.Rooms(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, "general", rooms[0].Name)

	// Bob joins first and seeds the room history.
	bobEngine, _ := bob.join(t, *room, nil, logger)
	require.NoError(t, bobEngine.SendMessage("hi"))
	require.Eventually(t, func() bool {
		return len(bobEngine.Messages()) == 1
	}, waitFor, 10*time.Millisecond, "bob never saw his own echo")

	// Alice fetches the participant snapshot, then opens her channel.
	participants, err := alice.dir.Participants(ctx, room.ID)
	require.NoError(t, err)
	require.True(t, hasParticipant(participants, "bob"))

	aliceEngine, _ := alice.join(t, *room, participants, logger)
	assert.Equal(t, StateActive, aliceEngine.State())

	// The history snapshot replaces the log: one message, from bob,
	// tagged received.
	require.Eventually(t, func() bool {
		return len(aliceEngine.Messages()) == 1
	}, waitFor, 10*time.Millisecond, "alice never received the history snapshot")
	log := aliceEngine.Messages()
	assert.Equal(t, "hi", log[0].Content)
	assert.Equal(t, model.DirectionReceived, log[0].Direction)

	// Alice's own join notice reaches both sessions.
	require.Eventually(t, func() bool {
		return hasParticipant(bobEngine.Participants(), "alice")
	}, waitFor, 10*time.Millisecond, "bob never saw alice join")
	require.Eventually(t, func() bool {
		return hasParticipant(aliceEngine.Participants(), "alice")
	}, waitFor, 10*time.Millisecond, "alice never saw her own join echo")

	// Outbound text appears only as the server's echo, tagged self.
	require.NoError(t, aliceEngine.SendMessage("hello"))
	require.Eventually(t, func() bool {
		return len(aliceEngine.Messages()) == 2
	}, waitFor, 10*time.Millisecond, "alice never received her echo")
	log = aliceEngine.Messages()
	assert.Equal(t, []string{"hi", "hello"}, contents(log))
	assert.Equal(t, model.DirectionSelf, log[1].Direction)

	// Bob navigates away; alice sees the leave notice as a visible
	// message and bob drops from the participant set.
	bobEngine.Leave()
	require.Eventually(t, func() bool {
		return !hasParticipant(aliceEngine.Participants(), "bob")
	}, waitFor, 10*time.Millisecond, "bob never left alice's participant set")
	require.Eventually(t, func() bool {
		return len(aliceEngine.Messages()) == 3
	}, waitFor, 10*time.Millisecond, "alice never got the leave notice")
	log = aliceEngine.Messages()
	assert.Equal(t, model.ContentLeft, log[2].Content)
	assert.Equal(t, "bob", log[2].Nickname)

	aliceEngine.Leave()
	assert.Equal(t, StateTerminated, aliceEngine.State())
}

// TestServerDisconnectTerminatesSession covers the transport-failure
// path: the backend drops, the engine terminates, and sending
// afterwards is a redirect rather than a crash.
func TestServerDisconnectTerminatesSession(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	backend := chattest.New(logger)
	apiBase := backend.Start()
	wsBase := backend.WSBase()
	ctx := context.Background()

	alice := newTestUser(t, apiBase, wsBase, "alice", logger)
	room, err := alice.dir.CreateRoom(ctx, "general")
	require.NoError(t, err)

	engine, rec := alice.join(t, *room, nil, logger)
	require.Eventually(t, func() bool {
		return engine.State() == StateActive
	}, waitFor, 10*time.Millisecond)

	backend.Close()

	require.Eventually(t, func() bool {
		return engine.State() == StateTerminated
	}, waitFor, 10*time.Millisecond, "engine never terminated after server shutdown")

	assert.ErrorIs(t, engine.SendMessage("anyone there?"), ErrNotActive)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.NotEmpty(t, rec.reasons)
}
