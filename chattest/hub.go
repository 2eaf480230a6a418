package chattest

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"chatclient/client/model"
)

// member is one live connection. Writes are serialized per member:
// gorilla connections do not support concurrent writers.
type member struct {
	conn     *websocket.Conn
	userID   string
	nickname string

	writeMu sync.Mutex
}

func (m *member) write(v any) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return m.conn.WriteJSON(v)
}

// room is one chat room: live member connections plus the message
// history replayed to newcomers.
type room struct {
	id     string
	name   string
	logger *slog.Logger

	mu      sync.Mutex
	members map[*websocket.Conn]*member
	history []model.Message // oldest first; chat messages only
}

func newRoom(id, name string, logger *slog.Logger) *room {
	return &room{
		id:      id,
		name:    name,
		logger:  logger,
		members: make(map[*websocket.Conn]*member),
	}
}

// join installs the connection, replays history newest-first as a
// single array frame, and announces the member to the room.
func (r *room) join(conn *websocket.Conn, userID, nickname string) {
	m := &member{conn: conn, userID: userID, nickname: nickname}

	r.mu.Lock()
	r.members[conn] = m
	snapshot := make([]model.Message, 0, len(r.history))
	for i := len(r.history) - 1; i >= 0; i-- {
		snapshot = append(snapshot, r.history[i])
	}
	r.mu.Unlock()

	if err := m.write(snapshot); err != nil {
		r.logger.Error("failed to send history snapshot", slog.String("error", err.Error()))
	}

	r.broadcast(model.Message{
		Content:     model.ContentJoined,
		UserID:      userID,
		Nickname:    nickname,
		RoomID:      r.id,
		TimeCreated: time.Now(),
	})
}

// leave drops the connection and announces the departure.
func (r *room) leave(conn *websocket.Conn) {
	r.mu.Lock()
	m, ok := r.members[conn]
	delete(r.members, conn)
	r.mu.Unlock()

	if !ok {
		return
	}

	r.broadcast(model.Message{
		Content:     model.ContentLeft,
		UserID:      m.userID,
		Nickname:    m.nickname,
		RoomID:      r.id,
		TimeCreated: time.Now(),
	})
}

// post records a chat message in history and echoes it to every
// member, the sender included.
func (r *room) post(conn *websocket.Conn, content string) {
	r.mu.Lock()
	m, ok := r.members[conn]
	r.mu.Unlock()
	if !ok {
		return
	}

	message := model.Message{
		Content:     content,
		UserID:      m.userID,
		Nickname:    m.nickname,
		RoomID:      r.id,
		TimeCreated: time.Now(),
	}

	r.mu.Lock()
	r.history = append(r.history, message)
	r.mu.Unlock()

	r.broadcast(message)
}

// broadcast fans the message out to every member connection
// concurrently; the per-member mutex keeps individual connections
// single-writer.
func (r *room) broadcast(message model.Message) {
	r.mu.Lock()
	targets := make([]*member, 0, len(r.members))
	for _, m := range r.members {
		targets = append(targets, m)
	}
	r.mu.Unlock()

	var eg errgroup.Group
	for _, m := range targets {
		m := m
		eg.Go(func() error {
			return m.write(message)
		})
	}
	if err := eg.Wait(); err != nil {
		r.logger.Error("broadcast write failed", slog.String("error", err.Error()))
	}
}

// participants lists the current members. Order is not guaranteed;
// the directory endpoint exposes this as a set.
func (r *room) participants() []model.Participant {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := make([]model.Participant, 0, len(r.members))
	for _, m := range r.members {
		list = append(list, model.Participant{Nickname: m.nickname})
	}
	return list
}
