// Package channel owns the persistent connection to a room. The
// controller holds at most one active channel; opening a new one
// closes the previous handle first. There is no automatic reconnect: a
// closed or errored channel is terminal for that session.
package channel

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"chatclient/client/model"
)

const writeTimeout = 5 * time.Second

// ControllerConfig holds configuration for creating a Controller.
type ControllerConfig struct {
	// BaseURL is the websocket base URL (e.g. "ws://localhost:8080").
	BaseURL string
	// Dialer is used to open connections. If nil, websocket.DefaultDialer is used.
	Dialer *websocket.Dialer
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Controller opens channels to rooms using the current access
// credential.
type Controller struct {
	baseURL string
	dialer  *websocket.Dialer
	logger  *slog.Logger

	mu     sync.Mutex
	active *Channel
}

func NewController(config ControllerConfig) (*Controller, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("channel: BaseURL is required")
	}

	dialer := config.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Controller{
		baseURL: config.BaseURL,
		dialer:  dialer,
		logger:  logger,
	}, nil
}

// Open dials the room-scoped endpoint with the access token as a query
// parameter and installs the new handle as the active channel. Any
// previous handle is explicitly closed first so the old connection is
// not leaked.
func (c *Controller) Open(ctx context.Context, roomID string, cred *model.Credential) (*Channel, error) {
	if roomID == "" {
		return nil, fmt.Errorf("channel: room ID is required")
	}
	if cred == nil {
		return nil, fmt.Errorf("channel: credential is required")
	}

	c.mu.Lock()
	if c.active != nil {
		c.active.Close()
		c.active = nil
	}
	c.mu.Unlock()

	endpoint := fmt.Sprintf("%s/chat/rooms/%s?access_token=%s",
		c.baseURL, roomID, url.QueryEscape("Bearer "+cred.AccessToken))

	conn, _, err := c.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("channel: failed to dial room %s: %w", roomID, err)
	}

	ch := &Channel{
		conn:   conn,
		roomID: roomID,
		logger: c.logger,
	}

	c.mu.Lock()
	c.active = ch
	c.mu.Unlock()

	c.logger.Info("channel opened", slog.String("room_id", roomID))
	return ch, nil
}

// Close closes the active channel, if any.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil {
		c.active.Close()
		c.active = nil
	}
}

// Channel is a handle to one open room connection. The notification
// hooks must be set before Start; they are invoked from the read pump
// goroutine. After an explicit Close no hook fires.
type Channel struct {
	conn   *websocket.Conn
	roomID string
	logger *slog.Logger

	// OnMessage receives each raw inbound text frame.
	OnMessage func(raw []byte)
	// OnError is fired once when the read pump fails abnormally.
	OnError func(err error)
	// OnClose is fired once when the connection is no longer usable.
	OnClose func()

	closed    atomic.Bool
	closeOnce sync.Once
	writeMu   sync.Mutex
}

// RoomID returns the room this channel is connected to.
func (ch *Channel) RoomID() string {
	return ch.roomID
}

// Start launches the read pump. Inbound frames are delivered to
// OnMessage in arrival order from a single goroutine, so consumers
// never see reordered events.
func (ch *Channel) Start() {
	go ch.readPump()
}

func (ch *Channel) readPump() {
	for {
		_, raw, err := ch.conn.ReadMessage()
		if err != nil {
			if ch.closed.Load() {
				return
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				ch.logger.Error("channel read failed",
					slog.String("room_id", ch.roomID),
					slog.String("error", err.Error()))
				if ch.OnError != nil {
					ch.OnError(err)
				}
			}
			if ch.OnClose != nil {
				ch.OnClose()
			}
			return
		}

		if ch.OnMessage != nil {
			ch.OnMessage(raw)
		}
	}
}

// Send forwards literal text to the connection.
func (ch *Channel) Send(text string) error {
	if ch.closed.Load() {
		return fmt.Errorf("channel: send on closed channel")
	}

	ch.writeMu.Lock()
	defer ch.writeMu.Unlock()
	ch.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := ch.conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		return fmt.Errorf("channel: failed to send message: %w", err)
	}
	return nil
}

// Close tears the connection down. Idempotent. Hooks do not fire for
// an explicit close; the consumer initiated it and already knows.
func (ch *Channel) Close() error {
	var err error
	ch.closeOnce.Do(func() {
		ch.closed.Store(true)
		ch.writeMu.Lock()
		ch.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		ch.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		ch.writeMu.Unlock()
		err = ch.conn.Close()
		ch.logger.Info("channel closed", slog.String("room_id", ch.roomID))
	})
	return err
}
