// Package session is the synchronization engine for one room: it owns
// the ordered message log and the participant set, applies inbound
// channel events in arrival order, and emits a reconciled view after
// each event. All mutation goes through the classification step;
// nothing else writes the log or the participant set.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"chatclient/client/channel"
	"chatclient/client/metrics"
	"chatclient/client/model"
)

var (
	// ErrNoChannel is returned by Start when no channel handle is
	// available; the engine goes straight to Terminated.
	ErrNoChannel = errors.New("session: no channel handle")
	// ErrNotActive is returned by SendMessage outside the Active state.
	ErrNotActive = errors.New("session: not active")
)

// State is the engine lifecycle state. Terminated is final: a new
// session requires a brand-new engine and channel handle.
type State int

const (
	StateIdle State = iota
	StateActive
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Reason explains a transition to Terminated.
type Reason int

const (
	ReasonNoChannel Reason = iota
	ReasonNotActive
	ReasonChannelClosed
	ReasonChannelError
)

func (r Reason) String() string {
	switch r {
	case ReasonNoChannel:
		return "no channel"
	case ReasonNotActive:
		return "not active"
	case ReasonChannelClosed:
		return "channel closed"
	case ReasonChannelError:
		return "channel error"
	default:
		return "unknown"
	}
}

// Update is the reconciled room view emitted after each applied event.
// Slices are copies; consumers may keep them.
type Update struct {
	RoomID         string
	RoomName       string
	Messages       []model.Message
	Participants   []model.Participant
	ScrollToLatest bool
}

// EngineConfig holds configuration for creating an Engine.
type EngineConfig struct {
	// SelfNickname is the current session identity, used to derive each
	// message's directionality tag at append time.
	SelfNickname string
	// OnUpdate receives the room view after each applied event. Invoked
	// from the channel read pump goroutine.
	OnUpdate func(Update)
	// OnTerminate is fired once when the session ends for any reason
	// other than an explicit Leave.
	OnTerminate func(Reason)
	// Metrics is optional.
	Metrics *metrics.Collector
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Engine is the room session state machine. Hooks run on the channel
// read pump goroutine; SendMessage, Leave and the accessors may be
// called from the UI goroutine, so internal state is mutex-guarded.
type Engine struct {
	self      string
	onUpdate  func(Update)
	terminate func(Reason)
	collector *metrics.Collector
	logger    *slog.Logger

	mu           sync.Mutex
	state        State
	room         model.Room
	ch           *channel.Channel
	messages     []model.Message
	participants []model.Participant
	failReason   Reason
	failStored   bool
}

func NewEngine(config EngineConfig) (*Engine, error) {
	if config.SelfNickname == "" {
		return nil, fmt.Errorf("session: SelfNickname is required")
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		self:      config.SelfNickname,
		onUpdate:  config.OnUpdate,
		terminate: config.OnTerminate,
		collector: config.Metrics,
		logger:    logger,
		state:     StateIdle,
	}, nil
}

// Start moves Idle → Active on a valid channel handle. The initial
// participant snapshot comes from the directory fetch; streamed join
// events merge into it without deduplication. A nil handle forces an
// immediate transition to Terminated.
func (e *Engine) Start(ch *channel.Channel, room model.Room, participants []model.Participant) error {
	e.mu.Lock()
	if e.state != StateIdle {
		state := e.state
		e.mu.Unlock()
		return fmt.Errorf("session: cannot start from state %s", state)
	}

	if ch == nil {
		e.state = StateTerminated
		e.mu.Unlock()
		e.fireTerminate(ReasonNoChannel)
		return ErrNoChannel
	}

	e.ch = ch
	e.room = room
	e.participants = append([]model.Participant(nil), participants...)
	e.state = StateActive
	e.mu.Unlock()

	ch.OnMessage = e.handleFrame
	ch.OnError = e.handleError
	ch.OnClose = e.handleClose
	ch.Start()

	if e.collector != nil {
		e.collector.ParticipantCount(len(participants))
	}
	e.logger.Info("session active",
		slog.String("room_id", room.ID),
		slog.String("room_name", room.Name))
	return nil
}

// SendMessage forwards literal text to the channel. Empty text is
// silently ignored. Without an active channel nothing is sent and the
// terminate hook fires so the consumer navigates back to room
// selection. The outbound message is never appended locally; it
// appears in the log only once the server echoes it back.
func (e *Engine) SendMessage(text string) error {
	if text == "" {
		return nil
	}

	e.mu.Lock()
	if e.state != StateActive || e.ch == nil {
		e.mu.Unlock()
		e.fireTerminate(ReasonNotActive)
		return ErrNotActive
	}
	ch := e.ch
	e.mu.Unlock()

	if err := ch.Send(text); err != nil {
		e.logger.Error("failed to send message", slog.String("error", err.Error()))
		return err
	}

	if e.collector != nil {
		e.collector.MessageSent()
	}
	return nil
}

// Leave ends the session on explicit user navigation: the channel is
// closed and all engine state is discarded. The terminate hook does
// not fire; the consumer initiated the transition.
func (e *Engine) Leave() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateTerminated {
		return
	}
	if e.ch != nil {
		e.ch.Close()
		e.ch = nil
	}
	e.state = StateTerminated
	e.messages = nil
	e.participants = nil
	e.logger.Info("session left", slog.String("room_id", e.room.ID))
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Room returns the room this session is bound to.
func (e *Engine) Room() model.Room {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.room
}

// Messages returns a copy of the ordered message log.
func (e *Engine) Messages() []model.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]model.Message(nil), e.messages...)
}

// Participants returns a copy of the participant set.
func (e *Engine) Participants() []model.Participant {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]model.Participant(nil), e.participants...)
}

// handleFrame classifies and applies one inbound frame. Undecodable
// frames are logged and dropped; a single bad event never takes the
// session down.
func (e *Engine) handleFrame(raw []byte) {
	event, err := classify(raw)
	if err != nil {
		e.logger.Error("dropping undecodable frame", slog.String("error", err.Error()))
		return
	}

	e.mu.Lock()
	if e.state != StateActive {
		e.mu.Unlock()
		return
	}

	var update Update
	switch event.kind {
	case kindSnapshot:
		update = e.applySnapshot(event.batch)
	case kindJoin:
		update = e.applyJoin(event.message)
	case kindLeave:
		update = e.applyLeave(event.message)
	case kindChat:
		update = e.applyChat(event.message)
	}
	e.mu.Unlock()

	if e.collector != nil {
		e.collector.MessageReceived()
		e.collector.ParticipantCount(len(update.Participants))
	}
	if e.onUpdate != nil {
		e.onUpdate(update)
	}
}

// applySnapshot wholly replaces the log with the batch, reversed to
// oldest-first (the server delivers history newest-first). This is the
// only case the log is replaced rather than appended to.
func (e *Engine) applySnapshot(batch []model.Message) Update {
	log := make([]model.Message, 0, len(batch))
	for i := len(batch) - 1; i >= 0; i-- {
		log = append(log, e.tagged(batch[i]))
	}
	e.messages = log

	if e.collector != nil {
		e.collector.SnapshotApplied(len(log))
	}
	return e.snapshotLocked(true)
}

// applyJoin adds the nickname to the participant set. Duplicates are
// kept: the fetched snapshot and the streamed join events are two
// independently-merged sources. The log is unchanged.
func (e *Engine) applyJoin(message model.Message) Update {
	e.participants = append(e.participants, model.Participant{Nickname: message.Nickname})
	return e.snapshotLocked(false)
}

// applyLeave removes every participant with the matching nickname and
// appends the notification itself to the log as a visible message. The
// only classification that mutates both structures.
func (e *Engine) applyLeave(message model.Message) Update {
	kept := e.participants[:0]
	for _, p := range e.participants {
		if p.Nickname != message.Nickname {
			kept = append(kept, p)
		}
	}
	e.participants = kept
	e.messages = append(e.messages, e.tagged(message))
	return e.snapshotLocked(true)
}

func (e *Engine) applyChat(message model.Message) Update {
	e.messages = append(e.messages, e.tagged(message))
	return e.snapshotLocked(true)
}

// tagged derives the directionality tag against the current session
// identity. Tags are fixed at append time; a later nickname change
// never rewrites previously tagged messages.
func (e *Engine) tagged(message model.Message) model.Message {
	if message.Nickname == e.self {
		message.Direction = model.DirectionSelf
	} else {
		message.Direction = model.DirectionReceived
	}
	return message
}

// snapshotLocked builds the emitted view. Callers hold e.mu.
func (e *Engine) snapshotLocked(scroll bool) Update {
	return Update{
		RoomID:         e.room.ID,
		RoomName:       e.room.Name,
		Messages:       append([]model.Message(nil), e.messages...),
		Participants:   append([]model.Participant(nil), e.participants...),
		ScrollToLatest: scroll,
	}
}

func (e *Engine) handleError(err error) {
	e.mu.Lock()
	e.failReason = ReasonChannelError
	e.failStored = true
	e.mu.Unlock()
	e.logger.Error("channel error", slog.String("error", err.Error()))
}

// handleClose runs the Active → Terminated transition for channel
// close and error notifications. The read pump fires OnClose exactly
// once, after OnError when the close was abnormal.
func (e *Engine) handleClose() {
	e.mu.Lock()
	if e.state != StateActive {
		e.mu.Unlock()
		return
	}
	e.state = StateTerminated
	e.ch = nil
	reason := ReasonChannelClosed
	if e.failStored {
		reason = e.failReason
	}
	e.mu.Unlock()

	e.logger.Info("session terminated", slog.String("reason", reason.String()))
	e.fireTerminate(reason)
}

func (e *Engine) fireTerminate(reason Reason) {
	if e.terminate != nil {
		e.terminate(reason)
	}
}
