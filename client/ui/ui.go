// Package ui is the terminal presentation layer: three screens
// (login, rooms, chat) over the session core. It consumes the data the
// engine exposes and owns no room state of its own.
package ui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"chatclient/client/auth"
	"chatclient/client/channel"
	"chatclient/client/directory"
	"chatclient/client/metrics"
	"chatclient/client/model"
	"chatclient/client/session"
)

type screen int

const (
	screenLogin screen = iota
	screenRooms
	screenChat
)

// Deps are the long-lived collaborators, constructed once per process
// and injected here; the UI never reaches for ambient globals.
type Deps struct {
	Auth      *auth.Manager
	Directory *directory.Client
	Channels  *channel.Controller
	Logger    *slog.Logger
}

type (
	roomsMsg          []model.Room
	loggedInMsg       *model.Credential
	registeredMsg     struct{}
	authFailedMsg     string
	sessionStartedMsg struct {
		engine    *session.Engine
		collector *metrics.Collector
		room      model.Room
	}
	engineUpdateMsg session.Update
	sessionEndedMsg session.Reason
	errMsg          struct{ err error }
)

type Model struct {
	deps   Deps
	logger *slog.Logger

	// events carries engine and channel notifications from their
	// goroutines into the bubbletea loop.
	events chan tea.Msg

	screen screen
	width  int
	height int
	status string

	// login screen
	nickname    textinput.Model
	password    textinput.Model
	registering bool
	authErr     string

	// rooms screen
	rooms    []model.Room
	cursor   int
	roomName textinput.Model
	naming   bool

	// chat screen
	engine       *session.Engine
	collector    *metrics.Collector
	room         model.Room
	messages     []model.Message
	participants []model.Participant
	viewport     viewport.Model
	input        textinput.Model
	ready        bool
}

func New(deps Deps) *Model {
	nickname := textinput.New()
	nickname.Placeholder = "nickname"
	nickname.Focus()

	password := textinput.New()
	password.Placeholder = "password"
	password.EchoMode = textinput.EchoPassword

	roomName := textinput.New()
	roomName.Placeholder = "room name"

	input := textinput.New()
	input.Placeholder = "type your message here"

	m := &Model{
		deps:     deps,
		logger:   deps.Logger,
		events:   make(chan tea.Msg, 64),
		nickname: nickname,
		password: password,
		roomName: roomName,
		input:    input,
		screen:   screenLogin,
	}

	if deps.Auth.Current() != nil {
		m.screen = screenRooms
	}
	return m
}

// Run drives the program to completion.
func Run(deps Deps) error {
	program := tea.NewProgram(New(deps), tea.WithAltScreen())
	_, err := program.Run()
	return err
}

func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, m.waitForEvent()}
	if m.screen == screenRooms {
		cmds = append(cmds, m.loadRooms())
	}
	return tea.Batch(cmds...)
}

// waitForEvent re-arms the bridge from the engine goroutines into the
// update loop. It must be re-issued after each delivered event.
func (m *Model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		return <-m.events
	}
}

func (m *Model) loadRooms() tea.Cmd {
	return func() tea.Msg {
		rooms, err := m.deps.Directory.Rooms(context.Background())
		if err != nil {
			var apiErr *auth.Error
			if errors.As(err, &apiErr) || errors.Is(err, auth.ErrNoCredential) {
				return authFailedMsg("session expired, log in again")
			}
			return errMsg{err}
		}
		return roomsMsg(rooms)
	}
}

func (m *Model) login(nickname, password string) tea.Cmd {
	return func() tea.Msg {
		cred, err := m.deps.Auth.Login(context.Background(), nickname, password)
		if err != nil {
			var apiErr *auth.Error
			if errors.As(err, &apiErr) {
				return authFailedMsg(apiErr.Message)
			}
			return authFailedMsg("could not reach the server")
		}
		return loggedInMsg(cred)
	}
}

func (m *Model) register(nickname, password string) tea.Cmd {
	return func() tea.Msg {
		if err := m.deps.Auth.Register(context.Background(), nickname, password); err != nil {
			var apiErr *auth.Error
			if errors.As(err, &apiErr) {
				return authFailedMsg(apiErr.Message)
			}
			return authFailedMsg("could not reach the server")
		}
		return registeredMsg{}
	}
}

func (m *Model) createRoom(name string) tea.Cmd {
	return func() tea.Msg {
		if _, err := m.deps.Directory.CreateRoom(context.Background(), name); err != nil {
			var apiErr *auth.Error
			if errors.As(err, &apiErr) {
				return authFailedMsg(apiErr.Message)
			}
			return errMsg{err}
		}
		rooms, _ := m.deps.Directory.Rooms(context.Background())
		return roomsMsg(rooms)
	}
}

// joinRoom fetches the participant snapshot, opens the channel, and
// starts a fresh engine whose hooks feed the events bridge.
func (m *Model) joinRoom(room model.Room) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()

		cred := m.deps.Auth.Current()
		if cred == nil {
			return authFailedMsg("session expired, log in again")
		}

		participants, err := m.deps.Directory.Participants(ctx, room.ID)
		if err != nil {
			// The roster starts empty and fills from join events; the
			// room is still usable.
			m.logger.Error("failed to fetch participants", slog.String("error", err.Error()))
		}

		ch, err := m.deps.Channels.Open(ctx, room.ID, cred)
		if err != nil {
			return errMsg{fmt.Errorf("could not join %s: %w", room.Name, err)}
		}

		collector := metrics.NewCollector()
		engine, err := session.NewEngine(session.EngineConfig{
			SelfNickname: cred.Nickname,
			OnUpdate:     func(u session.Update) { m.events <- engineUpdateMsg(u) },
			OnTerminate:  func(r session.Reason) { m.events <- sessionEndedMsg(r) },
			Metrics:      collector,
			Logger:       m.logger,
		})
		if err != nil {
			return errMsg{err}
		}
		if err := engine.Start(ch, room, participants); err != nil {
			return errMsg{err}
		}

		return sessionStartedMsg{engine: engine, collector: collector, room: room}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeViewport()
		return m, nil

	case authFailedMsg:
		m.leaveSession()
		m.screen = screenLogin
		m.authErr = string(msg)
		m.password.SetValue("")
		m.nickname.Focus()
		m.password.Blur()
		return m, nil

	case loggedInMsg:
		m.screen = screenRooms
		m.authErr = ""
		m.status = ""
		return m, m.loadRooms()

	case registeredMsg:
		m.registering = false
		m.authErr = ""
		m.status = "registered, now log in"
		return m, nil

	case roomsMsg:
		m.rooms = msg
		if m.cursor >= len(m.rooms) {
			m.cursor = 0
		}
		return m, nil

	case sessionStartedMsg:
		m.engine = msg.engine
		m.collector = msg.collector
		m.room = msg.room
		m.messages = nil
		m.participants = msg.engine.Participants()
		m.screen = screenChat
		m.input.Focus()
		m.resizeViewport()
		return m, nil

	case engineUpdateMsg:
		m.messages = msg.Messages
		m.participants = msg.Participants
		m.refreshViewport(msg.ScrollToLatest)
		return m, m.waitForEvent()

	case sessionEndedMsg:
		m.leaveSession()
		m.screen = screenRooms
		m.status = fmt.Sprintf("session ended: %s", session.Reason(msg))
		return m, tea.Batch(m.waitForEvent(), m.loadRooms())

	case errMsg:
		m.status = errorStyle.Render(msg.err.Error())
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		m.leaveSession()
		return m, tea.Quit
	}

	switch m.screen {
	case screenLogin:
		return m.handleLoginKey(msg)
	case screenRooms:
		return m.handleRoomsKey(msg)
	case screenChat:
		return m.handleChatKey(msg)
	}
	return m, nil
}

func (m *Model) handleLoginKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyTab, tea.KeyShiftTab:
		if m.nickname.Focused() {
			m.nickname.Blur()
			m.password.Focus()
		} else {
			m.password.Blur()
			m.nickname.Focus()
		}
		return m, nil

	case tea.KeyCtrlR:
		m.registering = !m.registering
		m.authErr = ""
		return m, nil

	case tea.KeyEnter:
		nickname := m.nickname.Value()
		password := m.password.Value()
		if nickname == "" || password == "" {
			m.authErr = "nickname and password are required"
			return m, nil
		}
		if m.registering {
			return m, m.register(nickname, password)
		}
		return m, m.login(nickname, password)
	}

	var cmd tea.Cmd
	if m.nickname.Focused() {
		m.nickname, cmd = m.nickname.Update(msg)
	} else {
		m.password, cmd = m.password.Update(msg)
	}
	return m, cmd
}

func (m *Model) handleRoomsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.naming {
		switch msg.Type {
		case tea.KeyEnter:
			name := m.roomName.Value()
			m.naming = false
			m.roomName.SetValue("")
			m.roomName.Blur()
			if name == "" {
				return m, nil
			}
			return m, m.createRoom(name)
		case tea.KeyEsc:
			m.naming = false
			m.roomName.SetValue("")
			m.roomName.Blur()
			return m, nil
		}
		var cmd tea.Cmd
		m.roomName, cmd = m.roomName.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.rooms)-1 {
			m.cursor++
		}
	case "enter":
		if len(m.rooms) > 0 {
			return m, m.joinRoom(m.rooms[m.cursor])
		}
	case "n":
		m.naming = true
		m.roomName.Focus()
	case "r":
		return m, m.loadRooms()
	case "ctrl+l":
		if err := m.deps.Auth.Logout(); err != nil {
			m.logger.Error("logout failed", slog.String("error", err.Error()))
		}
		m.screen = screenLogin
		m.status = ""
		m.nickname.Focus()
	case "q":
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) handleChatKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		text := m.input.Value()
		m.input.SetValue("")
		if m.engine != nil {
			if err := m.engine.SendMessage(text); err != nil {
				m.logger.Error("send failed", slog.String("error", err.Error()))
			}
		}
		return m, nil

	case tea.KeyEsc:
		m.leaveSession()
		m.screen = screenRooms
		m.status = ""
		return m, m.loadRooms()

	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// leaveSession tears the current session down, if any.
func (m *Model) leaveSession() {
	if m.engine != nil {
		m.engine.Leave()
		m.engine = nil
	}
	m.collector = nil
	m.messages = nil
	m.participants = nil
	m.input.Blur()
}
