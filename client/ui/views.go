package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"

	"chatclient/client/model"
)

const chromeHeight = 6 // title, roster, input, status, help, padding

func (m *Model) View() string {
	switch m.screen {
	case screenLogin:
		return m.loginView()
	case screenRooms:
		return m.roomsView()
	case screenChat:
		return m.chatView()
	}
	return ""
}

func (m *Model) loginView() string {
	var b strings.Builder

	title := "log in"
	if m.registering {
		title = "register"
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n\n")
	b.WriteString(m.nickname.View())
	b.WriteString("\n")
	b.WriteString(m.password.View())
	b.WriteString("\n\n")

	if m.authErr != "" {
		b.WriteString(errorStyle.Render(m.authErr))
		b.WriteString("\n")
	}
	if m.status != "" {
		b.WriteString(statusStyle.Render(m.status))
		b.WriteString("\n")
	}

	b.WriteString(helpStyle.Render("tab: switch field • enter: submit • ctrl+r: toggle register • ctrl+c: quit"))
	return b.String()
}

func (m *Model) roomsView() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("rooms"))
	b.WriteString("\n\n")

	if len(m.rooms) == 0 {
		b.WriteString(statusStyle.Render("no rooms yet"))
		b.WriteString("\n")
	}
	for i, room := range m.rooms {
		line := fmt.Sprintf("  %s", room.Name)
		if i == m.cursor {
			line = selectedStyle.Render(fmt.Sprintf("> %s", room.Name))
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if m.naming {
		b.WriteString(m.roomName.View())
		b.WriteString("\n")
	}
	if m.status != "" {
		b.WriteString(statusStyle.Render(m.status))
		b.WriteString("\n")
	}

	b.WriteString(helpStyle.Render("enter: join • n: new room • r: reload • ctrl+l: log out • q: quit"))
	return b.String()
}

func (m *Model) chatView() string {
	if !m.ready {
		return "loading..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(m.room.Name))
	b.WriteString("\n")
	b.WriteString(statusStyle.Render(m.rosterLine()))
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(statusStyle.Render(m.metricsLine()))
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("enter: send • pgup/pgdn: scroll • esc: leave room"))
	return b.String()
}

func (m *Model) rosterLine() string {
	names := make([]string, 0, len(m.participants))
	for _, p := range m.participants {
		names = append(names, p.Nickname)
	}
	return fmt.Sprintf("here: %s", strings.Join(names, ", "))
}

func (m *Model) metricsLine() string {
	if m.collector == nil {
		return ""
	}
	s := m.collector.Summary()
	return fmt.Sprintf("sent %d • received %d • %s", s.Sent, s.Received, s.Elapsed.Round(time.Second))
}

func (m *Model) resizeViewport() {
	if m.width == 0 || m.height == 0 {
		return
	}
	height := m.height - chromeHeight
	if height < 3 {
		height = 3
	}
	if !m.ready {
		m.viewport = viewport.New(m.width, height)
		m.ready = true
	} else {
		m.viewport.Width = m.width
		m.viewport.Height = height
	}
	m.refreshViewport(true)
}

// refreshViewport re-renders the log into the viewport. Snapshots and
// chat traffic pin the view to the latest line; roster churn does not.
func (m *Model) refreshViewport(scrollToLatest bool) {
	if !m.ready {
		return
	}
	lines := make([]string, 0, len(m.messages))
	for _, msg := range m.messages {
		lines = append(lines, m.renderMessage(msg))
	}
	m.viewport.SetContent(strings.Join(lines, "\n"))
	if scrollToLatest {
		m.viewport.GotoBottom()
	}
}

func (m *Model) renderMessage(msg model.Message) string {
	if msg.Content == model.ContentJoined || msg.Content == model.ContentLeft {
		return systemStyle.Render(fmt.Sprintf("%s %s", msg.Nickname, msg.Content))
	}

	line := fmt.Sprintf("%s: %s", msg.Nickname, msg.Content)
	if msg.Direction == model.DirectionSelf {
		return selfStyle.Render(line)
	}
	return receivedStyle.Render(line)
}
