package commands

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	convai "github.com/koscakluka/convai-core/core"
	"github.com/muesli/reflow/wordwrap"
)

type entryKind int

const (
	entrySystem entryKind = iota
	entryUser
	entryAgent
	entryStatus
	entryMode
	entryMuted
)

// chatEntry is one update from the session. Status, mode and mute entries
// only change the header.
type chatEntry struct {
	kind  entryKind
	text  string
	muted bool
}

type chatEntryMsg chatEntry

type feedClosedMsg struct{}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	userStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")).Bold(true)
	agentStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#00BFFF")).Bold(true)
	systemStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666")).Italic(true)
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262"))
)

type chatModel struct {
	session *convai.Session
	feed    <-chan chatEntry

	input    textinput.Model
	viewport viewport.Model
	ready    bool
	width    int

	lines  []chatEntry
	status string
	mode   string
	muted  bool
}

func newChatModel(session *convai.Session, feed <-chan chatEntry) chatModel {
	input := textinput.New()
	input.Placeholder = "Type a message"
	input.Focus()
	return chatModel{
		session: session,
		feed:    feed,
		input:   input,
		status:  session.Status().String(),
		mode:    session.Mode().String(),
		muted:   session.IsMuted(),
	}
}

func (m chatModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.listen())
}

func (m chatModel) listen() tea.Cmd {
	feed := m.feed
	return func() tea.Msg {
		entry, ok := <-feed
		if !ok {
			return feedClosedMsg{}
		}
		return chatEntryMsg(entry)
	}
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.session.End()
			return m, tea.Quit
		case "enter":
			text := strings.TrimSpace(m.input.Value())
			if text == "" {
				return m, nil
			}
			m.input.Reset()
			m.session.SendUserMessage(text)
			// The agent does not echo typed messages back as transcripts.
			m.append(chatEntry{kind: entryUser, text: text})
			return m, nil
		case "ctrl+t":
			m.session.ToggleMute()
			return m, nil
		case "ctrl+y", "ctrl+n":
			if !m.session.CanSendFeedback() {
				m.append(chatEntry{kind: entrySystem, text: "nothing to rate yet"})
				return m, nil
			}
			m.session.SendFeedback(msg.String() == "ctrl+y")
			m.append(chatEntry{kind: entrySystem, text: "feedback sent"})
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		height := msg.Height - 4
		if height < 1 {
			height = 1
		}
		if !m.ready {
			m.viewport = viewport.New(msg.Width, height)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = height
		}
		m.input.Width = msg.Width - 4
		m.refresh()
		return m, nil

	case chatEntryMsg:
		entry := chatEntry(msg)
		switch entry.kind {
		case entryStatus:
			m.status = entry.text
		case entryMode:
			m.mode = entry.text
		case entryMuted:
			m.muted = entry.muted
		default:
			m.append(entry)
		}
		return m, m.listen()

	case feedClosedMsg:
		return m, nil
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *chatModel) append(entry chatEntry) {
	m.lines = append(m.lines, entry)
	m.refresh()
}

func (m *chatModel) refresh() {
	if !m.ready {
		return
	}
	width := m.width - 2
	if width < 10 {
		width = 10
	}

	var b strings.Builder
	for _, line := range m.lines {
		switch line.kind {
		case entryUser:
			b.WriteString(userStyle.Render("you: "))
			b.WriteString(wordwrap.String(line.text, width))
		case entryAgent:
			b.WriteString(agentStyle.Render("agent: "))
			b.WriteString(wordwrap.String(line.text, width))
		default:
			b.WriteString(systemStyle.Render(wordwrap.String(line.text, width)))
		}
		b.WriteString("\n")
	}
	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

func (m chatModel) View() string {
	if !m.ready {
		return "connecting..."
	}

	mic := "mic on"
	if m.muted {
		mic = "mic muted"
	}
	header := headerStyle.Render("convai") + " " + systemStyle.Render(m.status+" | "+m.mode+" | "+mic)
	help := helpStyle.Render("enter send | ctrl+t mute | ctrl+y like | ctrl+n dislike | esc quit")

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.viewport.View(),
		m.input.View(),
		help,
	)
}
