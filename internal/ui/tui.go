// Package ui renders the retro chat screen. It is a pure consumer of the
// orchestrator: every screen change is driven by one orchestrator event,
// and all chat state is read back through the orchestrator's accessors.
package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/retrogpt/client/internal/model/chat"
	"github.com/retrogpt/client/internal/service/orchestrator"
)

type eventMsg orchestrator.Event

type sendResultMsg struct {
	err error
}

type openResultMsg struct {
	err error
}

// Model is the bubbletea model for the chat screen.
type Model struct {
	orch *orchestrator.Orchestrator

	input    textinput.Model
	viewport viewport.Model

	width  int
	height int
	ready  bool
	errMsg string
}

// New builds the chat screen around an orchestrator.
func New(orch *orchestrator.Orchestrator) Model {
	input := textinput.New()
	input.Placeholder = "Type your message..."
	input.CharLimit = 4096
	input.Focus()

	return Model{orch: orch, input: input}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForEvent(m.orch.Events()))
}

// waitForEvent re-arms the single consumer of the orchestrator feed.
func waitForEvent(ch <-chan orchestrator.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return eventMsg(ev)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		chromeHeight := 7
		if !m.ready {
			m.viewport = viewport.New(msg.Width-2, msg.Height-chromeHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width - 2
			m.viewport.Height = msg.Height - chromeHeight
		}
		m.input.Width = msg.Width - 6
		m.refreshTranscript()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "enter":
			text := m.input.Value()
			if strings.TrimSpace(text) == "" {
				return m, nil
			}
			m.input.Reset()
			m.errMsg = ""
			return m, sendPrompt(m.orch, text)
		case "ctrl+n":
			m.errMsg = ""
			return m, openChat(m.orch, nil)
		case "tab":
			m.errMsg = ""
			return m, openChat(m.orch, m.nextChatID())
		}

	case eventMsg:
		if msg.Kind == orchestrator.EventFlowFailed && msg.Err != nil {
			m.errMsg = msg.Err.Error()
		}
		m.refreshTranscript()
		return m, waitForEvent(m.orch.Events())

	case sendResultMsg:
		if msg.err != nil {
			m.errMsg = msg.err.Error()
		}
		return m, nil

	case openResultMsg:
		if msg.err != nil {
			m.errMsg = msg.err.Error()
		}
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

func sendPrompt(orch *orchestrator.Orchestrator, text string) tea.Cmd {
	return func() tea.Msg {
		_, err := orch.Send(context.Background(), text)
		return sendResultMsg{err: err}
	}
}

func openChat(orch *orchestrator.Orchestrator, id *int64) tea.Cmd {
	return func() tea.Msg {
		return openResultMsg{err: orch.OpenChat(context.Background(), id)}
	}
}

// nextChatID cycles through the owned chats, then back to "new chat".
func (m Model) nextChatID() *int64 {
	chats := m.orch.Chats()
	if len(chats) == 0 {
		return nil
	}
	active := m.orch.ActiveChatID()
	if active == nil {
		id := chats[0].ID
		return &id
	}
	for i, c := range chats {
		if c.ID == *active {
			if i+1 >= len(chats) {
				return nil
			}
			id := chats[i+1].ID
			return &id
		}
	}
	id := chats[0].ID
	return &id
}

func (m *Model) refreshTranscript() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(renderMessages(m.orch.Messages(), m.viewport.Width))
	m.viewport.GotoBottom()
}

func (m Model) View() string {
	if !m.ready {
		return "loading..."
	}

	var b strings.Builder
	b.WriteString(headerStyle.Width(m.width).Render("WELCOME TO RETROGPT"))
	b.WriteString("\n")
	b.WriteString(subHeaderStyle.Width(m.width).Render("How can I help?"))
	b.WriteString("\n")
	b.WriteString(frameStyle.Render(m.viewport.View()))
	b.WriteString("\n")
	b.WriteString(inputStyle.Render(m.input.View()))
	b.WriteString("\n")
	b.WriteString(m.statusLine())
	return b.String()
}

func (m Model) statusLine() string {
	sess := m.orch.Session()
	who := "guest"
	if !sess.IsAnonymous() {
		if sess.UserID != nil {
			who = fmt.Sprintf("user %d", *sess.UserID)
		} else {
			who = "signed in"
		}
	}

	where := "new chat"
	if active := m.orch.ActiveChatID(); active != nil {
		where = fmt.Sprintf("chat %d", *active)
		for _, c := range m.orch.Chats() {
			if c.ID == *active {
				where = c.Name
				break
			}
		}
	}

	line := fmt.Sprintf(" %s | %s | %d chats | tab: switch  ctrl+n: new  esc: quit", who, where, len(m.orch.Chats()))
	if m.errMsg != "" {
		line += "\n" + errorStyle.Render(" error: "+m.errMsg)
	}
	return statusStyle.Render(line)
}

func renderMessages(msgs []chat.Message, width int) string {
	if len(msgs) == 0 {
		return logoStyle.Render("\n\n   R E T R O G P T\n")
	}

	var b strings.Builder
	for _, msg := range msgs {
		prefix := aiPrefix
		style := aiStyle
		if msg.Sender == chat.SenderUser {
			prefix = userPrefix
			style = userStyle
		}
		text := msg.Text
		if msg.Failed {
			text += " [failed]"
			style = errorStyle
		}
		b.WriteString(style.Width(width).Render(prefix + text))
		b.WriteString("\n\n")
	}
	return b.String()
}
