package console

import (
	"context"
	"fmt"
	"strings"
	"time"

	"chatpoll/pkg/channel"
	"chatpoll/pkg/chat"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
)

const (
	roleUser  = "user"
	roleBot   = "bot"
	roleError = "error"
)

type line struct {
	role string
	user string
	text string
}

// replyMsg carries a message sent by the bot into the program.
type replyMsg struct {
	msg chat.Message
}

// handledMsg reports the outcome of handing a typed line to the handler.
type handledMsg struct {
	err error
}

type model struct {
	ctx     context.Context
	handler channel.Handler
	chatID  string
	user    string

	theme     theme
	spinner   spinner.Model
	input     textinput.Model
	viewport  viewport.Model
	lines     []line
	width     int
	height    int
	isReady   bool
	waiting   bool
	lastErr   string
	followLog bool
}

func newModel(ctx context.Context, handler channel.Handler, chatID string, user string) *model {
	spin := spinner.New()
	spin.Spinner = spinner.Points
	spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	in := textinput.New()
	in.Prompt = ""
	in.Placeholder = "Say something..."
	in.Focus()
	in.CharLimit = 0

	return &model{
		ctx:       ctx,
		handler:   handler,
		chatID:    chatID,
		user:      user,
		theme:     defaultTheme(),
		spinner:   spin,
		input:     in,
		viewport:  viewport.New(80, 12),
		width:     100,
		height:    28,
		followLog: true,
	}
}

func (m *model) Init() tea.Cmd {
	return textinput.Blink
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.height = typed.Height
		m.resizeComponents()
		m.refreshViewport(false)
		m.isReady = true
		return m, nil
	case tea.KeyMsg:
		switch typed.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		}

		if m.handleViewportKey(typed) {
			return m, nil
		}

		if typed.String() == "enter" {
			text := strings.TrimSpace(m.input.Value())
			if text == "" {
				return m, nil
			}
			if isExitCommand(text) {
				return m, tea.Quit
			}

			m.lastErr = ""
			m.lines = append(m.lines, line{role: roleUser, user: m.user, text: text})
			m.input.SetValue("")
			m.waiting = true
			m.followLog = true
			m.refreshViewport(true)

			inbound := chat.Message{
				ID:          uuid.NewString(),
				Destination: m.chatID,
				Text:        text,
				User:        m.user,
				CreatedAt:   time.Now().UTC(),
			}
			return m, tea.Batch(m.spinner.Tick, handleCmd(m.ctx, m.handler, inbound))
		}
	case spinner.TickMsg:
		if !m.waiting {
			return m, nil
		}
		m.spinner, cmd = m.spinner.Update(typed)
		return m, cmd
	case handledMsg:
		if typed.err != nil {
			m.waiting = false
			m.lastErr = typed.err.Error()
			m.lines = append(m.lines, line{role: roleError, text: typed.err.Error()})
			m.refreshViewport(false)
		}
		return m, nil
	case replyMsg:
		m.waiting = false
		m.lines = append(m.lines, line{role: roleBot, user: typed.msg.User, text: typed.msg.Text})
		m.refreshViewport(false)
		return m, nil
	}

	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *model) View() string {
	if !m.isReady {
		m.resizeComponents()
		m.refreshViewport(false)
	}

	header := m.theme.header.Width(m.width - 2).Render("chatpoll console")
	meta := m.theme.headerMeta.Render(fmt.Sprintf("chat:%s · user:%s · messages:%d", m.chatID, m.user, len(m.lines)))
	divider := m.theme.divider.Width(m.width - 2).Render(strings.Repeat("─", max(8, m.width-2)))

	status := m.theme.status.Render("Enter send  ·  PgUp/PgDn scroll  ·  End jump latest  ·  Ctrl+C/Esc quit")
	if m.waiting {
		status = m.theme.statusBusy.Render(fmt.Sprintf("%s waiting for reply...", m.spinner.View()))
	}
	if m.lastErr != "" {
		status = m.theme.statusErr.Render("last message failed - try again")
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		meta,
		divider,
		m.theme.viewport.Width(m.width-2).Render(m.viewport.View()),
		status,
		m.theme.inputLabel.Render(m.user)+" "+m.theme.hint.Render("(type /exit, quit, or :q)"),
		m.theme.input.Width(m.width-2).Render(m.input.View()),
	)
}

func (m *model) resizeComponents() {
	w := max(m.width-6, 40)
	h := max(m.height-10, 6)

	m.viewport.Width = w
	m.viewport.Height = h
	m.input.Width = w - 2
}

func (m *model) refreshViewport(forceBottom bool) {
	previousOffset := m.viewport.YOffset
	sections := make([]string, 0, len(m.lines))
	for _, item := range m.lines {
		switch item.role {
		case roleUser:
			sections = append(sections, lipgloss.JoinVertical(lipgloss.Left,
				m.theme.userTitle.Render(displayOrNA(item.user)),
				m.theme.userBox.Width(m.viewport.Width).Render(item.text),
			))
		case roleBot:
			sections = append(sections, lipgloss.JoinVertical(lipgloss.Left,
				m.theme.botTitle.Render(displayOrNA(item.user)),
				m.theme.botBox.Width(m.viewport.Width).Render(item.text),
			))
		case roleError:
			sections = append(sections, lipgloss.JoinVertical(lipgloss.Left,
				m.theme.errorTitle.Render("ERROR"),
				m.theme.errorBox.Width(m.viewport.Width).Render(item.text),
			))
		}
	}

	m.viewport.SetContent(strings.Join(sections, "\n\n"))
	if m.followLog || forceBottom {
		m.viewport.GotoBottom()
		m.followLog = true
		return
	}

	maxOffset := max(m.viewport.TotalLineCount()-m.viewport.Height, 0)
	m.viewport.SetYOffset(min(previousOffset, maxOffset))
}

func (m *model) handleViewportKey(msg tea.KeyMsg) bool {
	switch msg.String() {
	case "pgup", "ctrl+b", "alt+up", "ctrl+up":
		m.viewport.PageUp()
		m.followLog = false
		return true
	case "pgdown", "ctrl+f", "alt+down", "ctrl+down":
		m.viewport.PageDown()
		if m.viewport.AtBottom() {
			m.followLog = true
		}
		return true
	case "home":
		m.viewport.GotoTop()
		m.followLog = false
		return true
	case "end":
		m.viewport.GotoBottom()
		m.followLog = true
		return true
	default:
		return false
	}
}

func handleCmd(ctx context.Context, handler channel.Handler, msg chat.Message) tea.Cmd {
	return func() tea.Msg {
		return handledMsg{err: handler(ctx, msg)}
	}
}

func displayOrNA(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "n/a"
	}

	return trimmed
}

func isExitCommand(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "exit", "/exit", "quit", ":q":
		return true
	default:
		return false
	}
}
