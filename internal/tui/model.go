package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ragd/internal/domain"
	"ragd/internal/service"
)

// ChatPort is the TUI-facing subset of the pipeline service.
type ChatPort interface {
	AnswerWithHistory(ctx context.Context, question string, history []domain.ConversationTurn, opts service.QueryOptions) (domain.AnswerResult, error)
}

// Model is the Bubble Tea model for the interactive chat session.
type Model struct {
	service  ChatPort
	opts     service.QueryOptions
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	history  []domain.ConversationTurn
	lines    []string
	status   string
	waiting  bool
	ready    bool
}

type answerMsg struct {
	question string
	result   domain.AnswerResult
	err      error
}

// New creates a chat model over the given service.
func New(svc ChatPort, opts service.QueryOptions) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	vp := viewport.New(0, 0)
	return Model{
		service:  svc,
		opts:     opts,
		input:    ti,
		viewport: vp,
		spinner:  sp,
		status:   "Connected. Ask away.",
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, ch := chatBoxStyle.GetFrameSize()
		_, qh := inputBoxStyle.GetFrameSize()
		reserved := 1 + 1 + qh + 1 // header, status, input frame, spacer
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = maxInt(20, msg.Width)
		m.viewport.Height = maxInt(3, vh-ch)
		m.viewport.SetContent(m.transcript())
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.waiting {
				return m, nil
			}
			m.input.SetValue("")
			m.waiting = true
			m.status = "Thinking..."
			m.lines = append(m.lines, userStyle.Render("You: ")+q)
			m.viewport.SetContent(m.transcript())
			m.viewport.GotoBottom()
			return m, tea.Batch(m.spinner.Tick, m.ask(q))
		case "up":
			m.viewport.LineUp(1)
			return m, nil
		case "down":
			m.viewport.LineDown(1)
			return m, nil
		}

	case answerMsg:
		m.waiting = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			return m, nil
		}
		m.history = append(m.history,
			domain.ConversationTurn{Role: "user", Content: msg.question},
			domain.ConversationTurn{Role: "assistant", Content: msg.result.Answer},
		)
		m.lines = append(m.lines, assistantStyle.Render("Assistant: ")+msg.result.Answer)
		if len(msg.result.Sources) > 0 {
			m.lines = append(m.lines, sourceStyle.Render(
				fmt.Sprintf("sources: %s  confidence: %.2f",
					strings.Join(msg.result.Sources, ", "), msg.result.Confidence)))
		}
		m.status = fmt.Sprintf("Answered from %d chunks", msg.result.ChunkCount)
		m.viewport.SetContent(m.transcript())
		m.viewport.GotoBottom()
		return m, nil

	case spinner.TickMsg:
		if !m.waiting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) ask(question string) tea.Cmd {
	history := append([]domain.ConversationTurn(nil), m.history...)
	return func() tea.Msg {
		result, err := m.service.AnswerWithHistory(context.Background(), question, history, m.opts)
		return answerMsg{question: question, result: result, err: err}
	}
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("ragd chat")
	chat := chatBoxStyle.Render(m.viewport.View())
	input := inputBoxStyle.Render(m.input.View())
	status := m.status
	if m.waiting {
		status = m.spinner.View() + " " + status
	}
	return header + "\n" + chat + "\n" + input + "\n" + statusStyle.Render(status)
}

func (m Model) transcript() string {
	if len(m.lines) == 0 {
		return "No messages yet."
	}
	return strings.Join(m.lines, "\n\n")
}

var (
	chatBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	sourceStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
