// Command client is a terminal front end for the relay.
//
// Usage:
//
//	go run ./cmd/client -config ./configs/config.yaml
//
// Type a message and press Enter. Esc or Ctrl+C quits.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"

	"vibegame-backend/internal/client"
	"vibegame-backend/internal/config"
	"vibegame-backend/internal/history"
	"vibegame-backend/pkg/logger"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	narratorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("5")).
			Bold(true)

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("2")).
			Bold(true)

	messageStyle = lipgloss.NewStyle().PaddingLeft(2)
	hintStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
)

// Messages posted by programRenderer from the goroutine running Send.
type (
	userMsg         struct{ text string }
	assistantMsg    struct{ text string }
	streamBeginMsg  struct{ id string }
	streamUpdateMsg struct{ id, text string }
	streamFinishMsg struct{ id, text string }
	inputMsg        struct{ enabled bool }
	sendDoneMsg     struct{ err error }
)

// programRenderer forwards session events into the bubbletea loop. It sends
// text snapshots so the UI never reads a message the session still mutates.
type programRenderer struct {
	program *tea.Program
}

func (r *programRenderer) ShowUserMessage(t history.Turn) { r.program.Send(userMsg{t.Content}) }
func (r *programRenderer) ShowMessage(t history.Turn)     { r.program.Send(assistantMsg{t.Content}) }
func (r *programRenderer) SetInputEnabled(enabled bool)   { r.program.Send(inputMsg{enabled}) }

func (r *programRenderer) BeginStreaming(m *client.StreamingMessage) {
	r.program.Send(streamBeginMsg{id: m.ID})
}

func (r *programRenderer) UpdateStreaming(m *client.StreamingMessage) {
	r.program.Send(streamUpdateMsg{id: m.ID, text: m.Text()})
}

func (r *programRenderer) FinishStreaming(m *client.StreamingMessage, t history.Turn) {
	r.program.Send(streamFinishMsg{id: m.ID, text: t.Content})
}

type entry struct {
	id        string
	role      history.Role
	text      string
	streaming bool
}

type model struct {
	ctx      context.Context
	session  *client.Session
	relayURL string

	entries      []entry
	inputEnabled bool
	err          error
	width        int

	viewport viewport.Model
	textarea textarea.Model
	spinner  spinner.Model
	markdown *glamour.TermRenderer
}

func newModel(ctx context.Context, session *client.Session, relayURL string) model {
	ta := textarea.New()
	ta.Placeholder = "What do you do?"
	ta.Focus()
	ta.Prompt = "┃ "
	ta.CharLimit = 500
	ta.SetWidth(80)
	ta.SetHeight(2)
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.ShowLineNumbers = false
	ta.KeyMap.InsertNewline.SetEnabled(false)

	vp := viewport.New(80, 20)
	vp.SetContent(hintStyle.Render("The adventure awaits. Describe your first move."))

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return model{
		ctx:          ctx,
		session:      session,
		relayURL:     relayURL,
		inputEnabled: true,
		width:        80,
		viewport:     vp,
		textarea:     ta,
		spinner:      sp,
		markdown:     newMarkdown(80),
	}
}

// Standard styles avoid terminal queries that would leak into the input.
func newMarkdown(width int) *glamour.TermRenderer {
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(max(width-4, 20)),
	)
	if err != nil {
		logger.Warnf("Markdown renderer unavailable: %v", err)
		return nil
	}
	return r
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick)
}

func sendCmd(ctx context.Context, session *client.Session, text string) tea.Cmd {
	return func() tea.Msg {
		_, err := session.Send(ctx, text)
		return sendDoneMsg{err: err}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-m.textarea.Height()-4, 1)
		m.textarea.SetWidth(msg.Width)
		m.markdown = newMarkdown(msg.Width)
		m.refresh()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			text := strings.TrimSpace(m.textarea.Value())
			if !m.inputEnabled || text == "" {
				return m, nil
			}
			// Lock input now; the session's own inputMsg arrives only once
			// the command is running.
			m.err = nil
			m.inputEnabled = false
			m.textarea.Reset()
			m.textarea.Blur()
			return m, sendCmd(m.ctx, m.session, text)
		}

	case userMsg:
		m.entries = append(m.entries, entry{role: history.RoleUser, text: msg.text})
		m.refresh()

	case assistantMsg:
		m.entries = append(m.entries, entry{role: history.RoleAssistant, text: msg.text})
		m.refresh()

	case streamBeginMsg:
		m.entries = append(m.entries, entry{id: msg.id, role: history.RoleAssistant, streaming: true})
		m.refresh()

	case streamUpdateMsg:
		if e := m.find(msg.id); e != nil {
			e.text = msg.text
			m.refresh()
		}

	case streamFinishMsg:
		if e := m.find(msg.id); e != nil {
			e.text = msg.text
			e.streaming = false
			m.refresh()
		}

	case inputMsg:
		m.inputEnabled = msg.enabled
		if msg.enabled {
			cmds = append(cmds, m.textarea.Focus())
		} else {
			m.textarea.Blur()
		}

	case sendDoneMsg:
		if msg.err != nil && !errors.Is(msg.err, client.ErrSendInProgress) {
			m.err = msg.err
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	var taCmd, vpCmd tea.Cmd
	if m.inputEnabled {
		m.textarea, taCmd = m.textarea.Update(msg)
	}
	m.viewport, vpCmd = m.viewport.Update(msg)
	cmds = append(cmds, taCmd, vpCmd)

	return m, tea.Batch(cmds...)
}

func (m *model) find(id string) *entry {
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].id == id {
			return &m.entries[i]
		}
	}
	return nil
}

func (m *model) refresh() {
	var b strings.Builder
	for _, e := range m.entries {
		if e.role == history.RoleUser {
			b.WriteString(userStyle.Render("You"))
			b.WriteString("\n")
			b.WriteString(messageStyle.Render(e.text))
			b.WriteString("\n\n")
			continue
		}

		b.WriteString(narratorStyle.Render("Dungeon Master"))
		b.WriteString("\n")
		switch {
		case e.streaming:
			b.WriteString(messageStyle.Width(m.width - 2).Render(e.text + client.StreamingIndicator))
			b.WriteString("\n\n")
		case m.markdown != nil:
			rendered, err := m.markdown.Render(e.text)
			if err != nil {
				rendered = messageStyle.Render(e.text) + "\n\n"
			}
			b.WriteString(rendered)
		default:
			b.WriteString(messageStyle.Width(m.width - 2).Render(e.text))
			b.WriteString("\n\n")
		}
	}
	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

func (m model) View() string {
	header := titleStyle.Render("Dungeon Crawler") + " " + hintStyle.Render(m.relayURL)

	status := hintStyle.Render("Enter to send, Esc to quit")
	if !m.inputEnabled {
		status = m.spinner.View() + hintStyle.Render(" The Dungeon Master is narrating...")
	}
	if m.err != nil {
		status = errorStyle.Render(fmt.Sprintf("Error: %v", m.err))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.viewport.View(),
		status,
		m.textarea.View(),
	)
}

func main() {
	var configPath, logPath string
	flag.StringVar(&configPath, "config", "./configs/config.yaml", "path to the config file")
	flag.StringVar(&logPath, "log", "", "write logs to this file instead of discarding them")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Failed to load .env: %v", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	// The UI owns the terminal; log lines go to a file or nowhere.
	var logOut io.Writer = io.Discard
	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Fatalf("Failed to open log file: %v", err)
		}
		defer f.Close()
		logOut = f
	}
	logger.SetOutput(logOut)

	bridge := &programRenderer{}
	session := client.NewSession(client.Options{
		RelayURL:          cfg.Client.RelayURL,
		Timeout:           cfg.Client.Timeout,
		MaxHistory:        cfg.Relay.MaxHistory,
		Renderer:          bridge,
		SimulateStreaming: cfg.Client.SimulateStreaming,
		SimulateDelay:     cfg.Client.SimulateDelay,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := tea.NewProgram(newModel(ctx, session, cfg.Client.RelayURL), tea.WithAltScreen())
	bridge.program = p

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
