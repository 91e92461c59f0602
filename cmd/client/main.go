// Chat relay TUI client.
//
// Screens
// -------
//   stateLogin – waits for the server prompt, then asks for a username
//   stateChat  – full-screen chat with scrollable message viewport
//
// Concurrency
// -----------
//   A single goroutine reads newline-delimited text from the TCP connection
//   and forwards each line to the lines channel.  The Bubbletea event loop
//   consumes one line at a time via waitForLine (a tea.Cmd), immediately
//   queuing the next read after each line is processed.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/kelseyhightower/envconfig"

	"chatrelay/internal/protocol"
)

// Config is read from the environment; -addr overrides it.
type Config struct {
	Addr string `envconfig:"CHAT_ADDR" default:"localhost:8081"`
}

// ---------------------------------------------------------------------------
// Styles
// ---------------------------------------------------------------------------

var (
	purple = lipgloss.Color("99")
	cyan   = lipgloss.Color("86")
	red    = lipgloss.Color("196")
	yellow = lipgloss.Color("220")
	gray   = lipgloss.Color("241")
	white  = lipgloss.Color("255")
	orange = lipgloss.Color("214")
	blue   = lipgloss.Color("75")

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Background(purple).
			Foreground(white).
			Padding(0, 1)

	footerBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.NormalBorder(), true, false, false, false).
				BorderForeground(gray).
				Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(purple).
			Padding(0, 2)

	labelStyle = lipgloss.NewStyle().
			Foreground(cyan).
			Width(10)

	hintStyle = lipgloss.NewStyle().
			Foreground(gray).
			Italic(true)

	errorStyle  = lipgloss.NewStyle().Foreground(red)
	sysStyle    = lipgloss.NewStyle().Foreground(yellow).Italic(true)
	tsStyle     = lipgloss.NewStyle().Foreground(gray)
	myNameStyle = lipgloss.NewStyle().Bold(true).Foreground(orange)
	peerStyle   = lipgloss.NewStyle().Bold(true).Foreground(blue)
)

// ---------------------------------------------------------------------------
// Bubbletea message types
// ---------------------------------------------------------------------------

type serverLineMsg string     // a line arrived from the server
type disconnectedMsg struct{} // server closed the connection

// ---------------------------------------------------------------------------
// Application state
// ---------------------------------------------------------------------------

type appState int

const (
	stateLogin appState = iota
	stateChat
)

// ---------------------------------------------------------------------------
// Model
// ---------------------------------------------------------------------------

type model struct {
	out   io.Writer
	lines chan string // goroutine → bubbletea bridge
	now   func() time.Time

	state    appState
	me       string
	prompted bool // the server prompt has been received

	// Login
	nameField textinput.Model
	statusMsg string

	// Chat
	ready       bool
	viewport    viewport.Model
	chatInput   textinput.Model
	chatLines   []string
	onlineCount int

	width, height int
}

func newModel(out io.Writer, lines chan string) model {
	nf := textinput.New()
	nf.Placeholder = "username"
	nf.Focus()
	nf.CharLimit = 32
	nf.Width = 32

	ci := textinput.New()
	ci.Placeholder = "Type a message…"
	ci.CharLimit = 500

	return model{
		out:       out,
		lines:     lines,
		now:       time.Now,
		state:     stateLogin,
		nameField: nf,
		chatInput: ci,
	}
}

// ---------------------------------------------------------------------------
// Tea interface – Init / Update
// ---------------------------------------------------------------------------

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForLine(m.lines))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if !m.ready {
			m.viewport = viewport.New(msg.Width, m.vpHeight())
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = m.vpHeight()
		}
		m.chatInput.Width = msg.Width - 4
		return m, nil

	case serverLineMsg:
		m = m.handleServerLine(string(msg))
		return m, waitForLine(m.lines)

	case disconnectedMsg:
		m.statusMsg = "disconnected from server"
		return m, tea.Quit

	case tea.KeyMsg:
		switch m.state {
		case stateLogin:
			return m.handleLoginKey(msg)
		case stateChat:
			return m.handleChatKey(msg)
		}
	}
	return m, nil
}

// vpHeight returns the number of lines available for the chat viewport.
func (m model) vpHeight() int {
	// header (1) + footer border (1) + footer input (1)
	return max(m.height-3, 1)
}

// ---------------------------------------------------------------------------
// Key handlers
// ---------------------------------------------------------------------------

func (m model) handleLoginKey(msg tea.KeyMsg) (model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit

	case tea.KeyEnter:
		if !m.prompted {
			m.statusMsg = "waiting for the server…"
			return m, nil
		}
		// The relay takes the line verbatim, so only refuse an empty one here.
		name := m.nameField.Value()
		if strings.TrimSpace(name) == "" {
			m.statusMsg = "username is required"
			return m, nil
		}
		if err := sendLine(m.out, name); err != nil {
			m.statusMsg = err.Error()
			return m, nil
		}
		m.me = name
		m.state = stateChat
		m.onlineCount = 1
		m.statusMsg = ""
		m.chatInput.Focus()
		return m, textinput.Blink
	}

	var cmd tea.Cmd
	m.nameField, cmd = m.nameField.Update(msg)
	return m, cmd
}

func (m model) handleChatKey(msg tea.KeyMsg) (model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyCtrlQ:
		return m, tea.Quit

	case tea.KeyEnter:
		content := m.chatInput.Value()
		if strings.TrimSpace(content) == "" {
			return m, nil
		}
		if err := sendLine(m.out, content); err != nil {
			m.appendChat(errorStyle.Render("⚠ " + err.Error()))
			return m, nil
		}
		// The relay never echoes a line back to its sender.
		m.appendChat(m.renderChat(protocol.NewChat(m.me, content)))
		m.chatInput.Reset()
		return m, nil

	case tea.KeyPgUp:
		m.viewport.HalfViewUp()
		return m, nil

	case tea.KeyPgDown:
		m.viewport.HalfViewDown()
		return m, nil
	}

	var cmd tea.Cmd
	m.chatInput, cmd = m.chatInput.Update(msg)
	return m, cmd
}

// ---------------------------------------------------------------------------
// Server line handler
// ---------------------------------------------------------------------------

func (m model) handleServerLine(line string) model {
	if m.state == stateLogin && !m.prompted {
		if line == protocol.Prompt {
			m.prompted = true
			m.statusMsg = ""
		}
		return m
	}

	msg, ok := protocol.Parse(line)
	if !ok {
		m.appendChat(hintStyle.Render(line))
		return m
	}
	switch msg := msg.(type) {
	case protocol.UserJoined:
		m.onlineCount++
		m.appendChat(sysStyle.Render("⚡ " + msg.Text))
	case protocol.UserLeft:
		if m.onlineCount > 1 {
			m.onlineCount--
		}
		m.appendChat(sysStyle.Render("⚡ " + msg.Text))
	case protocol.Chat:
		m.appendChat(m.renderChat(msg))
	}
	return m
}

func (m model) renderChat(c protocol.Chat) string {
	ts := tsStyle.Render("[" + m.now().Format("15:04:05") + "]")
	name := peerStyle.Render(c.Sender)
	if c.Sender == m.me {
		name = myNameStyle.Render(c.Sender)
	}
	return ts + " " + name + ": " + c.Content
}

// appendChat adds a rendered line and scrolls the viewport to the bottom.
func (m *model) appendChat(line string) {
	m.chatLines = append(m.chatLines, line)
	m.viewport.SetContent(strings.Join(m.chatLines, "\n"))
	m.viewport.GotoBottom()
}

// ---------------------------------------------------------------------------
// Tea interface – View
// ---------------------------------------------------------------------------

func (m model) View() string {
	switch m.state {
	case stateLogin:
		return m.viewLogin()
	case stateChat:
		return m.viewChat()
	}
	return ""
}

func (m model) viewLogin() string {
	if m.width == 0 {
		return "\n  Connecting to server…"
	}

	status := ""
	if m.statusMsg != "" {
		status = errorStyle.Render(m.statusMsg)
	} else if !m.prompted {
		status = hintStyle.Render("waiting for the server…")
	}

	form := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("  Chat Relay  "),
		"",
		labelStyle.Render("Username")+"  "+m.nameField.View(),
		"",
		hintStyle.Render("Enter: join   Ctrl+C: quit"),
		"",
		status,
	)

	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, form)
}

func (m model) viewChat() string {
	if !m.ready {
		return "\n  Connecting…"
	}

	hdr := headerStyle.
		Width(m.width).
		Render(fmt.Sprintf(" Chat Relay  ·  %s  ·  ~%d online  ·  PgUp/Dn: Scroll  Ctrl+C: Quit",
			m.me, m.onlineCount))

	footer := footerBorderStyle.
		Width(m.width - 2).
		Render(m.chatInput.View())

	return lipgloss.JoinVertical(lipgloss.Left, hdr, m.viewport.View(), footer)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// waitForLine returns a tea.Cmd that blocks until the next line arrives on ch.
// When ch is closed (server disconnected), it returns disconnectedMsg.
func waitForLine(ch <-chan string) tea.Cmd {
	return func() tea.Msg {
		line, ok := <-ch
		if !ok {
			return disconnectedMsg{}
		}
		return serverLineMsg(line)
	}
}

// sendLine writes one newline-terminated line.  Embedded newlines would split
// it into several messages, so they are flattened to spaces.
func sendLine(w io.Writer, line string) error {
	line = strings.NewReplacer("\r", " ", "\n", " ").Replace(line)
	if _, err := io.WriteString(w, line+"\n"); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

// readLines forwards every line from r to ch and closes ch at end of stream.
func readLines(r io.Reader, ch chan<- string) {
	defer close(ch)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	for scanner.Scan() {
		ch <- strings.TrimSuffix(scanner.Text(), "\r")
	}
}

// ---------------------------------------------------------------------------
// Main
// ---------------------------------------------------------------------------

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	addr := flag.String("addr", cfg.Addr, "server address")
	flag.Parse()

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()

	lines := make(chan string, 64)
	go readLines(conn, lines)

	p := tea.NewProgram(
		newModel(conn, lines),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	_, err = p.Run()
	return err
}
