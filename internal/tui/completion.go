// internal/tui/completion.go
// Package tui provides an interactive completion surface in the terminal.
//
// The user types a snippet that is spliced into a source file at a fixed
// position. Every keystroke updates the unsaved draft and drives the
// proposal cache, which refilters locally or requeries the worker.
package tui

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mwiater/codeintel/internal/bufsync"
	"github.com/mwiater/codeintel/internal/logging"
	"github.com/mwiater/codeintel/internal/proposals"
	"github.com/mwiater/codeintel/internal/rpc"
)

const maxVisible = 10

// Options configures a completion session.
type Options struct {
	Cache *proposals.Cache
	Store *bufsync.Store
	Path  string
	// Base is the file content the snippet is inserted into.
	Base []byte
	// Line and Column are the 0-based insertion point in Base.
	Line   int
	Column int
}

// changeMsg is sent whenever the cache emits a change.
type changeMsg struct{}

// populatedMsg is sent when a Populate request has been applied.
type populatedMsg struct{ err error }

// model is the Bubble Tea model of the completion surface.
type model struct {
	ctx      context.Context
	opts     Options
	offset   int
	input    textinput.Model
	spinner  spinner.Model
	snapshot proposals.Snapshot
	selected int
	err      error
	width    int
	height   int
}

func initialModel(ctx context.Context, opts Options) *model {
	ti := textinput.New()
	ti.Placeholder = "type to complete, ctrl+space to force, tab to accept"
	ti.Prompt = "> "
	ti.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return &model{
		ctx:     ctx,
		opts:    opts,
		offset:  offsetOf(opts.Base, opts.Line, opts.Column),
		input:   ti,
		spinner: s,
	}
}

// offsetOf converts a 0-based line and byte column into an offset in src,
// clamped to the end of the line and of the buffer.
func offsetOf(src []byte, line, column int) int {
	off := 0
	for i := 0; i < line; i++ {
		nl := bytes.IndexByte(src[off:], '\n')
		if nl < 0 {
			return len(src)
		}
		off += nl + 1
	}
	end := len(src)
	if nl := bytes.IndexByte(src[off:], '\n'); nl >= 0 {
		end = off + nl
	}
	return min(off+max(column, 0), end)
}

// content is the draft: the base file with the typed snippet spliced in.
func (m *model) content() []byte {
	typed := m.input.Value()
	out := make([]byte, 0, len(m.opts.Base)+len(typed))
	out = append(out, m.opts.Base[:m.offset]...)
	out = append(out, typed...)
	return append(out, m.opts.Base[m.offset:]...)
}

// beforeCursor returns the typed text left of the cursor.
func (m *model) beforeCursor() string {
	runes := []rune(m.input.Value())
	return string(runes[:min(m.input.Position(), len(runes))])
}

func isWordByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// trailingWord returns the identifier that ends at the end of s.
func trailingWord(s string) string {
	i := len(s)
	for i > 0 && isWordByte(s[i-1]) {
		i--
	}
	return s[i:]
}

// refresh pushes the draft and brings the cache in line with the word under
// the cursor. An empty word clears the list unless completion was forced.
func (m *model) refresh(forced bool) tea.Cmd {
	m.opts.Store.Update(m.opts.Path, m.content())

	typed := m.beforeCursor()
	word := trailingWord(typed)
	if word == "" && !forced {
		m.opts.Cache.Clear()
		return nil
	}
	anchor := proposals.Anchor{
		Path:   m.opts.Path,
		Line:   m.opts.Line,
		Column: m.opts.Column + len(typed) - len(word),
	}
	pending := m.opts.Cache.Populate(m.ctx, anchor, word)
	return tea.Batch(m.spinner.Tick, func() tea.Msg {
		return populatedMsg{err: pending.Wait()}
	})
}

// accept replaces the word under the cursor with the selected keyword.
func (m *model) accept() {
	c, err := m.snapshot.At(m.selected)
	if err != nil {
		return
	}
	typed := m.beforeCursor()
	word := trailingWord(typed)
	rest := string([]rune(m.input.Value())[len([]rune(typed)):])
	prefix := typed[:len(typed)-len(word)] + c.Proposal.Keyword()
	m.input.SetValue(prefix + rest)
	m.input.SetCursor(len([]rune(prefix)))
	m.opts.Store.Update(m.opts.Path, m.content())
	m.opts.Cache.Clear()
}

// Init starts the cursor blink.
func (m *model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles keys, window resizes and cache notifications.
func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "up":
			if m.selected > 0 {
				m.selected--
			}
			return m, nil
		case "down":
			if m.selected < m.snapshot.Len()-1 {
				m.selected++
			}
			return m, nil
		case "tab", "enter":
			m.accept()
			return m, nil
		case "ctrl+@", "ctrl+ ":
			m.err = nil
			return m, m.refresh(true)
		}
		before := m.input.Value()
		beforePos := m.input.Position()
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		if m.input.Value() == before && m.input.Position() == beforePos {
			return m, cmd
		}
		m.err = nil
		return m, tea.Batch(cmd, m.refresh(false))

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.input.Width = max(msg.Width-4, 10)
		return m, nil

	case changeMsg:
		m.sync()
		return m, nil

	case populatedMsg:
		if msg.err != nil {
			logging.LogEvent("completion failed: %v", msg.err)
			m.err = msg.err
		}
		m.sync()
		return m, nil

	case spinner.TickMsg:
		if !m.opts.Cache.Querying() {
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

// sync reads the latest candidates. Positions are not stable across
// changes, so the selection returns to the top.
func (m *model) sync() {
	m.snapshot = m.opts.Cache.Snapshot()
	m.selected = 0
}

var (
	headerStyle   = lipgloss.NewStyle().Background(lipgloss.Color("62")).Foreground(lipgloss.Color("230")).Padding(0, 1)
	popupStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1)
	selectedStyle = lipgloss.NewStyle().Background(lipgloss.Color("229")).Foreground(lipgloss.Color("0"))
	kindStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	deprecated    = lipgloss.NewStyle().Strikethrough(true)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// View renders the header, the input line and the candidate popup.
func (m *model) View() string {
	var b strings.Builder

	b.WriteString(headerStyle.Render(fmt.Sprintf("%s:%d:%d", m.opts.Path, m.opts.Line+1, m.opts.Column+1)))
	b.WriteString("\n\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")

	if m.opts.Cache.Querying() {
		fmt.Fprintf(&b, "%s querying...\n", m.spinner.View())
	}
	if m.err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n")
	}
	if popup := m.popup(); popup != "" {
		b.WriteString(popupStyle.Render(popup))
		b.WriteString("\n")
	}
	return b.String()
}

func (m *model) popup() string {
	n := m.snapshot.Len()
	if n == 0 {
		return ""
	}
	start := 0
	if m.selected >= maxVisible {
		start = m.selected - maxVisible + 1
	}
	end := min(start+maxVisible, n)

	rows := make([]string, 0, end-start+1)
	for i := start; i < end; i++ {
		c, err := m.snapshot.At(i)
		if err != nil {
			continue
		}
		p := c.Proposal
		keyword := p.Keyword()
		if p.Availability() == rpc.Deprecated {
			keyword = deprecated.Render(keyword)
		}
		row := fmt.Sprintf("%-24s %s", keyword, kindStyle.Render(rpc.CompletionKindName(p.Kind())))
		if d := p.Detail(); d != "" {
			row += "  " + kindStyle.Render(d)
		}
		if m.width > 8 {
			row = lipgloss.NewStyle().MaxWidth(m.width - 8).Render(row)
		}
		if i == m.selected {
			row = selectedStyle.Render(row)
		}
		rows = append(rows, row)
	}
	if n > end {
		rows = append(rows, kindStyle.Render(fmt.Sprintf("... %d more", n-end)))
	}
	return strings.Join(rows, "\n")
}

// Run starts the completion surface and blocks until the user quits.
func Run(ctx context.Context, opts Options) error {
	m := initialModel(ctx, opts)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	unsubscribe := opts.Cache.Subscribe(func(proposals.Change) {
		go p.Send(changeMsg{})
	})
	defer unsubscribe()
	defer opts.Cache.Clear()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run completion surface: %w", err)
	}
	return nil
}
