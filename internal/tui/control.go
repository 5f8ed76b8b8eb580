// Package tui is the interactive control surface. The bubbletea program owns
// all display state: results and status changes reach it only as messages.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"lid/internal/audio"
	"lid/internal/pipeline"
)

const barWidth = 30

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)

	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87")).Bold(true)
	barStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#25A065"))
)

// Controller is the part of pipeline.Controller the UI drives.
type Controller interface {
	StartCapture() error
	StopCapture() error
	Playback() bool
	Reset()
	Save(path string) (string, error)
	Status() pipeline.Status
}

type keyMap struct {
	Detect key.Binding
	Stop   key.Binding
	Play   key.Binding
	Reset  key.Binding
	Save   key.Binding
	Quit   key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Detect, k.Stop, k.Play, k.Reset, k.Save, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

func newKeyMap() keyMap {
	return keyMap{
		Detect: key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "detect")),
		Stop:   key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "stop")),
		Play:   key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "play back")),
		Reset:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reset")),
		Save:   key.NewBinding(key.WithKeys("w"), key.WithHelp("w", "save window")),
		Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// Messages handed to the program from other goroutines.
type (
	statusMsg       pipeline.Status
	resultMsg       pipeline.Result
	playbackDoneMsg struct{ err error }
	opDoneMsg       struct {
		op   string
		info string
		err  error
	}
)

// Model is the bubbletea model of the control surface.
type Model struct {
	ctrl   Controller
	title  string
	keys   keyMap
	help   help.Model
	status pipeline.Status
	result *pipeline.Result
	note   string
	err    error
	width  int
}

// NewModel returns a model driving ctrl.
func NewModel(ctrl Controller, title string) Model {
	m := Model{
		ctrl:   ctrl,
		title:  title,
		keys:   newKeyMap(),
		help:   help.New(),
		status: ctrl.Status(),
	}
	m.applyControls()
	return m
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width

	case statusMsg:
		m.status = pipeline.Status(msg)
		m.applyControls()

	case resultMsg:
		res := pipeline.Result(msg)
		if res.Err != nil {
			m.err = res.Err
		} else {
			m.err = nil
			m.result = &res
		}

	case playbackDoneMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.note = "playback finished"
		}

	case opDoneMsg:
		if msg.err != nil {
			m.err = fmt.Errorf("%s: %w", msg.op, msg.err)
		} else if msg.info != "" {
			m.note = msg.info
		}

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

// handleKey runs control operations as commands so a blocking device call
// never stalls rendering. Keys for disabled controls are ignored.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Detect):
		m.note = ""
		return m, m.run("detect", func() (string, error) { return "", m.ctrl.StartCapture() })

	case key.Matches(msg, m.keys.Stop):
		return m, m.run("stop", func() (string, error) { return "", m.ctrl.StopCapture() })

	case key.Matches(msg, m.keys.Play):
		m.note = ""
		return m, m.run("play", func() (string, error) {
			if !m.ctrl.Playback() {
				return "playback already running", nil
			}
			return "", nil
		})

	case key.Matches(msg, m.keys.Reset):
		m.result = nil
		return m, m.run("reset", func() (string, error) {
			m.ctrl.Reset()
			return "window cleared", nil
		})

	case key.Matches(msg, m.keys.Save):
		return m, m.run("save", func() (string, error) {
			path, err := m.ctrl.Save("")
			if err != nil {
				return "", err
			}
			return "saved " + path, nil
		})
	}
	return m, nil
}

func (m Model) run(op string, fn func() (string, error)) tea.Cmd {
	return func() tea.Msg {
		info, err := fn()
		return opDoneMsg{op: op, info: info, err: err}
	}
}

// applyControls enables exactly the bindings the status allows. key.Matches
// never matches a disabled binding.
func (m *Model) applyControls() {
	c := m.status.Controls
	m.keys.Detect.SetEnabled(c.Detect)
	m.keys.Stop.SetEnabled(c.Stop)
	m.keys.Play.SetEnabled(c.Play)
	m.keys.Reset.SetEnabled(c.Reset)
	m.keys.Save.SetEnabled(c.Save)
}

func (m Model) View() string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render(m.title))
	sb.WriteString("\n\n")
	sb.WriteString(m.renderStatus())
	sb.WriteString("\n\n")

	if !m.status.ModelReady {
		sb.WriteString(errorStyle.Render("model unavailable: detection buffers audio but cannot classify"))
		sb.WriteString("\n\n")
	}

	sb.WriteString(m.renderScores())

	if m.err != nil {
		sb.WriteString("\n")
		sb.WriteString(errorStyle.Render("error: " + m.err.Error()))
		sb.WriteString("\n")
	} else if m.note != "" {
		sb.WriteString("\n")
		sb.WriteString(infoStyle.Render(m.note))
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(m.help.View(m.keys))
	return sb.String()
}

func (m Model) renderStatus() string {
	st := m.status
	capture := st.Capture.String()
	switch {
	case st.Suspended:
		capture = "suspended"
	case st.Capture == audio.Recording:
		capture = highlightStyle.Render(capture)
	}

	fields := []string{
		"capture: " + capture,
		"playback: " + st.Playback.String(),
		fmt.Sprintf("window: %d/%d", st.WindowChunks, st.WindowCap),
	}
	if st.InferenceEnabled {
		fields = append(fields, highlightStyle.Render("detecting"))
	}
	if st.Session != "" {
		fields = append(fields, dimStyle.Render("session "+shortID(st.Session)))
	}
	return strings.Join(fields, "  ")
}

func (m Model) renderScores() string {
	if m.result == nil {
		return dimStyle.Render("no result yet") + "\n"
	}

	width := 0
	for _, s := range m.result.Ranked {
		width = max(width, len(s.Label))
	}

	var sb strings.Builder
	for i, s := range m.result.Ranked {
		filled := int(s.Score*barWidth + 0.5)
		filled = min(max(filled, 0), barWidth)
		bar := barStyle.Render(strings.Repeat("█", filled)) + dimStyle.Render(strings.Repeat("░", barWidth-filled))
		label := fmt.Sprintf("%-*s", width, s.Label)
		if i == 0 {
			label = highlightStyle.Render(label)
		}
		fmt.Fprintf(&sb, "%s %s %7.3f%%\n", label, bar, s.Score*100)
	}
	fmt.Fprintf(&sb, "%s\n", dimStyle.Render(fmt.Sprintf("#%d in %s", m.result.Seq, m.result.Duration.Round(time.Millisecond))))
	return sb.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
