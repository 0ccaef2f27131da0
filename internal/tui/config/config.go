package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"scopebench/internal/runner"
	"scopebench/internal/tui/styles"
)

// Field indices
const (
	FieldResource = iota
	FieldSampleRate
	FieldScale
	FieldRecordLength
	FieldTrials
	FieldByteWidth
	FieldSource
	fieldCount
)

type Field struct {
	Label string
	Help  string
	Input textinput.Model
}

// Model is the benchmark parameter form.
type Model struct {
	Config   runner.Config
	Resource string

	Fields []Field
	Focus  int

	Width  int
	Height int
}

func NewModel(resource string, cfg runner.Config) Model {
	m := Model{
		Config:   cfg,
		Resource: resource,
		Fields:   make([]Field, fieldCount),
	}

	add := func(i int, label, help, placeholder, value string, width int) {
		t := textinput.New()
		t.Placeholder = placeholder
		t.SetValue(value)
		t.Width = width
		m.Fields[i] = Field{Label: label, Help: help, Input: t}
	}

	add(FieldResource, "Resource", "VISA socket resource (TCPIP0::host::port::SOCKET) or host:port.",
		"TCPIP0::192.168.0.10::4000::SOCKET", resource, 50)
	add(FieldSampleRate, "Sample Rate (S/s)", "Minimum analyzed sample rate.",
		"25e6", strconv.FormatFloat(cfg.SampleRate, 'g', -1, 64), 16)
	add(FieldScale, "Horizontal Scale (s/div)", "Time per horizontal division.",
		"4e-4", strconv.FormatFloat(cfg.HorizontalScale, 'g', -1, 64), 16)
	add(FieldRecordLength, "Record Length (#)", "Requested points per acquisition. The instrument may round it.",
		"125000", strconv.Itoa(cfg.RecordLength), 16)
	add(FieldTrials, "Number of Trials (#)", "Acquire-and-transfer cycles to time.",
		"1000", strconv.Itoa(cfg.Trials), 16)
	add(FieldByteWidth, "Bytes per Sample (1 or 2)", "1 transfers int8 samples, 2 transfers int16.",
		"1", strconv.Itoa(cfg.ByteWidth), 4)
	add(FieldSource, "Source", "Channel whose curve is transferred.",
		"CH1", cfg.Source, 6)

	m.Fields[0].Input.Focus()
	m.Fields[0].Input.PromptStyle = styles.Active
	m.Fields[0].Input.TextStyle = styles.Active
	return m
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	var cmd tea.Cmd
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "tab", "shift+tab", "enter", "up", "down":
			s := msg.String()

			if s == "up" || s == "shift+tab" {
				m.Focus--
			} else {
				m.Focus++
			}

			if m.Focus > len(m.Fields)-1 {
				m.Focus = 0
			} else if m.Focus < 0 {
				m.Focus = len(m.Fields) - 1
			}

			for i := range m.Fields {
				if i == m.Focus {
					m.Fields[i].Input.Focus()
					m.Fields[i].Input.PromptStyle = styles.Active
					m.Fields[i].Input.TextStyle = styles.Active
				} else {
					m.Fields[i].Input.Blur()
					m.Fields[i].Input.PromptStyle = lipgloss.NewStyle()
					m.Fields[i].Input.TextStyle = lipgloss.NewStyle()
				}
			}
			return m, nil
		}
	}

	for i := range m.Fields {
		m.Fields[i].Input, cmd = m.Fields[i].Input.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// GetConfig parses the form. Parse failures are reported as invalid config;
// range checks are left to runner.Config.Validate.
func (m Model) GetConfig() (string, runner.Config, error) {
	c := m.Config
	val := func(i int) string { return strings.TrimSpace(m.Fields[i].Input.Value()) }

	var err error
	if c.SampleRate, err = strconv.ParseFloat(val(FieldSampleRate), 64); err != nil {
		return "", c, &runner.InvalidConfigError{Field: "sample_rate", Reason: fmt.Sprintf("not a number: %q", val(FieldSampleRate))}
	}
	if c.HorizontalScale, err = strconv.ParseFloat(val(FieldScale), 64); err != nil {
		return "", c, &runner.InvalidConfigError{Field: "horizontal_scale", Reason: fmt.Sprintf("not a number: %q", val(FieldScale))}
	}
	if c.RecordLength, err = parseCount(val(FieldRecordLength)); err != nil {
		return "", c, &runner.InvalidConfigError{Field: "record_length", Reason: err.Error()}
	}
	if c.Trials, err = parseCount(val(FieldTrials)); err != nil {
		return "", c, &runner.InvalidConfigError{Field: "trials", Reason: err.Error()}
	}
	if c.ByteWidth, err = strconv.Atoi(val(FieldByteWidth)); err != nil {
		return "", c, &runner.InvalidConfigError{Field: "byte_width", Reason: fmt.Sprintf("not an integer: %q", val(FieldByteWidth))}
	}
	c.Source = strings.ToUpper(val(FieldSource))

	return val(FieldResource), c, nil
}

// parseCount accepts integers and whole numbers in exponent form ("125e3").
func parseCount(s string) (int, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int(f)) {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	return int(f), nil
}

func (m Model) View() string {
	s := strings.Builder{}

	s.WriteString(styles.Title.Render("Benchmark Parameters"))
	s.WriteString("\n\n")

	for i := range m.Fields {
		s.WriteString(styles.Subtle.Render(m.Fields[i].Label))
		s.WriteString("\n")
		s.WriteString(m.Fields[i].Input.View())
		s.WriteString("\n\n")
	}

	s.WriteString(styles.Text.Foreground(styles.ColorSecondary).Render(m.Fields[m.Focus].Help))
	s.WriteString("\n\n")
	s.WriteString(styles.Active.Render("[Ctrl+R] Start Benchmark"))

	return styles.Box.Render(s.String())
}
