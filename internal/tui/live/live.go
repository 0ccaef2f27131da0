package live

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"scopebench/internal/runner"
	"scopebench/internal/tui/components"
	"scopebench/internal/tui/styles"
)

// Model shows a running benchmark.
type Model struct {
	Resource string
	Config   runner.Config
	Stats    runner.TrialSnapshot
	Progress progress.Model

	TransferLine components.Sparkline

	StartTime time.Time

	Width  int
	Height int
}

func NewModel(resource string, cfg runner.Config) Model {
	return Model{
		Resource:     resource,
		Config:       cfg,
		Progress:     progress.New(progress.WithDefaultGradient()),
		TransferLine: components.NewSparkline(40, "Transfer time per trial (ms)", styles.Trace),
		StartTime:    time.Now(),
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case runner.TrialSnapshot:
		m.Stats = msg
		m.TransferLine.Add(float64(msg.Last.Duration) / float64(time.Millisecond))

		pct := 0.0
		if msg.Total > 0 {
			pct = float64(msg.Trial) / float64(msg.Total)
		}
		return m, m.Progress.SetPercent(pct)

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Progress.Width = msg.Width - 8

		w := msg.Width - 10
		if w < 10 {
			w = 10
		}
		m.TransferLine.Width = w
		return m, nil

	case progress.FrameMsg:
		prog, cmd := m.Progress.Update(msg)
		m.Progress = prog.(progress.Model)
		return m, cmd
	}

	return m, nil
}

func (m Model) View() string {
	s := strings.Builder{}

	s.WriteString(styles.Title.Render("Transferring: " + m.Resource))
	s.WriteString("\n\n")
	s.WriteString(m.Progress.View())
	s.WriteString("\n\n")

	elapsed := time.Since(m.StartTime).Round(time.Second)
	throughput := "-"
	if m.Stats.Mean > 0 && m.Stats.Last.Bytes > 0 {
		bps := float64(m.Stats.Last.Bytes) / m.Stats.Mean.Seconds()
		throughput = humanize.Bytes(uint64(bps)) + "/s"
	}

	metrics := []string{
		metric("Trial", fmt.Sprintf("%d / %d", m.Stats.Trial, m.Config.Trials)),
		metric("Last", m.Stats.Last.Duration.Round(time.Microsecond).String()),
		metric("Mean", m.Stats.Mean.Round(time.Microsecond).String()),
		metric("P99", m.Stats.P99.Round(time.Microsecond).String()),
		metric("Throughput", throughput),
		metric("Elapsed", elapsed.String()),
	}
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, metrics...))
	s.WriteString("\n\n")
	s.WriteString(m.TransferLine.View())

	return s.String()
}

func metric(label, value string) string {
	return styles.Box.Render(styles.Subtle.Render(label) + "\n" + styles.Value.Render(value))
}
