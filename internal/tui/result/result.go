package result

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"

	"scopebench/internal/storage"
	"scopebench/internal/tui/components"
	"scopebench/internal/tui/styles"
)

// Model renders a finished run: summary numbers and the per-trial plot.
type Model struct {
	Item *storage.HistoryItem
	Plot components.Plot

	Width  int
	Height int
}

func NewModel(item *storage.HistoryItem) Model {
	p := components.NewPlot("Waveform Transfer Rate", "Trial (#)", "Time (ms)", 60, 12)
	p.Style = styles.Active
	p.AxisStyle = styles.Trace
	if item != nil {
		for _, d := range item.Report.Durations() {
			p.Values = append(p.Values, d*1000)
		}
	}
	return Model{Item: item, Plot: p}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Plot.Width = max(10, msg.Width-40)
		m.Plot.Height = max(4, msg.Height-22)
	}
	return m, nil
}

func (m Model) View() string {
	if m.Item == nil {
		return styles.Subtle.Render("No completed run yet.")
	}
	r := m.Item.Report
	s := strings.Builder{}

	s.WriteString(styles.Title.Render("Benchmark Complete"))
	s.WriteString("\n\n")

	s.WriteString(styles.Active.Render("Instrument"))
	s.WriteString("\n")
	s.WriteString(styles.Box.Render(fmt.Sprintf(
		"%s\n%s\nRecord: %d points x %d byte(s)",
		m.Item.Instrument, m.Item.Resource, m.Item.Config.RecordLength, m.Item.Config.ByteWidth,
	)))
	s.WriteString("\n\n")

	s.WriteString(styles.Active.Render("Transfer Time"))
	s.WriteString("\n")
	s.WriteString(styles.Box.Render(fmt.Sprintf(
		"Trials: %d\nTotal:  %s\nMean:   %s\nMedian: %s\nP99:    %s\nStdDev: %s\nRate:   %s/s",
		len(r.Trials),
		seconds(r.TotalSeconds),
		seconds(r.MeanSeconds),
		seconds(r.MedianSeconds),
		seconds(r.P99Seconds),
		seconds(r.StdDevSeconds),
		humanize.Bytes(uint64(r.BytesPerSecond)),
	)))
	s.WriteString("\n\n")

	s.WriteString(m.Plot.View())
	return s.String()
}

func seconds(v float64) string {
	return time.Duration(v * float64(time.Second)).Round(time.Microsecond).String()
}
