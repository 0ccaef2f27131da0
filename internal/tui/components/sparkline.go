package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var levels = []string{" ", "▁", "▂", "▃", "▄", "▅", "▆", "▇", "█"}

// Sparkline is a one line scrolling chart of the most recent values.
type Sparkline struct {
	Data  []float64
	Width int
	Max   float64
	Style lipgloss.Style
	Label string
}

func NewSparkline(width int, label string, style lipgloss.Style) Sparkline {
	return Sparkline{
		Width: width,
		Label: label,
		Style: style,
		Data:  make([]float64, 0, width),
	}
}

func (s *Sparkline) Add(val float64) {
	s.Data = append(s.Data, val)
	if len(s.Data) > s.Width {
		s.Data = s.Data[len(s.Data)-s.Width:]
	}

	// max of the visible window
	max := 0.0
	for _, v := range s.Data {
		if v > max {
			max = v
		}
	}
	s.Max = max
}

func (s Sparkline) Graph() string {
	var graph strings.Builder
	for _, v := range s.Data {
		if s.Max == 0 {
			graph.WriteString(levels[0])
			continue
		}

		idx := int(v / s.Max * float64(len(levels)-1))
		if idx < 0 {
			idx = 0
		}
		if idx >= len(levels) {
			idx = len(levels) - 1
		}
		graph.WriteString(levels[idx])
	}

	// Pad if not full
	if pad := s.Width - len(s.Data); pad > 0 {
		graph.WriteString(strings.Repeat(" ", pad))
	}
	return graph.String()
}

func (s Sparkline) View() string {
	if s.Width <= 0 {
		return ""
	}
	return s.Style.Render(s.Label) + "\n" + s.Style.Render(s.Graph())
}
