package components

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Plot is a line chart of Values against their 1-based index.
// When there are more values than columns, each column shows the mean of its bucket.
type Plot struct {
	Title  string
	XLabel string
	YLabel string
	Values []float64
	Width  int
	Height int

	Style     lipgloss.Style
	AxisStyle lipgloss.Style
}

func NewPlot(title, xLabel, yLabel string, width, height int) Plot {
	return Plot{
		Title:     title,
		XLabel:    xLabel,
		YLabel:    yLabel,
		Width:     width,
		Height:    height,
		Style:     lipgloss.NewStyle(),
		AxisStyle: lipgloss.NewStyle(),
	}
}

// Buckets reduces Values to at most Width points.
func (p Plot) Buckets() []float64 {
	n := len(p.Values)
	cols := p.Width
	if cols <= 0 || n <= cols {
		out := make([]float64, n)
		copy(out, p.Values)
		return out
	}
	out := make([]float64, cols)
	for c := 0; c < cols; c++ {
		lo, hi := c*n/cols, (c+1)*n/cols
		sum := 0.0
		for _, v := range p.Values[lo:hi] {
			sum += v
		}
		out[c] = sum / float64(hi-lo)
	}
	return out
}

// Lines renders the plot as unstyled rows.
func (p Plot) Lines() []string {
	if len(p.Values) == 0 || p.Height < 2 {
		return []string{p.Title, "(no data)"}
	}

	pts := p.Buckets()
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range pts {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	span := hi - lo

	row := func(v float64) int {
		if span == 0 {
			return p.Height / 2
		}
		return int(math.Round((v - lo) / span * float64(p.Height-1)))
	}

	grid := make([][]rune, p.Height)
	for y := range grid {
		grid[y] = []rune(strings.Repeat(" ", len(pts)))
	}
	prev := -1
	for x, v := range pts {
		y := row(v)
		if prev >= 0 {
			a, b := prev, y
			if a > b {
				a, b = b, a
			}
			for k := a + 1; k < b; k++ {
				grid[k][x] = '│'
			}
		}
		grid[y][x] = '●'
		prev = y
	}

	top, bottom := formatTick(hi), formatTick(lo)
	w := max(len(top), len(bottom))

	lines := []string{p.Title, p.YLabel}
	for y := p.Height - 1; y >= 0; y-- {
		label := ""
		switch y {
		case p.Height - 1:
			label = top
		case 0:
			label = bottom
		}
		lines = append(lines, fmt.Sprintf("%*s ┤%s", w, label, string(grid[y])))
	}
	lines = append(lines, strings.Repeat(" ", w)+" └"+strings.Repeat("─", len(pts)))

	last := strconv.Itoa(len(p.Values))
	gap := len(pts) - 1 - len(last)
	if gap < 1 {
		gap = 1
	}
	lines = append(lines, strings.Repeat(" ", w+2)+"1"+strings.Repeat(" ", gap)+last)
	lines = append(lines, strings.Repeat(" ", w+2)+p.XLabel)
	return lines
}

func (p Plot) View() string {
	lines := p.Lines()
	for i := range lines {
		if i == 0 {
			lines[i] = p.Style.Bold(true).Render(lines[i])
			continue
		}
		lines[i] = p.AxisStyle.Render(lines[i])
	}
	return strings.Join(lines, "\n")
}

func formatTick(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
