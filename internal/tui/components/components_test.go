package components

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSparklineWindow(t *testing.T) {
	s := NewSparkline(3, "ms", lipgloss.NewStyle())
	for _, v := range []float64{8, 1, 2, 4} {
		s.Add(v)
	}
	assert.Equal(t, []float64{1, 2, 4}, s.Data)
	assert.Equal(t, 4.0, s.Max)
	assert.Equal(t, "▂▄█", s.Graph())
}

func TestSparklinePadsAndHandlesZero(t *testing.T) {
	s := NewSparkline(4, "ms", lipgloss.NewStyle())
	s.Add(0)
	assert.Equal(t, "    ", s.Graph())
}

func TestPlotBuckets(t *testing.T) {
	p := NewPlot("t", "x", "y", 2, 4)
	p.Values = []float64{1, 3, 5, 7}
	assert.Equal(t, []float64{2, 6}, p.Buckets())

	p.Width = 10
	assert.Equal(t, []float64{1, 3, 5, 7}, p.Buckets())
}

func TestPlotLines(t *testing.T) {
	p := NewPlot("Waveform Transfer Rate", "Trial (#)", "Time (ms)", 40, 3)
	p.Values = []float64{10, 20, 30}

	lines := p.Lines()
	require.Len(t, lines, 2+3+3)
	assert.Equal(t, "Waveform Transfer Rate", lines[0])
	assert.Equal(t, "Time (ms)", lines[1])
	assert.Equal(t, "30.000 ┤  ●", lines[2])
	assert.Equal(t, "       ┤ ● ", lines[3])
	assert.Equal(t, "10.000 ┤●  ", lines[4])
	assert.True(t, strings.HasPrefix(lines[5], "       └───"))
	assert.Equal(t, "        1 3", lines[6])
	assert.Equal(t, "        Trial (#)", lines[7])
}

func TestPlotConnectsJumps(t *testing.T) {
	p := NewPlot("", "", "", 10, 5)
	p.Values = []float64{0, 4}
	lines := p.Lines()
	// rows 1..3 of the second column hold the connector
	for _, l := range lines[3:6] {
		assert.True(t, strings.HasSuffix(l, "│"), l)
	}
}

func TestPlotEmpty(t *testing.T) {
	p := NewPlot("title", "x", "y", 10, 5)
	assert.Equal(t, []string{"title", "(no data)"}, p.Lines())
}
