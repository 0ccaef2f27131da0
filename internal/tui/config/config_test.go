package config

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scopebench/internal/runner"
)

func TestGetConfigRoundTripsDefaults(t *testing.T) {
	m := NewModel("TCPIP0::scope::4000::SOCKET", runner.DefaultConfig())

	res, cfg, err := m.GetConfig()
	require.NoError(t, err)
	assert.Equal(t, "TCPIP0::scope::4000::SOCKET", res)
	assert.Equal(t, runner.DefaultConfig(), cfg)
}

func TestGetConfigParsesExponentCounts(t *testing.T) {
	m := NewModel("localhost:4000", runner.DefaultConfig())
	m.Fields[FieldRecordLength].Input.SetValue("125e3")
	m.Fields[FieldSource].Input.SetValue("ch2")

	_, cfg, err := m.GetConfig()
	require.NoError(t, err)
	assert.Equal(t, 125000, cfg.RecordLength)
	assert.Equal(t, "CH2", cfg.Source)
}

func TestGetConfigRejectsGarbage(t *testing.T) {
	m := NewModel("localhost:4000", runner.DefaultConfig())
	m.Fields[FieldTrials].Input.SetValue("lots")

	_, _, err := m.GetConfig()
	assert.ErrorIs(t, err, runner.ErrInvalidConfig)

	m.Fields[FieldTrials].Input.SetValue("2.5")
	_, _, err = m.GetConfig()
	assert.ErrorIs(t, err, runner.ErrInvalidConfig)
}

func TestFocusWraps(t *testing.T) {
	m := NewModel("localhost:4000", runner.DefaultConfig())

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyShiftTab})
	assert.Equal(t, fieldCount-1, m.Focus)

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, 0, m.Focus)
}
