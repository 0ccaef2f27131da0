package app

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scopebench/internal/instrument"
	"scopebench/internal/runner"
	"scopebench/internal/stats"
	"scopebench/internal/storage"
	"scopebench/internal/tui/config"
)

func sampleItem(t *testing.T) storage.HistoryItem {
	t.Helper()
	report, err := stats.Aggregate([]stats.TrialResult{
		{Index: 1, Duration: 10 * time.Millisecond, Samples: 1000, Bytes: 1000},
		{Index: 2, Duration: 20 * time.Millisecond, Samples: 1000, Bytes: 1000},
		{Index: 3, Duration: 30 * time.Millisecond, Samples: 1000, Bytes: 1000},
	})
	require.NoError(t, err)
	return storage.NewHistoryItem("TEKTRONIX,MSO24", "localhost:4000", runner.DefaultConfig(), report)
}

func TestExportAll(t *testing.T) {
	item := sampleItem(t)
	prefix := filepath.Join(t.TempDir(), "run")

	require.NoError(t, ExportAll(item, prefix))

	f, err := os.Open(prefix + ".csv")
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"trial", "duration_s", "samples", "bytes"}, rows[0])
	assert.Equal(t, []string{"2", "0.020000000", "1000", "1000"}, rows[2])

	data, err := os.ReadFile(prefix + ".json")
	require.NoError(t, err)
	var back storage.HistoryItem
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, item.ID, back.ID)
	assert.Len(t, back.Report.Trials, 3)

	data, err = os.ReadFile(prefix + "_summary.json")
	require.NoError(t, err)
	var summary map[string]any
	require.NoError(t, json.Unmarshal(data, &summary))
	assert.InDelta(t, 0.06, summary["total_seconds"], 1e-9)
	assert.InDelta(t, 0.02, summary["mean_seconds"], 1e-9)
}

func TestDescribeFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"cancelled", context.Canceled, "Run stopped. Partial results were discarded."},
		{"timeout", &runner.AcquisitionError{Trial: 3, Command: "*OPC?", Timeout: true, Err: instrument.ErrTimeout},
			"Acquisition timed out on trial 3; run aborted."},
		{"other", errors.New("boom"), "Run failed: boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, describeFailure(tt.err))
		})
	}

	msg := describeFailure(&runner.TransferError{Trial: 2, Err: instrument.ErrTruncatedBlock})
	assert.Contains(t, msg, "Transfer failed on trial 2")
}

func TestRunKeyRejectsInvalidConfig(t *testing.T) {
	m := NewModel("localhost:4000", runner.DefaultConfig(), nil, nil, zerolog.Nop())
	m.ConfigView.Fields[config.FieldByteWidth].Input.SetValue("3")

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyCtrlR})
	got := next.(Model)

	assert.False(t, got.RunActive)
	assert.Equal(t, ViewConfig, got.CurrentView)
	assert.Contains(t, got.StatusMsg, "byte_width")
}

func TestRunDoneShowsResult(t *testing.T) {
	m := NewModel("localhost:4000", runner.DefaultConfig(), nil, nil, zerolog.Nop())
	m.RunActive = true
	item := sampleItem(t)

	next, _ := m.Update(RunDoneMsg{
		Exec:   runner.Execution{Instrument: item.Instrument, Resource: item.Resource, Report: item.Report},
		Config: item.Config,
	})
	got := next.(Model)

	assert.False(t, got.RunActive)
	assert.Equal(t, ViewResult, got.CurrentView)
	require.NotNil(t, got.LastRun)
	assert.Equal(t, item.Report.TotalSeconds, got.LastRun.Report.TotalSeconds)
}

func TestRunDoneWithErrorReturnsToConfig(t *testing.T) {
	m := NewModel("localhost:4000", runner.DefaultConfig(), nil, nil, zerolog.Nop())
	m.RunActive = true
	m.CurrentView = ViewLive

	next, _ := m.Update(RunDoneMsg{Err: &runner.TransferError{Trial: 7, Err: instrument.ErrTerminator}})
	got := next.(Model)

	assert.Equal(t, ViewConfig, got.CurrentView)
	assert.Nil(t, got.LastRun)
	assert.Contains(t, got.StatusMsg, "trial 7")
}

func TestSnapshotsFromEarlierRunAreIgnored(t *testing.T) {
	m := NewModel("localhost:4000", runner.DefaultConfig(), nil, nil, zerolog.Nop())
	previous := make(runner.UpdateChan, 1)
	m.Updates = make(runner.UpdateChan, 1)

	next, cmd := m.Update(StatsMsg{Snapshot: runner.TrialSnapshot{Trial: 7, Total: 10}, from: previous})
	got := next.(Model)
	assert.Zero(t, got.LiveView.Stats.Trial)
	assert.NotNil(t, cmd, "the earlier channel is still drained")

	next, _ = got.Update(StatsMsg{Snapshot: runner.TrialSnapshot{Trial: 2, Total: 10}, from: got.Updates})
	assert.Equal(t, 2, next.(Model).LiveView.Stats.Trial)
}

func TestWaitForUpdateStopsOnClosedChannel(t *testing.T) {
	ch := make(runner.UpdateChan, 1)
	ch <- runner.TrialSnapshot{Trial: 1}
	close(ch)

	msg := waitForUpdate(ch)()
	require.IsType(t, StatsMsg{}, msg)
	assert.Equal(t, 1, msg.(StatsMsg).Snapshot.Trial)

	assert.Nil(t, waitForUpdate(ch)())
}

func TestEachRunGetsItsOwnChannel(t *testing.T) {
	m := NewModel("localhost:4000", runner.DefaultConfig(), nil, nil, zerolog.Nop())
	stale := make(runner.UpdateChan, 1)
	m.Updates = stale

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlR})
	got := next.(Model)
	require.NotNil(t, cmd)
	defer got.RunCancel()

	assert.True(t, got.RunActive)
	assert.NotEqual(t, stale, got.Updates)
}
