package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"

	"scopebench/internal/instrument"
	"scopebench/internal/runner"
	"scopebench/internal/storage"
	"scopebench/internal/tui/config"
	"scopebench/internal/tui/history"
	"scopebench/internal/tui/live"
	"scopebench/internal/tui/result"
	"scopebench/internal/tui/styles"
)

type ClearStatusMsg struct{}

func clearStatusCmd() tea.Cmd {
	return tea.Tick(4*time.Second, func(_ time.Time) tea.Msg {
		return ClearStatusMsg{}
	})
}

// View Enum
type ViewID int

const (
	ViewConfig ViewID = iota
	ViewLive
	ViewResult
	ViewHistory
)

// StatsMsg carries a snapshot together with the run channel it came from,
// so snapshots still buffered from an earlier run can be told apart.
type StatsMsg struct {
	Snapshot runner.TrialSnapshot
	from     runner.UpdateChan
}

// RunDoneMsg is delivered when the benchmark goroutine returns.
type RunDoneMsg struct {
	Exec   runner.Execution
	Config runner.Config
	Err    error
}

type Model struct {
	Store       *storage.Store
	SessionOpts []instrument.Option
	Log         zerolog.Logger
	Updates     runner.UpdateChan

	RunActive bool
	RunCancel context.CancelFunc
	LastRun   *storage.HistoryItem

	Width  int
	Height int

	CurrentView ViewID
	MenuItems   []string

	ConfigView  config.Model
	LiveView    live.Model
	ResultView  result.Model
	HistoryView history.Model

	StatusMsg string
}

func NewModel(resource string, cfg runner.Config, store *storage.Store, sessOpts []instrument.Option, log zerolog.Logger) Model {
	return Model{
		Store:       store,
		SessionOpts: sessOpts,
		Log:         log,
		CurrentView: ViewConfig,
		MenuItems:   []string{"[1] Configure", "[2] Live", "[3] Result", "[4] History"},
		ConfigView:  config.NewModel(resource, cfg),
		LiveView:    live.NewModel(resource, cfg),
		ResultView:  result.NewModel(nil),
		HistoryView: history.NewModel(store),
	}
}

func (m Model) Init() tea.Cmd {
	return m.ConfigView.Init()
}

// waitForUpdate delivers the next snapshot of one run; it stops once the run
// closes its channel.
func waitForUpdate(sub runner.UpdateChan) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-sub
		if !ok {
			return nil
		}
		return StatsMsg{Snapshot: snap, from: sub}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case ClearStatusMsg:
		m.StatusMsg = ""
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "ctrl+q":
			if m.RunCancel != nil {
				m.RunCancel()
			}
			return m, tea.Quit

		case "ctrl+h":
			m.HistoryView.Refresh()
			m.CurrentView = ViewHistory
			return m, nil

		case "ctrl+right":
			m.CurrentView++
			if m.CurrentView > ViewHistory {
				m.CurrentView = ViewConfig
			}
			return m, nil
		case "ctrl+left":
			m.CurrentView--
			if m.CurrentView < ViewConfig {
				m.CurrentView = ViewHistory
			}
			return m, nil

		case "ctrl+r":
			if m.CurrentView == ViewConfig && !m.RunActive {
				return m, m.startRun()
			}
			return m, nil

		case "ctrl+s":
			if m.RunActive && m.RunCancel != nil {
				m.RunCancel()
				m.StatusMsg = "Stopping after the current trial..."
			}
			return m, nil

		case "ctrl+p":
			item := m.exportTarget()
			if item == nil {
				m.StatusMsg = "No results to export yet."
				return m, clearStatusCmd()
			}
			base := "scopebench_" + item.Timestamp.Format("20060102-150405")
			if err := ExportAll(*item, base); err != nil {
				m.StatusMsg = fmt.Sprintf("Export Failed: %v", err)
			} else {
				m.StatusMsg = fmt.Sprintf("Exported to %s.{csv,json} and %s_summary.json", base, base)
			}
			return m, clearStatusCmd()
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		inner := tea.WindowSizeMsg{Width: m.Width - 6, Height: m.Height - 9}

		m.ConfigView.Width, m.ConfigView.Height = inner.Width, inner.Height
		m.LiveView, _ = m.LiveView.Update(inner)
		m.ResultView, _ = m.ResultView.Update(inner)
		m.HistoryView, _ = m.HistoryView.Update(inner)
		return m, nil

	case StatsMsg:
		// keep draining the sender's channel, but only the current run reaches the view
		cmds = append(cmds, waitForUpdate(msg.from))
		if msg.from == m.Updates {
			var c tea.Cmd
			m.LiveView, c = m.LiveView.Update(msg.Snapshot)
			cmds = append(cmds, c)
		}
		return m, tea.Batch(cmds...)

	case RunDoneMsg:
		m.RunActive = false
		m.RunCancel = nil
		if msg.Err != nil {
			m.StatusMsg = describeFailure(msg.Err)
			m.Log.Error().Err(msg.Err).Msg("benchmark failed")
			m.CurrentView = ViewConfig
			return m, nil
		}

		item := storage.NewHistoryItem(msg.Exec.Instrument, msg.Exec.Resource, msg.Config, msg.Exec.Report)
		m.LastRun = &item
		m.saveHistory(item)
		m.ResultView = result.NewModel(&item)
		m.ResultView, _ = m.ResultView.Update(tea.WindowSizeMsg{Width: m.Width - 6, Height: m.Height - 9})
		m.CurrentView = ViewResult
		return m, clearStatusCmd()
	}

	// Forward everything else (keys, blink, progress frames) to the active view
	var defaultCmd tea.Cmd
	switch m.CurrentView {
	case ViewConfig:
		m.ConfigView, defaultCmd = m.ConfigView.Update(msg)
	case ViewLive:
		m.LiveView, defaultCmd = m.LiveView.Update(msg)
	case ViewResult:
		m.ResultView, defaultCmd = m.ResultView.Update(msg)
	case ViewHistory:
		m.HistoryView, defaultCmd = m.HistoryView.Update(msg)
		if sel := m.HistoryView.Selected; sel != nil {
			m.HistoryView.Selected = nil
			m.ResultView = result.NewModel(sel)
			m.ResultView, _ = m.ResultView.Update(tea.WindowSizeMsg{Width: m.Width - 6, Height: m.Height - 9})
			m.CurrentView = ViewResult
		}
	}
	// progress animation frames must reach the live view whichever view is shown
	if m.CurrentView != ViewLive {
		if _, ok := msg.(tea.KeyMsg); !ok {
			var c tea.Cmd
			m.LiveView, c = m.LiveView.Update(msg)
			cmds = append(cmds, c)
		}
	}
	cmds = append(cmds, defaultCmd)

	return m, tea.Batch(cmds...)
}

func (m *Model) startRun() tea.Cmd {
	resource, cfg, err := m.ConfigView.GetConfig()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		m.StatusMsg = err.Error()
		return clearStatusCmd()
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.RunCancel = cancel
	m.RunActive = true

	m.LiveView = live.NewModel(resource, cfg)
	m.LiveView, _ = m.LiveView.Update(tea.WindowSizeMsg{Width: m.Width - 6, Height: m.Height - 9})
	m.CurrentView = ViewLive
	m.StatusMsg = ""

	updates := make(runner.UpdateChan, 100)
	m.Updates = updates
	sessOpts, log := m.SessionOpts, m.Log
	run := func() tea.Msg {
		exec, err := runner.RunOnInstrument(ctx, resource, cfg, sessOpts,
			runner.WithUpdates(updates), runner.WithLogger(log))
		close(updates)
		return RunDoneMsg{Exec: exec, Config: cfg, Err: err}
	}
	return tea.Batch(run, waitForUpdate(updates))
}

func (m *Model) saveHistory(item storage.HistoryItem) {
	if m.Store == nil {
		return
	}
	if err := m.Store.Save(item); err != nil {
		m.StatusMsg = fmt.Sprintf("Error saving history: %v", err)
		return
	}
	m.StatusMsg = "History saved."
	m.HistoryView.Refresh()
}

func (m Model) exportTarget() *storage.HistoryItem {
	if m.CurrentView == ViewHistory {
		i := m.HistoryView.Table.Cursor()
		if i >= 0 && i < len(m.HistoryView.Items) {
			item := m.HistoryView.Items[i]
			return &item
		}
		return nil
	}
	if m.CurrentView == ViewResult && m.ResultView.Item != nil {
		return m.ResultView.Item
	}
	return m.LastRun
}

func describeFailure(err error) string {
	trial := runner.FailedTrial(err)
	switch {
	case errors.Is(err, context.Canceled):
		return "Run stopped. Partial results were discarded."
	case errors.Is(err, runner.ErrInvalidConfig):
		return err.Error()
	case errors.Is(err, runner.ErrConfiguration):
		return "Instrument rejected configuration: " + err.Error()
	case errors.Is(err, runner.ErrAcquisitionTimeout):
		return fmt.Sprintf("Acquisition timed out on trial %d; run aborted.", trial)
	case errors.Is(err, runner.ErrAcquisition):
		return fmt.Sprintf("Acquisition failed on trial %d; run aborted: %v", trial, err)
	case errors.Is(err, runner.ErrTransfer):
		return fmt.Sprintf("Transfer failed on trial %d; run aborted: %v", trial, err)
	}
	return "Run failed: " + err.Error()
}

func (m Model) View() string {
	if m.Width == 0 {
		return "Loading..."
	}

	nav := strings.Builder{}
	for i, item := range m.MenuItems {
		if ViewID(i) == m.CurrentView {
			nav.WriteString(styles.TabActive.Render(item))
		} else {
			nav.WriteString(styles.TabBase.Render(item))
		}
	}
	navBar := styles.FooterBase.Width(m.Width).Render(nav.String())

	contentStr := ""
	switch m.CurrentView {
	case ViewConfig:
		contentStr = m.ConfigView.View()
	case ViewLive:
		contentStr = m.LiveView.View()
	case ViewResult:
		contentStr = m.ResultView.View()
	case ViewHistory:
		contentStr = m.HistoryView.View()
	}

	content := styles.Panel.Width(m.Width - 2).Height(m.Height - 6).Render(contentStr)

	keys1 := []string{
		styles.RenderKey("Ctrl+<->", "View"),
		styles.RenderKey("Tab", "Field"),
		styles.RenderKey("Enter", "Open"),
	}
	keys2 := []string{
		styles.RenderKey("Ctrl+R", "Run"),
		styles.RenderKey("Ctrl+S", "Stop"),
		styles.RenderKey("Ctrl+P", "Export"),
		styles.RenderKey("Ctrl+H", "History"),
		styles.RenderKey("Ctrl+Q", "Quit"),
	}

	helpRow1 := styles.FooterBase.Width(m.Width).Render(strings.Join(keys1, "   "))
	helpRow2 := styles.FooterBase.Width(m.Width).Render(strings.Join(keys2, "   "))
	footer := lipgloss.JoinVertical(lipgloss.Left, helpRow1, helpRow2)

	if m.StatusMsg != "" {
		status := styles.Box.BorderForeground(styles.ColorHighlight).Render(m.StatusMsg)
		return lipgloss.JoinVertical(lipgloss.Left, navBar, content, status, footer)
	}

	return lipgloss.JoinVertical(lipgloss.Left, navBar, content, footer)
}
