package history

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"scopebench/internal/storage"
	"scopebench/internal/tui/styles"
)

type Model struct {
	Store *storage.Store
	Table table.Model
	Items []storage.HistoryItem
	Err   error

	// Selected is set when the user opens a row; the parent consumes it.
	Selected *storage.HistoryItem

	Width  int
	Height int
}

func NewModel(store *storage.Store) Model {
	columns := []table.Column{
		{Title: "Time", Width: 20},
		{Title: "Instrument", Width: 28},
		{Title: "Trials", Width: 8},
		{Title: "Points", Width: 10},
		{Title: "Mean (ms)", Width: 10},
		{Title: "P99 (ms)", Width: 10},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(styles.ColorBorder).
		BorderBottom(true).
		Bold(true).
		Foreground(styles.ColorPrimary)
	s.Selected = s.Selected.
		Foreground(styles.ColorBg).
		Background(styles.ColorPrimary).
		Bold(true)
	t.SetStyles(s)

	m := Model{
		Store: store,
		Table: t,
	}
	m.Refresh()
	return m
}

func (m *Model) Refresh() {
	if m.Store == nil {
		return
	}
	items, err := m.Store.List()
	m.Items, m.Err = items, err

	rows := make([]table.Row, len(items))
	for i, item := range items {
		rows[i] = table.Row{
			item.Timestamp.Format(time.DateTime),
			item.Instrument,
			fmt.Sprintf("%d", len(item.Report.Trials)),
			fmt.Sprintf("%d", item.Config.RecordLength),
			fmt.Sprintf("%.3f", item.Report.MeanSeconds*1000),
			fmt.Sprintf("%.3f", item.Report.P99Seconds*1000),
		}
	}
	m.Table.SetRows(rows)
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Table.SetWidth(msg.Width - 4)
		m.Table.SetHeight(max(3, msg.Height-6))

	case tea.KeyMsg:
		if msg.String() == "enter" {
			i := m.Table.Cursor()
			if i >= 0 && i < len(m.Items) {
				item := m.Items[i]
				m.Selected = &item
			}
			return m, nil
		}
	}

	m.Table, cmd = m.Table.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if m.Store == nil {
		return styles.Subtle.Render("History is disabled.")
	}
	if m.Err != nil {
		return styles.Error.Render("Could not read history: " + m.Err.Error())
	}
	return styles.Box.Render(m.Table.View())
}
