// Package monitor is a live-updating dashboard over the sync task queue.
package monitor

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/classync/classync/internal/db"
	"github.com/classync/classync/internal/models"
)

const recentTaskLimit = 20

var (
	headerStyle  = lipgloss.NewStyle().Bold(true)
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("45"))
	failedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
)

// TickMsg triggers a data refresh
type TickMsg time.Time

// RefreshDataMsg carries refreshed queue data
type RefreshDataMsg struct {
	Stats     models.QueueStats
	Recent    []models.SyncTask
	Err       error
	Timestamp time.Time
}

// Model is the Bubble Tea model for the queue monitor
type Model struct {
	DB *db.DB

	Width  int
	Height int

	Stats       models.QueueStats
	Table       table.Model
	LastRefresh time.Time
	Err         error

	RefreshInterval time.Duration
}

// NewModel creates a monitor model with an empty task table.
func NewModel(database *db.DB, interval time.Duration) Model {
	columns := []table.Column{
		{Title: "Status", Width: 10},
		{Title: "Event", Width: 14},
		{Title: "Source", Width: 10},
		{Title: "Created", Width: 19},
		{Title: "Result / Error", Width: 40},
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(recentTaskLimit),
	)
	return Model{
		DB:              database,
		Table:           t,
		RefreshInterval: interval,
	}
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.fetchData(),
		m.scheduleTick(),
	)
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.fetchData()
		}
		var cmd tea.Cmd
		m.Table, cmd = m.Table.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		return m, nil

	case TickMsg:
		return m, tea.Batch(m.fetchData(), m.scheduleTick())

	case RefreshDataMsg:
		m.Stats = msg.Stats
		m.Err = msg.Err
		m.LastRefresh = msg.Timestamp
		m.Table.SetRows(taskRows(msg.Recent))
		return m, nil
	}

	return m, nil
}

// View implements tea.Model
func (m Model) View() string {
	header := headerStyle.Render("classync queue") + "  " +
		pendingStyle.Render(fmt.Sprintf("pending %d", m.Stats.Pending)) + "  " +
		fmt.Sprintf("processing %d", m.Stats.Processing) + "  " +
		okStyle.Render(fmt.Sprintf("completed %d", m.Stats.Completed)) + "  " +
		failedStyle.Render(fmt.Sprintf("failed %d", m.Stats.Failed))

	footer := subtleStyle.Render(fmt.Sprintf("refreshed %s  ·  r refresh  ·  q quit",
		m.LastRefresh.Format("15:04:05")))
	if m.Err != nil {
		footer = failedStyle.Render("error: "+m.Err.Error()) + "\n" + footer
	}

	return header + "\n\n" + m.Table.View() + "\n" + footer
}

func taskRows(tasks []models.SyncTask) []table.Row {
	rows := make([]table.Row, 0, len(tasks))
	for _, task := range tasks {
		result := task.RemoteID
		if task.LastError != "" {
			result = task.LastError
		}
		rows = append(rows, table.Row{
			string(task.Status),
			string(task.EventType),
			task.EventSource,
			task.CreatedAt.Local().Format(time.DateTime),
			result,
		})
	}
	return rows
}

// scheduleTick returns a command that sends a TickMsg after the refresh interval
func (m Model) scheduleTick() tea.Cmd {
	return tea.Tick(m.RefreshInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// fetchData returns a command that reloads queue stats and recent tasks
func (m Model) fetchData() tea.Cmd {
	return func() tea.Msg {
		msg := RefreshDataMsg{Timestamp: time.Now()}
		stats, err := m.DB.QueueStats()
		if err != nil {
			msg.Err = err
			return msg
		}
		recent, err := m.DB.RecentTasks(recentTaskLimit)
		if err != nil {
			msg.Err = err
			return msg
		}
		msg.Stats = stats
		msg.Recent = recent
		return msg
	}
}
