package cmd

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/classync/classync/internal/db"
	"github.com/classync/classync/internal/output"
	"github.com/classync/classync/internal/tui/monitor"
	"github.com/spf13/cobra"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Live TUI dashboard for the sync task queue",
	Long: `Launch a live-updating dashboard showing queue depth by status and the
most recent tasks with their results or errors.

Key bindings:
  ↑/↓  Select task row
  r    Force refresh
  q    Quit`,
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := db.Open(getBaseDir())
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer database.Close()

		interval, _ := cmd.Flags().GetDuration("interval")
		model := monitor.NewModel(database, interval)

		p := tea.NewProgram(model, tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("monitor: %w", err)
		}
		return nil
	},
}

func init() {
	monitorCmd.Flags().Duration("interval", 2*time.Second, "refresh interval")
	rootCmd.AddCommand(monitorCmd)
}
