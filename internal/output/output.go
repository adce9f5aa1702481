// Package output provides styled terminal output helpers (success, error,
// warning, task and candidate formatting) using lipgloss.
package output

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/classync/classync/internal/models"
)

var (
	// Styles
	titleStyle   = lipgloss.NewStyle().Bold(true)
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	statusStyles = map[models.TaskStatus]lipgloss.Style{
		models.TaskPending:    lipgloss.NewStyle().Foreground(lipgloss.Color("45")),
		models.TaskProcessing: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		models.TaskCompleted:  lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		models.TaskFailed:     lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)

// Success prints a success message
func Success(format string, args ...interface{}) {
	fmt.Println(successStyle.Render(fmt.Sprintf(format, args...)))
}

// Error prints an error message
func Error(format string, args ...interface{}) {
	fmt.Println(errorStyle.Render("ERROR: " + fmt.Sprintf(format, args...)))
}

// Warning prints a warning message
func Warning(format string, args ...interface{}) {
	fmt.Println(warningStyle.Render("Warning: " + fmt.Sprintf(format, args...)))
}

// Info prints an info message
func Info(format string, args ...interface{}) {
	fmt.Println(fmt.Sprintf(format, args...))
}

// Title prints a bold section heading
func Title(text string) {
	fmt.Println(titleStyle.Render(text))
}

// JSON outputs data as JSON
func JSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// TaskStatus renders a task status with its color.
func TaskStatus(status models.TaskStatus) string {
	if style, ok := statusStyles[status]; ok {
		return style.Render(string(status))
	}
	return string(status)
}

// TaskLine renders one task as a single summary line.
func TaskLine(task models.SyncTask) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-10s %-14s %-10s %s",
		TaskStatus(task.Status), task.EventType, task.EventSource,
		subtleStyle.Render(task.CreatedAt.Local().Format(time.DateTime)))
	if task.RemoteID != "" {
		fmt.Fprintf(&b, " -> %s", task.RemoteID)
	}
	if task.LastError != "" {
		fmt.Fprintf(&b, " %s", errorStyle.Render(truncate(task.LastError, 60)))
	}
	return b.String()
}

// CandidateLine renders one unenroll candidate as a single line.
func CandidateLine(c models.UnenrollCandidate) string {
	mode := successStyle.Render("live")
	if c.DryRun {
		mode = warningStyle.Render("dry-run")
	}
	return fmt.Sprintf("%-30s %-10s %-12s %3dd inactive  %s",
		c.Email, c.LMSSource, c.LMSCourseID, c.DaysInactive, mode)
}

// truncate shortens s to at most n runes, never splitting a multi-byte rune.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}
