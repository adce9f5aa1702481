package cmd

import (
	"fmt"
	"time"

	"github.com/classync/classync/internal/db"
	"github.com/classync/classync/internal/output"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	Short:   "Show queue depth, mapping counts, and last run",
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		database, err := db.Open(getBaseDir())
		if err != nil {
			output.Error("open database: %v", err)
			return err
		}
		defer database.Close()

		stats, err := database.QueueStats()
		if err != nil {
			output.Error("queue stats: %v", err)
			return err
		}

		courses, topics, works, rosters, err := database.MappingCounts()
		if err != nil {
			output.Error("mapping counts: %v", err)
			return err
		}

		lastRun, completed, failed, err := database.LastRun()
		if err != nil {
			output.Error("last run: %v", err)
			return err
		}

		if asJSON {
			payload := map[string]any{
				"queue": stats,
				"mappings": map[string]int{
					"courses": courses,
					"topics":  topics,
					"works":   works,
					"rosters": rosters,
				},
			}
			if lastRun != nil {
				payload["last_run"] = map[string]any{
					"finished_at": lastRun.Format(time.RFC3339),
					"completed":   completed,
					"failed":      failed,
				}
			}
			return output.JSON(payload)
		}

		output.Title("Queue")
		fmt.Printf("  Pending:    %d\n", stats.Pending)
		fmt.Printf("  Processing: %d\n", stats.Processing)
		fmt.Printf("  Completed:  %d\n", stats.Completed)
		fmt.Printf("  Failed:     %d\n", stats.Failed)

		output.Title("Mappings")
		fmt.Printf("  Courses:    %d\n", courses)
		fmt.Printf("  Topics:     %d\n", topics)
		fmt.Printf("  Coursework: %d\n", works)
		fmt.Printf("  Rosters:    %d\n", rosters)

		if lastRun != nil {
			output.Title("Last run")
			fmt.Printf("  Finished:   %s\n", lastRun.Local().Format(time.DateTime))
			fmt.Printf("  Completed:  %d\n", completed)
			fmt.Printf("  Failed:     %d\n", failed)
		}

		return nil
	},
}

func init() {
	statusCmd.Flags().Bool("json", false, "output as JSON")
	rootCmd.AddCommand(statusCmd)
}
