package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/classync/classync/internal/classroom"
	"github.com/classync/classync/internal/config"
	"github.com/classync/classync/internal/db"
	"github.com/classync/classync/internal/engine"
	"github.com/classync/classync/internal/identity"
	"github.com/classync/classync/internal/output"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:     "run",
	Short:   "Process queued sync tasks and run the unenroll pass",
	GroupID: "sync",
	Long: `Claims up to --max-tasks pending tasks in FIFO order, reconciles each
against the remote classroom platform, then runs the auto-unenroll policy
pass once. Individual task failures are recorded on the queue, not fatal;
the command exits non-zero only on loop-level failure.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		baseDir := getBaseDir()

		cfg, err := config.Load(baseDir)
		if err != nil {
			output.Error("load config: %v", err)
			return err
		}

		policy, err := config.LoadPolicy(baseDir)
		if err != nil {
			output.Error("load unenroll policy: %v", err)
			return err
		}

		database, err := db.Open(baseDir)
		if err != nil {
			output.Error("open database: %v", err)
			return err
		}
		defer database.Close()

		maxTasks, _ := cmd.Flags().GetInt("max-tasks")
		if maxTasks <= 0 {
			maxTasks = cfg.MaxTasks
		}

		client := classroom.New(cfg.ClassroomBaseURL, cfg.ClassroomToken)
		resolver := identity.NewResolver(database)

		eng, err := engine.New(database, client, resolver, policy)
		if err != nil {
			output.Error("create engine: %v", err)
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		stats, err := eng.Run(ctx, maxTasks)
		if err != nil {
			output.Error("sync loop: %v", err)
			return err
		}

		fmt.Printf("Processed %d tasks: %d completed, %d failed\n",
			stats.Claimed, stats.Completed, stats.Failed)
		if stats.Candidates > 0 {
			mode := "live"
			if policy.DryRun {
				mode = "dry-run"
			}
			fmt.Printf("Unenroll candidates: %d (%s)\n", stats.Candidates, mode)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().Int("max-tasks", 0, "maximum tasks to process this invocation (default from config)")
	rootCmd.AddCommand(runCmd)
}
