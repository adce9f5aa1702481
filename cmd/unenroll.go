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

var unenrollCmd = &cobra.Command{
	Use:     "unenroll",
	Short:   "Report (or apply) inactivity-based unenroll candidates",
	GroupID: "sync",
	Long: `Runs the auto-unenroll policy pass on its own, without draining the
task queue. By default candidates are only reported. With --apply the
configured policy runs as-is, so removals happen only when the policy
file sets auto_unenroll: true and dry_run: false.`,
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

		apply, _ := cmd.Flags().GetBool("apply")
		if !apply {
			// Report-only invocation: force the computation on and the
			// side effects off, regardless of the policy file.
			policy.AutoUnenroll = true
			policy.DryRun = true
		}

		database, err := db.Open(baseDir)
		if err != nil {
			output.Error("open database: %v", err)
			return err
		}
		defer database.Close()

		client := classroom.New(cfg.ClassroomBaseURL, cfg.ClassroomToken)
		resolver := identity.NewResolver(database)

		eng, err := engine.New(database, client, resolver, policy)
		if err != nil {
			output.Error("create engine: %v", err)
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		candidates, err := eng.ProcessAutoUnenroll(ctx)
		if err != nil {
			output.Error("unenroll pass: %v", err)
			return err
		}

		if len(candidates) == 0 {
			output.Info("No unenroll candidates")
			return nil
		}

		output.Title(fmt.Sprintf("Unenroll candidates (%d)", len(candidates)))
		for _, c := range candidates {
			fmt.Println("  " + output.CandidateLine(c))
		}

		if !apply {
			output.Info("\nReport only. Use --apply with a live policy to execute removals.")
		}
		return nil
	},
}

func init() {
	unenrollCmd.Flags().Bool("apply", false, "run the configured policy with side effects enabled")
	rootCmd.AddCommand(unenrollCmd)
}
