package cmd

import (
	"fmt"
	"os"

	"github.com/classync/classync/internal/db"
	"github.com/classync/classync/internal/identity"
	"github.com/classync/classync/internal/output"
	"github.com/spf13/cobra"
)

var identityCmd = &cobra.Command{
	Use:     "identity",
	Short:   "Manage LMS identity mappings",
	GroupID: "sync",
}

var identityImportCmd = &cobra.Command{
	Use:   "import <csv-file>",
	Short: "Import identity mappings from CSV",
	Long: `Imports a CSV mapping LMS user ids to external account emails.

Format:
  lms_source,lms_user_id,external_email,full_name
  canvas,user123,student@school.edu,John Doe
  moodle,456,jane@school.edu,Jane Smith

A header row is skipped. Invalid rows are reported and skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := db.Open(getBaseDir())
		if err != nil {
			output.Error("open database: %v", err)
			return err
		}
		defer database.Close()

		f, err := os.Open(args[0])
		if err != nil {
			output.Error("open csv: %v", err)
			return err
		}
		defer f.Close()

		result, err := identity.Import(database, f)
		if err != nil {
			output.Error("import: %v", err)
			return err
		}

		if len(result.Invalid) > 0 {
			output.Warning("%d invalid rows:", len(result.Invalid))
			for _, inv := range result.Invalid {
				fmt.Printf("  line %d (%s): %s\n", inv.Line, inv.Record.LMSUserID, inv.Reason)
			}
		}

		output.Success("Import complete (batch %s)", result.BatchID)
		fmt.Printf("  New mappings:     %d\n", result.Imported)
		fmt.Printf("  Updated mappings: %d\n", result.Updated)

		counts, err := database.IdentityCount()
		if err == nil && len(counts) > 0 {
			output.Title("Identity mappings by source")
			for source, n := range counts {
				fmt.Printf("  %s: %d\n", source, n)
			}
		}

		return nil
	},
}

func init() {
	identityCmd.AddCommand(identityImportCmd)
	rootCmd.AddCommand(identityCmd)
}
