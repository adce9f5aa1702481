package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/classync/classync/internal/config"
	"github.com/classync/classync/internal/db"
	"github.com/classync/classync/internal/models"
	"github.com/classync/classync/internal/output"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:     "init",
	Short:   "Initialize a classync project",
	Long:    `Creates the local .classync directory, SQLite database, and default config.`,
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		baseDir := getBaseDir()

		// Check if already initialized
		if _, err := os.Stat(filepath.Join(baseDir, ".classync")); err == nil {
			output.Warning(".classync/ already exists")
			return nil
		}

		database, err := db.Initialize(baseDir)
		if err != nil {
			output.Error("failed to initialize database: %v", err)
			return err
		}
		defer database.Close()

		baseURL, _ := cmd.Flags().GetString("classroom-url")
		cfg := &models.Config{
			ClassroomBaseURL: baseURL,
			MaxTasks:         config.DefaultMaxTasks,
		}
		if err := config.Save(baseDir, cfg); err != nil {
			output.Error("failed to write config: %v", err)
			return err
		}

		// Lay down the fail-closed unenroll policy so operators have a
		// file to edit rather than a format to remember.
		policy := &config.UnenrollPolicy{
			AutoUnenroll: false,
			DryRun:       true,
			InactiveDays: config.DefaultInactiveDays,
		}
		if err := config.SavePolicy(baseDir, policy); err != nil {
			output.Error("failed to write unenroll policy: %v", err)
			return err
		}

		fmt.Println("INITIALIZED .classync/")
		addToGitignore(filepath.Join(baseDir, ".gitignore"))

		output.Info("Next: set classroom_base_url and classroom_token in .classync/config.json")
		return nil
	},
}

func addToGitignore(path string) {
	content, _ := os.ReadFile(path)
	contentStr := string(content)

	if strings.Contains(contentStr, ".classync/") {
		return
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	defer f.Close()

	if len(contentStr) > 0 && !strings.HasSuffix(contentStr, "\n") {
		f.WriteString("\n")
	}

	f.WriteString(".classync/\n")
	fmt.Println("Added .classync/ to .gitignore")
}

func init() {
	initCmd.Flags().String("classroom-url", "", "base URL of the remote classroom API")
	rootCmd.AddCommand(initCmd)
}
