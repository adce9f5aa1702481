package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/classync/classync/internal/db"
	"github.com/classync/classync/internal/models"
	"github.com/classync/classync/internal/output"
	"github.com/spf13/cobra"
)

var enqueueCmd = &cobra.Command{
	Use:     "enqueue [event-type]",
	Short:   "Append a sync task to the queue, or requeue failed tasks",
	GroupID: "sync",
	Long: `Appends a task for the given event type (course.upsert, topic.upsert,
work.upsert, roster.upsert) with a JSON payload from --payload or --file.

With --retry-failed, requeues failed tasks whose attempt count is below
--max-attempts instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := db.Open(getBaseDir())
		if err != nil {
			output.Error("open database: %v", err)
			return err
		}
		defer database.Close()

		retryFailed, _ := cmd.Flags().GetBool("retry-failed")
		if retryFailed {
			maxAttempts, _ := cmd.Flags().GetInt("max-attempts")
			n, err := database.RetryFailedTasks(maxAttempts)
			if err != nil {
				output.Error("retry failed tasks: %v", err)
				return err
			}
			output.Success("Requeued %d failed tasks", n)
			return nil
		}

		if len(args) != 1 {
			return fmt.Errorf("event type required (or use --retry-failed)")
		}
		eventType := models.EventType(args[0])
		if !eventType.Valid() {
			return fmt.Errorf("unknown event type: %s", args[0])
		}

		source, _ := cmd.Flags().GetString("source")
		payloadStr, _ := cmd.Flags().GetString("payload")
		payloadFile, _ := cmd.Flags().GetString("file")

		var payload json.RawMessage
		switch {
		case payloadFile != "":
			data, err := os.ReadFile(payloadFile)
			if err != nil {
				output.Error("read payload file: %v", err)
				return err
			}
			payload = data
		case payloadStr != "":
			payload = json.RawMessage(payloadStr)
		default:
			return fmt.Errorf("payload required: use --payload or --file")
		}

		if !json.Valid(payload) {
			return fmt.Errorf("payload is not valid JSON")
		}

		id, err := database.EnqueueTask(eventType, source, payload)
		if err != nil {
			output.Error("enqueue: %v", err)
			return err
		}

		output.Success("Enqueued %s task %s", eventType, id)
		return nil
	},
}

func init() {
	enqueueCmd.Flags().String("source", "lms", "LMS instance tag the event came from")
	enqueueCmd.Flags().String("payload", "", "inline JSON payload")
	enqueueCmd.Flags().String("file", "", "file containing the JSON payload")
	enqueueCmd.Flags().Bool("retry-failed", false, "requeue failed tasks below the attempts ceiling")
	enqueueCmd.Flags().Int("max-attempts", 5, "attempts ceiling for --retry-failed")
	rootCmd.AddCommand(enqueueCmd)
}
