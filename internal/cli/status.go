package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dossier-systems/dossier-ingest/internal/cli/client"
)

var statusCmd = &cobra.Command{
	Use:   "status <message-id>",
	Short: "Show the lifecycle record for a message",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.NewEventsClient(serviceURL)
		msg, err := c.Status(args[0])
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(msg)
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show per-status queue counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.NewEventsClient(serviceURL)
		stats, err := c.Stats()
		if err != nil {
			return err
		}

		fmt.Printf("pending:     %d\n", stats.Counts.Pending)
		fmt.Printf("processing:  %d\n", stats.Counts.Processing)
		fmt.Printf("completed:   %d\n", stats.Counts.Completed)
		fmt.Printf("failed:      %d\n", stats.Counts.Failed)
		fmt.Printf("dead_letter: %d\n", stats.Counts.DeadLetter)
		fmt.Printf("total:       %d\n", stats.Total)
		return nil
	},
}

var replayCmd = &cobra.Command{
	Use:   "replay <message-id>",
	Short: "Re-drive a failed or dead-lettered message",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.NewEventsClient(serviceURL)
		out, err := c.Replay(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Replay queued: %s\n", out.MessageID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(replayCmd)
}
