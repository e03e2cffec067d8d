// Package cli implements the dossierctl command tree.
package cli

import (
	"github.com/spf13/cobra"
)

var serviceURL string

var rootCmd = &cobra.Command{
	Use:   "dossierctl",
	Short: "Dossier ingest CLI",
	Long: `dossierctl is the command-line interface for the Dossier ingest service.

Inspect message status, read queue statistics, replay failed messages,
and seed synthetic webhook events for testing.`,
	Version: "0.1.0",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serviceURL, "url", "http://localhost:8085", "ingest service URL")
}
