package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dossier-systems/dossier-ingest/internal/cli/client"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Re-index every document of a doctype",
	Long: `Enumerate all documents of a doctype in the source system and queue an
update event for each one, re-driving the whole type through the pipeline.`,
	Example: `  dossierctl ingest --doctype "Knowledge Article"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		doctype, _ := cmd.Flags().GetString("doctype")
		if doctype == "" {
			return fmt.Errorf("doctype is required (use --doctype)")
		}

		c := client.NewEventsClient(serviceURL)
		out, err := c.Reindex(doctype)
		if err != nil {
			return err
		}

		fmt.Printf("Re-index of %q queued: %d documents", out.Doctype, out.Queued)
		if out.Failed > 0 {
			fmt.Printf(" (%d failed to enqueue)", out.Failed)
		}
		fmt.Println()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().String("doctype", "", "doctype to re-index")
}
