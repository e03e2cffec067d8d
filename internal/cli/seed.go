package cli

import (
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/spf13/cobra"

	"github.com/dossier-systems/dossier-ingest/internal/cli/client"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Send synthetic webhook events",
	Long:  "Generate signed synthetic document change events and post them to the intake endpoint",
	Example: `  dossierctl seed --secret my-webhook-secret --count 50
  dossierctl seed --secret my-webhook-secret --doctype "Project" --interval 500ms`,
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, _ := cmd.Flags().GetString("secret")
		count, _ := cmd.Flags().GetInt("count")
		interval, _ := cmd.Flags().GetDuration("interval")
		doctype, _ := cmd.Flags().GetString("doctype")

		if secret == "" {
			return fmt.Errorf("webhook secret is required (use --secret)")
		}

		gofakeit.Seed(time.Now().UnixNano())
		c := client.NewEventsClient(serviceURL)

		log.Printf("Seeding %d events to %s (doctype: %s)", count, serviceURL, doctype)

		successCount := 0
		failCount := 0

		for i := 0; i < count; i++ {
			event := generateEvent(doctype)
			resp, err := c.SendEvent(secret, event)
			if err != nil {
				log.Printf("Failed to send event: %v", err)
				failCount++
			} else {
				successCount++
				if successCount%25 == 0 {
					log.Printf("Progress: %d/%d events sent (last: %s)", successCount, count, resp.MessageID)
				}
			}

			if interval > 0 && i < count-1 {
				time.Sleep(interval)
			}
		}

		log.Printf("Seeding complete: %d sent, %d failed", successCount, failCount)
		return nil
	},
}

var actions = []string{"create", "update", "update", "update", "delete"}

func generateEvent(doctype string) map[string]interface{} {
	action := actions[rand.Intn(len(actions))]

	event := map[string]interface{}{
		"doctype": doctype,
		"name":    fmt.Sprintf("%s-%04d", gofakeit.LetterN(4), gofakeit.Number(1, 9999)),
		"action":  action,
	}

	if action != "delete" {
		event["data"] = map[string]interface{}{
			"title":       gofakeit.Sentence(6),
			"description": gofakeit.Paragraph(2, 4, 12, " "),
			"content":     gofakeit.Paragraph(5, 8, 20, "\n\n"),
			"owner":       gofakeit.Email(),
		}
	}
	return event
}

func init() {
	rootCmd.AddCommand(seedCmd)

	seedCmd.Flags().String("secret", "", "webhook signing secret")
	seedCmd.Flags().Int("count", 100, "number of events to send")
	seedCmd.Flags().Duration("interval", 100*time.Millisecond, "interval between events")
	seedCmd.Flags().String("doctype", "Knowledge Article", "doctype for generated events")
}
