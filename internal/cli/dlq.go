package cli

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/logging"
	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/queue"
)

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Dead-letter queue operations",
}

var dlqListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List dead-lettered work items",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		q, err := dialQueue(cmd)
		if err != nil {
			return err
		}
		defer q.Close()

		dead, err := q.DeadLetters(cmd.Context(), limit)
		if err != nil {
			return fmt.Errorf("failed to read dead letters: %w", err)
		}

		if len(dead) == 0 {
			fmt.Println("Dead-letter queue is empty")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ITEM ID\tKIND\tDELIVERIES\tREASON\tMOVED AT")
		for _, d := range dead {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
				d.Item.ID,
				d.Item.Kind,
				d.Item.DeliveryCount,
				d.Reason,
				d.MovedAt.Format("2006-01-02 15:04:05"),
			)
		}
		return w.Flush()
	},
}

var dlqPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete every dead-lettered work item",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirmed, _ := cmd.Flags().GetBool("yes")
		if !confirmed {
			return fmt.Errorf("refusing to purge without --yes")
		}

		q, err := dialQueue(cmd)
		if err != nil {
			return err
		}
		defer q.Close()

		if err := q.PurgeDeadLetters(cmd.Context()); err != nil {
			return fmt.Errorf("failed to purge dead letters: %w", err)
		}

		fmt.Println("Dead-letter queue purged")
		return nil
	},
}

func dialQueue(cmd *cobra.Command) (*queue.JetStream, error) {
	stream, _ := cmd.Flags().GetString("stream")
	subject, _ := cmd.Flags().GetString("subject")
	consumer, _ := cmd.Flags().GetString("consumer")

	// Attaches to the workers' durable consumer; a work-queue stream
	// allows only one consumer per subject.
	q, err := queue.NewJetStream(cmd.Context(), queue.JetStreamConfig{
		URL:        natsURL,
		ClientName: "strategiq-cli",
		Stream:     stream,
		Subject:    subject,
		Consumer:   consumer,
	}, queue.DefaultPolicy(), logging.New(slog.LevelError, "text"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return q, nil
}

func init() {
	dlqCmd.PersistentFlags().String("stream", "CAMPAIGN_TASKS", "primary stream name")
	dlqCmd.PersistentFlags().String("subject", "campaign.tasks", "primary stream subject")
	dlqCmd.PersistentFlags().String("consumer", "campaign-workers", "durable consumer name")

	dlqListCmd.Flags().Int("limit", 50, "maximum items to list")
	dlqPurgeCmd.Flags().Bool("yes", false, "confirm the purge")

	dlqCmd.AddCommand(dlqListCmd)
	dlqCmd.AddCommand(dlqPurgeCmd)
}
