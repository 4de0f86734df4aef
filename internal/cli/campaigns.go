package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Amali-Tech/strategIQ-ai-sub001/internal/models"
)

var campaignsCmd = &cobra.Command{
	Use:   "campaigns",
	Short: "Campaign status operations",
}

var campaignsGetCmd = &cobra.Command{
	Use:   "get [campaign-id]",
	Short: "Show one campaign record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := apiGet(fmt.Sprintf("%s/api/v1/campaigns/%s", apiURL, args[0]))
		if err != nil {
			return err
		}

		var pretty map[string]any
		if err := json.Unmarshal(body, &pretty); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
		out, _ := json.MarshalIndent(pretty, "", "  ")
		fmt.Println(string(out))
		return nil
	},
}

var campaignsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List campaigns, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")
		since, _ := cmd.Flags().GetString("since")

		query := url.Values{}
		if filter != "" {
			query.Set("status", filter)
		}
		if since != "" {
			if _, err := time.Parse(time.RFC3339, since); err != nil {
				return fmt.Errorf("invalid --since value %q: expected RFC 3339 timestamp", since)
			}
			query.Set("since", since)
		}
		query.Set("limit", strconv.Itoa(limit))

		body, err := apiGet(fmt.Sprintf("%s/api/v1/campaigns?%s", apiURL, query.Encode()))
		if err != nil {
			return err
		}

		var resp struct {
			Campaigns []struct {
				CampaignID string                `json:"campaign_id"`
				Status     models.CampaignStatus `json:"status"`
				Progress   int                   `json:"progress"`
				CreatedAt  time.Time             `json:"created_at"`
				UpdatedAt  time.Time             `json:"updated_at"`
			} `json:"campaigns"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}

		if len(resp.Campaigns) == 0 {
			fmt.Println("No campaigns found")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CAMPAIGN ID\tSTATUS\tPROGRESS\tCREATED\tUPDATED")
		for _, c := range resp.Campaigns {
			fmt.Fprintf(w, "%s\t%s\t%d%%\t%s\t%s\n",
				c.CampaignID,
				c.Status,
				c.Progress,
				c.CreatedAt.Format("2006-01-02 15:04"),
				c.UpdatedAt.Format("2006-01-02 15:04"),
			)
		}
		return w.Flush()
	},
}

func apiGet(rawURL string) ([]byte, error) {
	client := &http.Client{Timeout: 10 * time.Second}

	resp, err := client.Get(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to reach status service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("status service: %s", apiErr.Error)
		}
		return nil, fmt.Errorf("status service returned %d", resp.StatusCode)
	}

	return body, nil
}

func init() {
	campaignsListCmd.Flags().String("status", "", "filter by status (pending, processing, completed, failed)")
	campaignsListCmd.Flags().Int("limit", 50, "maximum campaigns to return")
	campaignsListCmd.Flags().String("since", "", "only campaigns created before this RFC 3339 timestamp")

	campaignsCmd.AddCommand(campaignsGetCmd)
	campaignsCmd.AddCommand(campaignsListCmd)
}
