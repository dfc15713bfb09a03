package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/foundationrisk/soilrisk/internal/model"
	"github.com/foundationrisk/soilrisk/internal/store"
)

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "Inspect homeowner intake submissions",
}

var leadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent leads",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("store"); err != nil {
			return err
		}
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		since, _ := cmd.Flags().GetDuration("since")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := store.LeadFilter{Status: model.LeadStatus(status), Limit: limit}
		if since > 0 {
			filter.CreatedAfter = time.Now().UTC().Add(-since)
		}

		leads, err := st.ListLeads(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "leads list")
		}

		if len(leads) == 0 {
			fmt.Fprintln(os.Stderr, "No leads found.")
			return nil
		}

		formatLeadsList(os.Stdout, leads)
		return nil
	},
}

func init() {
	leadsListCmd.Flags().String("status", "", "filter by lead status (new, ...)")
	leadsListCmd.Flags().Duration("since", 7*24*time.Hour, "time window (e.g. 24h, 168h); 0 for all")
	leadsListCmd.Flags().Int("limit", 50, "max number of leads to display")

	leadsCmd.AddCommand(leadsListCmd)
	rootCmd.AddCommand(leadsCmd)
}

// formatLeadsList writes a tabular list of leads to w.
func formatLeadsList(out io.Writer, leads []model.Lead) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tEMAIL\tPHONE\tZIP\tSYMPTOMS\tSTATUS\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t----\t-----\t-----\t---\t--------\t------\t-------")

	for _, l := range leads {
		name := l.Name
		if len(name) > 24 {
			name = name[:21] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(l.ID),
			name,
			l.Email,
			l.Phone,
			l.PostalCode,
			strings.Join(l.Symptoms, ","),
			l.Status,
			l.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
