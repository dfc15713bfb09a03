package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/foundationrisk/soilrisk/internal/model"
	"github.com/foundationrisk/soilrisk/internal/monitoring"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show location, soil coverage and lead totals",
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

		lookback, _ := cmd.Flags().GetInt("lookback")
		if lookback <= 0 {
			lookback = cfg.Monitoring.LookbackWindowHours
		}

		snap, err := monitoring.NewCollector(st).Collect(ctx, lookback)
		if err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		}
		formatSnapshot(os.Stdout, snap, monitoring.NewAlerter(cfg.Monitoring).Evaluate(snap))
		return nil
	},
}

func init() {
	statusCmd.Flags().Int("lookback", 0, "lead window in hours (default from config)")
	statusCmd.Flags().Bool("json", false, "print the snapshot as JSON")
	rootCmd.AddCommand(statusCmd)
}

// formatSnapshot writes the snapshot and any threshold breaches to w.
func formatSnapshot(out io.Writer, s *monitoring.Snapshot, alerts []monitoring.Alert) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Locations:\t%d\n", s.LocationsTotal)
	_, _ = fmt.Fprintf(w, "  With coordinates:\t%d\n", s.LocationsWithCoords)
	_, _ = fmt.Fprintf(w, "  With soil data:\t%d\n", s.LocationsWithSoil)
	_, _ = fmt.Fprintf(w, "Soil coverage:\t%.1f%%\n", s.SoilCoverage*100)

	tiers := make([]model.RiskLevel, 0, len(s.LocationsByRisk))
	for tier := range s.LocationsByRisk {
		tiers = append(tiers, tier)
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].Severity() > tiers[j].Severity() })
	for _, tier := range tiers {
		_, _ = fmt.Fprintf(w, "  %s:\t%d\n", tier, s.LocationsByRisk[tier])
	}

	_, _ = fmt.Fprintf(w, "Leads (last %dh):\t%d\n", s.LookbackHours, s.Leads)
	for _, a := range alerts {
		_, _ = fmt.Fprintf(w, "ALERT [%s]:\t%s\n", a.Severity, a.Message)
	}
	_ = w.Flush()
}
