package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/foundationrisk/soilrisk/internal/lookup"
	"github.com/foundationrisk/soilrisk/pkg/geocode"
)

var lookupCmd = &cobra.Command{
	Use:   "lookup <address>",
	Short: "Geocode an address and classify the soil beneath it",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("lookup"); err != nil {
			return err
		}

		query := strings.Join(args, " ")
		addr := geocode.FreeText(query)
		if zip, _ := cmd.Flags().GetBool("zip"); zip {
			addr = geocode.PostalCode(query)
		}

		a, err := newAdapters().lookupService(nil, nil).Assess(cmd.Context(), addr)
		if err != nil {
			return eris.Wrap(err, "lookup")
		}
		if !a.Found {
			return eris.Errorf("address not found: %s", query)
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(a)
		}
		formatAssessment(os.Stdout, a)
		return nil
	},
}

func init() {
	lookupCmd.Flags().Bool("zip", false, "treat the argument as a postal code")
	lookupCmd.Flags().Bool("json", false, "print the assessment as JSON")
	rootCmd.AddCommand(lookupCmd)
}

// formatAssessment writes a human-readable assessment to w.
func formatAssessment(out io.Writer, a *lookup.Assessment) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if a.DisplayName != "" {
		_, _ = fmt.Fprintf(w, "Address:\t%s\n", a.DisplayName)
	}
	_, _ = fmt.Fprintf(w, "Coordinates:\t%.5f, %.5f\n", a.Latitude, a.Longitude)
	_, _ = fmt.Fprintf(w, "Risk:\t%s\n", a.Risk)
	if a.Soil == nil {
		_, _ = fmt.Fprintln(w, "Soil:\tno survey data for this point")
		_ = w.Flush()
		return
	}
	_, _ = fmt.Fprintf(w, "Soil:\t%s (%s)\n", a.Soil.ComponentName, a.Soil.MapUnitSymbol)
	_, _ = fmt.Fprintf(w, "Map unit:\t%s\n", a.Soil.MapUnitName)
	_, _ = fmt.Fprintf(w, "Plasticity index:\t%.1f\n", a.Soil.PlasticityIndex)
	_, _ = fmt.Fprintf(w, "Shrink-swell (LEP):\t%.1f\n", a.Soil.ShrinkSwell)
	if a.Soil.DrainageClass != "" {
		_, _ = fmt.Fprintf(w, "Drainage:\t%s\n", a.Soil.DrainageClass)
	}
	_ = w.Flush()
}
