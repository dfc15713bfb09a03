package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/foundationrisk/soilrisk/internal/geo"
	"github.com/foundationrisk/soilrisk/internal/lookup"
	"github.com/foundationrisk/soilrisk/internal/model"
	"github.com/foundationrisk/soilrisk/internal/store"
)

var locationsCmd = &cobra.Command{
	Use:   "locations",
	Short: "Inspect and register stored locations",
}

// -- locations list --

var locationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored locations",
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

		state, _ := cmd.Flags().GetString("state")
		limit, _ := cmd.Flags().GetInt("limit")

		locs, err := st.ListLocations(ctx, store.LocationFilter{
			State: strings.ToUpper(state),
			Limit: limit,
		})
		if err != nil {
			return eris.Wrap(err, "locations list")
		}

		if len(locs) == 0 {
			fmt.Fprintln(os.Stderr, "No locations found.")
			return nil
		}

		formatLocationsList(os.Stdout, locs)
		return nil
	},
}

// -- locations import --

var locationsImportCmd = &cobra.Command{
	Use:   "import <targets.yaml>",
	Short: "Register target locations without geocoding them",
	Long:  "Adds every zip in a YAML target list to the catalog in one bulk write. Zips already stored are skipped. Run 'ingest --missing' afterwards to geocode the new rows and fetch their soil.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("store"); err != nil {
			return err
		}
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		return importLocations(ctx, os.Stdout, st, args[0])
	},
}

func importLocations(ctx context.Context, out io.Writer, st lookup.Registrar, path string) error {
	targets, err := lookup.LoadTargets(path)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		_, _ = fmt.Fprintln(out, "No targets to import.")
		return nil
	}

	added, skipped, err := lookup.RegisterTargets(ctx, st, targets)
	if err != nil {
		return eris.Wrap(err, "locations import")
	}
	_, _ = fmt.Fprintf(out, "Registered %d location(s), %d already stored.\n", added, skipped)
	return nil
}

// -- locations related --

var locationsRelatedCmd = &cobra.Command{
	Use:   "related <slug>",
	Short: "Show the nearest stored locations to a location",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("store"); err != nil {
			return err
		}
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		loc, err := st.GetLocationBySlug(ctx, model.TrimPageSuffix(args[0]))
		if err != nil {
			return eris.Wrap(err, "locations related")
		}
		if loc == nil {
			return eris.Errorf("no location with slug %q", args[0])
		}

		related, err := newAdapters().lookupService(st, nil).Related(ctx, *loc)
		if err != nil {
			return eris.Wrap(err, "locations related")
		}
		if len(related) == 0 {
			fmt.Fprintln(os.Stderr, "No related locations (missing coordinates or no other locations).")
			return nil
		}

		formatRelated(os.Stdout, related)
		return nil
	},
}

func init() {
	locationsListCmd.Flags().String("state", "", "filter by two-letter state code")
	locationsListCmd.Flags().Int("limit", 0, "max number of locations to display (0 = all)")

	locationsCmd.AddCommand(locationsListCmd)
	locationsCmd.AddCommand(locationsImportCmd)
	locationsCmd.AddCommand(locationsRelatedCmd)
	rootCmd.AddCommand(locationsCmd)
}

// formatLocationsList writes a tabular list of locations to w.
func formatLocationsList(out io.Writer, locs []model.Location) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CITY\tSTATE\tZIP\tSLUG\tCOORDINATES\tNEIGHBORHOODS")
	_, _ = fmt.Fprintln(w, "----\t-----\t---\t----\t-----------\t-------------")

	for _, l := range locs {
		coords := "-"
		if lat, lon, ok := l.Coordinates(); ok {
			coords = fmt.Sprintf("%.4f,%.4f", lat, lon)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n",
			l.City, l.State, l.PostalCode, l.Slug, coords, len(l.Neighborhoods))
	}
	_ = w.Flush()
}

// formatRelated writes ranked locations with their distances to w.
func formatRelated(out io.Writer, related []geo.Ranked) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "#\tCITY\tSTATE\tSLUG\tDISTANCE_KM")
	for i, r := range related {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%.1f\n",
			i+1, r.Location.City, r.Location.State, r.Location.Slug, r.DistanceKM)
	}
	_ = w.Flush()
}
