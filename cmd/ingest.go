package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/foundationrisk/soilrisk/internal/lookup"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [zip city state]",
	Short: "Geocode locations and cache their soil records",
	Long: "Ingests one location given as arguments, every {zip, city, state} entry of a YAML file given with --file, " +
		"or with --missing every stored location that has no coordinates yet.",
	Args: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		missing, _ := cmd.Flags().GetBool("missing")
		switch {
		case file != "" && missing:
			return eris.New("--file and --missing are mutually exclusive")
		case (file != "" || missing) && len(args) > 0:
			return eris.New("positional arguments cannot be combined with --file or --missing")
		case file == "" && !missing && len(args) != 3:
			return eris.New("expected <zip> <city> <state>, --file or --missing")
		}
		return nil
	},
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

		var targets []lookup.Target
		if missing, _ := cmd.Flags().GetBool("missing"); missing {
			targets, err = lookup.BackfillTargets(ctx, st)
		} else {
			file, _ := cmd.Flags().GetString("file")
			targets, err = ingestTargets(file, args)
		}
		if err != nil {
			return err
		}
		if len(targets) == 0 {
			fmt.Fprintln(os.Stderr, "No targets to ingest.")
			return nil
		}

		if c, _ := cmd.Flags().GetInt("concurrency"); c > 0 {
			cfg.Ingest.Concurrency = c
		}

		results, err := newAdapters().ingestor(st, nil).IngestAll(ctx, targets)
		formatIngestResults(os.Stdout, results)
		if err != nil {
			return err
		}

		for _, r := range results {
			if !r.OK() {
				return eris.Errorf("ingest: %d of %d targets failed", countFailed(results), len(results))
			}
		}
		return nil
	},
}

func init() {
	ingestCmd.Flags().String("file", "", "YAML file listing {zip, city, state} targets")
	ingestCmd.Flags().Bool("missing", false, "re-ingest stored locations without coordinates")
	ingestCmd.Flags().Int("concurrency", 0, "targets processed at once (default from config)")
	rootCmd.AddCommand(ingestCmd)
}

func ingestTargets(file string, args []string) ([]lookup.Target, error) {
	if file != "" {
		return lookup.LoadTargets(file)
	}
	return []lookup.Target{{Zip: args[0], City: args[1], State: args[2]}}, nil
}

func countFailed(results []lookup.Result) int {
	n := 0
	for _, r := range results {
		if !r.OK() {
			n++
		}
	}
	return n
}

// formatIngestResults writes one row per target to w.
func formatIngestResults(out io.Writer, results []lookup.Result) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ZIP\tCITY\tSTATUS\tRISK\tSLUG")
	_, _ = fmt.Fprintln(w, "---\t----\t------\t----\t----")
	for _, r := range results {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.Zip, r.City, r.Status, r.Risk, r.Slug)
	}
	_ = w.Flush()
}
