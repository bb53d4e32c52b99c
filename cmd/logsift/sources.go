package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"logsift/internal/config"
	"logsift/internal/discovery"
)

type sourceRow struct {
	config.SourceDef
	Origin string `json:"origin"` // config or discovered
	Owner  string `json:"owner,omitempty"`
}

func newSourcesCmd() *cobra.Command {
	var (
		configPath string
		discover   bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "sources",
		Short: "List configured and discovered log sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			var found []discovery.Candidate
			if discover {
				if found, err = discovery.NewAutoDiscover().Scan(); err != nil {
					return fmt.Errorf("discover: %w", err)
				}
			}
			rows := mergeSources(cfg.Sources, found)
			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}
			return printSources(cmd.OutOrStdout(), rows)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "config file (default LOGSIFT_CONFIG)")
	cmd.Flags().BoolVar(&discover, "discover", false, "also scan the host for log sources")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

// mergeSources lists configured sources first, then discovered ones whose
// name is not already configured.
func mergeSources(configured []config.SourceDef, found []discovery.Candidate) []sourceRow {
	rows := make([]sourceRow, 0, len(configured)+len(found))
	have := map[string]bool{}
	for _, s := range configured {
		have[s.Name] = true
		rows = append(rows, sourceRow{SourceDef: s, Origin: "config"})
	}
	for _, c := range found {
		if have[c.Name] {
			continue
		}
		rows = append(rows, sourceRow{SourceDef: c.Source(), Origin: "discovered", Owner: c.Owner})
	}
	return rows
}

func printSources(out io.Writer, rows []sourceRow) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTYPE\tPATH\tDECODER\tENABLED\tORIGIN")
	for _, r := range rows {
		path := r.Path
		if path == "" {
			path = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%s\n", r.Name, r.Type, path, r.Decoder, r.Enabled, r.Origin)
	}
	return tw.Flush()
}
