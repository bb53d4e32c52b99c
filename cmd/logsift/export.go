package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/spf13/cobra"

	"logsift/internal/storage"
)

func newExportCmd() *cobra.Command {
	var (
		dbPath   string
		outPath  string
		since    time.Duration
		level    string
		category string
		plain    bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export stored records as zstd-compressed JSONL",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				cfg, err := loadConfig("")
				if err != nil {
					return err
				}
				dbPath = cfg.DBPath
			}
			store, err := storage.OpenReadOnly(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			var out io.Writer = cmd.OutOrStdout()
			if outPath != "" && outPath != "-" {
				f, err := os.Create(outPath)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				defer f.Close()
				out = f
			}

			filter := storage.ListOpts{Level: level, Category: category}
			if since > 0 {
				filter.Since = time.Now().Add(-since)
			}
			n, err := runExport(store, out, filter, !plain)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "exported %d records\n", n)
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "database path (default LOGSIFT_DB_PATH)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "-", "output file, - for stdout")
	cmd.Flags().DurationVar(&since, "since", 0, "only records observed within this duration")
	cmd.Flags().StringVar(&level, "level", "", "only records with this level")
	cmd.Flags().StringVar(&category, "category", "", "only records with this category")
	cmd.Flags().BoolVar(&plain, "plain", false, "write uncompressed JSONL")

	return cmd
}

// recordSource is the part of the store export reads from.
type recordSource interface {
	ForEach(fn func(*storage.Record) error) error
}

func runExport(src recordSource, out io.Writer, filter storage.ListOpts, compress bool) (int, error) {
	w := out
	var enc *zstd.Encoder
	if compress {
		var err error
		enc, err = zstd.NewWriter(out)
		if err != nil {
			return 0, fmt.Errorf("zstd: %w", err)
		}
		w = enc
	}

	jw := json.NewEncoder(w)
	n := 0
	err := src.ForEach(func(rec *storage.Record) error {
		if !keep(rec, filter) {
			return nil
		}
		n++
		return jw.Encode(rec)
	})
	if err != nil {
		if enc != nil {
			enc.Close()
		}
		return n, fmt.Errorf("export: %w", err)
	}
	if enc != nil {
		if err := enc.Close(); err != nil {
			return n, fmt.Errorf("zstd close: %w", err)
		}
	}
	return n, nil
}

func keep(rec *storage.Record, f storage.ListOpts) bool {
	if f.Level != "" && !strings.EqualFold(rec.Level(), f.Level) {
		return false
	}
	if f.Category != "" && !rec.Category.Has(strings.ToLower(f.Category)) {
		return false
	}
	if !f.Since.IsZero() && rec.ObservedAt.Before(f.Since) {
		return false
	}
	return true
}
