package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"logsift/internal/parser"
)

type parseOutput struct {
	Shape    string                 `json:"shape"`
	Entry    *parser.ParsedLogEntry `json:"entry"`
	Category parser.CategoryResult  `json:"category"`
}

func newParseCmd() *cobra.Command {
	var (
		decoderName string
		configPath  string
		pretty      bool
	)

	cmd := &cobra.Command{
		Use:   "parse [line...]",
		Short: "Parse log lines and print the result as JSON",
		Long:  "Parse each argument, or each line of stdin when no arguments are given, and print one JSON object per record.",
		RunE: func(cmd *cobra.Command, args []string) error {
			dec, err := parser.Get(decoderName)
			if err != nil {
				return err
			}
			var opts []parser.Option
			if configPath != "" {
				cfg, err := loadConfig(configPath)
				if err != nil {
					return err
				}
				opts = append(opts, parser.WithAppMarkers(cfg.AppMarkers))
			}
			var in io.Reader = cmd.InOrStdin()
			if len(args) > 0 {
				in = strings.NewReader(strings.Join(args, "\n"))
			}
			return runParse(in, cmd.OutOrStdout(), dec, parser.New(opts...), pretty)
		},
	}

	cmd.Flags().StringVar(&decoderName, "decoder", parser.DecoderPlain,
		fmt.Sprintf("record decoder (%s)", strings.Join(parser.AvailableDecoders(), ", ")))
	cmd.Flags().StringVar(&configPath, "config", "", "config file supplying app markers")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "indent JSON output")

	return cmd
}

func runParse(in io.Reader, out io.Writer, dec parser.Decoder, p *parser.Parser, pretty bool) error {
	enc := json.NewEncoder(out)
	if pretty {
		enc.SetIndent("", "  ")
	}

	var writeErr error
	err := parser.ReadRecords(in, func(record string) bool {
		line, ok := dec.Decode(record)
		if !ok {
			return true
		}
		entry := p.Parse(line)
		res := parseOutput{
			Shape:    parser.ClassifyLine(line).Kind.String(),
			Entry:    entry,
			Category: p.Categorize(entry),
		}
		writeErr = enc.Encode(res)
		return writeErr == nil
	})
	if writeErr != nil {
		return fmt.Errorf("write: %w", writeErr)
	}
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	return nil
}
