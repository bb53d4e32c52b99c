package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"logsift/internal/config"
)

var version = "dev"

func main() {
	if err := execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "logsift",
		Short:         "Parse, categorize and export system log records",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Component logs from internal packages are noise on a CLI.
			if v, _ := cmd.Flags().GetBool("verbose"); !v {
				log.SetOutput(io.Discard)
			}
		},
	}
	root.PersistentFlags().Bool("verbose", false, "show component logs on stderr")
	root.AddCommand(newParseCmd())
	root.AddCommand(newExportCmd())
	root.AddCommand(newSourcesCmd())
	return root
}

// loadConfig reads path, or the LOGSIFT_CONFIG file when path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFrom(path)
}
