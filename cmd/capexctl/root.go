package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"capex/internal/cli"
	"capex/internal/config"
	"capex/internal/ingest"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var logLevel string
	root := &cobra.Command{
		Use:           "capexctl",
		Short:         "CAPEX ledger command line",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cli.SetupLogger(logLevel)
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug|info|warn|error)")

	root.AddCommand(validateCmd())
	root.AddCommand(importCmd())
	root.AddCommand(templateCmd())
	root.AddCommand(reportCmd())
	root.AddCommand(tokenCmd())
	return root
}

// loadConfig loads and validates the same configuration the server uses.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// readLedgerFile returns path as text, converting .xlsx content from its
// first sheet. "-" reads stdin.
func readLedgerFile(cmd *cobra.Command, path string) (string, error) {
	var (
		b   []byte
		err error
	)
	if path == "-" {
		b, err = io.ReadAll(cmd.InOrStdin())
	} else {
		b, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	if ingest.IsWorkbook(b) {
		return ingest.FromWorkbook(bytes.NewReader(b))
	}
	return string(b), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
