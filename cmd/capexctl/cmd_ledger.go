package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"capex/internal/backend"
	"capex/internal/cache"
	"capex/internal/core"
	"capex/internal/forecast"
	"capex/internal/ingest"
	"capex/internal/services"

	"github.com/spf13/cobra"
)

var errSchemaRejected = errors.New("ledger file rejected: missing required columns")

func validateCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "validate FILE",
		Short: "Validate a ledger file without writing it",
		Long: `Validate a CSV or .xlsx ledger file and report accepted rows and
per-line errors. Use "-" to read from stdin.

Examples:
  capexctl validate ledger.csv
  capexctl validate ledger.xlsx --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readLedgerFile(cmd, args[0])
			if err != nil {
				return err
			}
			res := ingest.Validate(raw)
			if asJSON {
				if err := printJSON(cmd.OutOrStdout(), res); err != nil {
					return err
				}
			} else {
				printResult(cmd.OutOrStdout(), res, -1)
			}
			if res.SchemaRejected() {
				return errSchemaRejected
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	return cmd
}

func importCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Validate a ledger file and upsert the accepted rows",
		Long: `Import a CSV or .xlsx ledger file into the configured backend
(CAPEX_BACKEND). Rejected lines are reported and skipped; a file missing a
required column writes nothing.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readLedgerFile(cmd, args[0])
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			backendCfg, err := backend.FromAppConfig(cfg)
			if err != nil {
				return err
			}
			store, err := backend.NewFactory(nil).CreateBackend(cmd.Context(), backendCfg)
			if err != nil {
				return err
			}
			defer store.Close()

			var inv forecast.Invalidator
			if cfg.RedisURL != "" {
				rdb, err := cache.NewRedisClient(cfg.RedisURL)
				if err != nil {
					return err
				}
				defer rdb.Close()
				inv = redisInvalidator{cache.NewRedisCache[[]core.LedgerRow](rdb, cache.DefaultPrefix, cfg.CacheTTL)}
			}
			svc := services.NewImportService(store.Store, inv, nil, nil)

			if dryRun {
				res := svc.Validate(raw)
				printResult(cmd.OutOrStdout(), res, -1)
				if res.SchemaRejected() {
					return errSchemaRejected
				}
				return nil
			}
			res, err := svc.Import(cmd.Context(), raw)
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), res.Result, res.Persisted)
			if res.SchemaRejected() {
				return errSchemaRejected
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate only")
	return cmd
}

// redisInvalidator drops the shared cached reads after a CLI import so the
// API replicas re-read.
type redisInvalidator struct {
	d cache.Deleter
}

func (r redisInvalidator) Invalidate(ctx context.Context, resources ...core.Resource) error {
	return cache.Invalidate(ctx, r.d, resources...)
}

func templateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "template FILE",
		Short: "Write an empty .xlsx ledger template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Create(args[0])
			if err != nil {
				return err
			}
			if err := ingest.WriteTemplate(f); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Template written to %s\n", args[0])
			return nil
		},
	}
}

// printResult writes a summary; persisted < 0 means nothing was written.
func printResult(w io.Writer, res ingest.Result, persisted int) {
	if res.SchemaRejected() {
		fmt.Fprintf(w, "Missing required columns: %v\n", res.MissingColumns)
		return
	}
	fmt.Fprintf(w, "Accepted rows: %d\n", len(res.Rows))
	fmt.Fprintf(w, "Rejected lines: %d\n", len(res.Errors))
	for _, e := range res.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
	if persisted >= 0 {
		fmt.Fprintf(w, "Persisted rows: %d\n", persisted)
	}
}
