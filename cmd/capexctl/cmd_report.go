package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"capex/internal/analytics"
	"capex/internal/backend"
	"capex/internal/core"
	"capex/internal/services"

	"github.com/spf13/cobra"
)

func reportCmd() *cobra.Command {
	var (
		view     string
		segment  string
		category string
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the dashboard, project or oversight view",
		Long: `Read the configured backend and print one of the read views.

Examples:
  capexctl report
  capexctl report --view projects --segment Mining
  capexctl report --view oversight --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
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

			svc := services.NewDashboardService(services.NewSnapshotLoader(store.Store, store.Store, nil), cfg.Calendar())
			out := cmd.OutOrStdout()
			switch view {
			case "dashboard":
				v := svc.Dashboard(cmd.Context(), analytics.AggregateFilter{Segment: segment, Category: category})
				if asJSON {
					return printJSON(out, v)
				}
				printDashboard(out, v)
			case "projects":
				v := svc.Projects(cmd.Context(), analytics.ProjectFilter{Segment: segment, Category: category})
				if asJSON {
					return printJSON(out, v)
				}
				printProjects(out, v)
			case "oversight":
				v := svc.Oversight(cmd.Context())
				if asJSON {
					return printJSON(out, v)
				}
				printOversight(out, v)
			default:
				return fmt.Errorf("unknown view %q: must be dashboard, projects or oversight", view)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&view, "view", "dashboard", "view to print (dashboard|projects|oversight)")
	cmd.Flags().StringVar(&segment, "segment", "", "filter by segment")
	cmd.Flags().StringVar(&category, "category", "", "filter by category")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func printProblems(w io.Writer, problems []string) {
	for _, p := range problems {
		fmt.Fprintf(w, "WARNING: %s\n", p)
	}
}

func printDashboard(w io.Writer, v services.DashboardView) {
	printProblems(w, v.Problems)
	fmt.Fprintf(w, "YTD through %s\n", core.MonthLabel(v.ReportingMonth))
	fmt.Fprintf(w, "  Real:      %s\n", core.FormatUSD(v.KPI.RealYTD))
	fmt.Fprintf(w, "  Budget:    %s\n", core.FormatUSD(v.KPI.BudgetYTD))
	fmt.Fprintf(w, "  Variance:  %s\n", core.FormatUSD(v.KPI.Variance))
	fmt.Fprintf(w, "  Execution: %.1f%%\n\n", v.KPI.ExecutionPct)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROJECT\tSEGMENT\tREAL YTD\tBUDGET YTD\tEXEC %\tREADY")
	for _, a := range v.Aggregates {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.1f\t%v\n",
			a.NameOfProject, a.Segment, core.FormatUSD(a.RealYTD), core.FormatUSD(a.BudgetYTD), a.ExecutionPct, a.ForecastReady)
	}
	_ = tw.Flush()
}

func printProjects(w io.Writer, v services.ProjectsView) {
	printProblems(w, v.Problems)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROJECT\tRESPONSIBLE\tSEGMENT\tCATEGORY\tREAL YTD\tREADY")
	for _, p := range v.Projects {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%v\n",
			p.Name, p.Responsible, p.Segment, p.Category, core.FormatUSD(p.YTD.RealYTD), p.Ready)
	}
	_ = tw.Flush()
}

func printOversight(w io.Writer, v services.OversightView) {
	printProblems(w, v.Problems)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEGMENT\tRESPONSIBLE\tREADY\tTOTAL")
	for _, s := range v.Segments {
		fmt.Fprintf(tw, "%s\t\t%d\t%d\n", s.Segment, s.Tally.Ready, s.Tally.Total)
		for _, r := range s.Responsibles {
			fmt.Fprintf(tw, "\t%s\t%d\t%d\n", r.Responsible, r.Tally.Ready, r.Tally.Total)
		}
	}
	fmt.Fprintf(tw, "ALL\t\t%d\t%d\n", v.Overall.Ready, v.Overall.Total)
	_ = tw.Flush()
}
