package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yairfalse/scandeck/types"
)

var (
	metricsRegion  string
	metricsRefresh bool
	metricsOutput  string
)

// metricsCmd represents the metrics command
var metricsCmd = &cobra.Command{
	Use:   "metrics [key]",
	Short: "Fetch the dashboard metrics snapshot for a tenant or region",
	Long: `Fetch a metrics snapshot from the backend.

With a key argument, the snapshot for that tenant or region key is
fetched through the 30s metrics cache. With --region, a full regional
view is assembled: one row per tenant, failed rows reported inline,
totals summed over the rows that loaded.`,
	Example: `  scandeck metrics acme-prod               # One tenant's snapshot
  scandeck metrics acme-prod --refresh     # Bypass the cache
  scandeck metrics --region us-east-1      # Regional per-tenant view`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMetricsCmd,
}

func init() {
	rootCmd.AddCommand(metricsCmd)

	metricsCmd.Flags().StringVarP(&metricsRegion, "region", "r", "", "Assemble the regional view for a region")
	metricsCmd.Flags().BoolVar(&metricsRefresh, "refresh", false, "Bypass caches and refetch")
	metricsCmd.Flags().StringVarP(&metricsOutput, "output", "o", "table", "Output format: table, json")
}

func runMetricsCmd(cmd *cobra.Command, args []string) error {
	if (len(args) == 0) == (metricsRegion == "") {
		return fmt.Errorf("either a key argument or --region is required")
	}

	s, err := buildStack()
	if err != nil {
		return err
	}
	ctx := context.Background()

	if metricsRegion != "" {
		if err := s.catalog.Refresh(ctx); err != nil {
			return fmt.Errorf("failed to load tenant catalog: %w", err)
		}
		view, err := s.regional.Load(ctx, metricsRegion, metricsRefresh)
		if err != nil {
			return err
		}
		if metricsOutput == "json" {
			return printJSON(view)
		}
		printRegionalView(view)
		return nil
	}

	snapshot, fetchedAt, err := s.cache.GetOrFetch(ctx, args[0], metricsRefresh)
	if err != nil {
		if snapshot == nil {
			return fmt.Errorf("metrics fetch failed: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Warning: refresh failed (%v), showing value from %s\n", err, fetchedAt.Format("15:04:05"))
	}
	if metricsOutput == "json" {
		return printJSON(snapshot)
	}
	printSnapshot(snapshot)
	return nil
}

func printSnapshot(s *types.MetricsSnapshot) {
	fmt.Printf("Metrics for %s (captured %s)\n", s.Key, s.CapturedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("  Resources: %d (prev %d)\n", s.ResourceCount, s.PrevResourceCount)
	fmt.Printf("  Findings:  %d (prev %d)\n", s.FindingCount, s.PrevFindingCount)

	if len(s.BySeverity) > 0 {
		fmt.Println("  By severity:")
		for _, severity := range []types.Severity{
			types.SeverityCritical, types.SeverityHigh, types.SeverityMedium, types.SeverityLow,
		} {
			if count, ok := s.BySeverity[severity]; ok {
				fmt.Printf("    %-8s %d\n", severity, count)
			}
		}
	}

	if len(s.Leaderboard) > 0 {
		fmt.Println("  Top offenders:")
		for _, entry := range s.Leaderboard {
			fmt.Printf("    %-24s %d\n", entry.Label, entry.Findings)
		}
	}
}

func printRegionalView(view types.RegionalMetrics) {
	totals := view.AggregateTotals()
	fmt.Printf("Region %s: %d tenants, %d resources, %d findings\n\n",
		view.Region, len(view.PerTenant), totals.Resources, totals.Findings)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TENANT\tRESOURCES\tFINDINGS\tSTATUS")
	for _, id := range sortedRowIDs(view) {
		row := view.PerTenant[id]
		switch {
		case row.Err != "":
			fmt.Fprintf(w, "%s\t-\t-\t%s\n", id, row.Err)
		case row.Metrics == nil:
			fmt.Fprintf(w, "%s\t-\t-\tno data\n", id)
		default:
			fmt.Fprintf(w, "%s\t%d\t%d\tok\n", id, row.Metrics.ResourceCount, row.Metrics.FindingCount)
		}
	}
	_ = w.Flush()
}

func sortedRowIDs(view types.RegionalMetrics) []string {
	ids := make([]string, 0, len(view.PerTenant))
	for id := range view.PerTenant {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
