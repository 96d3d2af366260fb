package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yairfalse/scandeck/types"
)

var (
	scanTenant string
	scanRegion string
	scanOutput string
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run a compliance scan for one tenant or a whole region",
	Long: `Run a compliance scan against the remote backend.

With --tenant, a single-tenant scan runs against that tenant's configured
regions. With --region, the scan fans out across every tenant configured
for the region; individual tenant failures are reported but do not abort
the run. The run completes as long as at least one tenant succeeds.`,
	Example: `  scandeck scan --tenant acme-prod          # Scan one tenant
  scandeck scan --region us-east-1          # Fan out across a region
  scandeck scan --region us-east-1 -o json  # Machine-readable output`,
	RunE: runScanCmd,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringVarP(&scanTenant, "tenant", "t", "", "Tenant id to scan")
	scanCmd.Flags().StringVarP(&scanRegion, "region", "r", "", "Region to fan out across")
	scanCmd.Flags().StringVarP(&scanOutput, "output", "o", "table", "Output format: table, json")
}

func runScanCmd(cmd *cobra.Command, args []string) error {
	mode, err := scanModeFromFlags()
	if err != nil {
		return err
	}
	if scanOutput != "table" && scanOutput != "json" {
		return fmt.Errorf("invalid output format: %s (must be table or json)", scanOutput)
	}

	s, err := buildStack()
	if err != nil {
		return err
	}

	ctx := context.Background()
	if err := s.catalog.Refresh(ctx); err != nil {
		return fmt.Errorf("failed to load tenant catalog: %w", err)
	}

	result, err := s.orchestrator.StartRun(ctx, mode)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if scanOutput == "json" {
		return printJSON(result)
	}
	printScanResult(result)
	return nil
}

func scanModeFromFlags() (types.ScanMode, error) {
	switch {
	case scanTenant != "" && scanRegion != "":
		return types.ScanMode{}, fmt.Errorf("--tenant and --region are mutually exclusive")
	case scanTenant != "":
		return types.SingleMode(scanTenant), nil
	case scanRegion != "":
		return types.FanOutMode(scanRegion), nil
	default:
		return types.ScanMode{}, fmt.Errorf("either --tenant or --region is required")
	}
}

func printScanResult(result *types.AggregatedScanResult) {
	fmt.Printf("Scan %s settled: %s\n", result.RunID, result.Mode)
	fmt.Printf("  Targets: %d succeeded, %d failed\n", result.Succeeded, result.Failed)
	fmt.Printf("  Resources scanned: %d\n", result.Totals.Resources)
	fmt.Printf("  Findings: %d\n\n", result.Totals.Findings)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TARGET\tSTATUS\tRESOURCES\tFINDINGS")
	for _, partial := range result.Partials {
		status := "ok"
		if partial.Failed() {
			status = "failed: " + partial.Err
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\n",
			partial.TargetID, status, partial.ResourceCount, partial.FindingCount)
	}
	_ = w.Flush()

	if len(result.Findings) > 0 {
		fmt.Println()
		w = tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "FINDING\tTENANT\tREGION\tSEVERITY")
		for _, finding := range result.Findings {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				finding.ID, finding.TargetID, finding.Region, finding.Severity)
		}
		_ = w.Flush()
	}
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
