package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var tenantsOutput string

// tenantsCmd represents the tenants command
var tenantsCmd = &cobra.Command{
	Use:   "tenants",
	Short: "List the tenant catalog",
	Long: `List every tenant the backend knows about, in catalog order,
with the regions each one is configured for.`,
	Example: `  scandeck tenants
  scandeck tenants -o json`,
	RunE: runTenantsCmd,
}

func init() {
	rootCmd.AddCommand(tenantsCmd)

	tenantsCmd.Flags().StringVarP(&tenantsOutput, "output", "o", "table", "Output format: table, json")
}

func runTenantsCmd(cmd *cobra.Command, args []string) error {
	s, err := buildStack()
	if err != nil {
		return err
	}

	ctx := context.Background()
	if err := s.catalog.Refresh(ctx); err != nil {
		return fmt.Errorf("failed to load tenant catalog: %w", err)
	}

	tenants := s.catalog.Tenants()
	if tenantsOutput == "json" {
		return printJSON(tenants)
	}

	fmt.Printf("%d tenants across %d regions\n\n", len(tenants), len(s.catalog.Regions()))

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tREGIONS")
	for _, tenant := range tenants {
		fmt.Fprintf(w, "%s\t%s\t%s\n", tenant.ID, tenant.Name, strings.Join(tenant.Regions, ","))
	}
	return w.Flush()
}
