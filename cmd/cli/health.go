package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/redforge/riskscan/internal/health"
	"github.com/redforge/riskscan/internal/scanning"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run the readiness diagnostics locally",
	Long: `Run the same diagnostics the /health endpoint serves: scanner binary
availability, store connectivity, DNS resolution, and free disk space.
Exits non-zero when any check is error grade.`,
	RunE: runHealth,
}

func init() {
	rootCmd.AddCommand(healthCmd)
}

func runHealth(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	ctx := context.Background()
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	resolver, err := scanning.NewDNSResolver(cfg.Scanning.DNSTimeout)
	var checkResolver scanning.Resolver
	if err == nil {
		checkResolver = resolver
	}
	validator := scanning.NewValidator(checkResolver)
	executor := scanning.NewExecutor(cfg.Scanning.Binary, validator)

	report := health.NewChecker(executor, st, checkResolver).Run(ctx)

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Check", "Status", "Message", "Recommendation")
	for _, check := range report.Checks {
		_ = table.Append([]string{check.Name, string(check.Status), check.Message, check.Recommendation})
	}
	_ = table.Render()
	fmt.Printf("\nOverall: %s\n", report.Status)

	if report.Status == health.StatusError {
		os.Exit(1)
	}
	return nil
}
