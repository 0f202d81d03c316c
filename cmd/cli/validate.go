package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/redforge/riskscan/internal/scanning"
)

var validateCmd = &cobra.Command{
	Use:   "validate <targets>",
	Short: "Check targets against the scan safety rules",
	Long: `Validate a target specification without scanning: shell
metacharacters, forbidden patterns, unresolvable hostnames, and
oversized network ranges are rejected. Hostnames are resolved and
public addresses reported as warnings.`,
	Example: `  riskscan validate 192.168.1.0/24
  riskscan validate "db.internal, 10.0.0.5"`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	resolver, err := scanning.NewDNSResolver(cfg.Scanning.DNSTimeout)
	var validatorResolver scanning.Resolver
	if err == nil {
		validatorResolver = resolver
	}
	validator := scanning.NewValidator(validatorResolver)

	result := validator.Validate(context.Background(), args[0])

	if result.IsValid {
		fmt.Printf("OK: %s\n", result.Message)
	} else {
		fmt.Printf("REJECTED: %s\n", result.Message)
	}
	if len(result.ResolvedIPs) > 0 {
		fmt.Printf("Resolved: %s\n", strings.Join(result.ResolvedIPs, ", "))
	}
	for _, warning := range result.Warnings {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
	}

	if !result.IsValid {
		os.Exit(1)
	}
	return nil
}
