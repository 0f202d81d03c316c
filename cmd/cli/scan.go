package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/redforge/riskscan/internal/risk"
	"github.com/redforge/riskscan/internal/scanning"
)

var (
	scanTargets string
	scanProfile string
	scanTimeout time.Duration
	scanBinary  string
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run a one-shot scan and print the results",
	Long: `Run a scan synchronously against the given targets and print the
discovered hosts, ports, and risk summary. Targets go through the same
safety validation as API-submitted scans.`,
	Example: `  riskscan scan --targets 192.168.1.10
  riskscan scan --targets "192.168.1.0/28,10.0.0.5" --profile full
  riskscan scan --targets scanme.nmap.org --profile service_detection`,
	RunE: runScanCmd,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringVar(&scanTargets, "targets", "", "comma-separated targets (IPs, hostnames, CIDR ranges)")
	scanCmd.Flags().StringVar(&scanProfile, "profile", "quick",
		fmt.Sprintf("scan profile: %s", strings.Join(profileNames(), ", ")))
	scanCmd.Flags().DurationVar(&scanTimeout, "timeout", 0, "override the profile's execution timeout")
	scanCmd.Flags().StringVar(&scanBinary, "binary", "", "scanner binary (default from config)")
	_ = scanCmd.MarkFlagRequired("targets")
}

func profileNames() []string {
	profiles := scanning.Profiles()
	names := make([]string, len(profiles))
	for i, p := range profiles {
		names[i] = string(p)
	}
	return names
}

func runScanCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	profile, err := scanning.ParseProfile(scanProfile)
	if err != nil {
		return err
	}

	binary := cfg.Scanning.Binary
	if scanBinary != "" {
		binary = scanBinary
	}

	resolver, err := scanning.NewDNSResolver(cfg.Scanning.DNSTimeout)
	var validatorResolver scanning.Resolver
	if err == nil {
		validatorResolver = resolver
	}
	validator := scanning.NewValidator(validatorResolver)
	executor := scanning.NewExecutor(binary, validator)
	parser := scanning.NewParser()

	ctx := context.Background()
	if result := validator.Validate(ctx, scanTargets); !result.IsValid {
		return fmt.Errorf("invalid targets: %s", result.Message)
	}
	tokens := scanning.Tokens(scanTargets)

	var allHosts []scanning.HostResult
	start := time.Now()

	for _, token := range tokens {
		execCtx := ctx
		if scanTimeout > 0 {
			var cancel context.CancelFunc
			execCtx, cancel = context.WithTimeout(ctx, scanTimeout)
			defer cancel()
		}

		fmt.Printf("Scanning %s with profile %s...\n", token, profile)
		result := executor.Execute(execCtx, token, profile)
		switch result.Status {
		case scanning.ExecutionSuccess:
		case scanning.ExecutionToolNotFound:
			return fmt.Errorf("%s", result.ErrorMessage)
		default:
			fmt.Fprintf(os.Stderr, "Warning: %s: %s\n", token, result.ErrorMessage)
			if len(result.RawOutput) == 0 {
				continue
			}
		}

		allHosts = append(allHosts, parseTargetOutput(parser, token, result.RawOutput, os.Stderr)...)
	}

	summary := scanning.Summarize(allHosts)
	renderHosts(allHosts)
	renderSummary(summary, time.Since(start))
	return nil
}

// parseTargetOutput decodes one target's raw output, reporting parse
// degradation as warnings rather than failing the run.
func parseTargetOutput(parser *scanning.Parser, token string, raw []byte, warnings io.Writer) []scanning.HostResult {
	parsed := parser.Parse(raw)
	for _, parseErr := range parsed.ParseErrors {
		fmt.Fprintf(warnings, "Warning: %s: %s\n", token, parseErr)
	}
	return parsed.Hosts
}

func renderHosts(hosts []scanning.HostResult) {
	if len(hosts) == 0 {
		fmt.Println("\nNo hosts found.")
		return
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Host", "Status", "Port", "State", "Service", "Version")

	for i := range hosts {
		host := &hosts[i]
		name := host.IP
		if host.Hostname != "" {
			name = fmt.Sprintf("%s (%s)", host.IP, host.Hostname)
		}

		if len(host.Ports) == 0 {
			_ = table.Append([]string{name, host.Status, "-", "-", "-", "-"})
			continue
		}
		status := host.Status
		for _, port := range host.Ports {
			version := strings.TrimSpace(port.Product + " " + port.Version)
			_ = table.Append([]string{
				name, status,
				fmt.Sprintf("%d/%s", port.Port, port.Protocol),
				port.State, port.Service, version,
			})
			name, status = "", ""
		}
	}
	fmt.Println()
	_ = table.Render()
}

func renderSummary(summary scanning.Summary, elapsed time.Duration) {
	fmt.Printf("\nScan finished in %s\n", elapsed.Round(time.Millisecond))
	fmt.Printf("  Hosts up:        %d of %d\n", summary.HostsUp, summary.TotalHosts)
	fmt.Printf("  Open ports:      %d\n", summary.OpenPorts)
	fmt.Printf("  Services:        %s\n", strings.Join(summary.ServicesDetected, ", "))
	fmt.Printf("  Vulnerabilities: %d\n", summary.VulnerabilitiesFound)
	fmt.Printf("  Risk score:      %.1f (%s)\n", summary.RiskScore, risk.ScoreToLevel(summary.RiskScore))
}
