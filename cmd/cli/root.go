// Package cli implements the riskscan command-line interface: the API
// server, one-shot scans, target validation, readiness diagnostics, and
// API key management.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/redforge/riskscan/internal/config"
	"github.com/redforge/riskscan/internal/logging"
)

var (
	cfgFile string
	verbose bool
)

// Build information, set from main via SetVersion.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "riskscan",
	Short: "Network vulnerability scan orchestration",
	Long: `Riskscan orchestrates network vulnerability scans: it validates targets,
drives an nmap-compatible scanner through safety-checked invocations,
parses the results, and scores the findings by risk. Scans run
asynchronously behind a REST API or synchronously from this CLI.`,
	Version: versionString(),
}

// Execute runs the root command. Called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./riskscan.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Accept snake_case flag spellings for parity with the config file.
	rootCmd.PersistentFlags().SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	if err := viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose")); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to bind verbose flag: %v\n", err)
	}
}

// initConfig resolves the config file path and sets up logging before any
// subcommand runs.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("riskscan")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("RISKSCAN")

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	initLogging()
}

// loadConfig loads the full configuration from the resolved file.
func loadConfig() (*config.Config, error) {
	return config.Load(viper.ConfigFileUsed())
}

func initLogging() {
	cfg, err := loadConfig()
	if err != nil {
		logging.SetDefault(logging.NewDefault())
		return
	}

	opts := cfg.LoggingOptions()
	if verbose {
		opts.Level = "debug"
	}
	logger, err := logging.New(opts)
	if err != nil {
		logger = logging.NewDefault()
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logging: %v\n", err)
	}
	logging.SetDefault(logger)
}

func versionString() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime)
}

// SetVersion records build information from main.
func SetVersion(v, c, bt string) {
	version = v
	commit = c
	buildTime = bt
	rootCmd.Version = versionString()
}
