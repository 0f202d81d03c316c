package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/redforge/riskscan/internal/identity"
)

var apikeyPrincipal string

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Manage API keys",
}

var apikeyGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate an API key and its configuration entry",
	Long: `Generate a random API key. The key itself is printed once and never
stored; add the printed YAML entry to the identity.api_keys section of
the configuration file.`,
	RunE: runAPIKeyGenerate,
}

func init() {
	rootCmd.AddCommand(apikeyCmd)
	apikeyCmd.AddCommand(apikeyGenerateCmd)

	apikeyGenerateCmd.Flags().StringVar(&apikeyPrincipal, "principal", "", "principal id the key authenticates as")
	_ = apikeyGenerateCmd.MarkFlagRequired("principal")
}

func runAPIKeyGenerate(cmd *cobra.Command, _ []string) error {
	key, hash, err := identity.GenerateAPIKey()
	if err != nil {
		return fmt.Errorf("generating API key: %w", err)
	}

	fmt.Printf("API key (shown once, store it now):\n  %s\n\n", key)
	fmt.Println("Add to the identity.api_keys section of riskscan.yaml:")
	fmt.Printf("  - principal: %s\n    hash: %q\n", apikeyPrincipal, hash)
	return nil
}
