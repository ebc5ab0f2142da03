package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Verify portal credentials",
	Long: `Establishes a session against the billing portal with the configured
credentials and prints the property info the authenticated account sees.
Useful as a credential check before scheduling scrapes.`,
	RunE: runLogin,
}

func init() {
	rootCmd.AddCommand(loginCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	s, err := newScraper(cfg)
	if err != nil {
		return err
	}

	ctx := context.Background()
	fmt.Printf("Logging into %s...\n", cfg.GetBaseURL())

	if err := s.Login(ctx); err != nil {
		return fmt.Errorf("logging in: %w", err)
	}
	fmt.Println("✓ Login successful")

	info, err := s.PropertyInfo(ctx)
	if err != nil {
		fmt.Printf("⚠ Could not fetch property info: %v\n", err)
		return nil
	}

	fmt.Printf("Property info (%d bytes):\n%s\n", len(info), snippetForDisplay(info))
	return nil
}

func snippetForDisplay(body []byte) string {
	const max = 2000
	if len(body) > max {
		return string(body[:max]) + "\n... (truncated)"
	}
	return string(body)
}
