package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/jgoulah/waterscraper/internal/scraper"
)

var (
	inspectSave   bool
	inspectWidget string
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [endpoint]",
	Short: "Fetch one portal endpoint and dump the raw response",
	Long: `Fetches a single dashboard endpoint with an authenticated session and
prints the raw response, for debugging parse failures against whatever the
portal is currently serving.

Available endpoints: table, chart, usage, property, widget`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().BoolVar(&inspectSave, "save", false, "Save the response to the output directory instead of printing it")
	inspectCmd.Flags().StringVar(&inspectWidget, "widget", "UsageChart", "Widget name for the widget endpoint")
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	name := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	s, err := newScraper(cfg)
	if err != nil {
		return err
	}

	ctx := context.Background()
	if err := s.Login(ctx); err != nil {
		return fmt.Errorf("logging in: %w", err)
	}

	var body []byte
	switch name {
	case "table":
		body, err = s.Fetch(ctx, scraper.EndpointDashboardTable, nil)
	case "chart":
		body, err = s.Fetch(ctx, scraper.EndpointDashboardChart, nil)
	case "usage":
		body, err = s.UsageData(ctx, "")
	case "property":
		body, err = s.PropertyInfo(ctx)
	case "widget":
		body, err = s.LoadWidget(ctx, inspectWidget)
	default:
		return fmt.Errorf("unknown endpoint: %s (available: table, chart, usage, property, widget)", name)
	}
	if err != nil {
		return fmt.Errorf("fetching %s: %w", name, err)
	}

	if inspectSave {
		dir := cfg.GetOutputDirectory()
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
		path := filepath.Join(dir, fmt.Sprintf("inspect_%s_%s.html", name, time.Now().Format("20060102_150405")))
		if err := os.WriteFile(path, body, 0644); err != nil {
			return fmt.Errorf("saving response: %w", err)
		}
		fmt.Printf("✓ Response saved to %s (%d bytes)\n", path, len(body))
		return nil
	}

	fmt.Printf("=== %s response (%d bytes) ===\n", name, len(body))
	fmt.Println(string(body))
	return nil
}
