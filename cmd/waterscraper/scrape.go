package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jgoulah/waterscraper/internal/exporter"
)

var scrapeNoCSV bool

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Scrape usage data from the billing portal",
	Long: `Logs into the utility billing portal, extracts the hourly water usage and
weather data embedded in the dashboard, and stores it in the local SQLite
database. A timestamped CSV snapshot is written to the output directory
unless --no-csv is given.`,
	RunE: runScrape,
}

func init() {
	scrapeCmd.Flags().BoolVar(&scrapeNoCSV, "no-csv", false, "Skip writing the CSV snapshot")
	rootCmd.AddCommand(scrapeCmd)
}

func runScrape(cmd *cobra.Command, args []string) error {
	fmt.Printf("=== Scrape started at %s ===\n", time.Now().Format("2006-01-02 15:04:05 MST"))

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

	fmt.Println("Fetching dashboard data...")
	records, err := s.ScrapeUsage(ctx)
	if err != nil {
		return fmt.Errorf("scraping usage: %w", err)
	}

	if len(records) == 0 {
		fmt.Println("No usage data found")
		return nil
	}
	fmt.Printf("✓ Parsed %d usage records\n", len(records))

	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	for _, rec := range records {
		if err := db.InsertRecord(rec); err != nil {
			return fmt.Errorf("storing usage record: %w", err)
		}
	}
	fmt.Printf("✓ Stored %d records\n", len(records))

	if !scrapeNoCSV {
		path, err := exporter.WriteCSVFile(cfg.GetOutputDirectory(), records, time.Now())
		if err != nil {
			return fmt.Errorf("writing CSV: %w", err)
		}
		fmt.Printf("✓ CSV written to %s\n", path)
	}

	return nil
}
