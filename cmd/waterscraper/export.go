package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jgoulah/waterscraper/internal/exporter"
	"github.com/jgoulah/waterscraper/pkg/models"
)

var (
	exportRemote bool
	exportFormat string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export usage data to CSV",
	Long: `Writes stored usage records to a CSV file in the output directory.
With --remote, runs the billing portal's own export flow instead and saves
the raw payload it returns.`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().BoolVar(&exportRemote, "remote", false, "Use the portal's export endpoint instead of stored data")
	exportCmd.Flags().StringVar(&exportFormat, "format", "csv", "Export format for --remote")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if exportRemote {
		return runRemoteExport(cfg.GetOutputDirectory())
	}

	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	stored, err := db.ListRecords()
	if err != nil {
		return fmt.Errorf("listing records: %w", err)
	}

	if len(stored) == 0 {
		fmt.Println("No data to export")
		return nil
	}

	records := make([]models.UsageRecord, len(stored))
	for i, sr := range stored {
		records[i] = sr.Record
	}

	path, err := exporter.WriteCSVFile(cfg.GetOutputDirectory(), records, time.Now())
	if err != nil {
		return fmt.Errorf("writing CSV: %w", err)
	}

	fmt.Printf("✓ Exported %d records to %s\n", len(records), path)
	return nil
}

func runRemoteExport(outputDir string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	s, err := newScraper(cfg)
	if err != nil {
		return err
	}

	ctx := context.Background()
	fmt.Printf("Requesting %s export from the portal...\n", exportFormat)

	data, err := s.Export(ctx, exportFormat)
	if err != nil {
		return fmt.Errorf("portal export: %w", err)
	}

	path, err := exporter.WriteRawExport(outputDir, exportFormat, data)
	if err != nil {
		return err
	}

	fmt.Printf("✓ Export saved to %s\n", path)
	return nil
}
