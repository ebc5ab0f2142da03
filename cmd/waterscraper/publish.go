package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jgoulah/waterscraper/internal/database"
	"github.com/jgoulah/waterscraper/internal/publisher"
	"github.com/jgoulah/waterscraper/pkg/models"
)

var (
	publishSince string
	publishAll   bool
	publishLimit int
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish usage data to Home Assistant",
	Long: `Reads stored water usage data from the database and pushes the sensor
state (cumulative gallons plus the latest record's weather attributes) to
Home Assistant via its HTTP API and/or MQTT.`,
	RunE: runPublish,
}

func init() {
	publishCmd.Flags().StringVar(&publishSince, "since", "", "Only include data since this date (YYYY-MM-DD or relative like 7d)")
	publishCmd.Flags().BoolVar(&publishAll, "all", false, "Include already-published records in the rollup")
	publishCmd.Flags().IntVar(&publishLimit, "limit", 0, "Limit number of records to include (0 = no limit)")
	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, args []string) error {
	fmt.Printf("=== Publish started at %s ===\n", time.Now().Format("2006-01-02 15:04:05 MST"))

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if !cfg.HomeAssistant.Enabled && !cfg.MQTT.Enabled {
		return fmt.Errorf("neither Home Assistant nor MQTT is enabled in config")
	}

	pub, err := publisher.New(cfg.MQTT, cfg.HomeAssistant)
	if err != nil {
		return fmt.Errorf("creating publisher: %w", err)
	}
	defer pub.Close()

	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	// The sensor state is a rollup over all stored records; the published
	// flag tracks which records still need to trigger an update.
	var pending []database.StoredRecord
	if publishAll {
		pending, err = db.ListRecords()
	} else {
		pending, err = db.ListUnpublished()
	}
	if err != nil {
		return fmt.Errorf("listing records: %w", err)
	}

	if publishSince != "" {
		since, err := parseDate(publishSince)
		if err != nil {
			return fmt.Errorf("parsing --since date: %w", err)
		}
		filtered := pending[:0]
		for _, sr := range pending {
			if !sr.Record.PeriodStart.Before(since) {
				filtered = append(filtered, sr)
			}
		}
		pending = filtered
	}

	if publishLimit > 0 && len(pending) > publishLimit {
		pending = pending[:publishLimit]
		fmt.Printf("Limiting to %d records (--limit flag)\n", publishLimit)
	}

	if len(pending) == 0 {
		fmt.Println("No unpublished data found")
		return nil
	}

	all, err := db.ListRecords()
	if err != nil {
		return fmt.Errorf("listing records: %w", err)
	}

	records := make([]models.UsageRecord, len(all))
	for i, sr := range all {
		records[i] = sr.Record
	}

	latest := models.LatestRecord(records)
	state := publisher.SensorState{
		CumulativeGallons: models.CumulativeGallons(records),
		Latest:            *latest,
		RecordCount:       len(records),
	}

	fmt.Printf("Publishing sensor state (%.1f gal cumulative, latest period %s)...\n",
		state.CumulativeGallons, state.Latest.Period())

	if err := pub.Publish(state); err != nil {
		return fmt.Errorf("publishing: %w", err)
	}

	for _, sr := range pending {
		if err := db.MarkPublished(sr.ID); err != nil {
			fmt.Printf("⚠ Failed to mark record %d as published: %v\n", sr.ID, err)
		}
	}

	fmt.Printf("✓ Published state covering %d records (%d newly marked)\n", len(records), len(pending))
	return nil
}

// parseDate parses a date string in either YYYY-MM-DD format or relative format (e.g., "7d")
func parseDate(dateStr string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", dateStr)
	if err == nil {
		return t, nil
	}

	if len(dateStr) > 1 && dateStr[len(dateStr)-1] == 'd' {
		var days int
		if _, err := fmt.Sscanf(dateStr[:len(dateStr)-1], "%d", &days); err == nil {
			return time.Now().AddDate(0, 0, -days), nil
		}
	}

	return time.Time{}, fmt.Errorf("invalid date format: %s (use YYYY-MM-DD or Nd for N days ago)", dateStr)
}
