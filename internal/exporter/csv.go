package exporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jgoulah/waterscraper/pkg/models"
)

var csvHeader = []string{"datetime", "usage_gallons", "temperature_f", "precipitation_in", "humidity_percent"}

// WriteCSV writes one row per record to w, with the period rendered in the
// portal's own format.
func WriteCSV(w io.Writer, records []models.UsageRecord) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}

	for _, r := range records {
		row := []string{
			r.Period(),
			strconv.FormatFloat(r.Gallons, 'f', 1, 64),
			strconv.FormatFloat(r.TemperatureF, 'f', 0, 64),
			strconv.FormatFloat(r.PrecipitationIn, 'f', 2, 64),
			strconv.FormatFloat(r.HumidityPercent, 'f', 1, 64),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing CSV row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes records to a timestamped file in outputDir and returns
// its path.
func WriteCSVFile(outputDir string, records []models.UsageRecord, now time.Time) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}

	path := filepath.Join(outputDir, fmt.Sprintf("water_usage_%s.csv", now.Format("20060102_150405")))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating CSV file: %w", err)
	}
	defer f.Close()

	if err := WriteCSV(f, records); err != nil {
		return "", err
	}

	return path, nil
}

// WriteRawExport saves the portal's own export payload as-is.
func WriteRawExport(outputDir, format string, data []byte) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}

	path := filepath.Join(outputDir, fmt.Sprintf("usage_export.%s", format))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing export file: %w", err)
	}

	return path, nil
}
