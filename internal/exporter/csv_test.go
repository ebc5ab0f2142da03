package exporter

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jgoulah/waterscraper/pkg/models"
)

func sampleRecords() []models.UsageRecord {
	start := time.Date(2025, time.June, 19, 4, 0, 0, 0, time.UTC)
	return []models.UsageRecord{
		{
			PeriodStart:     start,
			PeriodEnd:       start.Add(time.Hour),
			Gallons:         73.0,
			TemperatureF:    61,
			PrecipitationIn: 0,
			HumidityPercent: 99,
		},
		{
			PeriodStart:     start.Add(time.Hour),
			PeriodEnd:       start.Add(2 * time.Hour),
			Gallons:         12.5,
			TemperatureF:    63,
			PrecipitationIn: 0.25,
			HumidityPercent: 97.5,
		},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleRecords()))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	require.Equal(t, "datetime,usage_gallons,temperature_f,precipitation_in,humidity_percent", lines[0])

	// the period contains commas, so the writer must quote it
	require.Equal(t, `"Thu, Jun 19, 2025 4:00 AM - 5:00 AM",73.0,61,0.00,99.0`, lines[1])
	require.Equal(t, `"Thu, Jun 19, 2025 5:00 AM - 6:00 AM",12.5,63,0.25,97.5`, lines[2])
}

func TestWriteCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))
	require.Equal(t, "datetime,usage_gallons,temperature_f,precipitation_in,humidity_percent\n", buf.String())
}

func TestWriteCSVFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	now := time.Date(2025, time.June, 20, 15, 4, 5, 0, time.UTC)

	path, err := WriteCSVFile(dir, sampleRecords(), now)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "water_usage_20250620_150405.csv"), path)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(content), "datetime,"))
	require.Equal(t, 3, strings.Count(string(content), "\n"))
}

func TestWriteRawExport(t *testing.T) {
	dir := t.TempDir()

	path, err := WriteRawExport(dir, "csv", []byte("a,b,c\n1,2,3\n"))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "usage_export.csv"), path)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "a,b,c\n1,2,3\n", string(content))
}
