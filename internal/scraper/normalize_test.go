package scraper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jgoulah/waterscraper/pkg/models"
)

func hourRecord(t *testing.T, day time.Time, hour int, gallons float64) models.UsageRecord {
	t.Helper()
	start := day.Add(time.Duration(hour) * time.Hour)
	return models.UsageRecord{
		PeriodStart: start,
		PeriodEnd:   start.Add(time.Hour),
		Gallons:     gallons,
	}
}

func TestNormalizeSortsByPeriodStart(t *testing.T) {
	day := time.Date(2025, 6, 19, 0, 0, 0, 0, time.UTC)
	in := []models.UsageRecord{
		hourRecord(t, day, 5, 5),
		hourRecord(t, day, 2, 2),
		hourRecord(t, day, 9, 9),
	}

	out := Normalize(in)
	require.Len(t, out, 3)
	require.Equal(t, 2.0, out[0].Gallons)
	require.Equal(t, 5.0, out[1].Gallons)
	require.Equal(t, 9.0, out[2].Gallons)
}

func TestNormalizeDuplicateLastWins(t *testing.T) {
	day := time.Date(2025, 6, 19, 0, 0, 0, 0, time.UTC)
	in := []models.UsageRecord{
		hourRecord(t, day, 4, 10),
		hourRecord(t, day, 5, 20),
		hourRecord(t, day, 4, 99),
	}

	out := Normalize(in)
	require.Len(t, out, 2)
	require.Equal(t, 99.0, out[0].Gallons, "the last record for a duplicated period wins")
	require.Equal(t, 20.0, out[1].Gallons)
}

func TestNormalizeIdempotent(t *testing.T) {
	day := time.Date(2025, 6, 19, 0, 0, 0, 0, time.UTC)
	in := []models.UsageRecord{
		hourRecord(t, day, 7, 7),
		hourRecord(t, day, 3, 3),
		hourRecord(t, day, 3, 30),
	}

	once := Normalize(in)
	twice := Normalize(once)
	require.Equal(t, once, twice)
}

func TestNormalizePreservesGaps(t *testing.T) {
	day := time.Date(2025, 6, 19, 0, 0, 0, 0, time.UTC)
	in := []models.UsageRecord{
		hourRecord(t, day, 1, 1),
		hourRecord(t, day, 7, 7),
	}

	out := Normalize(in)
	require.Len(t, out, 2, "missing hours must not be synthesized")
	require.Equal(t, day.Add(1*time.Hour), out[0].PeriodStart)
	require.Equal(t, day.Add(7*time.Hour), out[1].PeriodStart)
}

func TestNormalizeEmpty(t *testing.T) {
	require.Empty(t, Normalize(nil))
}
