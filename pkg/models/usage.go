package models

import (
	"fmt"
	"strings"
	"time"
)

// PeriodLayout is the timestamp format the billing portal uses for the start
// of an hourly period, e.g. "Thu, Jun 19, 2025 4:00 AM".
const PeriodLayout = "Mon, Jan 2, 2006 3:04 PM"

// ClockLayout is the format of the bare end-of-period clock time, e.g. "5:00 AM".
const ClockLayout = "3:04 PM"

// UsageRecord represents one hour of water usage with the weather
// conditions the portal correlates with it
type UsageRecord struct {
	PeriodStart     time.Time `json:"period_start"`
	PeriodEnd       time.Time `json:"period_end"`
	Gallons         float64   `json:"usage_gallons"`
	TemperatureF    float64   `json:"temperature_f"`
	PrecipitationIn float64   `json:"precipitation_in"`
	HumidityPercent float64   `json:"humidity_percent"`
}

// Period renders the record's time span back in the portal's format.
func (r UsageRecord) Period() string {
	return fmt.Sprintf("%s - %s", r.PeriodStart.Format(PeriodLayout), r.PeriodEnd.Format(ClockLayout))
}

// ParsePeriod parses a portal period string like
// "Thu, Jun 19, 2025 4:00 AM - 5:00 AM" into start and end timestamps.
// The end time shares the start's date; a period ending at or before its
// start rolls over to the next day (the 11:00 PM - 12:00 AM hour).
func ParsePeriod(s string) (start, end time.Time, err error) {
	startStr, endStr, found := strings.Cut(s, " - ")
	if !found {
		return time.Time{}, time.Time{}, fmt.Errorf("period %q: missing range separator", s)
	}

	start, err = time.Parse(PeriodLayout, startStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("period %q: %w", s, err)
	}

	clock, err := time.Parse(ClockLayout, endStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("period %q: %w", s, err)
	}

	end = time.Date(start.Year(), start.Month(), start.Day(),
		clock.Hour(), clock.Minute(), 0, 0, start.Location())
	if !end.After(start) {
		end = end.AddDate(0, 0, 1)
	}

	return start, end, nil
}

// CumulativeGallons sums usage across all records. Home Assistant's Energy
// dashboard wants a monotonically increasing total rather than the hourly
// reading.
func CumulativeGallons(records []UsageRecord) float64 {
	var total float64
	for _, r := range records {
		total += r.Gallons
	}
	return total
}

// DailyGallons sums usage for records whose period starts on the same
// calendar day as the given time.
func DailyGallons(records []UsageRecord, day time.Time) float64 {
	var total float64
	for _, r := range records {
		y1, m1, d1 := r.PeriodStart.Date()
		y2, m2, d2 := day.Date()
		if y1 == y2 && m1 == m2 && d1 == d2 {
			total += r.Gallons
		}
	}
	return total
}

// LatestRecord returns the record with the most recent period start, or nil
// when there are none.
func LatestRecord(records []UsageRecord) *UsageRecord {
	var latest *UsageRecord
	for i := range records {
		if latest == nil || records[i].PeriodStart.After(latest.PeriodStart) {
			latest = &records[i]
		}
	}
	return latest
}
