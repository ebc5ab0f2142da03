package scraper

import (
	"sort"

	"github.com/jgoulah/waterscraper/pkg/models"
)

// Normalize orders records by period start and collapses duplicate periods,
// keeping the last-seen record for each. Missing hours are never
// synthesized; a gap in the input stays a gap in the output. Normalizing an
// already-normalized sequence is a no-op.
func Normalize(records []models.UsageRecord) []models.UsageRecord {
	type periodKey struct {
		start, end int64
	}

	seen := make(map[periodKey]int, len(records))
	out := make([]models.UsageRecord, 0, len(records))

	for _, r := range records {
		k := periodKey{start: r.PeriodStart.Unix(), end: r.PeriodEnd.Unix()}
		if i, ok := seen[k]; ok {
			out[i] = r
			continue
		}
		seen[k] = len(out)
		out = append(out, r)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PeriodStart.Before(out[j].PeriodStart)
	})

	return out
}
