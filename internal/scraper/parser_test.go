package scraper

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jgoulah/waterscraper/internal/session"
)

// tooltipHTML mimics the markup the dashboard embeds per chart point.
const tooltipHTML = `<b>Thu, Jun 19, 2025 4:00 AM - 5:00 AM</b><br/><b>WR1</b>: 73.0 gal<br/><b>Temp</b>: 61°F<br/><b>Precipitation</b>: 0.0 in.<br/><b>Humidity</b>: 99.0%`

func envelope(t *testing.T, fragment string) []byte {
	t.Helper()

	body, err := json.Marshal(map[string]any{
		"AjaxResults": []map[string]string{{"Value": fragment}},
	})
	require.NoError(t, err)
	return body
}

func TestParseUsageFlatObject(t *testing.T) {
	raw := `<div><script>var tooltipJSON = {"usage": 73.0, "temp": 61, "precip": 0.0, "humidity": 99.0, "period": "Thu, Jun 19, 2025 4:00 AM - 5:00 AM"};</script></div>`

	records, err := ParseUsage(EndpointDashboardTable, []byte(raw))
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	require.Equal(t, 73.0, rec.Gallons)
	require.Equal(t, 61.0, rec.TemperatureF)
	require.Equal(t, 0.0, rec.PrecipitationIn)
	require.Equal(t, 99.0, rec.HumidityPercent)
	require.Equal(t, time.Date(2025, 6, 19, 4, 0, 0, 0, time.UTC), rec.PeriodStart)
	require.Equal(t, time.Date(2025, 6, 19, 5, 0, 0, 0, time.UTC), rec.PeriodEnd)
}

func TestParseUsageTooltipMarkupInEnvelope(t *testing.T) {
	entries, err := json.Marshal([]map[string]string{{"value": tooltipHTML}})
	require.NoError(t, err)

	fragment := `<script>var tooltipJSON = ` + string(entries) + `;</script>`
	records, err := ParseUsage(EndpointDashboardTable, envelope(t, fragment))
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	require.Equal(t, 73.0, rec.Gallons)
	require.Equal(t, 61.0, rec.TemperatureF)
	require.Equal(t, 99.0, rec.HumidityPercent)
}

func TestParseUsageJSONParseWrapper(t *testing.T) {
	// The portal ships the array as an escaped JS string fed to JSON.parse.
	fragment := `<script>var tooltipJSON = JSON.parse('[{\"period\": \"Thu, Jun 19, 2025 4:00 AM - 5:00 AM\", \"usage\": \"73.0\", \"temp\": \"61\", \"precip\": \"0.0\", \"humidity\": \"99.0\"}]');</script>`

	records, err := ParseUsage(EndpointDashboardTable, envelope(t, fragment))
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, 73.0, records[0].Gallons)
	require.Equal(t, 61.0, records[0].TemperatureF)
}

func TestParseUsageUnicodeEscapes(t *testing.T) {
	fragment := `<script>var tooltipJSON = JSON.parse('[{\"value\": \"\\u003cb\\u003eThu, Jun 19, 2025 4:00 AM - 5:00 AM\\u003c/b\\u003e \\u003cb\\u003eWR1\\u003c/b\\u003e: 12.5 gal\"}]');</script>`

	records, err := ParseUsage(EndpointDashboardTable, envelope(t, fragment))
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, 12.5, records[0].Gallons)
}

func TestParseUsageEmptyArray(t *testing.T) {
	fragment := `<script>var tooltipJSON = [];</script>`

	records, err := ParseUsage(EndpointDashboardTable, envelope(t, fragment))
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestParseUsageMissingMarker(t *testing.T) {
	_, err := ParseUsage(EndpointDashboardTable, envelope(t, `<div>no data here</div>`))

	var perr *session.ParseError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, EndpointDashboardTable, perr.Endpoint)
}

func TestParseUsageMalformedJSON(t *testing.T) {
	testCases := []string{
		`<script>var tooltipJSON = [{"usage": 73.0,];</script>`,
		`<script>var tooltipJSON = [{"usage": 73.0}</script>`,
		`<script>var tooltipJSON = JSON.parse('[{\"usage\": ');</script>`,
	}

	for _, fragment := range testCases {
		records, err := ParseUsage(EndpointDashboardTable, envelope(t, fragment))

		var perr *session.ParseError
		require.ErrorAs(t, err, &perr, "fragment %q", fragment)
		require.Empty(t, records, "no records may survive a malformed payload")
	}
}

func TestParseUsageCoercionFailure(t *testing.T) {
	fragment := `<script>var tooltipJSON = [{"period": "Thu, Jun 19, 2025 4:00 AM - 5:00 AM", "usage": "lots"}];</script>`

	_, err := ParseUsage(EndpointDashboardTable, envelope(t, fragment))

	var perr *session.ParseError
	require.ErrorAs(t, err, &perr)
}

func TestParseUsageRejectsOutOfRangeFields(t *testing.T) {
	testCases := map[string]string{
		"negative usage":       `[{"period": "Thu, Jun 19, 2025 4:00 AM - 5:00 AM", "usage": -1}]`,
		"negative precip":      `[{"period": "Thu, Jun 19, 2025 4:00 AM - 5:00 AM", "usage": 1, "precip": -0.5}]`,
		"humidity above range": `[{"period": "Thu, Jun 19, 2025 4:00 AM - 5:00 AM", "usage": 1, "humidity": 150}]`,
	}

	for name, payload := range testCases {
		t.Run(name, func(t *testing.T) {
			fragment := `<script>var tooltipJSON = ` + payload + `;</script>`
			_, err := ParseUsage(EndpointDashboardTable, envelope(t, fragment))

			var perr *session.ParseError
			require.ErrorAs(t, err, &perr)
		})
	}
}

func TestParseUsageBadPeriod(t *testing.T) {
	fragment := `<script>var tooltipJSON = [{"period": "whenever", "usage": 1}];</script>`

	_, err := ParseUsage(EndpointDashboardTable, envelope(t, fragment))
	require.Error(t, err)

	var perr *session.ParseError
	require.True(t, errors.As(err, &perr))
}

func TestScanBalanced(t *testing.T) {
	testCases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: `[1, 2, 3] trailing`, want: `[1, 2, 3]`},
		{in: `{"a": [1, {"b": 2}]}; rest`, want: `{"a": [1, {"b": 2}]}`},
		{in: `["bracket ] in string"]x`, want: `["bracket ] in string"]`},
		{in: `["escaped \" quote"]`, want: `["escaped \" quote"]`},
		{in: `[1, 2`, wantErr: true},
		{in: `plain`, wantErr: true},
		{in: ``, wantErr: true},
	}

	for _, tc := range testCases {
		got, err := scanBalanced(tc.in)
		if tc.wantErr {
			require.Error(t, err, "input %q", tc.in)
			continue
		}
		require.NoError(t, err, "input %q", tc.in)
		require.Equal(t, tc.want, got)
	}
}

func TestUnescapeJSString(t *testing.T) {
	require.Equal(t, `{"a": 1}`, unescapeJSString(`{\"a\": 1}`))
	require.Equal(t, `it's`, unescapeJSString(`it\'s`))
	require.Equal(t, `<b>`, unescapeJSString(`<b>`))
	require.Equal(t, `back\slash`, unescapeJSString(`back\\slash`))
}
