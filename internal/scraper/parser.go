package scraper

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/jgoulah/waterscraper/internal/session"
	"github.com/jgoulah/waterscraper/pkg/models"
)

// tooltipMarker identifies the script variable the dashboard embeds its
// per-hour usage/weather data in.
const tooltipMarker = "tooltipJSON"

// ajaxEnvelope is the JSON wrapper the dashboard endpoints answer with; the
// HTML fragment carrying the embedded script lives in the first result.
type ajaxEnvelope struct {
	AjaxResults []struct {
		Value string `json:"Value"`
	} `json:"AjaxResults"`
}

var (
	periodRe   = regexp.MustCompile(`<b>(.*?)</b>`)
	usageRe    = regexp.MustCompile(`<b>WR1</b>: ([\d.]+) gal`)
	tempRe     = regexp.MustCompile(`<b>Temp</b>: ([\d.]+)°F`)
	precipRe   = regexp.MustCompile(`<b>Precipitation</b>: ([\d.]+) in\.`)
	humidityRe = regexp.MustCompile(`<b>Humidity</b>: ([\d.]+)%`)
)

// ParseUsage extracts hourly usage/weather records from a raw dashboard
// response. The response is either the AJAX JSON envelope or a bare HTML
// fragment; either way the records come from the tooltipJSON blob embedded
// in script content. An empty but well-formed blob yields no records and no
// error.
func ParseUsage(endpoint string, raw []byte) ([]models.UsageRecord, error) {
	html := string(raw)
	var envelope ajaxEnvelope
	if err := json.Unmarshal(raw, &envelope); err == nil && len(envelope.AjaxResults) > 0 {
		html = envelope.AjaxResults[0].Value
	}

	payload, err := extractTooltipJSON(endpoint, html)
	if err != nil {
		return nil, err
	}

	entries, err := decodeEntries(endpoint, payload)
	if err != nil {
		return nil, err
	}

	records := make([]models.UsageRecord, 0, len(entries))
	for _, e := range entries {
		rec, err := e.toRecord(endpoint)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, nil
}

// extractTooltipJSON locates the marker and returns the embedded JSON text.
// The payload is either assigned directly (tooltipJSON = [...]) or wrapped
// in JSON.parse('...') with JS string escaping; extraction is a bounded
// balanced-delimiter scan, never a broad pattern match.
func extractTooltipJSON(endpoint, html string) (string, error) {
	idx := strings.Index(html, tooltipMarker)
	if idx < 0 {
		return "", &session.ParseError{Endpoint: endpoint, Message: "tooltipJSON marker not found"}
	}

	rest := html[idx+len(tooltipMarker):]
	eq := strings.Index(rest, "=")
	if eq < 0 {
		return "", &session.ParseError{Endpoint: endpoint, Message: "tooltipJSON marker has no assignment", Snippet: clip(rest)}
	}
	rest = strings.TrimLeft(rest[eq+1:], " \t\r\n")

	if strings.HasPrefix(rest, "JSON.parse(") {
		rest = strings.TrimLeft(rest[len("JSON.parse("):], " \t")
		if !strings.HasPrefix(rest, "'") && !strings.HasPrefix(rest, `"`) {
			return "", &session.ParseError{Endpoint: endpoint, Message: "JSON.parse argument is not a string literal", Snippet: clip(rest)}
		}
		literal, err := scanStringLiteral(rest)
		if err != nil {
			return "", &session.ParseError{Endpoint: endpoint, Message: err.Error(), Snippet: clip(rest)}
		}
		rest = unescapeJSString(literal)
	}

	rest = strings.TrimSpace(rest)
	if rest == "" || (rest[0] != '[' && rest[0] != '{') {
		return "", &session.ParseError{Endpoint: endpoint, Message: "no JSON value after tooltipJSON marker", Snippet: clip(rest)}
	}

	payload, err := scanBalanced(rest)
	if err != nil {
		return "", &session.ParseError{Endpoint: endpoint, Message: err.Error(), Snippet: clip(rest)}
	}

	return payload, nil
}

// scanBalanced returns the prefix of s that forms one complete JSON array or
// object, tracking string state so delimiters inside strings don't count.
func scanBalanced(s string) (string, error) {
	if s == "" || (s[0] != '[' && s[0] != '{') {
		return "", fmt.Errorf("expected '[' or '{'")
	}

	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[', '{':
			depth++
		case ']', '}':
			depth--
			if depth == 0 {
				return s[:i+1], nil
			}
			if depth < 0 {
				return "", fmt.Errorf("unbalanced delimiters at offset %d", i)
			}
		}
	}
	return "", fmt.Errorf("unterminated JSON value")
}

// scanStringLiteral returns the contents of the JS string literal that s
// starts with, without the surrounding quotes.
func scanStringLiteral(s string) (string, error) {
	quote := s[0]
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case quote:
			return s[1:i], nil
		}
	}
	return "", fmt.Errorf("unterminated string literal")
}

// unescapeJSString resolves JS string-literal escapes so the result is plain
// JSON text. \uXXXX sequences become their runes; unknown escapes keep the
// escaped character.
func unescapeJSString(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'u':
			if i+4 < len(s) {
				if v, err := strconv.ParseUint(s[i+1:i+5], 16, 32); err == nil {
					b.WriteRune(rune(v))
					i += 4
					continue
				}
			}
			b.WriteString(`\u`)
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '\'', '"', '\\', '/':
			b.WriteByte(s[i])
		default:
			b.WriteByte('\\')
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// tooltipEntry is one decoded element of the tooltipJSON blob. Older
// dashboard revisions ship the data as tooltip HTML under "value"; newer
// ones use flat fields. Numbers may arrive as JSON numbers or strings.
type tooltipEntry struct {
	Value    string     `json:"value"`
	Period   string     `json:"period"`
	Usage    *flexFloat `json:"usage"`
	Temp     *flexFloat `json:"temp"`
	Precip   *flexFloat `json:"precip"`
	Humidity *flexFloat `json:"humidity"`
}

func decodeEntries(endpoint, payload string) ([]tooltipEntry, error) {
	trimmed := strings.TrimSpace(payload)

	if strings.HasPrefix(trimmed, "{") {
		var single tooltipEntry
		if err := json.Unmarshal([]byte(trimmed), &single); err != nil {
			return nil, &session.ParseError{Endpoint: endpoint, Message: "malformed tooltipJSON: " + err.Error(), Snippet: clip(trimmed)}
		}
		return []tooltipEntry{single}, nil
	}

	var entries []tooltipEntry
	if err := json.Unmarshal([]byte(trimmed), &entries); err != nil {
		return nil, &session.ParseError{Endpoint: endpoint, Message: "malformed tooltipJSON: " + err.Error(), Snippet: clip(trimmed)}
	}
	return entries, nil
}

func (e tooltipEntry) toRecord(endpoint string) (models.UsageRecord, error) {
	if e.Value != "" {
		return parseTooltipHTML(endpoint, e.Value)
	}

	if e.Usage == nil {
		return models.UsageRecord{}, &session.ParseError{Endpoint: endpoint, Message: "tooltip entry has no usage value", Snippet: clip(e.Period)}
	}

	start, end, err := models.ParsePeriod(e.Period)
	if err != nil {
		return models.UsageRecord{}, &session.ParseError{Endpoint: endpoint, Message: err.Error()}
	}

	rec := models.UsageRecord{
		PeriodStart: start,
		PeriodEnd:   end,
		Gallons:     e.Usage.value,
	}
	if e.Temp != nil {
		rec.TemperatureF = e.Temp.value
	}
	if e.Precip != nil {
		rec.PrecipitationIn = e.Precip.value
	}
	if e.Humidity != nil {
		rec.HumidityPercent = e.Humidity.value
	}

	return rec, validateRecord(endpoint, rec)
}

// parseTooltipHTML extracts a record out of the chart tooltip markup, e.g.
// "<b>Thu, Jun 19, 2025 4:00 AM - 5:00 AM</b><br/><b>WR1</b>: 73.0 gal ...".
// Weather fields absent from the markup stay zero; fields that are present
// but will not coerce fail the parse.
func parseTooltipHTML(endpoint, value string) (models.UsageRecord, error) {
	period := periodRe.FindStringSubmatch(value)
	usage := usageRe.FindStringSubmatch(value)
	if period == nil || usage == nil {
		return models.UsageRecord{}, &session.ParseError{Endpoint: endpoint, Message: "tooltip markup is missing period or usage", Snippet: clip(value)}
	}

	start, end, err := models.ParsePeriod(period[1])
	if err != nil {
		return models.UsageRecord{}, &session.ParseError{Endpoint: endpoint, Message: err.Error()}
	}

	rec := models.UsageRecord{PeriodStart: start, PeriodEnd: end}
	for _, f := range []struct {
		re   *regexp.Regexp
		dest *float64
	}{
		{usageRe, &rec.Gallons},
		{tempRe, &rec.TemperatureF},
		{precipRe, &rec.PrecipitationIn},
		{humidityRe, &rec.HumidityPercent},
	} {
		m := f.re.FindStringSubmatch(value)
		if m == nil {
			continue
		}
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return models.UsageRecord{}, &session.ParseError{Endpoint: endpoint, Message: "non-numeric tooltip field", Snippet: m[1]}
		}
		*f.dest = v
	}

	return rec, validateRecord(endpoint, rec)
}

// validateRecord enforces the field semantics: usage and precipitation are
// non-negative, humidity is a percentage.
func validateRecord(endpoint string, rec models.UsageRecord) error {
	switch {
	case rec.Gallons < 0:
		return &session.ParseError{Endpoint: endpoint, Message: fmt.Sprintf("negative usage %.2f gal", rec.Gallons)}
	case rec.PrecipitationIn < 0:
		return &session.ParseError{Endpoint: endpoint, Message: fmt.Sprintf("negative precipitation %.2f in", rec.PrecipitationIn)}
	case rec.HumidityPercent < 0 || rec.HumidityPercent > 100:
		return &session.ParseError{Endpoint: endpoint, Message: fmt.Sprintf("humidity %.1f%% out of range", rec.HumidityPercent)}
	}
	return nil
}

// flexFloat decodes a JSON number that may be quoted. Coercion failure is an
// error rather than a silent zero.
type flexFloat struct {
	value float64
}

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" {
		return fmt.Errorf("null is not a number")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("cannot coerce %s to float", string(data))
	}
	f.value = v
	return nil
}

func clip(s string) string {
	const max = 80
	s = strings.TrimSpace(s)
	if len(s) > max {
		return s[:max]
	}
	return s
}
