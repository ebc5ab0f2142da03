package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/jgoulah/waterscraper/internal/session"
	"github.com/jgoulah/waterscraper/pkg/models"
)

// Endpoint paths on the billing portal. All of them answer AJAX-style
// requests issued from the authenticated dashboard.
const (
	EndpointDashboardTable = "/Dashboard/Table"
	EndpointDashboardChart = "/Dashboard/Chart"
	EndpointUsageData      = "/Usage/Data"
	EndpointPropertyInfo   = "/Dashboard/PropertyInfo"
	EndpointLoadWidget     = "/Dashboard/LoadWidget"
	EndpointInitDownload   = "/Usage/InitializeDownloadSettings"
	EndpointExport         = "/Usage/Export"
)

// Options configures a portal scraper.
type Options struct {
	Username string
	Password string
	BaseURL  string

	// RequestDelay is a fixed wait applied before every request to bound
	// the rate we hit the portal at. It doubles as the wait before the
	// single network-error retry.
	RequestDelay time.Duration
	Timeout      time.Duration
}

// Scraper issues authenticated requests against the billing portal. It owns
// one session at a time and re-establishes it once when the portal expires
// it mid-run.
type Scraper struct {
	opts Options
	sess *session.Session
}

func New(opts Options) *Scraper {
	if opts.RequestDelay <= 0 {
		opts.RequestDelay = time.Second
	}
	return &Scraper{opts: opts}
}

// Session exposes the current session, or nil before Login.
func (s *Scraper) Session() *session.Session {
	return s.sess
}

// Login establishes a fresh portal session, replacing any previous one.
func (s *Scraper) Login(ctx context.Context) error {
	sess, err := session.Establish(ctx, s.opts.Username, s.opts.Password, s.opts.BaseURL, session.Options{
		Timeout: s.opts.Timeout,
	})
	if err != nil {
		return err
	}
	s.sess = sess
	return nil
}

// Fetch issues one authenticated GET and returns the raw response body.
// Network failures are retried exactly once after the configured delay; an
// expired session triggers exactly one re-login followed by one re-issue of
// the original request.
func (s *Scraper) Fetch(ctx context.Context, endpoint string, params map[string]string) ([]byte, error) {
	if s.sess == nil {
		if err := s.Login(ctx); err != nil {
			return nil, err
		}
	}

	body, err := s.fetchOnce(ctx, endpoint, params)

	var expired *session.SessionExpiredError
	if errors.As(err, &expired) {
		slog.WarnContext(ctx, "session expired, re-authenticating", "endpoint", endpoint)
		if err := s.Login(ctx); err != nil {
			return nil, fmt.Errorf("re-authenticating after expiry: %w", err)
		}
		return s.fetchOnce(ctx, endpoint, params)
	}

	return body, err
}

// fetchOnce performs the request with the fixed pre-request delay and the
// single constant-interval retry for network errors. Auth and parse
// conditions are permanent: they never burn the retry.
func (s *Scraper) fetchOnce(ctx context.Context, endpoint string, params map[string]string) ([]byte, error) {
	var body []byte

	operation := func() error {
		sleepCtx(ctx, s.opts.RequestDelay)

		res, err := s.sess.Http.R().
			SetContext(ctx).
			SetHeader("X-Requested-With", "XMLHttpRequest").
			SetHeader("Referer", s.opts.BaseURL+"/Dashboard").
			SetHeader("RequestVerificationToken", s.sess.Token).
			SetQueryParams(params).
			Get(endpoint)
		if err != nil {
			return &session.NetworkError{Endpoint: endpoint, Err: err}
		}

		// The portal answers data requests from a dead session with a
		// redirect to the login page, which the client follows.
		finalPath := ""
		if res.RawResponse != nil && res.RawResponse.Request != nil {
			finalPath = res.RawResponse.Request.URL.Path
		}
		if isLoginRedirect(finalPath, res.Body()) {
			return backoff.Permanent(&session.SessionExpiredError{
				Endpoint:   endpoint,
				StatusCode: res.StatusCode(),
			})
		}

		if res.StatusCode() != http.StatusOK {
			return backoff.Permanent(&session.ParseError{
				Endpoint: endpoint,
				Message:  fmt.Sprintf("unexpected status %d", res.StatusCode()),
				Snippet:  snippet(res.Body()),
			})
		}

		body = res.Body()
		return nil
	}

	bo := backoff.WithMaxRetries(backoff.NewConstantBackOff(s.opts.RequestDelay), 1)
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}

	return body, nil
}

// ScrapeUsage runs the extraction pipeline: fetch the dashboard table,
// falling back to the chart endpoint when the table yields no parseable
// records, then parse and normalize. A parse failure on one endpoint does
// not abort the run if the other already produced records.
func (s *Scraper) ScrapeUsage(ctx context.Context) ([]models.UsageRecord, error) {
	var records []models.UsageRecord
	var parseErrs []error

	for _, endpoint := range []string{EndpointDashboardTable, EndpointDashboardChart} {
		raw, err := s.Fetch(ctx, endpoint, nil)
		if err != nil {
			return nil, err
		}

		parsed, err := ParseUsage(endpoint, raw)
		if err != nil {
			slog.WarnContext(ctx, "endpoint yielded no records", "endpoint", endpoint, "err", err)
			parseErrs = append(parseErrs, err)
			continue
		}
		records = append(records, parsed...)

		if len(records) > 0 {
			break
		}
	}

	if len(records) == 0 && len(parseErrs) > 0 {
		return nil, errors.Join(parseErrs...)
	}

	return Normalize(records), nil
}

// PropertyInfo fetches the authenticated account/property summary.
func (s *Scraper) PropertyInfo(ctx context.Context) ([]byte, error) {
	return s.Fetch(ctx, EndpointPropertyInfo, nil)
}

// LoadWidget fetches one named dashboard widget fragment.
func (s *Scraper) LoadWidget(ctx context.Context, name string) ([]byte, error) {
	return s.Fetch(ctx, EndpointLoadWidget, map[string]string{"widget": name})
}

// UsageData fetches the usage endpoint, optionally bounded to a date range
// in the portal's own format.
func (s *Scraper) UsageData(ctx context.Context, dateRange string) ([]byte, error) {
	var params map[string]string
	if dateRange != "" {
		params = map[string]string{"dateRange": dateRange}
	}
	return s.Fetch(ctx, EndpointUsageData, params)
}

// Export runs the portal's own export flow: initialize download settings,
// then request the export in the given format.
func (s *Scraper) Export(ctx context.Context, format string) ([]byte, error) {
	if _, err := s.Fetch(ctx, EndpointInitDownload, nil); err != nil {
		return nil, fmt.Errorf("initializing download settings: %w", err)
	}
	return s.Fetch(ctx, EndpointExport, map[string]string{"format": format})
}

func isLoginRedirect(finalPath string, body []byte) bool {
	return strings.Contains(finalPath, "/Home/Login") || session.IsLoginPage(body)
}

// sleepCtx blocks for the given duration or until the context is done.
func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func snippet(body []byte) string {
	const max = 120
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		s = s[:max]
	}
	return s
}
