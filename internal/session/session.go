package session

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
)

const (
	loginPath = "/Home/Login"

	// Hidden anti-forgery input the portal embeds in its login form. The
	// same value must ride along on every authenticated data request.
	csrfField = "__RequestVerificationToken"

	userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Session is an authenticated request context for the billing portal:
// a cookie-jar-backed HTTP client plus the CSRF token harvested at login.
// It is owned by a single scrape run and never shared across goroutines.
type Session struct {
	BaseURL *url.URL
	Http    *resty.Client
	Token   string
}

// Options tunes session behavior. Zero values fall back to portal defaults.
type Options struct {
	Timeout time.Duration
}

// Establish logs into the billing portal and returns an authenticated
// session. The login page's form is located by its action, credential and
// hidden fields (including the CSRF token) are submitted, and the landing
// page is checked for the logged-in marker.
func Establish(ctx context.Context, username, password, baseURL string, opts Options) (*Session, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}

	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetCookieJar(jar)
	client.SetTimeout(timeout)
	client.SetHeader("User-Agent", userAgent)
	client.SetHeader("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	client.SetHeader("Accept-Language", "en-US,en;q=0.9")
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(base.Hostname()))

	s := &Session{BaseURL: base, Http: client}

	slog.DebugContext(ctx, "fetching login page", "base_url", baseURL)
	res, err := client.R().SetContext(ctx).Get("/")
	if err != nil {
		return nil, &NetworkError{Endpoint: "/", Err: err}
	}
	if res.StatusCode() != http.StatusOK {
		return nil, &AuthError{StatusCode: res.StatusCode(), Message: "could not load login page"}
	}

	form, err := parseLoginForm(res.Body())
	if err != nil {
		return nil, err
	}

	token := form[csrfField]
	if token == "" {
		return nil, &ParseError{Endpoint: "/", Message: "login form is missing the " + csrfField + " field"}
	}
	s.Token = token

	form["LoginEmail"] = username
	form["LoginPassword"] = password
	form["RememberMe"] = "true"

	slog.DebugContext(ctx, "submitting credentials", "fields", len(form))

	// Redirects are handled manually: a 302 is how the portal signals
	// success, and following it blindly would hide a bounce back to the
	// login page.
	post := resty.New()
	post.SetBaseURL(baseURL)
	post.SetCookieJar(jar)
	post.SetTimeout(timeout)
	post.SetHeader("User-Agent", userAgent)
	post.SetRedirectPolicy(resty.NoRedirectPolicy())

	res, err = post.R().
		SetContext(ctx).
		SetHeader("Referer", baseURL).
		SetFormData(form).
		Post(loginPath)
	if err != nil && !isRedirectStatus(res) {
		return nil, &NetworkError{Endpoint: loginPath, Err: err}
	}

	switch {
	case isRedirectStatus(res):
		location := res.Header().Get("Location")
		if location == "" || strings.Contains(location, loginPath) {
			return nil, &AuthError{StatusCode: res.StatusCode(), Message: "login redirected back to the login page"}
		}
		res, err = client.R().SetContext(ctx).Get(location)
		if err != nil {
			return nil, &NetworkError{Endpoint: location, Err: err}
		}
		if res.StatusCode() != http.StatusOK {
			return nil, &AuthError{StatusCode: res.StatusCode(), Message: "post-login redirect did not load"}
		}
	case res.StatusCode() == http.StatusOK:
		body := strings.ToLower(string(res.Body()))
		if strings.Contains(body, "user account not found") || strings.Contains(body, "invalid") {
			return nil, &AuthError{StatusCode: res.StatusCode(), Message: "credentials rejected"}
		}
		res, err = client.R().SetContext(ctx).Get("/Dashboard")
		if err != nil {
			return nil, &NetworkError{Endpoint: "/Dashboard", Err: err}
		}
	default:
		return nil, &AuthError{StatusCode: res.StatusCode(), Message: "unexpected login response"}
	}

	if !isAuthenticated(res.Body()) {
		return nil, &AuthError{StatusCode: res.StatusCode(), Message: "landing page is missing the logged-in marker"}
	}

	slog.InfoContext(ctx, "session established", "base_url", baseURL)
	return s, nil
}

// parseLoginForm locates the form posting to /Home/Login and returns all of
// its named inputs with their preset values.
func parseLoginForm(body []byte) (map[string]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &ParseError{Endpoint: "/", Message: "login page is not parseable html"}
	}

	var form *goquery.Selection
	doc.Find("form").EachWithBreak(func(_ int, f *goquery.Selection) bool {
		if strings.Contains(f.AttrOr("action", ""), loginPath) {
			form = f
			return false
		}
		return true
	})
	if form == nil {
		return nil, &ParseError{Endpoint: "/", Message: "could not find the login form"}
	}

	fields := map[string]string{}
	form.Find("input").Each(func(_ int, input *goquery.Selection) {
		name := input.AttrOr("name", "")
		if name == "" {
			return
		}
		fields[name] = input.AttrOr("value", "")
	})

	return fields, nil
}

// isAuthenticated reports whether a page carries the marker unique to the
// logged-in dashboard.
func isAuthenticated(body []byte) bool {
	return bytes.Contains(body, []byte("/Home/Logout")) ||
		bytes.Contains(bytes.ToLower(body), []byte("dashboard"))
}

// IsLoginPage reports whether a response body is the portal's login page,
// which the server substitutes for data once a session lapses.
func IsLoginPage(body []byte) bool {
	return bytes.Contains(body, []byte(`action="`+loginPath)) ||
		bytes.Contains(body, []byte("LoginEmail"))
}

func isRedirectStatus(res *resty.Response) bool {
	if res == nil || res.RawResponse == nil {
		return false
	}
	code := res.StatusCode()
	return code == http.StatusMovedPermanently || code == http.StatusFound
}
