package session

import "fmt"

// AuthError represents an authentication failure: rejected credentials or a
// login flow that did not land on the authenticated dashboard. It is fatal
// and never retried.
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("authentication failed (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("authentication failed: %s", e.Message)
}

// NetworkError represents a connectivity failure or timeout. Callers retry
// the operation exactly once after the configured delay.
type NetworkError struct {
	Endpoint string
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error on %s: %v", e.Endpoint, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// SessionExpiredError means the server answered a data request with a
// re-login redirect. Callers re-authenticate once and re-issue the original
// request once.
type SessionExpiredError struct {
	Endpoint   string
	StatusCode int
}

func (e *SessionExpiredError) Error() string {
	return fmt.Sprintf("session expired on %s (status %d): server redirected to login", e.Endpoint, e.StatusCode)
}

// ParseError represents a response whose structure was not recognized: a
// missing marker, malformed embedded JSON, or a field that would not coerce
// to its type. Fatal for the affected response only.
type ParseError struct {
	Endpoint string
	Message  string
	Snippet  string
}

func (e *ParseError) Error() string {
	s := fmt.Sprintf("parse error on %s: %s", e.Endpoint, e.Message)
	if e.Snippet != "" {
		s += fmt.Sprintf(" (near %q)", e.Snippet)
	}
	return s
}
