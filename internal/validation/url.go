// Package validation checks URLs supplied by users and operators.
package validation

import (
	"fmt"
	"net/url"
	"strings"
)

// URLError describes why a URL was rejected.
type URLError struct {
	Field  string
	Reason string
	URL    string
}

func (e *URLError) Error() string {
	return fmt.Sprintf("%s: %s (url: %s)", e.Field, e.Reason, e.URL)
}

// HTTPURL accepts an absolute http or https URL, or the empty string. With requireHTTPS
// only https passes.
func HTTPURL(raw, field string, requireHTTPS bool) error {
	if raw == "" {
		return nil
	}
	reject := func(reason string) error {
		return &URLError{Field: field, Reason: reason, URL: raw}
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return reject("invalid URL format")
	}
	if parsed.Scheme == "" {
		return reject("URL must include a scheme (http:// or https://)")
	}
	if parsed.Host == "" {
		return reject("URL must include a host")
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return reject("URL scheme must be http or https")
	}
	if requireHTTPS && scheme != "https" {
		return reject("URL must use HTTPS")
	}
	return nil
}

// BaseURL is HTTPURL restricted to scheme, host and port: no path beyond "/", no query and
// no fragment. Service endpoints are configured this way.
func BaseURL(raw, field string, requireHTTPS bool) error {
	if err := HTTPURL(raw, field, requireHTTPS); err != nil || raw == "" {
		return err
	}

	parsed, _ := url.Parse(raw)
	switch {
	case parsed.Path != "" && parsed.Path != "/":
		return &URLError{Field: field, Reason: "base URL must not contain a path", URL: raw}
	case parsed.RawQuery != "":
		return &URLError{Field: field, Reason: "base URL must not contain query parameters", URL: raw}
	case parsed.Fragment != "":
		return &URLError{Field: field, Reason: "base URL must not contain a fragment", URL: raw}
	}
	return nil
}
