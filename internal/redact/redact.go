// Package redact removes credentials from URLs and HTTP dumps before they are
// logged.
package redact

import (
	"bytes"
	"net/url"
	"path"
	"strings"
)

// LengthMin is the shortest value that Bytes will scrub. Shorter values are
// too likely to match ordinary text.
const LengthMin = 6

const Replacement = "[REDACTED]"

// DefaultParams are the query parameter name patterns whose values are
// never logged.
var DefaultParams = []string{
	"access_token",
	"appsecret_proof",
	"client_secret",
	"input_token",
	"*_secret",
}

// Match reports if the name matches any of the patterns.
func Match(patterns []string, name string) bool {
	for _, pattern := range patterns {
		matched, err := path.Match(pattern, name)
		if err != nil {
			// path.ErrBadPattern is the only error returned by path.Match
			continue
		}
		if matched {
			return true
		}
	}
	return false
}

// URL returns u as a string with the values of sensitive query parameters
// replaced and any fragment dropped. u is not modified.
func URL(u *url.URL) string {
	if u == nil {
		return ""
	}
	clone := *u
	clone.User = nil
	// A fragment is never sent, but can hold anything.
	clone.Fragment = ""
	clone.RawFragment = ""

	q := clone.Query()
	changed := false
	for name := range q {
		if Match(DefaultParams, name) {
			q[name] = []string{Replacement}
			changed = true
		}
	}
	if changed {
		clone.RawQuery = q.Encode()
	}
	return clone.String()
}

// String is URL for raw strings. If s does not parse, every query value is
// dropped rather than risk printing a secret.
func String(s string) string {
	u, err := url.Parse(s)
	if err != nil {
		before, _, _ := strings.Cut(s, "?")
		return before
	}
	return URL(u)
}

// Bytes replaces every occurrence of each secret in b. Secrets shorter than
// LengthMin are left alone. Query-escaped forms of the secrets are also
// replaced.
func Bytes(b []byte, secrets ...string) []byte {
	for _, secret := range secrets {
		if len(secret) < LengthMin {
			continue
		}
		b = bytes.ReplaceAll(b, []byte(secret), []byte(Replacement))
		if escaped := url.QueryEscape(secret); escaped != secret {
			b = bytes.ReplaceAll(b, []byte(escaped), []byte(Replacement))
		}
	}
	return b
}
