package chiserver

import (
	"errors"
	"maps"
	"net/http"
	"slices"
	"strings"
)

// SecurityHeaders is the set of headers added to every response.
type SecurityHeaders struct {
	headers map[string]string
}

// DefaultSecurityHeaders follows the OWASP recommendations for a JSON API.
func DefaultSecurityHeaders() SecurityHeaders {
	return SecurityHeaders{
		headers: map[string]string{
			"X-Frame-Options":           "DENY",
			"X-Content-Type-Options":    "nosniff",
			"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
			"Content-Security-Policy":   "default-src 'none'; frame-ancestors 'none'",
			"Referrer-Policy":           "strict-origin-when-cross-origin",
			"Cache-Control":             "no-store",
		},
	}
}

// With returns a copy with key set to value.
func (s SecurityHeaders) With(key, value string) SecurityHeaders {
	out := SecurityHeaders{headers: maps.Clone(s.headers)}
	out.headers[key] = value
	return out
}

// Without returns a copy without key.
func (s SecurityHeaders) Without(key string) SecurityHeaders {
	out := SecurityHeaders{headers: maps.Clone(s.headers)}
	delete(out.headers, key)
	return out
}

func (s SecurityHeaders) Apply(w http.ResponseWriter) {
	for k, v := range s.headers {
		w.Header().Set(k, v)
	}
}

// ParseOrigins splits a comma separated origin list. A wildcard must stand alone.
func ParseOrigins(origins string) ([]string, error) {
	trimmed := strings.TrimSpace(origins)
	if trimmed == "" {
		return []string{}, nil
	}

	var result []string
	for _, part := range strings.Split(trimmed, ",") {
		if p := strings.TrimSpace(part); p != "" {
			result = append(result, p)
		}
	}

	if slices.Contains(result, "*") && len(result) > 1 {
		return nil, errors.New("wildcard (*) cannot be combined with other origins")
	}
	return result, nil
}

func IsOriginAllowed(origin string, allowed []string) bool {
	if len(allowed) == 1 && allowed[0] == "*" {
		return true
	}
	return slices.Contains(allowed, origin)
}
