package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrSessionExpired means the server rejected the credential and it could
	// not be refreshed. The stored session has been cleared by the time a
	// caller sees it.
	ErrSessionExpired = errors.New("session expired")
	// ErrNoSession is returned by protected calls made while signed out.
	ErrNoSession = errors.New("not signed in")
	// ErrSessionChanged means the session a request started under was
	// replaced or cleared before it could be retried. The request is not
	// retried and the current session is left alone.
	ErrSessionChanged = errors.New("session changed")
)

// HTTPError represents a non-2xx HTTP response from the API.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// IsStatus returns true if err (or any wrapped error) is an HTTPError with the given status code.
func IsStatus(err error, code int) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == code
	}
	return false
}

// IsClientError reports whether err is a 4xx response other than 401.
func IsClientError(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= 400 && httpErr.StatusCode < 500 && httpErr.StatusCode != 401
	}
	return false
}

// errorMessage extracts a readable message from an API error body. The
// backend answers with {"error": ...}, {"detail": ...} or a map of field
// errors such as {"username": ["already taken"]}.
func errorMessage(body []byte) string {
	var fields map[string]json.RawMessage
	if json.Unmarshal(body, &fields) != nil {
		return strings.TrimSpace(string(body))
	}
	for _, key := range []string{"error", "detail"} {
		var s string
		if raw, ok := fields[key]; ok && json.Unmarshal(raw, &s) == nil && s != "" {
			return s
		}
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var msgs []string
	for _, k := range keys {
		var list []string
		if json.Unmarshal(fields[k], &list) == nil && len(list) > 0 {
			msgs = append(msgs, k+": "+strings.Join(list, " "))
			continue
		}
		var s string
		if json.Unmarshal(fields[k], &s) == nil && s != "" {
			msgs = append(msgs, k+": "+s)
		}
	}
	if len(msgs) == 0 {
		return strings.TrimSpace(string(body))
	}
	return strings.Join(msgs, "; ")
}
