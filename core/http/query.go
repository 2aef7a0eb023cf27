package http

import (
	"net/url"
	"strings"
)

// ParseQuery decodes a raw query string into a map.
// Pairs are split on '&' and '='; a token without '=' is a key with an empty value.
// A part that fails percent-decoding is kept as written.
func ParseQuery(raw string) map[string]string {
	q := make(map[string]string)
	if raw == "" {
		return q
	}

	for raw != "" {
		var pair string
		pair, raw, _ = strings.Cut(raw, "&")
		if pair == "" {
			continue
		}

		if i := strings.IndexByte(pair, '='); i > 0 {
			q[unescape(pair[:i])] = unescape(pair[i+1:])
		} else {
			q[unescape(pair)] = ""
		}
	}

	return q
}

func unescape(s string) string {
	v, err := url.QueryUnescape(s)
	if err != nil {
		return s
	}
	return v
}

// splitTarget splits a request-target into path and raw query at the first '?'
func splitTarget(target string) (path, rawQuery string) {
	path, rawQuery, _ = strings.Cut(target, "?")
	return path, rawQuery
}
