package http

import "strings"

// Request is a parsed HTTP/1.1 request
type Request struct {
	Method string
	Target string
	Path   string
	Proto  string

	// RawQuery is the part of Target after the first '?', undecoded
	RawQuery string

	// Query holds decoded query parameters (last value wins)
	Query map[string]string

	// Headers are keyed by lowercase name (last occurrence wins)
	Headers map[string]string

	// ContentLength is the number of body bytes drained for this request
	ContentLength int

	Body []byte
}

// Header returns the value of the named header, case-insensitively
func (r *Request) Header(name string) string {
	if r.Headers == nil {
		return ""
	}
	return r.Headers[strings.ToLower(name)]
}

// KeepAlive reports whether the connection may be reused after this request.
// HTTP/1.1 defaults to keep-alive, HTTP/1.0 must ask for it.
func (r *Request) KeepAlive() bool {
	conn := r.Header(HeaderConnection)
	if strings.EqualFold(conn, "close") {
		return false
	}
	if r.Proto == "HTTP/1.0" {
		return strings.EqualFold(conn, "keep-alive")
	}
	return true
}
