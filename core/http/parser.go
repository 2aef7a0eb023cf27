package http

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
)

// Header names the server interprets or emits
const (
	HeaderContentType   = "Content-Type"
	HeaderContentLength = "Content-Length"
	HeaderConnection    = "Connection"
)

var (
	ErrMalformedRequestLine = errors.New("malformed request line")
	ErrHeaderTooLarge       = errors.New("header too large")
	ErrBodyTooLarge         = errors.New("body too large")
	ErrTruncatedBody        = errors.New("connection closed before body was complete")
)

var crlf = []byte("\r\n")

// parseHeader parses a complete header block, terminator included
func parseHeader(block []byte) (*Request, error) {
	block = bytes.TrimSuffix(block, []byte("\r\n\r\n"))

	line, rest, _ := bytes.Cut(block, crlf)
	fields := strings.Fields(string(line))
	if len(fields) < 2 {
		return nil, ErrMalformedRequestLine
	}

	req := &Request{
		Method:  fields[0],
		Target:  fields[1],
		Headers: make(map[string]string),
	}
	if len(fields) > 2 {
		req.Proto = fields[2]
	}

	req.Path, req.RawQuery = splitTarget(req.Target)
	req.Query = ParseQuery(req.RawQuery)

	for len(rest) > 0 {
		line, rest, _ = bytes.Cut(rest, crlf)
		colon := bytes.IndexByte(line, ':')
		if colon <= 0 {
			continue
		}
		name := strings.ToLower(string(bytes.TrimSpace(line[:colon])))
		req.Headers[name] = string(bytes.TrimSpace(line[colon+1:]))
	}

	cl, err := contentLength(req.Headers["content-length"])
	if err != nil {
		return nil, err
	}
	req.ContentLength = cl
	return req, nil
}

// contentLength reads a Content-Length value. Anything but a non-negative
// integer is 0; a digit string too large to represent is ErrBodyTooLarge.
func contentLength(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if errors.Is(err, strconv.ErrRange) && v[0] != '-' {
		return 0, ErrBodyTooLarge
	}
	if err != nil || n < 0 {
		return 0, nil
	}
	return n, nil
}
