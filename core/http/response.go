package http

import "strconv"

// Status codes the server emits
const (
	StatusOK                  = 200
	StatusBadRequest          = 400
	StatusInternalServerError = 500
	StatusServiceUnavailable  = 503
)

// StatusText returns the reason phrase for a status code
func StatusText(code int) string {
	switch code {
	case StatusOK:
		return "OK"
	case StatusBadRequest:
		return "Bad Request"
	case StatusInternalServerError:
		return "Internal Server Error"
	case StatusServiceUnavailable:
		return "Service Unavailable"
	}
	return "Unknown"
}

// Response is an encodable plain-text response
type Response struct {
	Status int
	Body   []byte
	Close  bool
}

// headerOverhead bounds the encoded size of everything except the body
const headerOverhead = 128

// Size returns an upper bound of the encoded response length
func (r *Response) Size() int {
	return headerOverhead + len(r.Body)
}

// AppendTo serializes the response onto dst:
//
//	HTTP/1.1 <code> <reason>\r\n
//	Content-Type: text/plain\r\n
//	Content-Length: <n>\r\n
//	Connection: keep-alive|close\r\n
//	\r\n
//	<body>
func (r *Response) AppendTo(dst []byte) []byte {
	status := r.Status
	if status == 0 {
		status = StatusOK
	}

	dst = append(dst, "HTTP/1.1 "...)
	dst = strconv.AppendInt(dst, int64(status), 10)
	dst = append(dst, ' ')
	dst = append(dst, StatusText(status)...)
	dst = append(dst, "\r\n"+HeaderContentType+": text/plain\r\n"...)
	dst = append(dst, HeaderContentLength+": "...)
	dst = strconv.AppendInt(dst, int64(len(r.Body)), 10)
	dst = append(dst, "\r\n"+HeaderConnection+": "...)
	if r.Close {
		dst = append(dst, "close"...)
	} else {
		dst = append(dst, "keep-alive"...)
	}
	dst = append(dst, "\r\n\r\n"...)
	return append(dst, r.Body...)
}

// Encode returns a freshly allocated encoding of the response
func (r *Response) Encode() []byte {
	return r.AppendTo(make([]byte, 0, r.Size()))
}
