package http

// headerTerminator is CR LF CR LF packed big-endian into the rolling window
const headerTerminator uint32 = 0x0D0A0D0A

const (
	DefaultMaxHeaderBytes = 64 << 10
	DefaultMaxBodyBytes   = 8 << 20
)

// Scanner incrementally frames one request at a time out of arbitrarily
// fragmented reads. Only newly fed bytes are scanned: the last four bytes seen
// are kept in a rolling window, so a terminator split across reads is found
// without rescanning the accumulated header.
//
// A Scanner is not safe for concurrent use.
type Scanner struct {
	maxHeader int
	maxBody   int

	header []byte
	window uint32

	req    *Request
	need   int
	inBody bool
}

// NewScanner creates a scanner; non-positive limits select the defaults
func NewScanner(maxHeaderBytes, maxBodyBytes int) *Scanner {
	if maxHeaderBytes <= 0 {
		maxHeaderBytes = DefaultMaxHeaderBytes
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &Scanner{
		maxHeader: maxHeaderBytes,
		maxBody:   maxBodyBytes,
		header:    make([]byte, 0, 512),
	}
}

// Feed consumes bytes from p and returns how many were used.
//
// A nil request with a nil error means more bytes are needed. A non-nil request
// means the header block and its Content-Length body are complete; bytes after
// n belong to the next request and are left untouched. Any error is fatal to the
// connection. The scanner resets itself after returning a request or an error.
func (s *Scanner) Feed(p []byte) (int, *Request, error) {
	n := 0

	if !s.inBody {
		end := -1
		for i, b := range p {
			s.window = s.window<<8 | uint32(b)
			if s.window == headerTerminator {
				end = i + 1
				break
			}
		}

		chunk := p
		if end >= 0 {
			chunk = p[:end]
		}
		if len(s.header)+len(chunk) > s.maxHeader {
			s.Reset()
			return len(chunk), nil, ErrHeaderTooLarge
		}
		s.header = append(s.header, chunk...)
		n = len(chunk)

		if end < 0 {
			return n, nil, nil
		}

		req, err := parseHeader(s.header)
		if err != nil {
			s.Reset()
			return n, nil, err
		}
		if req.ContentLength > s.maxBody {
			s.Reset()
			return n, nil, ErrBodyTooLarge
		}

		s.req = req
		s.need = req.ContentLength
		s.inBody = true
		if s.need > 0 {
			req.Body = make([]byte, 0, s.need)
		}
	}

	take := len(p) - n
	if take > s.need {
		take = s.need
	}
	s.req.Body = append(s.req.Body, p[n:n+take]...)
	s.need -= take
	n += take

	if s.need > 0 {
		return n, nil, nil
	}

	req := s.req
	s.Reset()
	return n, req, nil
}

// Partial reports whether some bytes of a request have been consumed
// without the request being complete yet
func (s *Scanner) Partial() bool {
	return s.inBody || len(s.header) > 0
}

// InBody reports whether the header is complete and body bytes are still missing
func (s *Scanner) InBody() bool {
	return s.inBody
}

// Reset discards any partially framed request, keeping buffer capacity
func (s *Scanner) Reset() {
	s.header = s.header[:0]
	s.window = 0
	s.req = nil
	s.need = 0
	s.inBody = false
}
