package http

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRequest = "GET /mixed?cpuMs=10&ioMs=7 HTTP/1.1\r\n" +
	"Host: localhost\r\n" +
	"X-Trace: a\r\n" +
	"x-trace: b\r\n" +
	"\r\n"

func feedAll(t *testing.T, s *Scanner, data []byte) (*Request, int) {
	t.Helper()
	n, req, err := s.Feed(data)
	require.NoError(t, err)
	return req, n
}

func TestScanner_SingleRead(t *testing.T) {
	s := NewScanner(0, 0)

	req, n := feedAll(t, s, []byte(sampleRequest))
	require.NotNil(t, req)
	assert.Equal(t, len(sampleRequest), n)
	assert.Equal(t, "GET", req.Method)
	assert.Equal(t, "/mixed", req.Path)
	assert.Equal(t, "HTTP/1.1", req.Proto)
	assert.Equal(t, "cpuMs=10&ioMs=7", req.RawQuery)
	assert.Equal(t, map[string]string{"cpuMs": "10", "ioMs": "7"}, req.Query)
	assert.Equal(t, "b", req.Header("X-TRACE"))
	assert.Equal(t, "localhost", req.Header("host"))
	assert.False(t, s.Partial())
}

func TestScanner_FragmentationInvariant(t *testing.T) {
	whole := NewScanner(0, 0)
	expected, _ := feedAll(t, whole, []byte(sampleRequest))
	require.NotNil(t, expected)

	s := NewScanner(0, 0)
	var got *Request
	data := []byte(sampleRequest)
	for i := range data {
		n, req, err := s.Feed(data[i : i+1])
		require.NoError(t, err)
		require.Equal(t, 1, n)
		if i < len(data)-1 {
			require.Nil(t, req, "completed early at byte %d", i)
			require.True(t, s.Partial())
		}
		got = req
	}

	require.NotNil(t, got)
	assert.Equal(t, expected, got)
}

func TestScanner_TerminatorSplitAcrossReads(t *testing.T) {
	s := NewScanner(0, 0)
	parts := []string{"GET / HTTP/1.1\r\nHost: x\r", "\n\r", "\n"}

	var req *Request
	for _, p := range parts {
		_, r, err := s.Feed([]byte(p))
		require.NoError(t, err)
		req = r
	}

	require.NotNil(t, req)
	assert.Equal(t, "/", req.Path)
}

func TestScanner_LeavesNextRequest(t *testing.T) {
	s := NewScanner(0, 0)
	one := "GET /a HTTP/1.1\r\n\r\n"
	data := []byte(one + one + "GET /c")

	req, n := feedAll(t, s, data)
	require.NotNil(t, req)
	assert.Equal(t, len(one), n)
	assert.Equal(t, "/a", req.Path)

	rest := data[n:]
	req, n = feedAll(t, s, rest)
	require.NotNil(t, req)
	assert.Equal(t, len(one), n)

	req, n = feedAll(t, s, rest[n:])
	assert.Nil(t, req)
	assert.Equal(t, len("GET /c"), n)
	assert.True(t, s.Partial())
}

func TestScanner_DrainsBody(t *testing.T) {
	s := NewScanner(0, 0)
	head := "POST /echo?size=3 HTTP/1.1\r\nContent-Length: 5\r\n\r\n"
	next := "GET / HTTP/1.1\r\n\r\n"

	n, req, err := s.Feed([]byte(head + "he"))
	require.NoError(t, err)
	assert.Nil(t, req)
	assert.Equal(t, len(head)+2, n)
	assert.True(t, s.InBody())

	n, req, err = s.Feed([]byte("llo" + next))
	require.NoError(t, err)
	require.NotNil(t, req)
	assert.Equal(t, 3, n)
	assert.Equal(t, []byte("hello"), req.Body)
	assert.Equal(t, 5, req.ContentLength)

	_, req, err = s.Feed([]byte(next))
	require.NoError(t, err)
	require.NotNil(t, req)
	assert.Equal(t, "/", req.Path)
}

func TestScanner_ContentLengthFallback(t *testing.T) {
	for _, v := range []string{"abc", "-4", "", " "} {
		s := NewScanner(0, 0)
		raw := "POST / HTTP/1.1\r\nContent-Length: " + v + "\r\n\r\n"
		req, n := feedAll(t, s, []byte(raw))
		require.NotNil(t, req, "value %q", v)
		assert.Equal(t, len(raw), n)
		assert.Zero(t, req.ContentLength)
		assert.Empty(t, req.Body)
	}
}

func TestScanner_HeaderTooLarge(t *testing.T) {
	s := NewScanner(64, 0)
	raw := "GET / HTTP/1.1\r\nX-Pad: " + strings.Repeat("a", 100)

	_, req, err := s.Feed([]byte(raw))
	assert.ErrorIs(t, err, ErrHeaderTooLarge)
	assert.Nil(t, req)
	assert.False(t, s.Partial())
}

func TestScanner_HeaderTooLargeAcrossReads(t *testing.T) {
	s := NewScanner(32, 0)

	var err error
	for i := 0; i < 40 && err == nil; i++ {
		_, _, err = s.Feed([]byte("a"))
	}
	assert.ErrorIs(t, err, ErrHeaderTooLarge)
}

func TestScanner_BodyTooLarge(t *testing.T) {
	s := NewScanner(0, 10)
	_, _, err := s.Feed([]byte("POST / HTTP/1.1\r\nContent-Length: 11\r\n\r\n"))
	assert.ErrorIs(t, err, ErrBodyTooLarge)
}

func TestScanner_ContentLengthOverflow(t *testing.T) {
	for _, v := range []string{"99999999999999999999", "+99999999999999999999"} {
		s := NewScanner(0, 0)
		raw := "GET / HTTP/1.1\r\nContent-Length: " + v + "\r\n\r\nGET /echo?size=2 HTTP/1.1\r\n\r\n"
		_, req, err := s.Feed([]byte(raw))
		assert.ErrorIs(t, err, ErrBodyTooLarge, "value %q", v)
		assert.Nil(t, req)
		assert.False(t, s.Partial())
	}

	// A hugely negative value is just invalid, like "-4"
	s := NewScanner(0, 0)
	req, _ := feedAll(t, s, []byte("GET / HTTP/1.1\r\nContent-Length: -99999999999999999999\r\n\r\n"))
	require.NotNil(t, req)
	assert.Zero(t, req.ContentLength)
}

func TestScanner_MalformedRequestLine(t *testing.T) {
	for _, raw := range []string{"GET\r\n\r\n", "\r\n\r\n", "   \r\nHost: x\r\n\r\n"} {
		s := NewScanner(0, 0)
		_, req, err := s.Feed([]byte(raw))
		assert.ErrorIs(t, err, ErrMalformedRequestLine, "input %q", raw)
		assert.Nil(t, req)
	}
}

func TestScanner_MissingProto(t *testing.T) {
	s := NewScanner(0, 0)
	req, _ := feedAll(t, s, []byte("GET /cpu?ms=1\r\n\r\n"))
	require.NotNil(t, req)
	assert.Equal(t, "/cpu", req.Path)
	assert.Empty(t, req.Proto)
}

func TestRequest_KeepAlive(t *testing.T) {
	cases := []struct {
		proto, conn string
		want        bool
	}{
		{"HTTP/1.1", "", true},
		{"HTTP/1.1", "keep-alive", true},
		{"HTTP/1.1", "Close", false},
		{"HTTP/1.0", "", false},
		{"HTTP/1.0", "Keep-Alive", true},
	}

	for _, c := range cases {
		req := &Request{Proto: c.proto, Headers: map[string]string{}}
		if c.conn != "" {
			req.Headers["connection"] = c.conn
		}
		assert.Equal(t, c.want, req.KeepAlive(), "%s / %q", c.proto, c.conn)
	}
}

func BenchmarkScanner_Feed(b *testing.B) {
	s := NewScanner(0, 0)
	data := []byte(sampleRequest)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, req, err := s.Feed(data); err != nil || req == nil {
			b.Fatal("request not framed")
		}
	}
}
