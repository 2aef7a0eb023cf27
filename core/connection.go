package core

import (
	"time"

	"github.com/searchktools/concbench/core/http"
	"github.com/searchktools/concbench/core/poller"
)

// Phase is the position of a connection in its request cycle
type Phase int

// Connection phases
const (
	PhaseReadingHeaders Phase = iota
	PhaseHeadersDone
	PhaseDispatched
	PhaseResponseReady
	PhaseWriting
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseReadingHeaders:
		return "reading-headers"
	case PhaseHeadersDone:
		return "headers-done"
	case PhaseDispatched:
		return "dispatched"
	case PhaseResponseReady:
		return "response-ready"
	case PhaseWriting:
		return "writing"
	case PhaseClosed:
		return "closed"
	}
	return "unknown"
}

// Connection represents an active connection. Every field is owned by the
// reactor goroutine.
type Connection struct {
	fd       int
	id       uint64
	phase    Phase
	interest poller.Interest

	// readBuf has fixed capacity; buffered is the unparsed tail of the last read
	readBuf  []byte
	buffered []byte

	scanner *http.Scanner
	request *http.Request

	// out is the pending response, written from offset written
	out     []byte
	written int

	inFlight bool
	// closeAfter is the close reason once the pending response is written;
	// empty keeps the connection alive
	closeAfter string

	route        string
	dispatchedAt time.Time
	lastActive   time.Time
}

func newConnection(maxHeaderBytes, maxBodyBytes int) *Connection {
	return &Connection{
		fd:      -1,
		scanner: http.NewScanner(maxHeaderBytes, maxBodyBytes),
	}
}

// Reset implements ConnectionPoolable interface
func (c *Connection) Reset() {
	c.fd = -1
	c.id = 0
	c.phase = PhaseClosed
	c.interest = poller.InterestNone
	c.readBuf = nil
	c.buffered = nil
	c.scanner.Reset()
	c.resetRequest()
	c.out = nil
	c.lastActive = time.Time{}
}

// SetFD implements ConnectionPoolable interface
func (c *Connection) SetFD(fd int) {
	c.fd = fd
	c.phase = PhaseReadingHeaders
	c.lastActive = time.Now()
}

// resetRequest clears per-request fields for the next keep-alive request
func (c *Connection) resetRequest() {
	c.request = nil
	c.written = 0
	c.inFlight = false
	c.closeAfter = ""
	c.route = ""
	c.dispatchedAt = time.Time{}
}

func (c *Connection) idle(now time.Time, timeout time.Duration) bool {
	return now.Sub(c.lastActive) > timeout
}
