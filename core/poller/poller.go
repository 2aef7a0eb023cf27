package poller

// Interest selects which readiness a registered fd reports.
// Read and write interest are mutually exclusive.
type Interest uint8

const (
	// InterestNone parks the fd. Epoll still reports hang-ups and errors;
	// kqueue reports nothing until another interest is set.
	InterestNone Interest = iota
	InterestRead
	InterestWrite
)

func (i Interest) String() string {
	switch i {
	case InterestNone:
		return "none"
	case InterestRead:
		return "read"
	case InterestWrite:
		return "write"
	}
	return "unknown"
}

// Event is the readiness of one fd after a Wait
type Event struct {
	Fd       int
	Readable bool
	Writable bool
	// Closed is set on hang-up or socket error
	Closed bool
}

// Poller is the I/O multiplexing interface
type Poller interface {
	Add(fd int, interest Interest) error
	Modify(fd int, interest Interest) error
	Remove(fd int) error

	// Wait blocks until readiness, a Wake, or timeoutMs elapses.
	// The returned slice is reused by the next Wait.
	Wait(timeoutMs int) ([]Event, error)

	// Wake interrupts a blocked Wait. Safe to call from any goroutine.
	Wake() error

	Close() error
}
