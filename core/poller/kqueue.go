//go:build darwin

package poller

import (
	"sync"

	"golang.org/x/sys/unix"
)

// wakeIdent identifies the EVFILT_USER event used by Wake
const wakeIdent = 0

// KqueuePoller is a kqueue-based I/O multiplexer
type KqueuePoller struct {
	kqfd   int
	events []unix.Kevent_t
	ready  []Event

	mu     sync.Mutex
	closed bool
}

// NewPoller creates a new Poller (macOS)
func NewPoller() (Poller, error) {
	kqfd, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	unix.CloseOnExec(kqfd)

	ev := unix.Kevent_t{
		Ident:  wakeIdent,
		Filter: unix.EVFILT_USER,
		Flags:  unix.EV_ADD | unix.EV_CLEAR,
	}
	if _, err := unix.Kevent(kqfd, []unix.Kevent_t{ev}, nil, nil); err != nil {
		unix.Close(kqfd)
		return nil, err
	}

	return &KqueuePoller{
		kqfd:   kqfd,
		events: make([]unix.Kevent_t, 1024),
		ready:  make([]Event, 0, 1024),
	}, nil
}

// Both filters stay registered; interest only toggles EV_ENABLE / EV_DISABLE
func kevents(fd int, interest Interest, extra uint16) []unix.Kevent_t {
	readFlags, writeFlags := uint16(unix.EV_DISABLE), uint16(unix.EV_DISABLE)
	switch interest {
	case InterestRead:
		readFlags = unix.EV_ENABLE
	case InterestWrite:
		writeFlags = unix.EV_ENABLE
	}

	changes := make([]unix.Kevent_t, 2)
	unix.SetKevent(&changes[0], fd, unix.EVFILT_READ, int(readFlags|extra))
	unix.SetKevent(&changes[1], fd, unix.EVFILT_WRITE, int(writeFlags|extra))
	return changes
}

// Add adds a file descriptor to the watch list
func (p *KqueuePoller) Add(fd int, interest Interest) error {
	_, err := unix.Kevent(p.kqfd, kevents(fd, interest, unix.EV_ADD), nil, nil)
	return err
}

// Modify switches the interest of a registered file descriptor
func (p *KqueuePoller) Modify(fd int, interest Interest) error {
	_, err := unix.Kevent(p.kqfd, kevents(fd, interest, 0), nil, nil)
	return err
}

// Remove removes a file descriptor from the watch list
func (p *KqueuePoller) Remove(fd int) error {
	changes := make([]unix.Kevent_t, 2)
	unix.SetKevent(&changes[0], fd, unix.EVFILT_READ, unix.EV_DELETE)
	unix.SetKevent(&changes[1], fd, unix.EVFILT_WRITE, unix.EV_DELETE)

	_, err := unix.Kevent(p.kqfd, changes, nil, nil)
	if err == unix.ENOENT {
		return nil
	}
	return err
}

// Wait waits for I/O events
func (p *KqueuePoller) Wait(timeoutMs int) ([]Event, error) {
	var ts *unix.Timespec
	if timeoutMs >= 0 {
		t := unix.NsecToTimespec(int64(timeoutMs) * 1_000_000)
		ts = &t
	}

	n, err := unix.Kevent(p.kqfd, nil, p.events, ts)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}

	p.ready = p.ready[:0]
	for i := 0; i < n; i++ {
		ev := p.events[i]
		if ev.Filter == unix.EVFILT_USER {
			continue
		}

		e := Event{Fd: int(ev.Ident)}
		switch ev.Filter {
		case unix.EVFILT_READ:
			// EV_EOF on the read filter surfaces as a zero-length read
			e.Readable = true
		case unix.EVFILT_WRITE:
			e.Writable = true
			e.Closed = ev.Flags&unix.EV_EOF != 0
		}
		if ev.Flags&unix.EV_ERROR != 0 {
			e.Closed = true
		}
		p.ready = append(p.ready, e)
	}

	return p.ready, nil
}

// Wake interrupts a blocked Wait
func (p *KqueuePoller) Wake() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}

	ev := unix.Kevent_t{
		Ident:  wakeIdent,
		Filter: unix.EVFILT_USER,
		Fflags: unix.NOTE_TRIGGER,
	}
	_, err := unix.Kevent(p.kqfd, []unix.Kevent_t{ev}, nil, nil)
	return err
}

// Close closes the Poller
func (p *KqueuePoller) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return unix.Close(p.kqfd)
}
