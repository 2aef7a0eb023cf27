//go:build linux

package poller

import (
	"encoding/binary"
	"sync"

	"golang.org/x/sys/unix"
)

// EpollPoller is an epoll-based I/O multiplexer woken through an eventfd
type EpollPoller struct {
	epfd   int
	wakefd int
	events []unix.EpollEvent
	ready  []Event

	// guards wakefd against a Wake racing Close
	mu     sync.Mutex
	closed bool
}

// NewPoller creates a new Poller (Linux)
func NewPoller() (Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}

	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, err
	}

	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakefd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd, &ev); err != nil {
		unix.Close(wakefd)
		unix.Close(epfd)
		return nil, err
	}

	return &EpollPoller{
		epfd:   epfd,
		wakefd: wakefd,
		events: make([]unix.EpollEvent, 1024),
		ready:  make([]Event, 0, 1024),
	}, nil
}

// Level-triggered throughout; EPOLLRDHUP reports a peer shutdown as readable
func epollEvents(interest Interest) uint32 {
	switch interest {
	case InterestRead:
		return unix.EPOLLIN | unix.EPOLLRDHUP
	case InterestWrite:
		return unix.EPOLLOUT
	}
	return 0
}

// Add adds a file descriptor to the watch list
func (p *EpollPoller) Add(fd int, interest Interest) error {
	ev := unix.EpollEvent{Events: epollEvents(interest), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

// Modify switches the interest of a registered file descriptor
func (p *EpollPoller) Modify(fd int, interest Interest) error {
	ev := unix.EpollEvent{Events: epollEvents(interest), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

// Remove removes a file descriptor from the watch list
func (p *EpollPoller) Remove(fd int) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// Wait waits for I/O events
func (p *EpollPoller) Wait(timeoutMs int) ([]Event, error) {
	n, err := unix.EpollWait(p.epfd, p.events, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}

	p.ready = p.ready[:0]
	for i := 0; i < n; i++ {
		ev := p.events[i]
		fd := int(ev.Fd)
		if fd == p.wakefd {
			p.drainWake()
			continue
		}

		p.ready = append(p.ready, Event{
			Fd:       fd,
			Readable: ev.Events&(unix.EPOLLIN|unix.EPOLLRDHUP) != 0,
			Writable: ev.Events&unix.EPOLLOUT != 0,
			Closed:   ev.Events&(unix.EPOLLHUP|unix.EPOLLERR) != 0,
		})
	}

	return p.ready, nil
}

func (p *EpollPoller) drainWake() {
	var buf [8]byte
	for {
		if _, err := unix.Read(p.wakefd, buf[:]); err != nil {
			return
		}
	}
}

// Wake interrupts a blocked Wait
func (p *EpollPoller) Wake() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}

	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	_, err := unix.Write(p.wakefd, buf[:])
	if err == unix.EAGAIN {
		// counter saturated, a wake-up is already pending
		return nil
	}
	return err
}

// Close closes the Poller
func (p *EpollPoller) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	unix.Close(p.wakefd)
	return unix.Close(p.epfd)
}
