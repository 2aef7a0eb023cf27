//go:build darwin

package core

import "golang.org/x/sys/unix"

// accept takes one pending connection as a non-blocking, close-on-exec fd
func accept(lfd int) (int, error) {
	nfd, _, err := unix.Accept(lfd)
	if err != nil {
		return -1, err
	}
	unix.CloseOnExec(nfd)
	if err := unix.SetNonblock(nfd, true); err != nil {
		unix.Close(nfd)
		return -1, err
	}
	// writes to a reset peer return EPIPE instead of raising SIGPIPE
	unix.SetsockoptInt(nfd, unix.SOL_SOCKET, unix.SO_NOSIGPIPE, 1)
	tuneSocket(nfd)
	return nfd, nil
}
