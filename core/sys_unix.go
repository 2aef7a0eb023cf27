//go:build linux || darwin

package core

import "golang.org/x/sys/unix"

// tuneSocket disables Nagle's algorithm: responses are written whole and
// small ones must not wait for a delayed ACK
func tuneSocket(fd int) {
	unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
}

func isTemporary(err error) bool {
	return err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR
}
