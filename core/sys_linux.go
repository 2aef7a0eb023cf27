//go:build linux

package core

import "golang.org/x/sys/unix"

// accept takes one pending connection as a non-blocking, close-on-exec fd
func accept(lfd int) (int, error) {
	nfd, _, err := unix.Accept4(lfd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		return -1, err
	}
	tuneSocket(nfd)
	return nfd, nil
}
