package netutil

import (
	"errors"
	"net"
	"syscall"
)

// IsConnectionResetByPeer reports whether err bottoms out in ECONNRESET,
// which a tunnel treats as the peer hanging up rather than a failure.
func IsConnectionResetByPeer(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		var sysErr syscall.Errno
		if errors.As(opErr.Err, &sysErr) {
			return sysErr == syscall.ECONNRESET
		}
	}

	return false
}
