//go:build !unix

package artnet

import "syscall"

// listenControl is a no-op where x/sys/unix is unavailable; the runtime already
// enables SO_BROADCAST on UDP sockets
func listenControl(reuse, broadcast bool) func(network, address string, c syscall.RawConn) error {
	return nil
}
