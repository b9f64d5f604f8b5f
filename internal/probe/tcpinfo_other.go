//go:build !linux

package probe

import (
	"net"
	"time"
)

func kernelRTT(conn *net.TCPConn) (time.Duration, bool) {
	return 0, false
}
