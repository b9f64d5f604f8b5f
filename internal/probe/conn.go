package probe

import (
	"context"
	"io"
	"net"
	"net/netip"
	"time"

	"github.com/tkjaer/tcpping/internal/shared"
)

// connector establishes probe connections for one worker
type connector struct {
	host     string
	port     uint16
	resolver *resolver
	dialer   net.Dialer
}

func newConnector(host string, port uint16) *connector {
	return &connector{
		host:     host,
		port:     port,
		resolver: newResolver(resolveTTL),
	}
}

// connect opens a TCP connection with Nagle disabled. Every resolved
// address is tried in order until one succeeds or ctx expires.
func (c *connector) connect(ctx context.Context) (*net.TCPConn, error) {
	addrs, err := c.resolver.resolve(ctx, c.host)
	if err != nil {
		return nil, classify(shared.KindConnect, err)
	}

	var lastErr error
	for _, addr := range addrs {
		ap := netip.AddrPortFrom(addr.Unmap(), c.port)
		conn, err := c.dialer.DialContext(ctx, "tcp", ap.String())
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		tcpConn := conn.(*net.TCPConn)
		if err := tcpConn.SetNoDelay(true); err != nil {
			tcpConn.Close()
			return nil, classify(shared.KindConnect, err)
		}
		return tcpConn, nil
	}
	return nil, classify(shared.KindConnect, lastErr)
}

// exchange writes payload and reads exactly len(buf) bytes back. The
// context deadline is applied to the socket so a stalled peer surfaces as
// a timeout; whatever was partially transferred is discarded by the caller.
func exchange(ctx context.Context, conn net.Conn, payload, buf []byte) (time.Duration, error) {
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return 0, classify(shared.KindWrite, err)
		}
	}

	start := time.Now()
	if _, err := conn.Write(payload); err != nil {
		return 0, classify(shared.KindWrite, err)
	}
	if _, err := io.ReadFull(conn, buf); err != nil {
		if ctx.Err() != nil {
			return 0, classify(shared.KindRead, ctx.Err())
		}
		return 0, classify(shared.KindRead, err)
	}
	return time.Since(start), nil
}
