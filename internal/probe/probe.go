package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/tkjaer/tcpping/internal/shared"
)

const (
	// ProbeTimeout bounds connection establishment plus the echo exchange
	ProbeTimeout = 5 * time.Second
	// InterProbeDelay paces iterations of every worker
	InterProbeDelay = 1 * time.Second
)

var (
	ErrTimeout       = errors.New("operation timed out")
	ErrInvalidTarget = errors.New("invalid target address")
)

// Config holds configuration common to all workers. It is built once and
// only ever read afterwards.
type Config struct {
	Host       string
	Port       uint16
	PacketSize int
	Workers    int
	Count      uint // probes per worker, 0 = infinite
	Persistent bool
}

// target validates the host and returns the host:port string to probe
func (c Config) target() (string, error) {
	host := strings.TrimSuffix(strings.TrimPrefix(c.Host, "["), "]")
	if !validHost(host) {
		return "", fmt.Errorf("%w: %q", ErrInvalidTarget, c.Host)
	}
	if c.Port == 0 {
		return "", fmt.Errorf("%w: port 0", ErrInvalidTarget)
	}
	return net.JoinHostPort(host, strconv.Itoa(int(c.Port))), nil
}

// validHost accepts IP literals and syntactically valid DNS names
func validHost(host string) bool {
	if host == "" || len(host) > 253 {
		return false
	}
	if _, err := netip.ParseAddr(host); err == nil {
		return true
	}
	for _, label := range strings.Split(strings.TrimSuffix(host, "."), ".") {
		if label == "" || len(label) > 63 {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for _, r := range label {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			default:
				return false
			}
		}
	}
	return true
}

// ProbeError is the failure side of a probe outcome
type ProbeError struct {
	Kind shared.ErrorKind
	Err  error
}

func (e *ProbeError) Error() string {
	if e.Kind == shared.KindTimeout {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s failed: %v", e.Kind, e.Err)
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}

// classify turns an I/O error into a ProbeError. Any deadline hit inside
// the probe scope is a timeout no matter which step was interrupted.
func classify(kind shared.ErrorKind, err error) *ProbeError {
	var pe *ProbeError
	if errors.As(err, &pe) {
		return pe
	}
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return &ProbeError{Kind: shared.KindTimeout, Err: ErrTimeout}
	}
	return &ProbeError{Kind: kind, Err: err}
}

// errorKind extracts the kind used for reporting
func errorKind(err error) shared.ErrorKind {
	var pe *ProbeError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}
