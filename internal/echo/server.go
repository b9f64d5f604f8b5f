package echo

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Server accepts TCP connections and writes every byte it reads back to
// the sender until the peer closes the connection.
type Server struct {
	Addr       string
	BufferSize int

	metrics *serverMetrics

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closed   bool
	wg       sync.WaitGroup
}

// NewServer creates an echo server. reg may be nil to disable metrics.
func NewServer(addr string, bufferSize int, reg prometheus.Registerer) (*Server, error) {
	s := &Server{
		Addr:       addr,
		BufferSize: bufferSize,
		conns:      make(map[net.Conn]struct{}),
	}
	if reg != nil {
		m, err := newServerMetrics(reg)
		if err != nil {
			return nil, err
		}
		s.metrics = m
	}
	return s, nil
}

// ListenAndServe listens on s.Addr and serves until ctx is cancelled or
// Close is called
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln. Accept failures are logged and do not
// stop the server; it returns nil once the listener has been closed.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close()
		return nil
	}
	s.listener = ln
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	slog.Info("Server listening", "addr", ln.Addr().String())

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() || errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				return nil
			}
			slog.Warn("Failed to accept connection", "error", err)

			// Avoid spinning when accept keeps failing (e.g. out of fds)
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else if backoff *= 2; backoff > time.Second {
				backoff = time.Second
			}
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		slog.Info("New connection", "remote", conn.RemoteAddr().String())
		if !s.track(conn) {
			conn.Close()
			continue
		}
		go s.handleConnection(conn)
	}
}

// ListenerAddr returns the listener address once serving has started
func (s *Server) ListenerAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close stops accepting and closes every active connection
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
	return err
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	s.metrics.connOpened()
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	s.metrics.connClosed()
	s.wg.Done()
}

// handleConnection echoes whatever is available on each read. A zero
// length read (EOF) or any I/O error ends the connection.
func (s *Server) handleConnection(conn net.Conn) {
	defer s.untrack(conn)
	defer conn.Close()

	buf := make([]byte, s.BufferSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			if _, werr := conn.Write(buf[:n]); werr != nil {
				if !s.isClosed() {
					slog.Warn("Failed to write to socket", "remote", conn.RemoteAddr().String(), "error", werr)
				}
				return
			}
			s.metrics.echoed(n)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !s.isClosed() {
				slog.Warn("Failed to read from socket", "remote", conn.RemoteAddr().String(), "error", err)
			}
			return
		}
	}
}
