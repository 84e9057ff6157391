// Package stream provides a remote bridge over TCP using length-prefixed frames.
//
// A Server accepts connections and relays every frame it receives to all other
// connections, so clients form a star around it. The server is itself a
// bridge: a bus attached to it sees the frames of every client.
//
// Frames are delivered at most once. A peer that disconnects misses whatever
// was broadcast while it was gone.
package stream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rbaliyan/eventbus/transport"
	"golang.org/x/sync/errgroup"
)

// Server is the hub side of a stream bridge. It implements transport.Bridge.
type Server struct {
	ln     net.Listener
	opts   *options
	recv   transport.Receiver
	group  *errgroup.Group
	status int32

	mu    sync.RWMutex
	peers map[string]*conn
}

// Listen starts a server on addr ("host:port", port 0 picks a free one).
func Listen(ctx context.Context, addr string, opts ...Option) (*Server, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	s := &Server{
		ln:     ln,
		opts:   newOptions(opts...),
		group:  &errgroup.Group{},
		status: 1,
		peers:  make(map[string]*conn),
	}
	s.group.Go(s.accept)

	s.opts.logger.Info("stream server listening", "addr", ln.Addr().String())
	return s, nil
}

// Addr returns the listening address.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Peers returns the number of connected clients.
func (s *Server) Peers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.peers)
}

func (s *Server) isOpen() bool {
	return atomic.LoadInt32(&s.status) == 1
}

func (s *Server) accept() error {
	for {
		c, err := s.ln.Accept()
		if err != nil {
			if !s.isOpen() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		p := &conn{id: transport.NewID(), c: c}
		s.mu.Lock()
		s.peers[p.id] = p
		s.mu.Unlock()

		s.opts.logger.Debug("peer connected", "peer", p.id, "remote", c.RemoteAddr().String())
		s.group.Go(func() error {
			s.serve(p)
			return nil
		})
	}
}

func (s *Server) serve(p *conn) {
	defer func() {
		s.mu.Lock()
		delete(s.peers, p.id)
		s.mu.Unlock()
		p.c.Close()
		s.opts.logger.Debug("peer disconnected", "peer", p.id)
	}()

	err := readFrames(p.c, s.opts, func(data []byte) {
		s.relay(p.id, data)
		if err := s.recv.Deliver(data); err != nil {
			s.opts.logger.Debug("frame without receiver", "peer", p.id)
		}
	})
	if err != nil && s.isOpen() {
		s.opts.logger.Warn("peer connection failed", "peer", p.id, "error", err)
		s.opts.onError(err)
	}
}

// relay writes data to every peer except the one it came from.
func (s *Server) relay(from string, data []byte) {
	s.mu.RLock()
	targets := make([]*conn, 0, len(s.peers))
	for id, p := range s.peers {
		if id != from {
			targets = append(targets, p)
		}
	}
	s.mu.RUnlock()

	for _, p := range targets {
		if err := p.write(data, s.opts.writeTimeout); err != nil {
			s.opts.logger.Debug("relay failed", "peer", p.id, "error", err)
			s.opts.onError(err)
			p.c.Close()
		}
	}
}

// Broadcast sends data to every connected client.
func (s *Server) Broadcast(ctx context.Context, data []byte) error {
	if !s.isOpen() {
		return transport.ErrTransportClosed
	}
	s.relay("", data)
	return nil
}

// OnReceive sets the inbound callback.
func (s *Server) OnReceive(fn transport.ReceiveFunc) {
	s.recv.Set(fn)
}

// Close stops accepting, disconnects all clients and waits for their loops.
func (s *Server) Close(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.status, 1, 0) {
		return nil
	}
	err := s.ln.Close()

	s.mu.RLock()
	for _, p := range s.peers {
		p.c.Close()
	}
	s.mu.RUnlock()

	done := make(chan error, 1)
	go func() { done <- s.group.Wait() }()
	select {
	case werr := <-done:
		return errors.Join(err, werr)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Health performs a health check on the server
func (s *Server) Health(ctx context.Context) *transport.HealthCheckResult {
	start := time.Now()
	result := &transport.HealthCheckResult{
		CheckedAt: start,
		Details:   map[string]any{"type": "stream", "role": "server"},
	}
	if !s.isOpen() {
		result.Status = transport.HealthStatusUnhealthy
		result.Message = "server is closed"
	} else {
		result.Status = transport.HealthStatusHealthy
		result.Message = "stream server is listening"
		result.Details["addr"] = s.Addr().String()
		result.Details["peers"] = s.Peers()
	}
	result.Latency = time.Since(start)
	return result
}

// Compile-time interface checks
var _ transport.Bridge = (*Server)(nil)
var _ transport.HealthChecker = (*Server)(nil)
