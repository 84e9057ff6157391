package stream

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/rbaliyan/eventbus/transport"
)

// Client is a connection to a stream Server. It implements transport.Bridge.
type Client struct {
	conn   *conn
	opts   *options
	recv   transport.Receiver
	status int32
	done   chan struct{}

	// readErr is set before done is closed
	readErr error
}

// Dial connects to a stream server.
func Dial(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	cl := &Client{
		conn:   &conn{id: transport.NewID(), c: c},
		opts:   newOptions(opts...),
		status: 1,
		done:   make(chan struct{}),
	}
	go cl.read()

	cl.opts.logger.Info("connected to stream server", "addr", addr)
	return cl, nil
}

func (c *Client) read() {
	defer close(c.done)
	err := readFrames(c.conn.c, c.opts, func(data []byte) {
		if err := c.recv.Deliver(data); err != nil {
			c.opts.logger.Debug("frame without receiver")
		}
	})
	if err != nil && atomic.LoadInt32(&c.status) == 1 {
		c.readErr = err
		c.opts.logger.Warn("stream connection failed", "error", err)
		c.opts.onError(err)
	}
	atomic.StoreInt32(&c.status, 0)
	c.conn.c.Close()
}

// Connected reports whether the read loop is still running.
func (c *Client) Connected() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// Broadcast sends data to the server, which relays it to the other clients.
func (c *Client) Broadcast(ctx context.Context, data []byte) error {
	if atomic.LoadInt32(&c.status) != 1 {
		return transport.ErrTransportClosed
	}
	timeout := c.opts.writeTimeout
	if deadline, ok := ctx.Deadline(); ok {
		d := time.Until(deadline)
		if d <= 0 {
			return context.DeadlineExceeded
		}
		if timeout == 0 || d < timeout {
			timeout = d
		}
	}
	return c.conn.write(data, timeout)
}

// OnReceive sets the inbound callback.
func (c *Client) OnReceive(fn transport.ReceiveFunc) {
	c.recv.Set(fn)
}

// Close disconnects from the server.
func (c *Client) Close(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&c.status, 1, 0) {
		return nil
	}
	err := c.conn.c.Close()
	select {
	case <-c.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}

// Health performs a health check on the client
func (c *Client) Health(ctx context.Context) *transport.HealthCheckResult {
	start := time.Now()
	result := &transport.HealthCheckResult{
		CheckedAt: start,
		Details:   map[string]any{"type": "stream", "role": "client"},
	}
	if c.Connected() {
		result.Status = transport.HealthStatusHealthy
		result.Message = "connected"
		result.Details["remote"] = c.conn.c.RemoteAddr().String()
	} else {
		result.Status = transport.HealthStatusUnhealthy
		result.Message = "disconnected"
		if c.readErr != nil {
			result.Details["error"] = c.readErr.Error()
		}
	}
	result.Latency = time.Since(start)
	return result
}

// Compile-time interface checks
var _ transport.Bridge = (*Client)(nil)
var _ transport.HealthChecker = (*Client)(nil)
