package stream

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rbaliyan/eventbus/frame"
)

// conn is one framed TCP connection.
type conn struct {
	id  string
	c   net.Conn
	wmu sync.Mutex
}

func (c *conn) write(data []byte, timeout time.Duration) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	// a zero deadline clears one left by an earlier bounded write
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := c.c.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return frame.Write(c.c, data)
}

// readFrames reads from c until it fails, calling fn with every decoded body.
// A clean close by the peer returns nil.
func readFrames(c net.Conn, o *options, fn func([]byte)) error {
	d := frame.NewDecoder(frame.WithMaxSize(o.maxFrameSize))
	buf := make([]byte, o.readBuffer)
	for {
		n, err := c.Read(buf)
		if n > 0 {
			d.Write(buf[:n])
			for {
				msg, ok, derr := d.Next()
				if derr != nil {
					return derr
				}
				if !ok {
					break
				}
				fn(msg)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
	}
}
