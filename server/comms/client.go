package comms

import (
	"bufio"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var errSendBufferFull = errors.New("comms: send buffer full")

// client owns one TCP connection. Writes go through a buffered channel
// and a single write pump so Send never blocks table goroutines; a
// client that stops draining gets disconnected instead of stalling the
// game. Implements session.Sender.
type client struct {
	conn net.Conn
	log  logrus.FieldLogger

	out  chan any
	done chan struct{}
	once sync.Once
}

func newClient(conn net.Conn, log logrus.FieldLogger) *client {
	c := &client{
		conn: conn,
		log:  log.WithField("remote", conn.RemoteAddr().String()),
		out:  make(chan any, 64),
		done: make(chan struct{}),
	}
	go c.writePump()
	return c
}

func (c *client) Send(v any) error {
	select {
	case <-c.done:
		return net.ErrClosed
	case c.out <- v:
		return nil
	default:
		c.log.Warn("send buffer full, dropping connection")
		_ = c.Close()
		return errSendBufferFull
	}
}

// Close stops the connection. Frames already queued still go out
// before the socket closes.
func (c *client) Close() error {
	c.once.Do(func() {
		close(c.done)
	})
	return nil
}

func (c *client) writePump() {
	defer c.conn.Close()
	bw := bufio.NewWriter(c.conn)
	for {
		select {
		case v := <-c.out:
			if !c.write(bw, v) {
				return
			}
			if len(c.out) == 0 {
				if err := bw.Flush(); err != nil {
					return
				}
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
			for {
				select {
				case v := <-c.out:
					if !c.write(bw, v) {
						return
					}
				default:
					_ = bw.Flush()
					return
				}
			}
		}
	}
}

func (c *client) write(bw *bufio.Writer, v any) bool {
	if err := WriteFrame(bw, v); err != nil {
		c.log.WithError(err).Debug("write failed")
		return false
	}
	return true
}
