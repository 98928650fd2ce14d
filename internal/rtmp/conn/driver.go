package conn

// Transport driver: pumps a net.Conn through the sans-IO engine. The driver
// owns every socket concern the core deliberately avoids (reads, writes,
// deadlines, teardown); the engine never sees the connection.

import (
	stdErrors "errors"
	"io"
	"net"

	"github.com/zhangwz/rtmp-core/internal/rtmp/session"
)

// EventHandler receives application events as the driver surfaces them.
// Handlers run on the session's goroutine and may call AcceptRequest /
// RejectRequest directly; responses queued by those calls are flushed before
// the next read.
type EventHandler func(c *Conn, ev session.Event)

const readBufferSize = 4096

// Serve drives nc through a session engine until EOF, a transport error, or
// a fatal protocol violation. It blocks; callers run it in a goroutine per
// connection. The net.Conn is always closed on return.
func Serve(nc net.Conn, cfg session.Config, onEvent EventHandler) error {
	c, err := New(cfg)
	if err != nil {
		_ = nc.Close()
		return err
	}
	defer func() { _ = nc.Close() }()

	// Ship the handshake seed before the first read.
	if err := flush(nc, c); err != nil {
		c.Close(err)
		deliver(c, onEvent)
		return err
	}

	buf := make([]byte, readBufferSize)
	for {
		n, rerr := nc.Read(buf)
		if n > 0 {
			ferr := c.FeedInbound(buf[:n])
			deliver(c, onEvent)
			if werr := flush(nc, c); werr != nil {
				c.Close(werr)
				deliver(c, onEvent)
				return werr
			}
			if ferr != nil {
				// Engine already closed itself; the terminal event went out
				// with deliver above or the next one.
				deliver(c, onEvent)
				return ferr
			}
		}
		if rerr != nil {
			if stdErrors.Is(rerr, io.EOF) || stdErrors.Is(rerr, net.ErrClosed) {
				c.Close(nil)
				deliver(c, onEvent)
				return nil
			}
			c.Close(rerr)
			deliver(c, onEvent)
			return rerr
		}
	}
}

// deliver hands queued events to the handler.
func deliver(c *Conn, onEvent EventHandler) {
	for _, ev := range c.NextEvents() {
		if onEvent != nil {
			onEvent(c, ev)
		}
	}
}

// flush writes queued outbound bytes to the transport. Handlers invoked by
// deliver may have queued more (accept responses), so flush runs after
// delivery too.
func flush(nc net.Conn, c *Conn) error {
	for {
		out := c.DrainOutbound()
		if len(out) == 0 {
			return nil
		}
		if _, err := nc.Write(out); err != nil {
			return err
		}
	}
}
