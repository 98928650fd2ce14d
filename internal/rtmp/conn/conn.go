package conn

// Sans-IO session engine: composes the handshake FSM, chunk deframer,
// session processor and chunk framer into one unit driven entirely by bytes
// and application calls. The engine never touches a socket; a transport
// driver (driver.go, or a test) feeds inbound bytes with FeedInbound, ships
// whatever DrainOutbound returns, and delivers NextEvents to the
// application.
//
// The three state machines share no mutable state; this type is the thin
// composition layer. Not safe for concurrent use: one session is a single
// cooperative unit.

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	rerrors "github.com/zhangwz/rtmp-core/internal/errors"
	"github.com/zhangwz/rtmp-core/internal/logger"
	"github.com/zhangwz/rtmp-core/internal/rtmp/chunk"
	"github.com/zhangwz/rtmp-core/internal/rtmp/control"
	"github.com/zhangwz/rtmp-core/internal/rtmp/handshake"
	"github.com/zhangwz/rtmp-core/internal/rtmp/session"
)

// Conn is one server-side RTMP session engine.
type Conn struct {
	log *zap.Logger

	hs       *handshake.ServerFSM
	deframer *chunk.Deframer
	framer   *chunk.Framer
	sess     *session.Session

	out    bytes.Buffer // outbound byte queue consumed by DrainOutbound
	events []session.Event

	peerStartTimestamp uint32
	closed             bool
	closeErr           error
}

// New creates an engine for a fresh inbound connection. The S0+S1 handshake
// seed is already queued on the outbound buffer.
func New(cfg session.Config) (*Conn, error) {
	sess, err := session.New(cfg)
	if err != nil {
		return nil, err
	}
	c := &Conn{
		sess:     sess,
		deframer: chunk.NewDeframer(chunk.DefaultChunkSize),
		log:      logger.Logger().With(zap.String("session_id", sess.ID()), zap.String("component", "conn")),
	}
	c.framer = chunk.NewFramer(&c.out, chunk.DefaultChunkSize)
	var seed []byte
	c.hs, seed = handshake.NewServer()
	c.out.Write(seed)
	return c, nil
}

// ID returns the session identifier.
func (c *Conn) ID() string { return c.sess.ID() }

// Session exposes the session processor for state inspection.
func (c *Conn) Session() *session.Session { return c.sess }

// PeerStartTimestamp returns the peer epoch from the handshake (valid once
// the handshake completed).
func (c *Conn) PeerStartTimestamp() uint32 { return c.peerStartTimestamp }

// Closed reports whether the engine reached the closed stage.
func (c *Conn) Closed() bool { return c.closed }

// FeedInbound processes transport bytes in arrival order. Fatal protocol
// violations close the engine and are returned; the terminal SessionClosed
// event is queued for the application either way.
func (c *Conn) FeedInbound(p []byte) error {
	if c.closed {
		return rerrors.NewSessionError("feed", errors.New("session closed"))
	}
	if c.hs.State() != handshake.StateComplete {
		out, err := c.hs.Process(p)
		if err != nil {
			c.fail(err)
			return err
		}
		c.out.Write(out.BytesToSend)
		if !out.Complete {
			return nil
		}
		c.peerStartTimestamp = out.PeerStartTimestamp
		if err := c.sess.HandshakeComplete(); err != nil {
			c.fail(err)
			return err
		}
		c.log.Info("handshake completed", zap.Uint32("peer_start_ts", out.PeerStartTimestamp))
		if len(out.Remaining) == 0 {
			return nil
		}
		p = out.Remaining
	}
	return c.feedChunkBytes(p)
}

// feedChunkBytes runs post-handshake bytes through acknowledgement
// bookkeeping, the deframer and the session processor. Acknowledgements
// produced by the byte count are emitted before any message-triggered
// responses from the same batch.
func (c *Conn) feedChunkBytes(p []byte) error {
	if err := c.dispatch(c.sess.NotifyBytesReceived(uint64(len(p)))); err != nil {
		c.fail(err)
		return err
	}
	msgs, err := c.deframer.Feed(p)
	for _, msg := range msgs {
		outputs, herr := c.sess.Handle(msg)
		if herr != nil {
			c.fail(herr)
			return herr
		}
		if derr := c.dispatch(outputs); derr != nil {
			c.fail(derr)
			return derr
		}
	}
	if err != nil {
		c.fail(err)
		return err
	}
	return nil
}

// dispatch routes session outputs: responses are framed onto the outbound
// buffer in production order, events are queued for the application.
func (c *Conn) dispatch(outputs []session.Output) error {
	for _, o := range outputs {
		switch {
		case o.Response != nil:
			if err := c.framer.WriteMessage(o.Response); err != nil {
				return err
			}
			// Our own Set Chunk Size governs every later outbound message.
			if o.Response.TypeID == control.TypeSetChunkSize && len(o.Response.Payload) >= 4 {
				if err := c.framer.SetChunkSize(binary.BigEndian.Uint32(o.Response.Payload[:4])); err != nil {
					return err
				}
			}
		case o.Event != nil:
			c.events = append(c.events, o.Event)
		}
	}
	return nil
}

// DrainOutbound returns and clears the queued outbound bytes.
func (c *Conn) DrainOutbound() []byte {
	if c.out.Len() == 0 {
		return nil
	}
	b := append([]byte(nil), c.out.Bytes()...)
	c.out.Reset()
	return b
}

// NextEvents returns and clears the queued application events.
func (c *Conn) NextEvents() []session.Event {
	evs := c.events
	c.events = nil
	return evs
}

// AcceptRequest approves a pending application request; the resulting
// response is queued on the outbound buffer.
func (c *Conn) AcceptRequest(requestID uint32) error {
	outputs, err := c.sess.AcceptRequest(requestID)
	if err != nil {
		return err
	}
	return c.dispatch(outputs)
}

// RejectRequest declines a pending application request with a reason.
func (c *Conn) RejectRequest(requestID uint32, reason string) error {
	outputs, err := c.sess.RejectRequest(requestID, reason)
	if err != nil {
		return err
	}
	return c.dispatch(outputs)
}

// Close tears the session down (transport gone or caller-initiated). The
// terminal event is queued; in-flight reassembly state and pending requests
// are dropped. Idempotent.
func (c *Conn) Close(err error) {
	if c.closed {
		return
	}
	c.closed = true
	c.closeErr = err
	c.sess.Close()
	c.events = append(c.events, session.SessionClosed{Err: err})
	if err != nil {
		c.log.Warn("session closed", zap.Error(err))
	} else {
		c.log.Info("session closed")
	}
}

// fail closes the engine on a fatal protocol error.
func (c *Conn) fail(err error) {
	c.log.Error("fatal protocol error", zap.Error(err))
	c.Close(err)
}
