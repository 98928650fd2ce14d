package handshake

// Server-side RTMP simple handshake finite state machine.
// Sequence: seed S0+S1 on construction -> read C0+C1 -> send S2 (echo of C1)
// -> read C2 -> complete. Version 0x03 only; C2 is length-validated, not
// cryptographically checked, matching the simple/old handshake.
//
// The FSM is byte-fed and performs no IO: the caller owns the transport and
// forwards Outcome.BytesToSend / consumes Outcome.Remaining.

import (
	"crypto/rand"
	"encoding/binary"
	"time"

	"github.com/pkg/errors"

	rerrors "github.com/zhangwz/rtmp-core/internal/errors"
)

// ServerFSM holds server handshake state. Fixed-size arrays keep the C1/S1
// blocks around for echo construction without extra allocation.
type ServerFSM struct {
	state              State
	buf                []byte
	c1                 [PacketSize]byte
	s1                 [PacketSize]byte
	peerStartTimestamp uint32
	localStart         uint32
}

// NewServer creates the FSM and returns it together with the S0+S1 bytes that
// must be sent to the peer immediately.
func NewServer() (*ServerFSM, []byte) {
	h := &ServerFSM{state: StateWaitingC0C1}
	h.localStart = uint32(time.Now().UnixMilli() & 0xFFFFFFFF)
	binary.BigEndian.PutUint32(h.s1[timeFieldOffset:], h.localStart)
	// 4 reserved bytes stay zero.
	_, _ = rand.Read(h.s1[randomFieldOffset:])

	out := make([]byte, 1+PacketSize)
	out[0] = Version
	copy(out[1:], h.s1[:])
	return h, out
}

// State returns the current FSM state.
func (h *ServerFSM) State() State { return h.state }

// PeerStartTimestamp returns the peer epoch extracted from C1 (valid once the
// FSM has left WaitingC0C1).
func (h *ServerFSM) PeerStartTimestamp() uint32 { return h.peerStartTimestamp }

// Process feeds inbound bytes. It returns an Outcome describing bytes to
// send and, once exactly 1+1536+1536 bytes have been consumed, completion
// with any surplus. A version mismatch fails the FSM permanently.
func (h *ServerFSM) Process(p []byte) (Outcome, error) {
	switch h.state {
	case StateFailed:
		return Outcome{}, rerrors.NewHandshakeError("process", errors.New("handshake already failed"))
	case StateComplete:
		return Outcome{}, rerrors.NewHandshakeError("process", errors.New("handshake already complete"))
	}
	h.buf = append(h.buf, p...)
	var out Outcome

	if h.state == StateWaitingC0C1 {
		if len(h.buf) < 1+PacketSize {
			return out, nil
		}
		if h.buf[0] != Version {
			h.state = StateFailed
			return Outcome{}, rerrors.NewHandshakeError("validate version",
				errors.Errorf("unsupported version 0x%02x", h.buf[0]))
		}
		copy(h.c1[:], h.buf[1:1+PacketSize])
		h.peerStartTimestamp = binary.BigEndian.Uint32(h.c1[timeFieldOffset : timeFieldOffset+4])
		h.buf = h.buf[1+PacketSize:]
		h.state = StateWaitingC2
		// S2 echoes C1 byte for byte.
		out.BytesToSend = append(out.BytesToSend, h.c1[:]...)
	}

	if h.state == StateWaitingC2 {
		if len(h.buf) < PacketSize {
			return out, nil
		}
		// C2 is not validated beyond its length in the simple handshake.
		remaining := h.buf[PacketSize:]
		h.buf = nil
		h.state = StateComplete
		out.Complete = true
		out.PeerStartTimestamp = h.peerStartTimestamp
		if len(remaining) > 0 {
			out.Remaining = append([]byte(nil), remaining...)
		}
	}
	return out, nil
}
