package handshake

// Client-side RTMP simple handshake finite state machine, mirroring the
// server FSM: seed C0+C1 on construction -> read S0+S1 -> send C2 (echo of
// S1) -> read S2 -> complete.

import (
	"crypto/rand"
	"encoding/binary"
	"time"

	"github.com/pkg/errors"

	rerrors "github.com/zhangwz/rtmp-core/internal/errors"
)

// ClientFSM holds client handshake state.
type ClientFSM struct {
	state              State
	buf                []byte
	c1                 [PacketSize]byte
	s1                 [PacketSize]byte
	peerStartTimestamp uint32
	localStart         uint32
}

// NewClient creates the FSM and returns it together with the C0+C1 bytes that
// must be sent to the server immediately.
func NewClient() (*ClientFSM, []byte) {
	h := &ClientFSM{state: StateWaitingS0S1}
	h.localStart = uint32(time.Now().UnixMilli() & 0xFFFFFFFF)
	binary.BigEndian.PutUint32(h.c1[timeFieldOffset:], h.localStart)
	_, _ = rand.Read(h.c1[randomFieldOffset:])

	out := make([]byte, 1+PacketSize)
	out[0] = Version
	copy(out[1:], h.c1[:])
	return h, out
}

// State returns the current FSM state.
func (h *ClientFSM) State() State { return h.state }

// PeerStartTimestamp returns the server epoch extracted from S1 (valid once
// the FSM has left WaitingS0S1).
func (h *ClientFSM) PeerStartTimestamp() uint32 { return h.peerStartTimestamp }

// Process feeds inbound bytes, returning C2 once S0+S1 arrived and
// completion once S2 arrived. A version mismatch fails the FSM permanently.
func (h *ClientFSM) Process(p []byte) (Outcome, error) {
	switch h.state {
	case StateFailed:
		return Outcome{}, rerrors.NewHandshakeError("process", errors.New("handshake already failed"))
	case StateComplete:
		return Outcome{}, rerrors.NewHandshakeError("process", errors.New("handshake already complete"))
	}
	h.buf = append(h.buf, p...)
	var out Outcome

	if h.state == StateWaitingS0S1 {
		if len(h.buf) < 1+PacketSize {
			return out, nil
		}
		if h.buf[0] != Version {
			h.state = StateFailed
			return Outcome{}, rerrors.NewHandshakeError("validate version",
				errors.Errorf("unsupported version 0x%02x", h.buf[0]))
		}
		copy(h.s1[:], h.buf[1:1+PacketSize])
		h.peerStartTimestamp = binary.BigEndian.Uint32(h.s1[timeFieldOffset : timeFieldOffset+4])
		h.buf = h.buf[1+PacketSize:]
		h.state = StateWaitingS2
		// C2 echoes S1 byte for byte.
		out.BytesToSend = append(out.BytesToSend, h.s1[:]...)
	}

	if h.state == StateWaitingS2 {
		if len(h.buf) < PacketSize {
			return out, nil
		}
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
