package handshake

// Handshake constants based on the RTMP simple (version 3) handshake.
// C0/S0 is a single version byte (0x03). Each of C1, S1, C2, S2 is 1536
// bytes: a 4-byte start timestamp, 4 reserved zero bytes, 1528 bytes of
// pseudorandom payload.
const (
	Version    = 0x03
	PacketSize = 1536

	timeFieldOffset   = 0
	zeroFieldOffset   = 4
	randomFieldOffset = 8
)

// State tracks the progression of a handshake FSM. Server instances move
// WaitingC0C1 -> WaitingC2 -> Complete; client instances move
// WaitingS0S1 -> WaitingS2 -> Complete. Failed is a sink.
type State int

const (
	StateWaitingC0C1 State = iota
	StateWaitingC2
	StateWaitingS0S1
	StateWaitingS2
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateWaitingC0C1:
		return "WaitingC0C1"
	case StateWaitingC2:
		return "WaitingC2"
	case StateWaitingS0S1:
		return "WaitingS0S1"
	case StateWaitingS2:
		return "WaitingS2"
	case StateComplete:
		return "Complete"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Outcome reports the result of feeding bytes to a handshake FSM.
//
// BytesToSend holds bytes the peer must receive now (possibly empty).
// Complete is set exactly once, when the FSM has consumed its full
// 1 + 1536 + 1536 inbound bytes; at that point PeerStartTimestamp carries the
// peer's announced epoch and Remaining any surplus bytes already buffered,
// which belong to the chunk layer.
type Outcome struct {
	Complete           bool
	BytesToSend        []byte
	PeerStartTimestamp uint32
	Remaining          []byte
}
