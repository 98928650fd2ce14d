package chunk

// Per-chunk-stream state for header compression and progressive message
// reassembly. The deframer keeps one StreamState per chunk stream id.
//
// Semantics:
//
//	fmt 0: absolute timestamp; starts a new message (all fields present)
//	fmt 1: timestamp delta; new message (length + type present, stream id reused)
//	fmt 2: timestamp delta only; new message (length, type, stream id reused)
//	fmt 3: continuation of the in-flight message, or -- when no message is in
//	       flight -- a new message repeating every prior field including the
//	       last timestamp delta
//
// A message in progress may not change type id or length: any fmt 0/1/2
// header arriving mid-reassembly is a protocol violation.

import (
	"github.com/pkg/errors"

	protoerr "github.com/zhangwz/rtmp-core/internal/errors"
)

// StreamState holds rolling state for a single chunk stream (CSID).
type StreamState struct {
	CSID            uint32
	LastTimestamp   uint32
	LastDelta       uint32
	LastMsgLength   uint32
	LastMsgTypeID   uint8
	LastMsgStreamID uint32

	buffer        []byte
	bytesReceived uint32
	inProgress    bool
	seen          bool // at least one header applied (delta base established)
}

// InProgress reports whether a multi-chunk message is being assembled.
func (s *StreamState) InProgress() bool { return s.inProgress }

// ResetBuffer clears the assembly buffer but keeps header context (used after
// message extraction and on Abort).
func (s *StreamState) ResetBuffer() {
	if s == nil {
		return
	}
	s.buffer = s.buffer[:0]
	s.bytesReceived = 0
	s.inProgress = false
}

// ApplyHeader applies a parsed Header, updating compression fields and (for
// fmt 0/1/2 or a fmt 3 restart) beginning a new message assembly.
func (s *StreamState) ApplyHeader(h *Header) error {
	if h == nil {
		return protoerr.NewChunkError("state.apply_header", errors.New("nil header"))
	}
	if s.CSID == 0 { // first use: bind CSID
		s.CSID = h.CSID
	}
	if s.CSID != h.CSID {
		return protoerr.NewChunkError("state.apply_header",
			errors.Errorf("csid mismatch: have %d want %d", s.CSID, h.CSID))
	}
	if h.Format != 3 && s.inProgress && s.bytesReceived > 0 {
		return protoerr.NewChunkError("state.apply_header",
			errors.Errorf("fmt %d header while message in progress (%d/%d bytes)",
				h.Format, s.bytesReceived, s.LastMsgLength))
	}
	switch h.Format {
	case 0:
		s.LastTimestamp = h.Timestamp
		s.LastDelta = 0
		s.LastMsgLength = h.MessageLength
		s.LastMsgTypeID = h.MessageTypeID
		s.LastMsgStreamID = h.MessageStreamID
		s.ResetBuffer()
		s.inProgress = true
	case 1:
		if s.seen {
			s.LastTimestamp += h.Timestamp
		} else {
			// First header on this stream arrived compressed; the delta is
			// the only timestamp we have, treat it as absolute.
			s.LastTimestamp = h.Timestamp
		}
		s.LastDelta = h.Timestamp
		s.LastMsgLength = h.MessageLength
		s.LastMsgTypeID = h.MessageTypeID
		s.ResetBuffer()
		s.inProgress = true
	case 2:
		if !s.seen || s.LastMsgLength == 0 {
			return protoerr.NewChunkError("state.apply_header", errors.New("fmt 2 without prior state"))
		}
		s.LastTimestamp += h.Timestamp
		s.LastDelta = h.Timestamp
		s.ResetBuffer()
		s.inProgress = true
	case 3:
		if s.inProgress {
			// continuation chunk: no field changes
			break
		}
		if !s.seen || s.LastMsgLength == 0 {
			return protoerr.NewChunkError("state.apply_header", errors.New("fmt 3 without prior state"))
		}
		// New message repeating all fields; the previous delta advances the clock.
		s.LastTimestamp += s.LastDelta
		s.ResetBuffer()
		s.inProgress = true
	default:
		return protoerr.NewChunkError("state.apply_header", errors.Errorf("invalid format %d", h.Format))
	}
	s.seen = true
	return nil
}

// AppendChunkData appends payload bytes for the in-progress message. Returns
// (complete, *Message, error); when complete the buffer is reset for the next
// message while header fields persist.
func (s *StreamState) AppendChunkData(data []byte) (bool, *Message, error) {
	if !s.inProgress {
		return false, nil, protoerr.NewChunkError("state.append", errors.New("no active message"))
	}
	if s.buffer == nil && s.LastMsgLength > 0 {
		s.buffer = make([]byte, 0, s.LastMsgLength)
	}
	if s.bytesReceived+uint32(len(data)) > s.LastMsgLength {
		return false, nil, protoerr.NewChunkError("state.append",
			errors.Errorf("overflow: have %d + %d > %d", s.bytesReceived, len(data), s.LastMsgLength))
	}
	s.buffer = append(s.buffer, data...)
	s.bytesReceived += uint32(len(data))
	if s.bytesReceived == s.LastMsgLength {
		msg := &Message{
			CSID:            s.CSID,
			Timestamp:       s.LastTimestamp,
			MessageLength:   s.LastMsgLength,
			TypeID:          s.LastMsgTypeID,
			MessageStreamID: s.LastMsgStreamID,
			Payload:         append([]byte(nil), s.buffer...), // copy
		}
		s.ResetBuffer()
		return true, msg, nil
	}
	return false, nil, nil
}

// BytesRemaining returns the byte count still needed for the in-progress message.
func (s *StreamState) BytesRemaining() uint32 {
	if !s.inProgress || s.bytesReceived >= s.LastMsgLength {
		return 0
	}
	return s.LastMsgLength - s.bytesReceived
}
