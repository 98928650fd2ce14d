package chunk

// Deframer: reassembles RTMP messages from an interleaved stream of chunks,
// honoring per-CSID state, header compression, extended timestamps, and
// dynamic inbound chunk size changes.
//
// The deframer is byte-fed rather than reader-driven: Feed appends bytes and
// returns every message that completed, leaving any trailing partial chunk
// buffered for the next call. This keeps the chunk layer free of transport
// concerns (the session engine owns the socket, or there is no socket at all
// in tests).
//
// Error model: protocol violations return *errors.ChunkError and poison the
// deframer; every later Feed returns the same error. Needing more bytes is
// not an error.

import (
	"bytes"
	"encoding/binary"
	stdErrors "errors"
	"io"

	"github.com/pkg/errors"

	protoerr "github.com/zhangwz/rtmp-core/internal/errors"
)

// Deframer converts a chunk byte stream into complete Messages.
// Not safe for concurrent use; expected usage is a single session goroutine.
type Deframer struct {
	chunkSize     uint32 // inbound chunk size (payload bytes per chunk)
	maxMessageLen uint32
	pending       []byte // buffered bytes not yet forming a full chunk
	states        map[uint32]*StreamState
	prevHeader    map[uint32]*Header
	err           error // sticky fatal error
}

// NewDeframer creates a deframer with the provided initial inbound chunk size
// (spec default 128 when zero is passed).
func NewDeframer(chunkSize uint32) *Deframer {
	if chunkSize == 0 {
		chunkSize = DefaultChunkSize
	}
	return &Deframer{
		chunkSize:     chunkSize,
		maxMessageLen: MaxMessageLength,
		states:        make(map[uint32]*StreamState),
		prevHeader:    make(map[uint32]*Header),
	}
}

// SetChunkSize overrides the inbound chunk size. The new size applies to
// every chunk not yet consumed, including one whose bytes are already partly
// buffered: an incomplete chunk is re-parsed and sized on the next Feed.
func (d *Deframer) SetChunkSize(size uint32) error {
	if size == 0 || size > MaxChunkSize {
		return protoerr.NewChunkError("deframer.set_chunk_size",
			errors.Errorf("size %d outside 1..%d", size, MaxChunkSize))
	}
	d.chunkSize = size
	return nil
}

// ChunkSize returns the inbound chunk size currently in force.
func (d *Deframer) ChunkSize() uint32 { return d.chunkSize }

// SetMessageLimit lowers the per-session cap on declared message lengths.
func (d *Deframer) SetMessageLimit(limit uint32) {
	if limit > 0 && limit <= MaxMessageLength {
		d.maxMessageLen = limit
	}
}

// Feed appends inbound bytes and returns all messages completed by them, in
// wire order. A protocol violation is fatal: the error is returned alongside
// any messages completed before it, and the deframer refuses further input.
func (d *Deframer) Feed(p []byte) ([]*Message, error) {
	if d.err != nil {
		return nil, d.err
	}
	d.pending = append(d.pending, p...)
	var out []*Message
	for {
		msg, consumed, err := d.nextChunk()
		if err != nil {
			d.err = err
			return out, err
		}
		if consumed == 0 {
			break
		}
		d.pending = d.pending[consumed:]
		if msg != nil {
			if err := d.applyControl(msg); err != nil {
				d.err = err
				return out, err
			}
			out = append(out, msg)
		}
	}
	if len(d.pending) == 0 {
		d.pending = nil
	}
	return out, nil
}

// Buffered returns the number of bytes held for an incomplete chunk.
func (d *Deframer) Buffered() int { return len(d.pending) }

// nextChunk attempts to consume one full chunk from the pending buffer.
// Returns (completedMessage, bytesConsumed, fatalErr); consumed == 0 with a
// nil error means more bytes are needed. No state is mutated until the whole
// chunk (header + payload slice) is available.
func (d *Deframer) nextChunk() (*Message, int, error) {
	if len(d.pending) == 0 {
		return nil, 0, nil
	}
	r := bytes.NewReader(d.pending)
	h, err := ParseHeader(r, func(csid uint32) *Header { return d.prevHeader[csid] })
	if err != nil {
		if isShortRead(err) {
			return nil, 0, nil
		}
		return nil, 0, err
	}
	if h.MessageLength > d.maxMessageLen {
		return nil, 0, protoerr.NewChunkError("deframer.message_length",
			errors.Errorf("declared length %d exceeds cap %d", h.MessageLength, d.maxMessageLen))
	}

	st := d.states[h.CSID]
	if st == nil {
		st = &StreamState{CSID: h.CSID}
		d.states[h.CSID] = st
	}

	// Payload bytes carried by this chunk: the tail of an in-flight message
	// for a fmt-3 continuation, otherwise the head of a new message.
	remaining := h.MessageLength
	if h.Format == 3 && st.InProgress() {
		remaining = st.BytesRemaining()
	}
	chunkLen := remaining
	if chunkLen > d.chunkSize {
		chunkLen = d.chunkSize
	}
	total := h.HeaderBytes() + int(chunkLen)
	if len(d.pending) < total {
		return nil, 0, nil
	}

	if err := st.ApplyHeader(h); err != nil {
		return nil, 0, err
	}
	d.prevHeader[h.CSID] = h
	complete, msg, err := st.AppendChunkData(d.pending[h.HeaderBytes():total])
	if err != nil {
		return nil, 0, err
	}
	if complete {
		return msg, total, nil
	}
	return nil, total, nil
}

// applyControl inspects a completed message for chunk-layer control:
// Set Chunk Size (type 1) takes effect for the next chunk header parsed;
// Abort (type 2) discards the in-progress message on the named chunk stream.
func (d *Deframer) applyControl(msg *Message) error {
	if msg.MessageStreamID != 0 || len(msg.Payload) < 4 {
		return nil
	}
	switch msg.TypeID {
	case 1:
		v := binary.BigEndian.Uint32(msg.Payload[:4])
		if v&0x80000000 != 0 {
			return protoerr.NewChunkError("deframer.set_chunk_size",
				errors.Errorf("high bit set in size %#x", v))
		}
		return d.SetChunkSize(v)
	case 2:
		csid := binary.BigEndian.Uint32(msg.Payload[:4])
		if st := d.states[csid]; st != nil {
			st.ResetBuffer()
		}
	}
	return nil
}

// isShortRead reports whether err stems from the pending buffer simply not
// holding a full header yet.
func isShortRead(err error) bool {
	return stdErrors.Is(err, io.EOF) || stdErrors.Is(err, io.ErrUnexpectedEOF)
}
