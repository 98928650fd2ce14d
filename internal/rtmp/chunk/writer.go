package chunk

// Framer: fragments outbound Messages into chunks. The first chunk carries a
// full or compressed message header chosen from per-CSID history; every
// continuation chunk within the same message uses format 3. Compression is an
// optimization only -- correctness requires no more than that a compliant
// deframer reassembles the output.

import (
	"io"

	"github.com/pkg/errors"

	"github.com/zhangwz/rtmp-core/internal/bufpool"
	protoerr "github.com/zhangwz/rtmp-core/internal/errors"
)

// Framer emits RTMP chunks for outbound messages. Not concurrency-safe;
// expected usage is a single write path per connection.
type Framer struct {
	w           io.Writer
	chunkSize   uint32
	lastHeaders map[uint32]*Header // per-CSID history for header compression
}

// NewFramer creates a chunk framer writing to w with the given outbound chunk
// size (spec default 128 when zero is passed).
func NewFramer(w io.Writer, chunkSize uint32) *Framer {
	if chunkSize == 0 {
		chunkSize = DefaultChunkSize
	}
	return &Framer{
		w:           w,
		chunkSize:   chunkSize,
		lastHeaders: make(map[uint32]*Header),
	}
}

// SetChunkSize updates the outbound chunk size. Call after announcing a Set
// Chunk Size message so subsequent messages fragment at the new size.
func (f *Framer) SetChunkSize(size uint32) error {
	if size == 0 || size > MaxChunkSize {
		return protoerr.NewChunkError("framer.set_chunk_size",
			errors.Errorf("size %d outside 1..%d", size, MaxChunkSize))
	}
	f.chunkSize = size
	return nil
}

// ChunkSize returns the outbound chunk size currently in force.
func (f *Framer) ChunkSize() uint32 { return f.chunkSize }

// WriteMessage fragments and writes a full RTMP message as one or more
// chunks. Header format selection per CSID history:
//
//	fmt 0: first message on the CSID, stream id changed, or timestamp went
//	       backwards (deltas are unsigned)
//	fmt 1: length or type id changed (delta timestamp)
//	fmt 2: only the timestamp changed
//	fmt 3: continuation chunks within the same message
func (f *Framer) WriteMessage(msg *Message) error {
	if msg == nil {
		return protoerr.NewChunkError("framer.write", errors.New("nil message"))
	}
	if msg.CSID == 0 {
		msg.CSID = DefaultCSID(msg.TypeID)
	}
	if msg.MessageLength == 0 {
		msg.MessageLength = uint32(len(msg.Payload))
	}
	if int(msg.MessageLength) != len(msg.Payload) {
		return protoerr.NewChunkError("framer.write",
			errors.Errorf("payload length %d != declared %d", len(msg.Payload), msg.MessageLength))
	}
	if msg.MessageLength > MaxMessageLength {
		return protoerr.NewChunkError("framer.write",
			errors.Errorf("message length %d exceeds cap %d", msg.MessageLength, MaxMessageLength))
	}

	format, tsField := f.selectFormat(msg)
	first := &Header{
		Format:          format,
		CSID:            msg.CSID,
		Timestamp:       tsField,
		MessageLength:   msg.MessageLength,
		MessageTypeID:   msg.TypeID,
		MessageStreamID: msg.MessageStreamID,
		IsDelta:         format == 1 || format == 2,
	}
	if tsField >= extendedTimestampMarker {
		first.HasExtendedTimestamp = true
	}

	hdr, err := EncodeHeader(first, f.lastHeaders[msg.CSID])
	if err != nil {
		return errors.Wrap(err, "framer: first header")
	}
	chunkLen := msg.MessageLength
	if chunkLen > f.chunkSize {
		chunkLen = f.chunkSize
	}
	if err := f.writeChunk(hdr, msg.Payload[:chunkLen]); err != nil {
		return err
	}
	written := chunkLen

	// History entry keeps the absolute timestamp so later deltas are exact.
	f.lastHeaders[msg.CSID] = &Header{
		Format:               format,
		CSID:                 msg.CSID,
		Timestamp:            msg.Timestamp,
		MessageLength:        msg.MessageLength,
		MessageTypeID:        msg.TypeID,
		MessageStreamID:      msg.MessageStreamID,
		HasExtendedTimestamp: first.HasExtendedTimestamp,
	}

	// Continuation chunks (fmt 3). EncodeHeader repeats the extended
	// timestamp when the first header carried one.
	for written < msg.MessageLength {
		sz := msg.MessageLength - written
		if sz > f.chunkSize {
			sz = f.chunkSize
		}
		cont := &Header{Format: 3, CSID: msg.CSID}
		hdr3, err := EncodeHeader(cont, first)
		if err != nil {
			return errors.Wrap(err, "framer: continuation header")
		}
		if err := f.writeChunk(hdr3, msg.Payload[written:written+sz]); err != nil {
			return err
		}
		written += sz
	}
	return nil
}

// selectFormat picks the most compressed header format the CSID history
// permits and returns it with the timestamp field value (absolute for fmt 0,
// delta otherwise).
func (f *Framer) selectFormat(msg *Message) (uint8, uint32) {
	prev := f.lastHeaders[msg.CSID]
	if prev == nil || msg.MessageStreamID != prev.MessageStreamID || msg.Timestamp < prev.Timestamp {
		return 0, msg.Timestamp
	}
	delta := msg.Timestamp - prev.Timestamp
	if msg.MessageLength == prev.MessageLength && msg.TypeID == prev.MessageTypeID {
		return 2, delta
	}
	return 1, delta
}

// writeChunk emits header+payload as a single Write (atomic chunk emission).
func (f *Framer) writeChunk(header, payload []byte) error {
	buf := bufpool.Get(len(header) + len(payload))
	copy(buf, header)
	copy(buf[len(header):], payload)
	_, err := f.w.Write(buf)
	bufpool.Put(buf)
	if err != nil {
		return protoerr.NewChunkError("framer.write_chunk", err)
	}
	return nil
}
