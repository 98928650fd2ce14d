package chunk

// Chunk header parsing and serialization.
// Implements Basic Header + Message Header + Extended Timestamp for formats
// 0-3. Wire-format fidelity only; per-stream interpretation (delta
// accumulation, reassembly) lives in state.go.

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	protoerr "github.com/zhangwz/rtmp-core/internal/errors"
)

// extendedTimestampMarker in the 24-bit timestamp/delta field signals that a
// 32-bit extended timestamp follows the message header.
const extendedTimestampMarker = 0xFFFFFF

// Header is the parsed header (not including chunk data) of a single RTMP
// chunk. For formats 1/2 Timestamp holds the transmitted delta (IsDelta is
// true); for format 3 all fields are copied from the prior header on the same
// chunk stream. When HasExtendedTimestamp is set, Timestamp carries the
// 32-bit extended value.
type Header struct {
	Format               uint8
	CSID                 uint32
	Timestamp            uint32 // absolute (fmt 0), delta (fmt 1/2), inherited (fmt 3)
	MessageLength        uint32
	MessageTypeID        uint8
	MessageStreamID      uint32
	HasExtendedTimestamp bool
	IsDelta              bool
	headerBytes          int // bytes consumed incl. extended timestamp
}

// HeaderBytes returns the number of bytes this header occupied on the wire.
func (h *Header) HeaderBytes() int { return h.headerBytes }

// parseBasicHeader reads the Basic Header (1-3 bytes): format in the top two
// bits, chunk stream id in the rest with the two escape forms
// (0 -> one extra byte, id+64; 1 -> two extra bytes little-endian, id+64).
func parseBasicHeader(r io.Reader) (format uint8, csid uint32, n int, err error) {
	var b [1]byte
	if _, err = io.ReadFull(r, b[:]); err != nil {
		return 0, 0, 0, protoerr.NewChunkError("header.basic", err)
	}
	n = 1
	format = b[0] >> 6
	raw := b[0] & 0x3F
	switch raw {
	case 0: // 2-byte form (csid 64-319)
		var b1 [1]byte
		if _, err = io.ReadFull(r, b1[:]); err != nil {
			return 0, 0, n, protoerr.NewChunkError("header.basic.2byte", err)
		}
		n++
		csid = uint32(b1[0]) + 64
	case 1: // 3-byte form (csid 320-65599)
		var b2 [2]byte
		if _, err = io.ReadFull(r, b2[:]); err != nil {
			return 0, 0, n, protoerr.NewChunkError("header.basic.3byte", err)
		}
		n += 2
		csid = uint32(b2[0]) + 64 + (uint32(b2[1]) << 8)
	default:
		csid = uint32(raw)
	}
	return format, csid, n, nil
}

// readUint24 reads a 24-bit big-endian unsigned integer.
func readUint24(b []byte) uint32 { return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2]) }

// writeUint24 writes a 24-bit big-endian integer into the 3-byte slice.
func writeUint24(b []byte, v uint32) {
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}

// readExtendedTimestamp reads the 4-byte extended timestamp into h.
func readExtendedTimestamp(r io.Reader, h *Header, op string) error {
	var ext [4]byte
	if _, err := io.ReadFull(r, ext[:]); err != nil {
		return protoerr.NewChunkError(op, err)
	}
	h.headerBytes += 4
	h.HasExtendedTimestamp = true
	h.Timestamp = binary.BigEndian.Uint32(ext[:])
	return nil
}

// ParseHeader parses one chunk header (Basic + Message + Extended Timestamp)
// from r. lookup supplies the previous header for a chunk stream id; formats
// 2 and 3 inherit omitted fields from it. lookup may be nil when no history
// exists yet.
//
// Short reads surface as *errors.ChunkError wrapping the io error, so callers
// buffering a partial stream can classify them with errors.Is(...io.EOF /
// io.ErrUnexpectedEOF) and retry once more bytes arrive.
func ParseHeader(r io.Reader, lookup func(csid uint32) *Header) (*Header, error) {
	format, csid, basicBytes, err := parseBasicHeader(r)
	if err != nil {
		return nil, err
	}
	var prev *Header
	if lookup != nil {
		prev = lookup(csid)
	}

	h := &Header{Format: format, CSID: csid, headerBytes: basicBytes}

	switch format {
	case 0: // 11 bytes: absolute timestamp + length + type + stream id
		var mh [11]byte
		if _, err = io.ReadFull(r, mh[:]); err != nil {
			return nil, protoerr.NewChunkError("header.message.fmt0", err)
		}
		h.headerBytes += 11
		h.Timestamp = readUint24(mh[0:3])
		h.MessageLength = readUint24(mh[3:6])
		h.MessageTypeID = mh[6]
		h.MessageStreamID = binary.LittleEndian.Uint32(mh[7:11])
		if h.Timestamp == extendedTimestampMarker {
			if err = readExtendedTimestamp(r, h, "header.extended.fmt0"); err != nil {
				return nil, err
			}
		}
	case 1: // 7 bytes: delta + length + type; stream id inherited
		var mh [7]byte
		if _, err = io.ReadFull(r, mh[:]); err != nil {
			return nil, protoerr.NewChunkError("header.message.fmt1", err)
		}
		h.headerBytes += 7
		h.Timestamp = readUint24(mh[0:3])
		h.IsDelta = true
		h.MessageLength = readUint24(mh[3:6])
		h.MessageTypeID = mh[6]
		if prev != nil {
			h.MessageStreamID = prev.MessageStreamID
		}
		if h.Timestamp == extendedTimestampMarker {
			if err = readExtendedTimestamp(r, h, "header.extended.fmt1"); err != nil {
				return nil, err
			}
		}
	case 2: // 3 bytes: delta only; length, type, stream id inherited
		var mh [3]byte
		if _, err = io.ReadFull(r, mh[:]); err != nil {
			return nil, protoerr.NewChunkError("header.message.fmt2", err)
		}
		h.headerBytes += 3
		h.Timestamp = readUint24(mh[0:3])
		h.IsDelta = true
		if h.Timestamp == extendedTimestampMarker {
			if err = readExtendedTimestamp(r, h, "header.extended.fmt2"); err != nil {
				return nil, err
			}
		}
		if prev != nil && prev.CSID == csid {
			h.MessageLength = prev.MessageLength
			h.MessageTypeID = prev.MessageTypeID
			h.MessageStreamID = prev.MessageStreamID
		}
	case 3: // no message header; inherit everything
		if prev == nil || prev.CSID != csid {
			return nil, protoerr.NewChunkError("header.message.fmt3",
				errors.Errorf("missing previous header for csid %d", csid))
		}
		*h = *prev
		h.Format = 3
		h.headerBytes = basicBytes
		// The previous chunk's extended timestamp is repeated verbatim.
		if prev.HasExtendedTimestamp {
			if err = readExtendedTimestamp(r, h, "header.extended.fmt3"); err != nil {
				return nil, err
			}
		}
	}
	return h, nil
}

// encodeBasicHeader appends the Basic Header (1-3 bytes) to dst.
func encodeBasicHeader(dst []byte, format uint8, csid uint32) ([]byte, error) {
	if format > 3 {
		return nil, errors.Errorf("invalid format %d", format)
	}
	if csid < 2 { // 0 & 1 are the escape values, 2 is the protocol channel floor
		return nil, errors.Errorf("invalid csid %d (must be >=2)", csid)
	}
	switch {
	case csid <= 63:
		dst = append(dst, byte(format<<6)|byte(csid))
	case csid <= 319:
		dst = append(dst, byte(format<<6), byte(csid-64))
	case csid <= 65599:
		val := csid - 64
		dst = append(dst, byte(format<<6)|1, byte(val&0xFF), byte(val>>8))
	default:
		return nil, errors.Errorf("csid %d out of range", csid)
	}
	return dst, nil
}

// EncodeHeader serializes a Header (header bytes only, no payload). prev
// provides context for format 3 extended-timestamp repetition.
func EncodeHeader(h *Header, prev *Header) ([]byte, error) {
	if h == nil {
		return nil, protoerr.NewChunkError("header.encode", errors.New("nil header"))
	}
	var (
		needExtended bool
		tsField      uint32
	)
	switch h.Format {
	case 0, 1, 2:
		tsField = h.Timestamp
		needExtended = h.Timestamp >= extendedTimestampMarker
	case 3:
		if prev == nil || prev.CSID != h.CSID {
			return nil, protoerr.NewChunkError("header.encode.fmt3",
				errors.Errorf("missing previous header for csid %d", h.CSID))
		}
		needExtended = prev.HasExtendedTimestamp || prev.Timestamp >= extendedTimestampMarker
		tsField = prev.Timestamp
	default:
		return nil, protoerr.NewChunkError("header.encode", errors.Errorf("invalid format %d", h.Format))
	}

	buf := make([]byte, 0, 3+11+4) // worst case
	buf, err := encodeBasicHeader(buf, h.Format, h.CSID)
	if err != nil {
		return nil, protoerr.NewChunkError("header.encode.basic", err)
	}

	tsWire := tsField
	if needExtended {
		tsWire = extendedTimestampMarker
	}
	switch h.Format {
	case 0:
		var mh [11]byte
		writeUint24(mh[0:3], tsWire)
		writeUint24(mh[3:6], h.MessageLength)
		mh[6] = h.MessageTypeID
		binary.LittleEndian.PutUint32(mh[7:11], h.MessageStreamID)
		buf = append(buf, mh[:]...)
	case 1:
		var mh [7]byte
		writeUint24(mh[0:3], tsWire)
		writeUint24(mh[3:6], h.MessageLength)
		mh[6] = h.MessageTypeID
		buf = append(buf, mh[:]...)
	case 2:
		var mh [3]byte
		writeUint24(mh[0:3], tsWire)
		buf = append(buf, mh[:]...)
	case 3:
		// no message header bytes
	}

	if needExtended {
		var ext [4]byte
		binary.BigEndian.PutUint32(ext[:], tsField)
		buf = append(buf, ext[:]...)
	}
	return buf, nil
}
