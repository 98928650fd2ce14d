package amf

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	amferrors "github.com/zhangwz/rtmp-core/internal/errors"
)

// EncodeStrictArray encodes an AMF0 Strict Array (marker 0x0A + u32 count +
// that many values back to back, no terminator).
func EncodeStrictArray(w io.Writer, vals []interface{}) error {
	var hdr [5]byte
	hdr[0] = markerStrictArray
	binary.BigEndian.PutUint32(hdr[1:], uint32(len(vals)))
	if _, err := w.Write(hdr[:]); err != nil {
		return amferrors.NewAMFError("encode.array.header.write", err)
	}
	for i, v := range vals {
		if err := encodeAny(w, v); err != nil {
			return amferrors.NewAMFError("encode.array.element", errors.Wrapf(err, "index %d", i))
		}
	}
	return nil
}

// DecodeStrictArray decodes an AMF0 Strict Array with a fresh reference
// table. It expects marker 0x0A at the current reader position.
func DecodeStrictArray(r io.Reader) ([]interface{}, error) {
	d := NewDecoder(r)
	var m [1]byte
	if _, err := io.ReadFull(r, m[:]); err != nil {
		return nil, amferrors.NewAMFError("decode.array.marker.read", err)
	}
	if m[0] != markerStrictArray {
		return nil, amferrors.NewAMFError("decode.array.marker", errors.Errorf("expected 0x%02x got 0x%02x", markerStrictArray, m[0]))
	}
	return d.decodeStrictArrayBody()
}

// decodeStrictArrayBody reads the u32 count then exactly that many values.
// The slice is registered in the reference table up front and the entry is
// fixed up once the elements are read.
func (d *Decoder) decodeStrictArrayBody() ([]interface{}, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(d.r, hdr[:]); err != nil {
		return nil, amferrors.NewAMFError("decode.array.count.read", err)
	}
	count := binary.BigEndian.Uint32(hdr[:])
	out := make([]interface{}, 0, minUint32(count, 1024))
	idx := d.addReference(out)
	for i := uint32(0); i < count; i++ {
		var marker [1]byte
		if _, err := io.ReadFull(d.r, marker[:]); err != nil {
			return nil, amferrors.NewAMFError("decode.array.element.marker.read", err)
		}
		v, err := d.decodeWithMarker(marker[0])
		if err != nil {
			return nil, amferrors.NewAMFError("decode.array.element", errors.Wrapf(err, "index %d", i))
		}
		out = append(out, v)
	}
	d.setReference(idx, out)
	return out, nil
}

// minUint32 caps pre-allocation so a hostile count cannot force a huge alloc
// before any element bytes are seen.
func minUint32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}
