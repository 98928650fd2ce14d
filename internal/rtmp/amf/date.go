package amf

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"

	amferrors "github.com/zhangwz/rtmp-core/internal/errors"
)

// EncodeDate writes an AMF0 Date (marker 0x0B + f64 milliseconds since epoch
// + i16 time zone). The time zone field is reserved and written as zero.
func EncodeDate(w io.Writer, v Date) error {
	var buf [1 + 8 + 2]byte
	buf[0] = markerDate
	binary.BigEndian.PutUint64(buf[1:9], math.Float64bits(v.Millis))
	// trailing two zero bytes: tz
	if _, err := w.Write(buf[:]); err != nil {
		return amferrors.NewAMFError("encode.date.write", err)
	}
	return nil
}

// DecodeDate reads an AMF0 Date from r. The time-zone field is consumed and
// discarded.
func DecodeDate(r io.Reader) (Date, error) {
	var m [1]byte
	if _, err := io.ReadFull(r, m[:]); err != nil {
		return Date{}, amferrors.NewAMFError("decode.date.marker.read", err)
	}
	if m[0] != markerDate {
		return Date{}, amferrors.NewAMFError("decode.date.marker", errors.Errorf("expected 0x%02x got 0x%02x", markerDate, m[0]))
	}
	return decodeDateBody(r)
}

func decodeDateBody(r io.Reader) (Date, error) {
	var body [8 + 2]byte
	if _, err := io.ReadFull(r, body[:]); err != nil {
		return Date{}, amferrors.NewAMFError("decode.date.read", err)
	}
	ms := math.Float64frombits(binary.BigEndian.Uint64(body[:8]))
	return Date{Millis: ms}, nil
}
