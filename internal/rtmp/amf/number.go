package amf

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"

	amferrors "github.com/zhangwz/rtmp-core/internal/errors"
)

// EncodeNumber writes an AMF0 Number (marker 0x00 + 8-byte IEEE754 double,
// big-endian) to the provided writer.
//
// Contract:
//   - Always writes exactly 9 bytes on success.
//   - Returns *errors.AMFError wrapped with context on failure.
func EncodeNumber(w io.Writer, v float64) error {
	var buf [1 + 8]byte
	buf[0] = markerNumber
	binary.BigEndian.PutUint64(buf[1:], math.Float64bits(v))
	if _, err := w.Write(buf[:]); err != nil {
		return amferrors.NewAMFError("encode.number.write", err)
	}
	return nil
}

// DecodeNumber reads an AMF0 Number (marker 0x00 followed by an 8-byte
// IEEE754 double in big-endian order) from r and returns the float64.
func DecodeNumber(r io.Reader) (float64, error) {
	var m [1]byte
	if _, err := io.ReadFull(r, m[:]); err != nil {
		return 0, amferrors.NewAMFError("decode.number.marker.read", err)
	}
	if m[0] != markerNumber {
		return 0, amferrors.NewAMFError("decode.number.marker", errors.Errorf("expected 0x%02x got 0x%02x", markerNumber, m[0]))
	}
	return decodeNumberBody(r)
}

// decodeNumberBody reads the 8 payload bytes after the marker.
func decodeNumberBody(r io.Reader) (float64, error) {
	var num [8]byte
	if _, err := io.ReadFull(r, num[:]); err != nil {
		return 0, amferrors.NewAMFError("decode.number.read", err)
	}
	return math.Float64frombits(binary.BigEndian.Uint64(num[:])), nil
}
