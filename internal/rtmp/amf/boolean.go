package amf

import (
	"io"

	"github.com/pkg/errors"

	amferrors "github.com/zhangwz/rtmp-core/internal/errors"
)

// EncodeBoolean writes an AMF0 Boolean (marker 0x01 + single byte, 0x00 false
// / 0x01 true) to the provided writer.
func EncodeBoolean(w io.Writer, v bool) error {
	b := [2]byte{markerBoolean, 0x00}
	if v {
		b[1] = 0x01
	}
	if _, err := w.Write(b[:]); err != nil {
		return amferrors.NewAMFError("encode.boolean.write", err)
	}
	return nil
}

// DecodeBoolean reads an AMF0 Boolean from r. Any non-zero payload byte
// decodes to true, matching the permissive behavior of deployed servers.
func DecodeBoolean(r io.Reader) (bool, error) {
	var m [1]byte
	if _, err := io.ReadFull(r, m[:]); err != nil {
		return false, amferrors.NewAMFError("decode.boolean.marker.read", err)
	}
	if m[0] != markerBoolean {
		return false, amferrors.NewAMFError("decode.boolean.marker", errors.Errorf("expected 0x%02x got 0x%02x", markerBoolean, m[0]))
	}
	return decodeBooleanBody(r)
}

func decodeBooleanBody(r io.Reader) (bool, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return false, amferrors.NewAMFError("decode.boolean.read", err)
	}
	return b[0] != 0x00, nil
}
