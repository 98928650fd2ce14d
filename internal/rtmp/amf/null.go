package amf

import (
	"io"

	"github.com/pkg/errors"

	amferrors "github.com/zhangwz/rtmp-core/internal/errors"
)

// EncodeNull writes an AMF0 Null (single marker byte 0x05).
func EncodeNull(w io.Writer) error {
	if _, err := w.Write([]byte{markerNull}); err != nil {
		return amferrors.NewAMFError("encode.null.write", err)
	}
	return nil
}

// DecodeNull reads an AMF0 Null from r and returns nil.
func DecodeNull(r io.Reader) (interface{}, error) {
	var m [1]byte
	if _, err := io.ReadFull(r, m[:]); err != nil {
		return nil, amferrors.NewAMFError("decode.null.marker.read", err)
	}
	if m[0] != markerNull {
		return nil, amferrors.NewAMFError("decode.null.marker", errors.Errorf("expected 0x%02x got 0x%02x", markerNull, m[0]))
	}
	return nil, nil
}

// EncodeUndefined writes an AMF0 Undefined (single marker byte 0x06).
func EncodeUndefined(w io.Writer) error {
	if _, err := w.Write([]byte{markerUndefined}); err != nil {
		return amferrors.NewAMFError("encode.undefined.write", err)
	}
	return nil
}

// DecodeUndefined reads an AMF0 Undefined from r.
func DecodeUndefined(r io.Reader) (Undefined, error) {
	var m [1]byte
	if _, err := io.ReadFull(r, m[:]); err != nil {
		return Undefined{}, amferrors.NewAMFError("decode.undefined.marker.read", err)
	}
	if m[0] != markerUndefined {
		return Undefined{}, amferrors.NewAMFError("decode.undefined.marker", errors.Errorf("expected 0x%02x got 0x%02x", markerUndefined, m[0]))
	}
	return Undefined{}, nil
}
