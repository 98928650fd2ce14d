package amf

import (
	"encoding/binary"
	"io"
	"unicode/utf8"

	"github.com/pkg/errors"

	amferrors "github.com/zhangwz/rtmp-core/internal/errors"
)

const shortStringMax = 0xFFFF

// EncodeString writes an AMF0 String. Values up to 65535 bytes use the short
// form (marker 0x02 + u16 length); longer values use the Long String form
// (marker 0x0C + u32 length).
func EncodeString(w io.Writer, v string) error {
	if len(v) > shortStringMax {
		return encodeLongString(w, markerLongString, v)
	}
	var hdr [3]byte
	hdr[0] = markerString
	binary.BigEndian.PutUint16(hdr[1:], uint16(len(v)))
	if _, err := w.Write(hdr[:]); err != nil {
		return amferrors.NewAMFError("encode.string.header.write", err)
	}
	if _, err := io.WriteString(w, v); err != nil {
		return amferrors.NewAMFError("encode.string.write", err)
	}
	return nil
}

// EncodeXMLDocument writes an AMF0 XML Document (marker 0x0F + u32 length +
// UTF-8 bytes). The body shares the long-string wire shape.
func EncodeXMLDocument(w io.Writer, v XMLDocument) error {
	return encodeLongString(w, markerXMLDocument, string(v))
}

func encodeLongString(w io.Writer, marker byte, v string) error {
	var hdr [5]byte
	hdr[0] = marker
	binary.BigEndian.PutUint32(hdr[1:], uint32(len(v)))
	if _, err := w.Write(hdr[:]); err != nil {
		return amferrors.NewAMFError("encode.longstring.header.write", err)
	}
	if _, err := io.WriteString(w, v); err != nil {
		return amferrors.NewAMFError("encode.longstring.write", err)
	}
	return nil
}

// DecodeString reads an AMF0 short String (marker 0x02) from r.
func DecodeString(r io.Reader) (string, error) {
	var m [1]byte
	if _, err := io.ReadFull(r, m[:]); err != nil {
		return "", amferrors.NewAMFError("decode.string.marker.read", err)
	}
	if m[0] != markerString {
		return "", amferrors.NewAMFError("decode.string.marker", errors.Errorf("expected 0x%02x got 0x%02x", markerString, m[0]))
	}
	return decodeShortStringBody(r)
}

// decodeShortStringBody reads a u16-length-prefixed UTF-8 string (the body of
// a short String and the wire shape of every AMF0 object key).
func decodeShortStringBody(r io.Reader) (string, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return "", amferrors.NewAMFError("decode.string.length.read", err)
	}
	n := binary.BigEndian.Uint16(hdr[:])
	return readStringBytes(r, int(n))
}

// decodeLongStringBody reads a u32-length-prefixed UTF-8 string (Long String
// and XML Document bodies).
func decodeLongStringBody(r io.Reader) (string, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return "", amferrors.NewAMFError("decode.longstring.length.read", err)
	}
	n := binary.BigEndian.Uint32(hdr[:])
	return readStringBytes(r, int(n))
}

func readStringBytes(r io.Reader, n int) (string, error) {
	if n == 0 {
		return "", nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", amferrors.NewAMFError("decode.string.read", err)
	}
	if !utf8.Valid(b) {
		return "", amferrors.NewAMFError("decode.string.utf8", errors.Errorf("invalid UTF-8 in %d byte string", n))
	}
	return string(b), nil
}
