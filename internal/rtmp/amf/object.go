package amf

import (
	"encoding/binary"
	"io"
	"sort"

	"github.com/pkg/errors"

	amferrors "github.com/zhangwz/rtmp-core/internal/errors"
)

// EncodeObject encodes an AMF0 Object (map[string]interface{}).
// Wire format:
//
//	0x03 | repeated { 2-byte key length | UTF-8 key bytes | AMF0 value } | 0x00 0x00 0x09
//
// Keys are emitted in lexicographic order for deterministic output.
func EncodeObject(w io.Writer, m map[string]interface{}) error {
	if _, err := w.Write([]byte{markerObject}); err != nil {
		return amferrors.NewAMFError("encode.object.marker.write", err)
	}
	if err := encodeObjectBody(w, m); err != nil {
		return err
	}
	return nil
}

// EncodeTypedObject encodes an AMF0 Typed Object (marker 0x10 + class name as
// a raw short string + object body).
func EncodeTypedObject(w io.Writer, v TypedObject) error {
	if _, err := w.Write([]byte{markerTypedObject}); err != nil {
		return amferrors.NewAMFError("encode.typedobject.marker.write", err)
	}
	if err := writeKey(w, v.ClassName); err != nil {
		return amferrors.NewAMFError("encode.typedobject.class", err)
	}
	return encodeObjectBody(w, v.Object)
}

// EncodeECMAArray encodes an AMF0 ECMA Array (marker 0x08 + u32 count hint +
// object-style body). The count is the number of associative entries.
func EncodeECMAArray(w io.Writer, m ECMAArray) error {
	var hdr [5]byte
	hdr[0] = markerECMAArray
	binary.BigEndian.PutUint32(hdr[1:], uint32(len(m)))
	if _, err := w.Write(hdr[:]); err != nil {
		return amferrors.NewAMFError("encode.ecma.header.write", err)
	}
	return encodeObjectBody(w, m)
}

// encodeObjectBody writes key/value pairs followed by the end sentinel. It is
// shared by Object, Typed Object and ECMA Array encoders.
func encodeObjectBody(w io.Writer, m map[string]interface{}) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := writeKey(w, k); err != nil {
			return amferrors.NewAMFError("encode.object.key", errors.Wrapf(err, "key %q", k))
		}
		if err := encodeAny(w, m[k]); err != nil {
			return amferrors.NewAMFError("encode.object.value", errors.Wrapf(err, "key %q", k))
		}
	}
	// Object end marker: empty key (0x00 0x00) + 0x09.
	if _, err := w.Write([]byte{0x00, 0x00, markerObjectEnd}); err != nil {
		return amferrors.NewAMFError("encode.object.end.write", err)
	}
	return nil
}

// writeKey emits a u16-length-prefixed UTF-8 key (no value marker).
func writeKey(w io.Writer, k string) error {
	if len(k) > shortStringMax {
		return errors.Errorf("key length %d exceeds 65535", len(k))
	}
	var hdr [2]byte
	binary.BigEndian.PutUint16(hdr[:], uint16(len(k)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if len(k) > 0 {
		if _, err := io.WriteString(w, k); err != nil {
			return err
		}
	}
	return nil
}

// DecodeObject decodes an AMF0 Object into a map[string]interface{} using a
// one-shot Decoder (fresh reference table). It expects marker 0x03 at the
// current reader position.
func DecodeObject(r io.Reader) (map[string]interface{}, error) {
	d := NewDecoder(r)
	var m [1]byte
	if _, err := io.ReadFull(r, m[:]); err != nil {
		return nil, amferrors.NewAMFError("decode.object.marker.read", err)
	}
	if m[0] != markerObject {
		return nil, amferrors.NewAMFError("decode.object.marker", errors.Errorf("expected 0x%02x got 0x%02x", markerObject, m[0]))
	}
	return d.decodeObjectBody()
}

// decodeObjectBody reads key/value pairs until the end sentinel. The result
// map is registered in the reference table before population so a Reference
// marker inside the body can resolve to the containing object.
func (d *Decoder) decodeObjectBody() (map[string]interface{}, error) {
	out := make(map[string]interface{})
	d.addReference(out)
	if err := d.decodePairsInto(out); err != nil {
		return nil, err
	}
	return out, nil
}

// decodeTypedObjectBody reads class name + object body (marker 0x10).
func (d *Decoder) decodeTypedObjectBody() (TypedObject, error) {
	className, err := decodeShortStringBody(d.r)
	if err != nil {
		return TypedObject{}, amferrors.NewAMFError("decode.typedobject.class", err)
	}
	obj := make(map[string]interface{})
	to := TypedObject{ClassName: className, Object: obj}
	idx := d.addReference(to)
	if err := d.decodePairsInto(obj); err != nil {
		return TypedObject{}, err
	}
	d.setReference(idx, to)
	return to, nil
}

// decodeECMAArrayBody reads the u32 count hint then an object-style body. The
// count is a hint only; the sentinel terminates the body.
func (d *Decoder) decodeECMAArrayBody() (ECMAArray, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(d.r, hdr[:]); err != nil {
		return nil, amferrors.NewAMFError("decode.ecma.count.read", err)
	}
	out := make(ECMAArray)
	d.addReference(out)
	if err := d.decodePairsInto(out); err != nil {
		return nil, err
	}
	return out, nil
}

// decodeReferenceBody resolves a u16 index into the complex-value table.
func (d *Decoder) decodeReferenceBody() (interface{}, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(d.r, hdr[:]); err != nil {
		return nil, amferrors.NewAMFError("decode.reference.read", err)
	}
	idx := int(binary.BigEndian.Uint16(hdr[:]))
	if idx >= len(d.refs) {
		return nil, amferrors.NewAMFError("decode.reference.range", errors.Errorf("reference index %d out of range (table size %d)", idx, len(d.refs)))
	}
	return d.refs[idx], nil
}

// decodePairsInto reads key/value pairs into dst until the empty-key + 0x09
// sentinel.
func (d *Decoder) decodePairsInto(dst map[string]interface{}) error {
	for {
		key, err := decodeShortStringBody(d.r)
		if err != nil {
			return amferrors.NewAMFError("decode.object.key", err)
		}
		if key == "" {
			var end [1]byte
			if _, err := io.ReadFull(d.r, end[:]); err != nil {
				return amferrors.NewAMFError("decode.object.end.read", err)
			}
			if end[0] != markerObjectEnd {
				return amferrors.NewAMFError("decode.object.end.marker", errors.Errorf("expected 0x%02x got 0x%02x", markerObjectEnd, end[0]))
			}
			return nil
		}
		var marker [1]byte
		if _, err := io.ReadFull(d.r, marker[:]); err != nil {
			return amferrors.NewAMFError("decode.object.value.marker.read", err)
		}
		val, err := d.decodeWithMarker(marker[0])
		if err != nil {
			return amferrors.NewAMFError("decode.object.value", errors.Wrapf(err, "key %q", key))
		}
		dst[key] = val
	}
}
