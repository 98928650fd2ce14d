package amf

// Generic AMF0 encoder/decoder entry points.
//
// The generic encoder dispatches on Go value types. The generic decoder reads
// the leading marker byte and dispatches to the appropriate type-specific
// decoder, resolving references against a decode-call-scoped table of complex
// values. A decode of one buffer yields an ordered sequence of top-level
// values (a typical RTMP command carries command name, transaction id,
// command object, then zero or more additional values).
//
// Supported markers: 0x00 Number, 0x01 Boolean, 0x02 String, 0x03 Object,
// 0x05 Null, 0x06 Undefined, 0x07 Reference, 0x08 ECMA Array, 0x0A Strict
// Array, 0x0B Date, 0x0C Long String, 0x0F XML Document, 0x10 Typed Object,
// 0x11 switch-to-AMF3. Movieclip (0x04), Unsupported (0x0D) and RecordSet
// (0x0E) are rejected.

import (
	"bytes"
	"io"

	"github.com/pkg/errors"

	amferrors "github.com/zhangwz/rtmp-core/internal/errors"
)

// AMF0 type markers.
const (
	markerNumber      = 0x00
	markerBoolean     = 0x01
	markerString      = 0x02
	markerObject      = 0x03
	markerMovieclip   = 0x04
	markerNull        = 0x05
	markerUndefined   = 0x06
	markerReference   = 0x07
	markerECMAArray   = 0x08
	markerObjectEnd   = 0x09 // after 0x00 0x00 key length sentinel
	markerStrictArray = 0x0A
	markerDate        = 0x0B
	markerLongString  = 0x0C
	markerUnsupported = 0x0D
	markerRecordSet   = 0x0E
	markerXMLDocument = 0x0F
	markerTypedObject = 0x10
	markerAVMPlus     = 0x11
)

// maxDecodeDepth bounds nesting of complex values so hostile payloads cannot
// recurse the decoder off the stack.
const maxDecodeDepth = 32

// Decoder decodes a sequence of AMF0 values from a reader. The reference
// table is scoped to the Decoder, i.e. to one decode call chain.
type Decoder struct {
	r     io.Reader
	refs  []interface{} // complex values in decode order (reference targets)
	depth int
}

// NewDecoder creates a Decoder reading AMF0 values from r.
func NewDecoder(r io.Reader) *Decoder { return &Decoder{r: r} }

// Decode reads one AMF0 value.
func (d *Decoder) Decode() (interface{}, error) {
	var marker [1]byte
	if _, err := io.ReadFull(d.r, marker[:]); err != nil {
		return nil, amferrors.NewAMFError("decode.value.marker.read", err)
	}
	v, err := d.decodeWithMarker(marker[0])
	if err != nil {
		return nil, amferrors.NewAMFError("decode.value", err)
	}
	return v, nil
}

// decodeWithMarker dispatches on an already-consumed marker byte.
func (d *Decoder) decodeWithMarker(marker byte) (interface{}, error) {
	if d.depth >= maxDecodeDepth {
		return nil, errors.Errorf("nesting exceeds depth limit %d", maxDecodeDepth)
	}
	d.depth++
	defer func() { d.depth-- }()

	switch marker {
	case markerNumber:
		return decodeNumberBody(d.r)
	case markerBoolean:
		return decodeBooleanBody(d.r)
	case markerString:
		return decodeShortStringBody(d.r)
	case markerObject:
		return d.decodeObjectBody()
	case markerNull:
		return nil, nil
	case markerUndefined:
		return Undefined{}, nil
	case markerReference:
		return d.decodeReferenceBody()
	case markerECMAArray:
		return d.decodeECMAArrayBody()
	case markerStrictArray:
		return d.decodeStrictArrayBody()
	case markerDate:
		return decodeDateBody(d.r)
	case markerLongString:
		return decodeLongStringBody(d.r)
	case markerXMLDocument:
		s, err := decodeLongStringBody(d.r)
		if err != nil {
			return nil, err
		}
		return XMLDocument(s), nil
	case markerTypedObject:
		return d.decodeTypedObjectBody()
	case markerAVMPlus:
		// Switch to AMF3 for exactly one value; AMF3 tables are scoped to it.
		return NewAMF3Decoder(d.r).Decode()
	default:
		return nil, errors.Errorf("unsupported marker 0x%02x", marker)
	}
}

// addReference registers a complex value in the reference table and returns
// its index so container decoders can fix up the entry once fully built.
func (d *Decoder) addReference(v interface{}) int {
	d.refs = append(d.refs, v)
	return len(d.refs) - 1
}

// setReference replaces the table entry at idx with the completed value.
func (d *Decoder) setReference(idx int, v interface{}) {
	d.refs[idx] = v
}

// EncodeValue encodes a single AMF0 value to w using dynamic dispatch based
// on the Go type. Supported Go types:
//
//	nil -> Null (0x05)
//	Undefined -> Undefined (0x06)
//	float64, float32, int, int32, int64, uint32 -> Number (0x00)
//	bool -> Boolean (0x01)
//	string -> String (0x02) or Long String (0x0C) above 65535 bytes
//	XMLDocument -> XML Document (0x0F)
//	Date -> Date (0x0B)
//	map[string]interface{} -> Object (0x03)
//	ECMAArray -> ECMA Array (0x08)
//	[]interface{} -> Strict Array (0x0A)
//	TypedObject -> Typed Object (0x10)
//	ByteArray, *Array -> avmplus switch (0x11) + AMF3 encoding
//
// Any other type results in *errors.AMFError.
func EncodeValue(w io.Writer, v interface{}) error {
	if err := encodeAny(w, v); err != nil {
		return amferrors.NewAMFError("encode.value", err)
	}
	return nil
}

// EncodeAll encodes a sequence of AMF0 values in order and returns the bytes.
// This is how RTMP command payloads are built (e.g. ["connect", 1, {...}]).
func EncodeAll(values ...interface{}) ([]byte, error) {
	var buf bytes.Buffer
	for i, v := range values {
		if err := EncodeValue(&buf, v); err != nil {
			return nil, errors.Wrapf(err, "value %d", i)
		}
	}
	return buf.Bytes(), nil
}

// DecodeValue decodes a single AMF0 value from r with a fresh reference table.
func DecodeValue(r io.Reader) (interface{}, error) {
	return NewDecoder(r).Decode()
}

// DecodeAll decodes a concatenated sequence of AMF0 values from data until
// exhaustion. All values share one reference table, matching the scope of an
// RTMP command payload.
func DecodeAll(data []byte) ([]interface{}, error) {
	r := bytes.NewReader(data)
	d := NewDecoder(r)
	var out []interface{}
	for r.Len() > 0 {
		v, err := d.Decode()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Marshal encodes a single value and returns the produced bytes.
func Marshal(v interface{}) ([]byte, error) { return EncodeAll(v) }

// Unmarshal decodes a single AMF0 value from data. Extra trailing bytes are
// ignored (mirroring common JSON-like unmarshal semantics).
func Unmarshal(data []byte) (interface{}, error) {
	return DecodeValue(bytes.NewReader(data))
}

// encodeAny is the internal dispatcher shared by the top-level encoder and
// the container encoders (object values, array elements).
func encodeAny(w io.Writer, v interface{}) error {
	switch vv := v.(type) {
	case nil:
		return EncodeNull(w)
	case Undefined:
		return EncodeUndefined(w)
	case float64:
		return EncodeNumber(w, vv)
	case float32:
		return EncodeNumber(w, float64(vv))
	case int:
		return EncodeNumber(w, float64(vv))
	case int32:
		return EncodeNumber(w, float64(vv))
	case int64:
		return EncodeNumber(w, float64(vv))
	case uint32:
		return EncodeNumber(w, float64(vv))
	case bool:
		return EncodeBoolean(w, vv)
	case string:
		return EncodeString(w, vv)
	case XMLDocument:
		return EncodeXMLDocument(w, vv)
	case Date:
		return EncodeDate(w, vv)
	case map[string]interface{}:
		return EncodeObject(w, vv)
	case ECMAArray:
		return EncodeECMAArray(w, vv)
	case []interface{}:
		return EncodeStrictArray(w, vv)
	case TypedObject:
		return EncodeTypedObject(w, vv)
	case *TypedObject:
		if vv == nil {
			return EncodeNull(w)
		}
		return EncodeTypedObject(w, *vv)
	case ByteArray, *Array:
		// No AMF0 form: wrap behind the avmplus switch marker.
		if _, err := w.Write([]byte{markerAVMPlus}); err != nil {
			return errors.Wrap(err, "avmplus marker")
		}
		return encodeAMF3Any(w, v)
	default:
		return errors.Errorf("unsupported AMF0 value type %T", v)
	}
}
