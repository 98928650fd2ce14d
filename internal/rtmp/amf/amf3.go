package amf

// AMF3 codec.
//
// AMF3 values begin with a one-byte marker; lengths, counts and trait
// descriptors are U29 variable-length integers (1-4 bytes, 29 significant
// bits). Three reference tables are scoped to a single decode call: the
// string table, the complex-object table and the trait (class descriptor)
// table. The low bit of a U29 header distinguishes a literal (1) from a
// reference index (0); literal headers carry the payload length or trait
// descriptor in the remaining bits.
//
// The encoder always emits literals; references are resolved during decode
// and never surfaced in results.

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"sort"
	"unicode/utf8"

	"github.com/pkg/errors"

	amferrors "github.com/zhangwz/rtmp-core/internal/errors"
)

// sortedKeys returns map keys in lexicographic order for deterministic
// encoder output.
func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// AMF3 type markers.
const (
	amf3MarkerUndefined = 0x00
	amf3MarkerNull      = 0x01
	amf3MarkerFalse     = 0x02
	amf3MarkerTrue      = 0x03
	amf3MarkerInteger   = 0x04
	amf3MarkerDouble    = 0x05
	amf3MarkerString    = 0x06
	amf3MarkerXMLDoc    = 0x07
	amf3MarkerDate      = 0x08
	amf3MarkerArray     = 0x09
	amf3MarkerObject    = 0x0A
	amf3MarkerXML       = 0x0B
	amf3MarkerByteArray = 0x0C
)

const (
	u29Max = 0x1FFFFFFF // 29 bits
	// Integers at or above 2^28 reinterpret as negative signed 29-bit values.
	amf3IntSignBoundary = 1 << 28
	amf3IntRange        = 1 << 29
)

// trait is a decoded AMF3 class descriptor.
type trait struct {
	className string
	sealed    []string
	dynamic   bool
}

// AMF3Decoder decodes AMF3 values from a reader. All three reference tables
// live on the decoder, i.e. are scoped to one decode call chain.
type AMF3Decoder struct {
	r         io.Reader
	strings   []string
	complexes []interface{}
	traits    []*trait
	depth     int
}

// NewAMF3Decoder creates a decoder with empty reference tables.
func NewAMF3Decoder(r io.Reader) *AMF3Decoder { return &AMF3Decoder{r: r} }

// Decode reads one AMF3 value.
func (d *AMF3Decoder) Decode() (interface{}, error) {
	v, err := d.decodeValue()
	if err != nil {
		return nil, amferrors.NewAMFError("amf3.decode", err)
	}
	return v, nil
}

// DecodeAMF3All decodes a concatenated sequence of AMF3 values sharing one
// set of reference tables.
func DecodeAMF3All(data []byte) ([]interface{}, error) {
	r := bytes.NewReader(data)
	d := NewAMF3Decoder(r)
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

func (d *AMF3Decoder) decodeValue() (interface{}, error) {
	if d.depth >= maxDecodeDepth {
		return nil, errors.Errorf("nesting exceeds depth limit %d", maxDecodeDepth)
	}
	d.depth++
	defer func() { d.depth-- }()

	var m [1]byte
	if _, err := io.ReadFull(d.r, m[:]); err != nil {
		return nil, errors.Wrap(err, "marker")
	}
	switch m[0] {
	case amf3MarkerUndefined:
		return Undefined{}, nil
	case amf3MarkerNull:
		return nil, nil
	case amf3MarkerFalse:
		return false, nil
	case amf3MarkerTrue:
		return true, nil
	case amf3MarkerInteger:
		u, err := readU29(d.r)
		if err != nil {
			return nil, err
		}
		v := int32(u)
		if u >= amf3IntSignBoundary {
			v = int32(int64(u) - amf3IntRange)
		}
		return v, nil
	case amf3MarkerDouble:
		var b [8]byte
		if _, err := io.ReadFull(d.r, b[:]); err != nil {
			return nil, errors.Wrap(err, "double")
		}
		return math.Float64frombits(binary.BigEndian.Uint64(b[:])), nil
	case amf3MarkerString:
		return d.readString()
	case amf3MarkerXMLDoc, amf3MarkerXML:
		return d.readXML()
	case amf3MarkerDate:
		return d.readDate()
	case amf3MarkerArray:
		return d.readArray()
	case amf3MarkerObject:
		return d.readObject()
	case amf3MarkerByteArray:
		return d.readByteArray()
	default:
		return nil, errors.Errorf("unsupported AMF3 marker 0x%02x", m[0])
	}
}

// readU29 reads a U29 variable-length unsigned integer: 7 bits per byte for
// the first three bytes, 8 bits for the fourth, high bit signalling
// continuation.
func readU29(r io.Reader) (uint32, error) {
	var v uint32
	var b [1]byte
	for i := 0; i < 4; i++ {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, errors.Wrap(err, "u29")
		}
		if i == 3 {
			return v<<8 | uint32(b[0]), nil
		}
		v = v<<7 | uint32(b[0]&0x7F)
		if b[0]&0x80 == 0 {
			return v, nil
		}
	}
	return v, nil
}

// writeU29 writes a U29. Values above 29 bits are an error.
func writeU29(w io.Writer, v uint32) error {
	if v > u29Max {
		return errors.Errorf("value %d exceeds 29 bits", v)
	}
	switch {
	case v < 0x80:
		_, err := w.Write([]byte{byte(v)})
		return err
	case v < 0x4000:
		_, err := w.Write([]byte{byte(v>>7) | 0x80, byte(v & 0x7F)})
		return err
	case v < 0x200000:
		_, err := w.Write([]byte{byte(v>>14) | 0x80, byte(v>>7) | 0x80, byte(v & 0x7F)})
		return err
	default:
		_, err := w.Write([]byte{byte(v>>22) | 0x80, byte(v>>15) | 0x80, byte(v>>8) | 0x80, byte(v)})
		return err
	}
}

// readHeader reads a U29 header and splits it into (isLiteral, remaining bits).
func (d *AMF3Decoder) readHeader() (bool, uint32, error) {
	u, err := readU29(d.r)
	if err != nil {
		return false, 0, err
	}
	return u&0x01 == 1, u >> 1, nil
}

// readString reads a U29S: literal (length) or string table reference.
// Non-empty literals are appended to the string table.
func (d *AMF3Decoder) readString() (string, error) {
	literal, rest, err := d.readHeader()
	if err != nil {
		return "", err
	}
	if !literal {
		if int(rest) >= len(d.strings) {
			return "", errors.Errorf("string reference %d out of range (table size %d)", rest, len(d.strings))
		}
		return d.strings[rest], nil
	}
	if rest == 0 {
		return "", nil
	}
	b := make([]byte, rest)
	if _, err := io.ReadFull(d.r, b); err != nil {
		return "", errors.Wrap(err, "string bytes")
	}
	if !utf8.Valid(b) {
		return "", errors.Errorf("invalid UTF-8 in %d byte string", rest)
	}
	s := string(b)
	d.strings = append(d.strings, s)
	return s, nil
}

func (d *AMF3Decoder) readXML() (XMLDocument, error) {
	literal, rest, err := d.readHeader()
	if err != nil {
		return "", err
	}
	if !literal {
		v, err := d.complexRef(rest)
		if err != nil {
			return "", err
		}
		x, ok := v.(XMLDocument)
		if !ok {
			return "", errors.Errorf("complex reference %d is %T, want XMLDocument", rest, v)
		}
		return x, nil
	}
	b := make([]byte, rest)
	if _, err := io.ReadFull(d.r, b); err != nil {
		return "", errors.Wrap(err, "xml bytes")
	}
	if !utf8.Valid(b) {
		return "", errors.Errorf("invalid UTF-8 in %d byte xml", rest)
	}
	x := XMLDocument(b)
	d.complexes = append(d.complexes, x)
	return x, nil
}

func (d *AMF3Decoder) readDate() (Date, error) {
	literal, rest, err := d.readHeader()
	if err != nil {
		return Date{}, err
	}
	if !literal {
		v, err := d.complexRef(rest)
		if err != nil {
			return Date{}, err
		}
		dt, ok := v.(Date)
		if !ok {
			return Date{}, errors.Errorf("complex reference %d is %T, want Date", rest, v)
		}
		return dt, nil
	}
	var b [8]byte
	if _, err := io.ReadFull(d.r, b[:]); err != nil {
		return Date{}, errors.Wrap(err, "date")
	}
	dt := Date{Millis: math.Float64frombits(binary.BigEndian.Uint64(b[:]))}
	d.complexes = append(d.complexes, dt)
	return dt, nil
}

func (d *AMF3Decoder) readByteArray() (ByteArray, error) {
	literal, rest, err := d.readHeader()
	if err != nil {
		return nil, err
	}
	if !literal {
		v, err := d.complexRef(rest)
		if err != nil {
			return nil, err
		}
		ba, ok := v.(ByteArray)
		if !ok {
			return nil, errors.Errorf("complex reference %d is %T, want ByteArray", rest, v)
		}
		return ba, nil
	}
	b := make(ByteArray, rest)
	if _, err := io.ReadFull(d.r, b); err != nil {
		return nil, errors.Wrap(err, "bytearray")
	}
	d.complexes = append(d.complexes, b)
	return b, nil
}

// readArray reads an AMF3 array: associative key/value pairs terminated by an
// empty key, then the dense portion. Arrays with an empty associative part
// decode to a plain []interface{}.
func (d *AMF3Decoder) readArray() (interface{}, error) {
	literal, denseCount, err := d.readHeader()
	if err != nil {
		return nil, err
	}
	if !literal {
		return d.complexRef(denseCount)
	}
	idx := len(d.complexes)
	d.complexes = append(d.complexes, nil) // reserve slot; fixed up below

	assoc := make(map[string]interface{})
	for {
		key, err := d.readString()
		if err != nil {
			return nil, errors.Wrap(err, "array key")
		}
		if key == "" {
			break
		}
		v, err := d.decodeValue()
		if err != nil {
			return nil, errors.Wrapf(err, "array key %q", key)
		}
		assoc[key] = v
	}
	dense := make([]interface{}, 0, minUint32(denseCount, 1024))
	for i := uint32(0); i < denseCount; i++ {
		v, err := d.decodeValue()
		if err != nil {
			return nil, errors.Wrapf(err, "array index %d", i)
		}
		dense = append(dense, v)
	}
	var out interface{}
	if len(assoc) == 0 {
		out = dense
	} else {
		out = &Array{Dense: dense, Assoc: assoc}
	}
	d.complexes[idx] = out
	return out, nil
}

// readObject reads an AMF3 object. The U29O header encodes, from the low
// bit up: literal/ref, trait-literal/trait-ref, externalizable, dynamic,
// then the sealed member count.
func (d *AMF3Decoder) readObject() (interface{}, error) {
	u, err := readU29(d.r)
	if err != nil {
		return nil, err
	}
	if u&0x01 == 0 {
		return d.complexRef(u >> 1)
	}
	var tr *trait
	if u&0x02 == 0 {
		// Trait reference.
		idx := u >> 2
		if int(idx) >= len(d.traits) {
			return nil, errors.Errorf("trait reference %d out of range (table size %d)", idx, len(d.traits))
		}
		tr = d.traits[idx]
	} else {
		if u&0x04 != 0 {
			return nil, errors.New("externalizable objects are not supported")
		}
		className, err := d.readString()
		if err != nil {
			return nil, errors.Wrap(err, "trait class name")
		}
		tr = &trait{className: className, dynamic: u&0x08 != 0}
		sealedCount := u >> 4
		for i := uint32(0); i < sealedCount; i++ {
			name, err := d.readString()
			if err != nil {
				return nil, errors.Wrapf(err, "trait member %d", i)
			}
			tr.sealed = append(tr.sealed, name)
		}
		d.traits = append(d.traits, tr)
	}

	obj := make(map[string]interface{})
	idx := len(d.complexes)
	var out interface{}
	if tr.className != "" {
		out = TypedObject{ClassName: tr.className, Object: obj}
	} else {
		out = obj
	}
	d.complexes = append(d.complexes, out)

	for _, name := range tr.sealed {
		v, err := d.decodeValue()
		if err != nil {
			return nil, errors.Wrapf(err, "sealed member %q", name)
		}
		obj[name] = v
	}
	if tr.dynamic {
		for {
			key, err := d.readString()
			if err != nil {
				return nil, errors.Wrap(err, "dynamic key")
			}
			if key == "" {
				break
			}
			v, err := d.decodeValue()
			if err != nil {
				return nil, errors.Wrapf(err, "dynamic member %q", key)
			}
			obj[key] = v
		}
	}
	d.complexes[idx] = out
	return out, nil
}

func (d *AMF3Decoder) complexRef(idx uint32) (interface{}, error) {
	if int(idx) >= len(d.complexes) {
		return nil, errors.Errorf("complex reference %d out of range (table size %d)", idx, len(d.complexes))
	}
	return d.complexes[idx], nil
}

// EncodeAMF3Value encodes a single value in AMF3. The encoder emits literals
// only (no reference compression).
func EncodeAMF3Value(w io.Writer, v interface{}) error {
	if err := encodeAMF3Any(w, v); err != nil {
		return amferrors.NewAMFError("amf3.encode", err)
	}
	return nil
}

// EncodeAMF3All encodes a sequence of AMF3 values and returns the bytes.
func EncodeAMF3All(values ...interface{}) ([]byte, error) {
	var buf bytes.Buffer
	for i, v := range values {
		if err := EncodeAMF3Value(&buf, v); err != nil {
			return nil, errors.Wrapf(err, "value %d", i)
		}
	}
	return buf.Bytes(), nil
}

func encodeAMF3Any(w io.Writer, v interface{}) error {
	switch vv := v.(type) {
	case nil:
		return writeMarker(w, amf3MarkerNull)
	case Undefined:
		return writeMarker(w, amf3MarkerUndefined)
	case bool:
		if vv {
			return writeMarker(w, amf3MarkerTrue)
		}
		return writeMarker(w, amf3MarkerFalse)
	case int32:
		return encodeAMF3Integer(w, int64(vv))
	case int:
		return encodeAMF3Integer(w, int64(vv))
	case int64:
		return encodeAMF3Integer(w, vv)
	case float64:
		return encodeAMF3Double(w, vv)
	case float32:
		return encodeAMF3Double(w, float64(vv))
	case string:
		if err := writeMarker(w, amf3MarkerString); err != nil {
			return err
		}
		return writeAMF3String(w, vv)
	case XMLDocument:
		if err := writeMarker(w, amf3MarkerXMLDoc); err != nil {
			return err
		}
		return writeAMF3String(w, string(vv))
	case Date:
		if err := writeMarker(w, amf3MarkerDate); err != nil {
			return err
		}
		if err := writeU29(w, 0x01); err != nil {
			return err
		}
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], math.Float64bits(vv.Millis))
		_, err := w.Write(b[:])
		return err
	case ByteArray:
		if err := writeMarker(w, amf3MarkerByteArray); err != nil {
			return err
		}
		if err := writeU29(w, uint32(len(vv))<<1|0x01); err != nil {
			return err
		}
		_, err := w.Write(vv)
		return err
	case []interface{}:
		return encodeAMF3Array(w, vv, nil)
	case *Array:
		if vv == nil {
			return writeMarker(w, amf3MarkerNull)
		}
		return encodeAMF3Array(w, vv.Dense, vv.Assoc)
	case map[string]interface{}:
		return encodeAMF3Object(w, "", vv)
	case ECMAArray:
		return encodeAMF3Array(w, nil, vv)
	case TypedObject:
		return encodeAMF3Object(w, vv.ClassName, vv.Object)
	case *TypedObject:
		if vv == nil {
			return writeMarker(w, amf3MarkerNull)
		}
		return encodeAMF3Object(w, vv.ClassName, vv.Object)
	default:
		return errors.Errorf("unsupported AMF3 value type %T", v)
	}
}

func writeMarker(w io.Writer, m byte) error {
	_, err := w.Write([]byte{m})
	return err
}

// encodeAMF3Integer emits an Integer when the value fits in signed 29 bits,
// otherwise a Double.
func encodeAMF3Integer(w io.Writer, v int64) error {
	if v < -amf3IntSignBoundary || v >= amf3IntSignBoundary {
		return encodeAMF3Double(w, float64(v))
	}
	if err := writeMarker(w, amf3MarkerInteger); err != nil {
		return err
	}
	u := uint32(v) & u29Max // two's complement folded into 29 bits
	return writeU29(w, u)
}

func encodeAMF3Double(w io.Writer, v float64) error {
	if err := writeMarker(w, amf3MarkerDouble); err != nil {
		return err
	}
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], math.Float64bits(v))
	_, err := w.Write(b[:])
	return err
}

// writeAMF3String writes a U29S literal header and the UTF-8 bytes.
func writeAMF3String(w io.Writer, s string) error {
	if uint64(len(s)) > uint64(u29Max>>1) {
		return errors.Errorf("string length %d exceeds U29 literal range", len(s))
	}
	if err := writeU29(w, uint32(len(s))<<1|0x01); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func encodeAMF3Array(w io.Writer, dense []interface{}, assoc map[string]interface{}) error {
	if err := writeMarker(w, amf3MarkerArray); err != nil {
		return err
	}
	if err := writeU29(w, uint32(len(dense))<<1|0x01); err != nil {
		return err
	}
	keys := sortedKeys(assoc)
	for _, k := range keys {
		if err := writeAMF3String(w, k); err != nil {
			return err
		}
		if err := encodeAMF3Any(w, assoc[k]); err != nil {
			return errors.Wrapf(err, "assoc key %q", k)
		}
	}
	if err := writeAMF3String(w, ""); err != nil {
		return err
	}
	for i, v := range dense {
		if err := encodeAMF3Any(w, v); err != nil {
			return errors.Wrapf(err, "dense index %d", i)
		}
	}
	return nil
}

// encodeAMF3Object emits a dynamic object with literal traits: no sealed
// members, all fields in the dynamic section.
func encodeAMF3Object(w io.Writer, className string, m map[string]interface{}) error {
	if err := writeMarker(w, amf3MarkerObject); err != nil {
		return err
	}
	// U29O: literal object, literal traits, dynamic, zero sealed members.
	if err := writeU29(w, 0x0B); err != nil {
		return err
	}
	if err := writeAMF3String(w, className); err != nil {
		return err
	}
	for _, k := range sortedKeys(m) {
		if err := writeAMF3String(w, k); err != nil {
			return err
		}
		if err := encodeAMF3Any(w, m[k]); err != nil {
			return errors.Wrapf(err, "member %q", k)
		}
	}
	return writeAMF3String(w, "")
}
