package amf

// Go-side value model shared by the AMF0 and AMF3 codecs. Scalars map onto
// native Go types (float64, bool, string, nil, map[string]interface{},
// []interface{}); the types below cover AMF values that have no natural
// native representation. Decoded values contain no reference markers: the
// codecs resolve references against decode-local tables, so results can be
// freely compared and hashed.

// Undefined is the AMF "undefined" value (AMF0 marker 0x06, AMF3 0x00).
type Undefined struct{}

// ECMAArray is an AMF0 ECMA (associative) array. The wire count is a hint
// only; the body is key/value pairs terminated like an object.
type ECMAArray map[string]interface{}

// TypedObject is an AMF0 typed object (marker 0x10) or an AMF3 object whose
// traits carry a class name.
type TypedObject struct {
	ClassName string
	Object    map[string]interface{}
}

// Date is an AMF date: milliseconds since the Unix epoch. The AMF0 wire
// format carries a time-zone field which is ignored on decode and written as
// zero on encode.
type Date struct {
	Millis float64
}

// XMLDocument is an AMF XML document string (AMF0 marker 0x0F, AMF3 0x07/0x0B).
type XMLDocument string

// ByteArray is an AMF3 byte array (marker 0x0C). It has no AMF0 form; the
// AMF0 encoder wraps it behind the avmplus switch marker.
type ByteArray []byte

// Array is an AMF3 array carrying both a dense (ordered) portion and an
// associative portion. Decode returns a plain []interface{} when the
// associative portion is empty.
type Array struct {
	Dense []interface{}
	Assoc map[string]interface{}
}
