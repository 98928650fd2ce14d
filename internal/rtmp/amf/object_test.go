package amf

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectEmptyWireFormat(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeObject(&buf, map[string]interface{}{}))
	assert.Equal(t, []byte{0x03, 0x00, 0x00, 0x09}, buf.Bytes())
}

func TestObjectRoundTrip(t *testing.T) {
	obj := map[string]interface{}{
		"app":      "live",
		"tcUrl":    "rtmp://h/live",
		"audio":    true,
		"videoFn":  1.0,
		"nothing":  nil,
		"nested":   map[string]interface{}{"a": 1.0, "b": "two"},
		"elements": []interface{}{1.0, "x", false},
	}
	var buf bytes.Buffer
	require.NoError(t, EncodeObject(&buf, obj))
	got, err := DecodeObject(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, obj, got)
}

func TestObjectDeterministicKeyOrder(t *testing.T) {
	obj := map[string]interface{}{"b": 1.0, "a": 2.0, "c": 3.0}
	a, err := Marshal(obj)
	require.NoError(t, err)
	b, err := Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestTypedObjectRoundTrip(t *testing.T) {
	to := TypedObject{
		ClassName: "flex.messaging.messages.RemotingMessage",
		Object:    map[string]interface{}{"operation": "status", "ttl": 0.0},
	}
	var buf bytes.Buffer
	require.NoError(t, EncodeTypedObject(&buf, to))
	require.Equal(t, byte(markerTypedObject), buf.Bytes()[0])
	got, err := DecodeValue(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, to, got)
}

func TestECMAArrayRoundTrip(t *testing.T) {
	ea := ECMAArray{"width": 1280.0, "height": 720.0, "codec": "avc1"}
	var buf bytes.Buffer
	require.NoError(t, EncodeECMAArray(&buf, ea))
	require.Equal(t, byte(markerECMAArray), buf.Bytes()[0])
	got, err := DecodeValue(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, ea, got)
}

func TestReferenceResolvesToEarlierObject(t *testing.T) {
	// Hand-build: object {a: 1.0} followed by reference to index 0.
	var buf bytes.Buffer
	require.NoError(t, EncodeObject(&buf, map[string]interface{}{"a": 1.0}))
	buf.Write([]byte{markerReference, 0x00, 0x00})

	vals, err := DecodeAll(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, vals, 2)
	assert.Equal(t, vals[0], vals[1])
}

func TestReferenceIndexOutOfRange(t *testing.T) {
	_, err := DecodeAll([]byte{markerReference, 0x00, 0x05})
	require.Error(t, err)
}

func TestObjectMissingEndMarker(t *testing.T) {
	// Empty key length but wrong terminator byte.
	_, err := DecodeObject(bytes.NewReader([]byte{0x03, 0x00, 0x00, 0x05}))
	require.Error(t, err)
}

func TestObjectTruncatedValue(t *testing.T) {
	// key "a" then number marker with no payload
	_, err := DecodeObject(bytes.NewReader([]byte{0x03, 0x00, 0x01, 'a', 0x00, 0x3F}))
	require.Error(t, err)
}
