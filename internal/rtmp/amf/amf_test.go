package amf

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeAllConnectCommandShape(t *testing.T) {
	payload, err := EncodeAll("connect", 1.0, map[string]interface{}{
		"app":   "live",
		"tcUrl": "rtmp://h/live",
	})
	require.NoError(t, err)

	vals, err := DecodeAll(payload)
	require.NoError(t, err)
	require.Len(t, vals, 3)
	assert.Equal(t, "connect", vals[0])
	assert.Equal(t, 1.0, vals[1])
	obj, ok := vals[2].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "live", obj["app"])
}

func TestDecodeAllStopsAtExhaustion(t *testing.T) {
	data, err := EncodeAll("a", 1.0, true, nil)
	require.NoError(t, err)
	vals, err := DecodeAll(data)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"a", 1.0, true, nil}, vals)
}

func TestDecodeRejectsReservedMarkers(t *testing.T) {
	for _, m := range []byte{markerMovieclip, markerUnsupported, markerRecordSet, 0x12, 0xFF} {
		_, err := DecodeValue(bytes.NewReader([]byte{m}))
		require.Errorf(t, err, "marker 0x%02x must be rejected", m)
	}
}

func TestDecodeEmptyBufferErrors(t *testing.T) {
	_, err := DecodeValue(bytes.NewReader(nil))
	require.Error(t, err)
}

func TestEncodeNumericKindsNormalizeToNumber(t *testing.T) {
	data, err := EncodeAll(int(3), int32(4), int64(5), uint32(6), float32(7))
	require.NoError(t, err)
	vals, err := DecodeAll(data)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{3.0, 4.0, 5.0, 6.0, 7.0}, vals)
}

func TestEncodeUnsupportedTypeErrors(t *testing.T) {
	_, err := EncodeAll(struct{ X int }{1})
	require.Error(t, err)
}

func TestUnmarshalIgnoresTrailingBytes(t *testing.T) {
	data, err := EncodeAll("first", "second")
	require.NoError(t, err)
	v, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, "first", v)
}

func TestAVMPlusSwitchCarriesByteArray(t *testing.T) {
	ba := ByteArray{0xDE, 0xAD, 0xBE, 0xEF}
	data, err := EncodeAll(ba)
	require.NoError(t, err)
	require.Equal(t, byte(markerAVMPlus), data[0])

	vals, err := DecodeAll(data)
	require.NoError(t, err)
	require.Len(t, vals, 1)
	assert.Equal(t, ba, vals[0])
}

func TestDeepNestingBounded(t *testing.T) {
	// Build nesting beyond the depth limit: strict arrays of one element.
	var buf bytes.Buffer
	for i := 0; i < maxDecodeDepth+4; i++ {
		buf.Write([]byte{markerStrictArray, 0x00, 0x00, 0x00, 0x01})
	}
	buf.Write([]byte{markerNull})
	_, err := DecodeValue(bytes.NewReader(buf.Bytes()))
	require.Error(t, err)
}
