package amf

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStrictArrayWireFormat(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeStrictArray(&buf, []interface{}{1.0}))
	// marker + count 1 + number 1.0
	want := append([]byte{0x0A, 0x00, 0x00, 0x00, 0x01}, 0x00, 0x3F, 0xF0, 0, 0, 0, 0, 0, 0)
	assert.Equal(t, want, buf.Bytes())
}

func TestStrictArrayRoundTrip(t *testing.T) {
	cases := [][]interface{}{
		{},
		{1.0, 2.0, 3.0},
		{"a", true, nil, map[string]interface{}{"k": "v"}},
		{[]interface{}{[]interface{}{1.0}}},
	}
	for _, vals := range cases {
		var buf bytes.Buffer
		require.NoError(t, EncodeStrictArray(&buf, vals))
		got, err := DecodeStrictArray(bytes.NewReader(buf.Bytes()))
		require.NoError(t, err)
		if len(vals) == 0 {
			assert.Empty(t, got)
		} else {
			assert.Equal(t, vals, got)
		}
	}
}

func TestStrictArrayTruncated(t *testing.T) {
	// Declares 2 elements, carries 1.
	var buf bytes.Buffer
	require.NoError(t, EncodeStrictArray(&buf, []interface{}{1.0}))
	raw := buf.Bytes()
	raw[4] = 2
	_, err := DecodeStrictArray(bytes.NewReader(raw))
	require.Error(t, err)
}
