package chunk

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	protoerr "github.com/zhangwz/rtmp-core/internal/errors"
)

// buildChunkBytes constructs a single fmt-0 single-chunk message.
func buildChunkBytes(t *testing.T, csid, ts uint32, typeID uint8, msid uint32, payload []byte) []byte {
	t.Helper()
	h := &Header{Format: 0, CSID: csid, Timestamp: ts, MessageLength: uint32(len(payload)), MessageTypeID: typeID, MessageStreamID: msid}
	b, err := EncodeHeader(h, nil)
	require.NoError(t, err)
	return append(b, payload...)
}

func setChunkSizeBytes(t *testing.T, size uint32) []byte {
	t.Helper()
	p := make([]byte, 4)
	binary.BigEndian.PutUint32(p, size)
	return buildChunkBytes(t, 2, 0, 1, 0, p)
}

func TestDeframerSingleMessage(t *testing.T) {
	payload := []byte("hello rtmp")
	d := NewDeframer(128)
	msgs, err := d.Feed(buildChunkBytes(t, 5, 1000, 8, 1, payload))
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	m := msgs[0]
	assert.Equal(t, uint32(5), m.CSID)
	assert.Equal(t, uint32(1000), m.Timestamp)
	assert.Equal(t, uint8(8), m.TypeID)
	assert.Equal(t, uint32(1), m.MessageStreamID)
	assert.Equal(t, payload, m.Payload)
	assert.Zero(t, d.Buffered())
}

func TestDeframerIncrementalFeedEveryBoundary(t *testing.T) {
	payload := make([]byte, 300) // forces fmt-3 continuation at size 128
	for i := range payload {
		payload[i] = byte(i)
	}
	var stream bytes.Buffer
	f := NewFramer(&stream, 128)
	require.NoError(t, f.WriteMessage(&Message{CSID: 4, Timestamp: 77, TypeID: 9, MessageStreamID: 1, Payload: payload}))
	wire := stream.Bytes()

	for cut := 0; cut <= len(wire); cut++ {
		d := NewDeframer(128)
		got, err := d.Feed(wire[:cut])
		require.NoError(t, err)
		rest, err := d.Feed(wire[cut:])
		require.NoError(t, err)
		got = append(got, rest...)
		require.Lenf(t, got, 1, "split at %d", cut)
		assert.Equal(t, payload, got[0].Payload)
		assert.Equal(t, uint32(77), got[0].Timestamp)
	}
}

func TestDeframerInterleavedStreams(t *testing.T) {
	// Two 256-byte messages on csid 4 and 6, chunks interleaved.
	mkChunks := func(csid uint32, typeID uint8, payload []byte) [][]byte {
		h := &Header{Format: 0, CSID: csid, Timestamp: 10, MessageLength: uint32(len(payload)), MessageTypeID: typeID, MessageStreamID: 1}
		first, err := EncodeHeader(h, nil)
		require.NoError(t, err)
		cont, err := EncodeHeader(&Header{Format: 3, CSID: csid}, h)
		require.NoError(t, err)
		return [][]byte{
			append(append([]byte(nil), first...), payload[:128]...),
			append(append([]byte(nil), cont...), payload[128:]...),
		}
	}
	audio := make([]byte, 256)
	video := make([]byte, 256)
	for i := range audio {
		audio[i] = 0xAA
		video[i] = 0xBB
	}
	a := mkChunks(4, 8, audio)
	v := mkChunks(6, 9, video)

	var wire []byte
	wire = append(wire, a[0]...)
	wire = append(wire, v[0]...)
	wire = append(wire, a[1]...)
	wire = append(wire, v[1]...)

	d := NewDeframer(128)
	msgs, err := d.Feed(wire)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, uint32(4), msgs[0].CSID)
	assert.Equal(t, audio, msgs[0].Payload)
	assert.Equal(t, uint32(6), msgs[1].CSID)
	assert.Equal(t, video, msgs[1].Payload)
}

func TestDeframerSetChunkSizeApplied(t *testing.T) {
	// Control message switches inbound size to 4096; a 3000-byte message then
	// arrives as a single chunk.
	large := make([]byte, 3000)
	for i := range large {
		large[i] = byte(i * 7)
	}
	wire := append(setChunkSizeBytes(t, 4096), buildChunkBytes(t, 4, 10, 8, 1, large)...)

	d := NewDeframer(128)
	msgs, err := d.Feed(wire)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, uint8(1), msgs[0].TypeID)
	assert.Equal(t, large, msgs[1].Payload)
	assert.Equal(t, uint32(4096), d.ChunkSize())
}

func TestDeframerPendingMessageFinishesAtOldSize(t *testing.T) {
	// A 256-byte message starts at size 128; a Set Chunk Size interleaves on
	// csid 2 between its two chunks. The pending message still completes with
	// 128-byte chunks; the next large message decodes at 4096.
	payload := make([]byte, 256)
	for i := range payload {
		payload[i] = byte(i)
	}
	h := &Header{Format: 0, CSID: 4, Timestamp: 5, MessageLength: 256, MessageTypeID: 9, MessageStreamID: 1}
	first, err := EncodeHeader(h, nil)
	require.NoError(t, err)
	cont, err := EncodeHeader(&Header{Format: 3, CSID: 4}, h)
	require.NoError(t, err)

	var wire []byte
	wire = append(wire, first...)
	wire = append(wire, payload[:128]...)
	wire = append(wire, setChunkSizeBytes(t, 4096)...)
	wire = append(wire, cont...)
	wire = append(wire, payload[128:]...)
	big := make([]byte, 2000)
	wire = append(wire, buildChunkBytes(t, 6, 9, 9, 1, big)...)

	d := NewDeframer(128)
	msgs, err := d.Feed(wire)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, uint8(1), msgs[0].TypeID)
	assert.Equal(t, payload, msgs[1].Payload)
	assert.Equal(t, big, msgs[2].Payload)
}

func TestDeframerAbortDropsPartialMessage(t *testing.T) {
	h := &Header{Format: 0, CSID: 4, Timestamp: 5, MessageLength: 256, MessageTypeID: 9, MessageStreamID: 1}
	first, err := EncodeHeader(h, nil)
	require.NoError(t, err)

	var wire []byte
	wire = append(wire, first...)
	wire = append(wire, make([]byte, 128)...) // half the message
	abort := make([]byte, 4)
	binary.BigEndian.PutUint32(abort, 4)
	wire = append(wire, buildChunkBytes(t, 2, 0, 2, 0, abort)...)

	d := NewDeframer(128)
	msgs, err := d.Feed(wire)
	require.NoError(t, err)
	require.Len(t, msgs, 1) // only the abort itself
	assert.Equal(t, uint8(2), msgs[0].TypeID)

	// A fresh fmt-0 message on csid 4 decodes normally afterwards.
	msgs, err = d.Feed(buildChunkBytes(t, 4, 6, 9, 1, []byte{1, 2}))
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, []byte{1, 2}, msgs[0].Payload)
}

func TestDeframerInvalidSetChunkSizeFatal(t *testing.T) {
	d := NewDeframer(128)
	_, err := d.Feed(setChunkSizeBytes(t, 0x80000001))
	require.Error(t, err)
	require.True(t, protoerr.IsFatal(err))
	// Sticky: further feeds fail.
	_, err = d.Feed([]byte{0x00})
	require.Error(t, err)
}

func TestDeframerOversizedDeclaredLengthFatal(t *testing.T) {
	d := NewDeframer(128)
	d.SetMessageLimit(1024)
	h := &Header{Format: 0, CSID: 4, MessageLength: 4096, MessageTypeID: 8, MessageStreamID: 1}
	b, err := EncodeHeader(h, nil)
	require.NoError(t, err)
	_, err = d.Feed(b)
	require.Error(t, err)
	require.True(t, protoerr.IsFatal(err))
}

func TestDeframerLengthChangeMidReassemblyFatal(t *testing.T) {
	h := &Header{Format: 0, CSID: 4, MessageLength: 256, MessageTypeID: 9, MessageStreamID: 1}
	first, err := EncodeHeader(h, nil)
	require.NoError(t, err)
	var wire []byte
	wire = append(wire, first...)
	wire = append(wire, make([]byte, 128)...)
	// New fmt-0 header on the same csid before completion.
	h2 := &Header{Format: 0, CSID: 4, MessageLength: 64, MessageTypeID: 9, MessageStreamID: 1}
	second, err := EncodeHeader(h2, nil)
	require.NoError(t, err)
	wire = append(wire, second...)
	wire = append(wire, make([]byte, 64)...)

	d := NewDeframer(128)
	_, err = d.Feed(wire)
	require.Error(t, err)
	assert.True(t, protoerr.IsFatal(err))
}

func TestDeframerZeroLengthMessage(t *testing.T) {
	d := NewDeframer(128)
	msgs, err := d.Feed(buildChunkBytes(t, 3, 0, 20, 0, nil))
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Empty(t, msgs[0].Payload)
}
