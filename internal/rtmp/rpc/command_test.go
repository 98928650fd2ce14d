package rpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhangwz/rtmp-core/internal/rtmp/amf"
	"github.com/zhangwz/rtmp-core/internal/rtmp/chunk"
)

func commandMessage(t *testing.T, typeID uint8, payload []byte) *chunk.Message {
	t.Helper()
	return &chunk.Message{CSID: 3, TypeID: typeID, MessageLength: uint32(len(payload)), Payload: payload}
}

func TestParseCommandAMF0(t *testing.T) {
	payload, err := amf.EncodeAll("connect", 1.0, map[string]interface{}{"app": "live"}, "extra")
	require.NoError(t, err)

	cmd, err := ParseCommand(commandMessage(t, TypeCommandAMF0, payload))
	require.NoError(t, err)
	assert.Equal(t, "connect", cmd.Name)
	assert.Equal(t, 1.0, cmd.TransactionID)
	assert.Equal(t, "live", cmd.CommandObject["app"])
	assert.Equal(t, []interface{}{"extra"}, cmd.Args)
}

func TestParseCommandAMF3Enveloped(t *testing.T) {
	inner, err := amf.EncodeAll("releaseStream", 2.0, nil, "key")
	require.NoError(t, err)
	payload := append([]byte{0x00}, inner...)

	cmd, err := ParseCommand(commandMessage(t, TypeCommandAMF3, payload))
	require.NoError(t, err)
	assert.Equal(t, "releaseStream", cmd.Name)
	assert.Equal(t, 2.0, cmd.TransactionID)
	assert.Nil(t, cmd.CommandObject)
	assert.Equal(t, []interface{}{"key"}, cmd.Args)
}

func TestParseCommandNativeAMF3(t *testing.T) {
	payload, err := amf.EncodeAMF3All("ping", int32(5), nil)
	require.NoError(t, err)

	cmd, err := ParseCommand(commandMessage(t, TypeCommandAMF3, payload))
	require.NoError(t, err)
	assert.Equal(t, "ping", cmd.Name)
	assert.Equal(t, 5.0, cmd.TransactionID)
}

func TestParseCommandRejectsBadShapes(t *testing.T) {
	// Not a command type.
	_, err := ParseCommand(commandMessage(t, 8, nil))
	require.Error(t, err)
	// First value not a string.
	payload, errEnc := amf.EncodeAll(1.0, 2.0)
	require.NoError(t, errEnc)
	_, err = ParseCommand(commandMessage(t, TypeCommandAMF0, payload))
	require.Error(t, err)
	// Missing transaction id.
	payload, errEnc = amf.EncodeAll("connect")
	require.NoError(t, errEnc)
	_, err = ParseCommand(commandMessage(t, TypeCommandAMF0, payload))
	require.Error(t, err)
	// Garbage payload.
	_, err = ParseCommand(commandMessage(t, TypeCommandAMF0, []byte{0xFF, 0x00}))
	require.Error(t, err)
}

func TestBuildCommandMessageRoundTrip(t *testing.T) {
	msg, err := BuildCommandMessage(0, "onStatus", 0.0, nil, map[string]interface{}{"code": "NetStream.Play.Start"})
	require.NoError(t, err)
	assert.Equal(t, TypeCommandAMF0, msg.TypeID)
	assert.Equal(t, chunk.CSIDCommand, msg.CSID)
	assert.Equal(t, uint32(len(msg.Payload)), msg.MessageLength)

	cmd, err := ParseCommand(msg)
	require.NoError(t, err)
	assert.Equal(t, "onStatus", cmd.Name)
	require.Len(t, cmd.Args, 1)
	info := cmd.Args[0].(map[string]interface{})
	assert.Equal(t, "NetStream.Play.Start", info["code"])
}

func TestDataMessageRoundTrip(t *testing.T) {
	msg, err := BuildDataMessage(1, "onMetaData", amf.ECMAArray{"width": 1920.0})
	require.NoError(t, err)
	assert.Equal(t, TypeDataAMF0, msg.TypeID)
	assert.Equal(t, chunk.CSIDData, msg.CSID)

	vals, err := ParseData(msg)
	require.NoError(t, err)
	require.Len(t, vals, 2)
	assert.Equal(t, "onMetaData", vals[0])
	assert.Equal(t, amf.ECMAArray{"width": 1920.0}, vals[1])
}

func TestParseDataRejectsCommandTypes(t *testing.T) {
	_, err := ParseData(commandMessage(t, TypeCommandAMF0, nil))
	require.Error(t, err)
}
