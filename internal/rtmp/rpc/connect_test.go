package rpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhangwz/rtmp-core/internal/rtmp/amf"
)

func parseConnectPayload(t *testing.T, obj map[string]interface{}) (*ConnectCommand, error) {
	t.Helper()
	payload, err := amf.EncodeAll("connect", 1.0, obj)
	require.NoError(t, err)
	cmd, err := ParseCommand(commandMessage(t, TypeCommandAMF0, payload))
	require.NoError(t, err)
	return ParseConnect(cmd)
}

func TestParseConnectExtractsFields(t *testing.T) {
	cc, err := parseConnectPayload(t, map[string]interface{}{
		"app":      "live",
		"flashVer": "FMLE/3.0",
		"tcUrl":    "rtmp://h/live",
	})
	require.NoError(t, err)
	assert.Equal(t, 1.0, cc.TransactionID)
	assert.Equal(t, "live", cc.App)
	assert.Equal(t, "FMLE/3.0", cc.FlashVer)
	assert.Equal(t, "rtmp://h/live", cc.TcURL)
	assert.Equal(t, 0.0, cc.ObjectEncoding)
	assert.NotNil(t, cc.RawCommandObject)
}

func TestParseConnectRequiresApp(t *testing.T) {
	_, err := parseConnectPayload(t, map[string]interface{}{"tcUrl": "rtmp://h/live"})
	require.Error(t, err)
}

func TestParseConnectRejectsAMF3Encoding(t *testing.T) {
	_, err := parseConnectPayload(t, map[string]interface{}{"app": "live", "objectEncoding": 3.0})
	require.Error(t, err)
}

func TestParseConnectRejectsWrongName(t *testing.T) {
	_, err := ParseConnect(&Command{Name: "createStream", TransactionID: 2})
	require.Error(t, err)
	_, err = ParseConnect(nil)
	require.Error(t, err)
}

func TestParseConnectRequiresCommandObject(t *testing.T) {
	_, err := ParseConnect(&Command{Name: "connect", TransactionID: 1})
	require.Error(t, err)
}
