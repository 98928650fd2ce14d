package session

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhangwz/rtmp-core/internal/rtmp/amf"
	"github.com/zhangwz/rtmp-core/internal/rtmp/chunk"
	"github.com/zhangwz/rtmp-core/internal/rtmp/control"
	"github.com/zhangwz/rtmp-core/internal/rtmp/rpc"
)

func testConfig() Config {
	return Config{
		ChunkSize:     4096,
		WindowAckSize: 2_500_000,
		PeerBandwidth: 2_500_000,
		FMSVersion:    "FMS/3,5,7,7009",
	}
}

func startedSession(t *testing.T) *Session {
	t.Helper()
	s, err := New(testConfig())
	require.NoError(t, err)
	require.NoError(t, s.HandshakeComplete())
	return s
}

func connectMessage(t *testing.T, app string) *chunk.Message {
	t.Helper()
	payload, err := amf.EncodeAll("connect", 1.0, map[string]interface{}{
		"app":   app,
		"tcUrl": "rtmp://h/" + app,
	})
	require.NoError(t, err)
	return &chunk.Message{CSID: 3, TypeID: rpc.TypeCommandAMF0, MessageLength: uint32(len(payload)), Payload: payload}
}

func TestNewValidatesConfig(t *testing.T) {
	for _, cfg := range []Config{
		{},
		{ChunkSize: 4096, WindowAckSize: 1, PeerBandwidth: 1},                          // no fms version
		{ChunkSize: 0x1000000, WindowAckSize: 1, PeerBandwidth: 1, FMSVersion: "x"},    // chunk size over cap
		{ChunkSize: 4096, WindowAckSize: 0, PeerBandwidth: 1, FMSVersion: "x"},         // no window
	} {
		_, err := New(cfg)
		require.Error(t, err)
	}
	s, err := New(testConfig())
	require.NoError(t, err)
	assert.Equal(t, StageHandshaking, s.Stage())
	assert.NotEmpty(t, s.ID())
}

func TestHandleRequiresStartedStage(t *testing.T) {
	s, err := New(testConfig())
	require.NoError(t, err)
	_, err = s.Handle(connectMessage(t, "live"))
	require.Error(t, err) // still handshaking
	s.Close()
	_, err = s.Handle(connectMessage(t, "live"))
	require.Error(t, err)
}

func TestConnectProducesBurstAndEvent(t *testing.T) {
	s := startedSession(t)
	outputs, err := s.Handle(connectMessage(t, "live"))
	require.NoError(t, err)

	resps := Responses(outputs)
	require.Len(t, resps, 4)
	assert.Equal(t, control.TypeSetPeerBandwidth, resps[0].TypeID)
	assert.Equal(t, control.BandwidthLimitHard, resps[0].Payload[4])
	assert.Equal(t, control.TypeWindowAcknowledgement, resps[1].TypeID)
	assert.Equal(t, control.TypeSetChunkSize, resps[2].TypeID)
	assert.Equal(t, uint32(4096), binary.BigEndian.Uint32(resps[2].Payload))
	assert.Equal(t, control.TypeUserControl, resps[3].TypeID)
	assert.Equal(t, uint16(0), binary.BigEndian.Uint16(resps[3].Payload[:2])) // StreamBegin

	evs := Events(outputs)
	require.Len(t, evs, 1)
	cr, ok := evs[0].(ConnectionRequested)
	require.True(t, ok)
	assert.Equal(t, uint32(1), cr.RequestID)
	assert.Equal(t, "live", cr.AppName)

	// Event ordering: the event is the final output item.
	assert.NotNil(t, outputs[len(outputs)-1].Event)

	// Still awaiting the application decision.
	assert.Equal(t, StageStarted, s.Stage())
	assert.Equal(t, 1, s.PendingRequests())
	assert.Equal(t, uint32(4096), s.OutboundChunkSize())
}

func TestAcceptConnectTransitionsAndResponds(t *testing.T) {
	s := startedSession(t)
	_, err := s.Handle(connectMessage(t, "live"))
	require.NoError(t, err)

	outputs, err := s.AcceptRequest(1)
	require.NoError(t, err)
	resps := Responses(outputs)
	require.Len(t, resps, 1)

	cmd, err := rpc.ParseCommand(resps[0])
	require.NoError(t, err)
	assert.Equal(t, "_result", cmd.Name)
	assert.Equal(t, 1.0, cmd.TransactionID)
	assert.Equal(t, "FMS/3,5,7,7009", cmd.CommandObject["fmsVer"])
	require.Len(t, cmd.Args, 1)
	info := cmd.Args[0].(map[string]interface{})
	assert.Equal(t, rpc.StatusConnectSuccess, info["code"])

	assert.Equal(t, StageConnected, s.Stage())
	assert.Equal(t, "live", s.ConnectedApp())
	assert.Zero(t, s.PendingRequests())
}

func TestAcceptRemovesRequestAtomically(t *testing.T) {
	s := startedSession(t)
	_, err := s.Handle(connectMessage(t, "live"))
	require.NoError(t, err)

	_, err = s.AcceptRequest(1)
	require.NoError(t, err)
	// Second accept of the same id fails.
	_, err = s.AcceptRequest(1)
	require.Error(t, err)
}

func TestRejectConnectEmitsError(t *testing.T) {
	s := startedSession(t)
	_, err := s.Handle(connectMessage(t, "live"))
	require.NoError(t, err)

	outputs, err := s.RejectRequest(1, "application not available")
	require.NoError(t, err)
	resps := Responses(outputs)
	require.Len(t, resps, 1)
	cmd, err := rpc.ParseCommand(resps[0])
	require.NoError(t, err)
	assert.Equal(t, "_error", cmd.Name)
	assert.Equal(t, 1.0, cmd.TransactionID)

	assert.Equal(t, StageStarted, s.Stage())
	_, err = s.RejectRequest(1, "again")
	require.Error(t, err)
}

func TestConnectEchoesNonDefaultTransactionID(t *testing.T) {
	s := startedSession(t)
	payload, err := amf.EncodeAll("connect", 5.0, map[string]interface{}{"app": "live"})
	require.NoError(t, err)
	_, err = s.Handle(&chunk.Message{TypeID: rpc.TypeCommandAMF0, Payload: payload})
	require.NoError(t, err)

	outputs, err := s.AcceptRequest(1)
	require.NoError(t, err)
	cmd, err := rpc.ParseCommand(Responses(outputs)[0])
	require.NoError(t, err)
	assert.Equal(t, 5.0, cmd.TransactionID)
}

func TestCommandInWrongStageIgnored(t *testing.T) {
	s := startedSession(t)
	_, err := s.Handle(connectMessage(t, "live"))
	require.NoError(t, err)
	_, err = s.AcceptRequest(1)
	require.NoError(t, err)

	// A second connect while connected is ignored without output or error.
	outputs, err := s.Handle(connectMessage(t, "other"))
	require.NoError(t, err)
	assert.Empty(t, outputs)
	assert.Equal(t, "live", s.ConnectedApp())
}

func TestMalformedCommandDropped(t *testing.T) {
	s := startedSession(t)
	outputs, err := s.Handle(&chunk.Message{TypeID: rpc.TypeCommandAMF0, Payload: []byte{0xFF}})
	require.NoError(t, err)
	assert.Empty(t, outputs)
	assert.Equal(t, StageStarted, s.Stage())
}

func TestWindowAcknowledgementCadence(t *testing.T) {
	s := startedSession(t)
	wack := control.EncodeWindowAcknowledgementSize(2_500_000)
	_, err := s.Handle(wack)
	require.NoError(t, err)

	// 7.5M bytes across uneven splits: exactly three acks at the window
	// multiples.
	var acks []*chunk.Message
	for _, n := range []uint64{1_000_000, 1_400_000, 100_000, 2_500_000, 2_500_000} {
		acks = append(acks, Responses(s.NotifyBytesReceived(n))...)
	}
	require.Len(t, acks, 3)
	for i, want := range []uint32{2_500_000, 5_000_000, 7_500_000} {
		assert.Equal(t, control.TypeAcknowledgement, acks[i].TypeID)
		assert.Equal(t, want, binary.BigEndian.Uint32(acks[i].Payload))
	}
}

func TestNoAcksWithoutWindow(t *testing.T) {
	s := startedSession(t)
	assert.Empty(t, s.NotifyBytesReceived(10_000_000))
}

func TestSingleNotifySpanningMultipleWindows(t *testing.T) {
	s := startedSession(t)
	_, err := s.Handle(control.EncodeWindowAcknowledgementSize(1000))
	require.NoError(t, err)
	acks := Responses(s.NotifyBytesReceived(3500))
	require.Len(t, acks, 3)
	assert.Equal(t, uint32(3000), binary.BigEndian.Uint32(acks[2].Payload))
}

func TestPeerChunkSizeChangedEvent(t *testing.T) {
	s := startedSession(t)
	outputs, err := s.Handle(control.EncodeSetChunkSize(8192))
	require.NoError(t, err)
	evs := Events(outputs)
	require.Len(t, evs, 1)
	assert.Equal(t, PeerChunkSizeChanged{Size: 8192}, evs[0])
	assert.Equal(t, uint32(8192), s.PeerChunkSize())
}

func TestPingRequestAnswered(t *testing.T) {
	s := startedSession(t)
	outputs, err := s.Handle(control.EncodeUserControlPingRequest(777))
	require.NoError(t, err)
	resps := Responses(outputs)
	require.Len(t, resps, 1)
	assert.Equal(t, control.TypeUserControl, resps[0].TypeID)
	assert.Equal(t, control.UCPingResponse, binary.BigEndian.Uint16(resps[0].Payload[:2]))
	assert.Equal(t, uint32(777), binary.BigEndian.Uint32(resps[0].Payload[2:6]))
}

func TestUnknownMessageTypeIgnored(t *testing.T) {
	s := startedSession(t)
	outputs, err := s.Handle(&chunk.Message{TypeID: 99, Payload: []byte{1, 2, 3}})
	require.NoError(t, err)
	assert.Empty(t, outputs)
}

func TestMalformedControlDropped(t *testing.T) {
	s := startedSession(t)
	outputs, err := s.Handle(&chunk.Message{TypeID: 1, Payload: []byte{0x01}}) // short
	require.NoError(t, err)
	assert.Empty(t, outputs)
}

func TestCloseDropsPendingRequests(t *testing.T) {
	s := startedSession(t)
	_, err := s.Handle(connectMessage(t, "live"))
	require.NoError(t, err)
	require.Equal(t, 1, s.PendingRequests())
	s.Close()
	assert.Equal(t, StageClosed, s.Stage())
	assert.Zero(t, s.PendingRequests())
	_, err = s.AcceptRequest(1)
	require.Error(t, err)
}

func TestRequestIDsMonotonic(t *testing.T) {
	s := startedSession(t)
	_, err := s.Handle(connectMessage(t, "a"))
	require.NoError(t, err)
	_, err = s.RejectRequest(1, "no")
	require.NoError(t, err)
	outputs, err := s.Handle(connectMessage(t, "b"))
	require.NoError(t, err)
	cr := Events(outputs)[0].(ConnectionRequested)
	assert.Equal(t, uint32(2), cr.RequestID)
}
