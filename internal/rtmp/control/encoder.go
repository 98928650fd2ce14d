package control

// Constructors for RTMP protocol control messages (types 1-6).
// All control messages travel on CSID 2 with message stream id 0.

import (
	"encoding/binary"

	"github.com/zhangwz/rtmp-core/internal/rtmp/chunk"
)

// RTMP protocol control message type IDs.
const (
	TypeSetChunkSize          uint8 = 1
	TypeAbortMessage          uint8 = 2
	TypeAcknowledgement       uint8 = 3
	TypeUserControl           uint8 = 4
	TypeWindowAcknowledgement uint8 = 5
	TypeSetPeerBandwidth      uint8 = 6
)

// User Control (type 4) event type IDs (subset in active use).
const (
	UCStreamBegin  uint16 = 0
	UCStreamEOF    uint16 = 1
	UCPingRequest  uint16 = 6
	UCPingResponse uint16 = 7
)

// Set Peer Bandwidth limit types.
const (
	BandwidthLimitHard    uint8 = 0
	BandwidthLimitSoft    uint8 = 1
	BandwidthLimitDynamic uint8 = 2
)

// newControlMessage builds a *chunk.Message with standard control channel fields.
func newControlMessage(typeID uint8, payload []byte) *chunk.Message {
	return &chunk.Message{
		CSID:            chunk.CSIDControl,
		Timestamp:       0,
		MessageLength:   uint32(len(payload)),
		TypeID:          typeID,
		MessageStreamID: 0,
		Payload:         payload,
	}
}

// EncodeSetChunkSize creates a type 1 Set Chunk Size message.
func EncodeSetChunkSize(size uint32) *chunk.Message {
	var p [4]byte
	binary.BigEndian.PutUint32(p[:], size)
	return newControlMessage(TypeSetChunkSize, p[:])
}

// EncodeAbortMessage creates a type 2 Abort message (payload = CSID to abort).
func EncodeAbortMessage(csid uint32) *chunk.Message {
	var p [4]byte
	binary.BigEndian.PutUint32(p[:], csid)
	return newControlMessage(TypeAbortMessage, p[:])
}

// EncodeAcknowledgement creates a type 3 Acknowledgement carrying the running
// received-byte sequence number.
func EncodeAcknowledgement(seq uint32) *chunk.Message {
	var p [4]byte
	binary.BigEndian.PutUint32(p[:], seq)
	return newControlMessage(TypeAcknowledgement, p[:])
}

// encodeUserControl helper for User Control (type 4) events carrying one
// 4-byte datum after the event header.
func encodeUserControl(event uint16, data4 uint32) *chunk.Message {
	var payload [6]byte
	binary.BigEndian.PutUint16(payload[0:2], event)
	binary.BigEndian.PutUint32(payload[2:6], data4)
	return newControlMessage(TypeUserControl, payload[:])
}

// EncodeUserControlStreamBegin creates a Stream Begin (event 0) message.
func EncodeUserControlStreamBegin(streamID uint32) *chunk.Message {
	return encodeUserControl(UCStreamBegin, streamID)
}

// EncodeUserControlStreamEOF creates a Stream EOF (event 1) message.
func EncodeUserControlStreamEOF(streamID uint32) *chunk.Message {
	return encodeUserControl(UCStreamEOF, streamID)
}

// EncodeUserControlPingRequest creates a Ping Request (event 6) message.
func EncodeUserControlPingRequest(ts uint32) *chunk.Message {
	return encodeUserControl(UCPingRequest, ts)
}

// EncodeUserControlPingResponse creates a Ping Response (event 7) message.
func EncodeUserControlPingResponse(ts uint32) *chunk.Message {
	return encodeUserControl(UCPingResponse, ts)
}

// EncodeWindowAcknowledgementSize creates a type 5 Window Acknowledgement
// Size message.
func EncodeWindowAcknowledgementSize(size uint32) *chunk.Message {
	var p [4]byte
	binary.BigEndian.PutUint32(p[:], size)
	return newControlMessage(TypeWindowAcknowledgement, p[:])
}

// EncodeSetPeerBandwidth creates a type 6 Set Peer Bandwidth message.
func EncodeSetPeerBandwidth(bandwidth uint32, limitType uint8) *chunk.Message {
	var p [5]byte
	binary.BigEndian.PutUint32(p[0:4], bandwidth)
	p[4] = limitType
	return newControlMessage(TypeSetPeerBandwidth, p[:])
}
