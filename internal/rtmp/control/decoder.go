package control

// Decoding of RTMP protocol control message payloads (types 1-6) into
// structured values mirroring the logical protocol fields.

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/zhangwz/rtmp-core/internal/rtmp/chunk"
)

// SetChunkSize is a type 1 Set Chunk Size message.
type SetChunkSize struct {
	Size uint32
}

// AbortMessage is a type 2 Abort message.
type AbortMessage struct {
	CSID uint32
}

// Acknowledgement is a type 3 Acknowledgement message.
type Acknowledgement struct {
	SequenceNumber uint32
}

// UserControl is a type 4 User Control message. Only a subset of event types
// are interpreted (Stream Begin/EOF, Ping Request/Response); for unknown
// events the payload beyond the 2-byte event header is exposed via RawData.
type UserControl struct {
	EventType uint16
	StreamID  uint32 // Stream Begin / Stream EOF
	Timestamp uint32 // Ping Request / Response
	RawData   []byte // unparsed data for unknown events
}

// WindowAcknowledgementSize is a type 5 Window Acknowledgement Size message.
type WindowAcknowledgementSize struct {
	Size uint32
}

// SetPeerBandwidth is a type 6 Set Peer Bandwidth message.
type SetPeerBandwidth struct {
	Bandwidth uint32
	LimitType uint8 // 0 = Hard, 1 = Soft, 2 = Dynamic
}

// IsControl reports whether typeID names a protocol control message.
func IsControl(typeID uint8) bool {
	return typeID >= TypeSetChunkSize && typeID <= TypeSetPeerBandwidth
}

// Decode decodes a control message (types 1-6) into a structured value.
// Malformed payloads and validation failures return an error; the session
// layer decides whether that drops the message or the connection.
func Decode(typeID uint8, payload []byte) (any, error) {
	switch typeID {
	case TypeSetChunkSize:
		if len(payload) != 4 {
			return nil, errors.Errorf("set chunk size: expected 4 bytes got=%d", len(payload))
		}
		v := binary.BigEndian.Uint32(payload)
		if v == 0 {
			return nil, errors.New("set chunk size: size must be > 0")
		}
		if v&0x80000000 != 0 { // bit 31 must be zero per spec (31-bit value)
			return nil, errors.Errorf("set chunk size: high bit must be 0 size=%#x", v)
		}
		if v > chunk.MaxChunkSize {
			return nil, errors.Errorf("set chunk size: size %d exceeds cap %d", v, chunk.MaxChunkSize)
		}
		return &SetChunkSize{Size: v}, nil
	case TypeAbortMessage:
		if len(payload) != 4 {
			return nil, errors.Errorf("abort message: expected 4 bytes got=%d", len(payload))
		}
		return &AbortMessage{CSID: binary.BigEndian.Uint32(payload)}, nil
	case TypeAcknowledgement:
		if len(payload) != 4 {
			return nil, errors.Errorf("acknowledgement: expected 4 bytes got=%d", len(payload))
		}
		return &Acknowledgement{SequenceNumber: binary.BigEndian.Uint32(payload)}, nil
	case TypeUserControl:
		if len(payload) < 2 {
			return nil, errors.Errorf("user control: expected at least 2 bytes got=%d", len(payload))
		}
		ev := binary.BigEndian.Uint16(payload[0:2])
		uc := &UserControl{EventType: ev}
		switch ev {
		case UCStreamBegin, UCStreamEOF:
			if len(payload) != 6 {
				return nil, errors.Errorf("user control stream event: expected 6 bytes got=%d", len(payload))
			}
			uc.StreamID = binary.BigEndian.Uint32(payload[2:6])
		case UCPingRequest, UCPingResponse:
			if len(payload) != 6 {
				return nil, errors.Errorf("user control ping: expected 6 bytes got=%d", len(payload))
			}
			uc.Timestamp = binary.BigEndian.Uint32(payload[2:6])
		default:
			if len(payload) > 2 {
				uc.RawData = payload[2:]
			}
		}
		return uc, nil
	case TypeWindowAcknowledgement:
		if len(payload) != 4 {
			return nil, errors.Errorf("window ack size: expected 4 bytes got=%d", len(payload))
		}
		v := binary.BigEndian.Uint32(payload)
		if v == 0 {
			return nil, errors.New("window ack size: must be > 0")
		}
		return &WindowAcknowledgementSize{Size: v}, nil
	case TypeSetPeerBandwidth:
		if len(payload) != 5 {
			return nil, errors.Errorf("set peer bandwidth: expected 5 bytes got=%d", len(payload))
		}
		bw := binary.BigEndian.Uint32(payload[0:4])
		lt := payload[4]
		if lt > BandwidthLimitDynamic {
			return nil, errors.Errorf("set peer bandwidth: invalid limit type=%d", lt)
		}
		return &SetPeerBandwidth{Bandwidth: bw, LimitType: lt}, nil
	default:
		return nil, errors.Errorf("unsupported control message type id=%d", typeID)
	}
}
