package media

// Video message (type 9) carriage, symmetric with audio.go.

import (
	"github.com/pkg/errors"

	rerrors "github.com/zhangwz/rtmp-core/internal/errors"
	"github.com/zhangwz/rtmp-core/internal/rtmp/chunk"
)

// TypeVideo is the RTMP message type id for video data.
const TypeVideo uint8 = 9

// Video frame types (top 4 bits of the first payload byte).
const (
	FrameTypeKey        uint8 = 1
	FrameTypeInter      uint8 = 2
	FrameTypeDisposable uint8 = 3
)

// VideoMessage is the opaque video payload with its tag-header peek.
type VideoMessage struct {
	FrameType uint8 // top 4 bits of the first payload byte
	CodecID   uint8 // low 4 bits of the first payload byte
	Payload   []byte
}

// NewVideoMessage wraps an opaque video payload in a chunk.Message on the
// video chunk stream.
func NewVideoMessage(timestamp, msid uint32, payload []byte) *chunk.Message {
	return &chunk.Message{
		CSID:            chunk.CSIDVideo,
		Timestamp:       timestamp,
		MessageLength:   uint32(len(payload)),
		TypeID:          TypeVideo,
		MessageStreamID: msid,
		Payload:         payload,
	}
}

// ParseVideo validates the message type and peeks frame type and codec id.
func ParseVideo(msg *chunk.Message) (*VideoMessage, error) {
	if msg == nil || msg.TypeID != TypeVideo {
		return nil, rerrors.NewProtocolError("video.parse", errors.New("not a video message"))
	}
	if len(msg.Payload) == 0 {
		return nil, rerrors.NewProtocolError("video.parse", errors.New("empty payload"))
	}
	return &VideoMessage{
		FrameType: msg.Payload[0] >> 4,
		CodecID:   msg.Payload[0] & 0x0F,
		Payload:   msg.Payload,
	}, nil
}
