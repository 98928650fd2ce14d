package media

// Audio message (type 8) carriage. Payload bytes are carried opaquely; the
// only interpretation offered is a peek at the FLV-style tag header so the
// session can label log records.

import (
	"github.com/pkg/errors"

	rerrors "github.com/zhangwz/rtmp-core/internal/errors"
	"github.com/zhangwz/rtmp-core/internal/rtmp/chunk"
)

// TypeAudio is the RTMP message type id for audio data.
const TypeAudio uint8 = 8

// AudioMessage is the opaque audio payload with its tag-header peek.
type AudioMessage struct {
	SoundFormat uint8  // top 4 bits of the first payload byte
	Payload     []byte // full payload, untouched
}

// NewAudioMessage wraps an opaque audio payload in a chunk.Message on the
// audio chunk stream.
func NewAudioMessage(timestamp, msid uint32, payload []byte) *chunk.Message {
	return &chunk.Message{
		CSID:            chunk.CSIDAudio,
		Timestamp:       timestamp,
		MessageLength:   uint32(len(payload)),
		TypeID:          TypeAudio,
		MessageStreamID: msid,
		Payload:         payload,
	}
}

// ParseAudio validates the message type and peeks the sound format. The
// payload is not copied or reframed.
func ParseAudio(msg *chunk.Message) (*AudioMessage, error) {
	if msg == nil || msg.TypeID != TypeAudio {
		return nil, rerrors.NewProtocolError("audio.parse", errors.New("not an audio message"))
	}
	if len(msg.Payload) == 0 {
		return nil, rerrors.NewProtocolError("audio.parse", errors.New("empty payload"))
	}
	return &AudioMessage{
		SoundFormat: msg.Payload[0] >> 4,
		Payload:     msg.Payload,
	}, nil
}
