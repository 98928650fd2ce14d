package rpc

// Data message (types 15/18) codec: an AMF-encoded value sequence with no
// transaction semantics (e.g. @setDataFrame / onMetaData).

import (
	"github.com/pkg/errors"

	rerrors "github.com/zhangwz/rtmp-core/internal/errors"
	"github.com/zhangwz/rtmp-core/internal/rtmp/amf"
	"github.com/zhangwz/rtmp-core/internal/rtmp/chunk"
)

// ParseData decodes a data message (type 15 or 18) into its value sequence.
func ParseData(msg *chunk.Message) ([]interface{}, error) {
	if msg == nil {
		return nil, rerrors.NewProtocolError("data.parse", errors.New("nil message"))
	}
	if !IsData(msg.TypeID) {
		return nil, rerrors.NewProtocolError("data.parse", errors.Errorf("unexpected message type %d", msg.TypeID))
	}
	vals, err := decodeValueSequence(msg.TypeID, msg.Payload)
	if err != nil {
		return nil, rerrors.NewProtocolError("data.parse.decode", err)
	}
	return vals, nil
}

// BuildDataMessage serializes a value sequence as an AMF0 data message
// (type 18) on the data chunk stream.
func BuildDataMessage(msid uint32, values ...interface{}) (*chunk.Message, error) {
	payload, err := amf.EncodeAll(values...)
	if err != nil {
		return nil, rerrors.NewProtocolError("data.encode", err)
	}
	return &chunk.Message{
		CSID:            chunk.CSIDData,
		TypeID:          TypeDataAMF0,
		MessageStreamID: msid,
		MessageLength:   uint32(len(payload)),
		Payload:         payload,
	}, nil
}
