package rpc

// Generic RTMP command message codec.
//
// A command message carries an AMF value sequence: command name (string),
// transaction id (number), command object (object or null), then zero or
// more additional values. Type 20 encodes the sequence in AMF0. Type 17
// payloads usually begin with a 0x00 format byte followed by AMF0 values
// (the form Flash actually emits); a payload without that prefix is decoded
// as native AMF3. Outbound commands are always emitted as AMF0 (type 20).

import (
	"github.com/pkg/errors"

	rerrors "github.com/zhangwz/rtmp-core/internal/errors"
	"github.com/zhangwz/rtmp-core/internal/rtmp/amf"
	"github.com/zhangwz/rtmp-core/internal/rtmp/chunk"
)

// RTMP message type IDs for command and data messages.
const (
	TypeCommandAMF0 uint8 = 20
	TypeCommandAMF3 uint8 = 17
	TypeDataAMF0    uint8 = 18
	TypeDataAMF3    uint8 = 15
)

// IsCommand reports whether typeID names a command message.
func IsCommand(typeID uint8) bool {
	return typeID == TypeCommandAMF0 || typeID == TypeCommandAMF3
}

// IsData reports whether typeID names a data message.
func IsData(typeID uint8) bool {
	return typeID == TypeDataAMF0 || typeID == TypeDataAMF3
}

// Command is the parsed logical content of a command message.
type Command struct {
	Name          string
	TransactionID float64
	CommandObject map[string]interface{} // nil when the wire carried null
	Args          []interface{}          // additional values after the command object
}

// decodeValueSequence decodes the AMF payload of a command or data message
// according to its type id.
func decodeValueSequence(typeID uint8, payload []byte) ([]interface{}, error) {
	switch typeID {
	case TypeCommandAMF0, TypeDataAMF0:
		return amf.DecodeAll(payload)
	case TypeCommandAMF3, TypeDataAMF3:
		if len(payload) > 0 && payload[0] == 0x00 {
			// AMF0-in-AMF3 envelope: format byte then AMF0 values.
			return amf.DecodeAll(payload[1:])
		}
		return amf.DecodeAMF3All(payload)
	default:
		return nil, rerrors.NewProtocolError("command.decode", errors.Errorf("unexpected message type %d", typeID))
	}
}

// ParseCommand parses a command message (type 17 or 20) into a Command.
func ParseCommand(msg *chunk.Message) (*Command, error) {
	if msg == nil {
		return nil, rerrors.NewProtocolError("command.parse", errors.New("nil message"))
	}
	if !IsCommand(msg.TypeID) {
		return nil, rerrors.NewProtocolError("command.parse", errors.Errorf("unexpected message type %d", msg.TypeID))
	}
	vals, err := decodeValueSequence(msg.TypeID, msg.Payload)
	if err != nil {
		return nil, rerrors.NewProtocolError("command.parse.decode", err)
	}
	if len(vals) < 2 {
		return nil, rerrors.NewProtocolError("command.parse", errors.Errorf("expected >=2 AMF values, got %d", len(vals)))
	}
	name, ok := vals[0].(string)
	if !ok {
		return nil, rerrors.NewProtocolError("command.parse", errors.New("first value must be the command name string"))
	}
	trx, ok := toNumber(vals[1])
	if !ok {
		return nil, rerrors.NewProtocolError("command.parse", errors.New("second value must be the transaction id number"))
	}
	cmd := &Command{Name: name, TransactionID: trx}
	if len(vals) >= 3 {
		switch obj := vals[2].(type) {
		case map[string]interface{}:
			cmd.CommandObject = obj
		case amf.ECMAArray:
			cmd.CommandObject = obj
		case nil:
			// null command object is legal
		default:
			return nil, rerrors.NewProtocolError("command.parse", errors.Errorf("third value must be object or null, got %T", vals[2]))
		}
		cmd.Args = vals[3:]
	}
	return cmd, nil
}

// toNumber accepts the numeric shapes the two codecs produce.
func toNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int32:
		return float64(n), true
	default:
		return 0, false
	}
}

// BuildCommandMessage serializes a command as an AMF0 command message
// (type 20) on the command chunk stream.
func BuildCommandMessage(msid uint32, name string, transactionID float64, commandObject map[string]interface{}, args ...interface{}) (*chunk.Message, error) {
	values := make([]interface{}, 0, 3+len(args))
	values = append(values, name, transactionID)
	if commandObject == nil {
		values = append(values, nil)
	} else {
		values = append(values, commandObject)
	}
	values = append(values, args...)

	payload, err := amf.EncodeAll(values...)
	if err != nil {
		return nil, rerrors.NewProtocolError("command.encode", err)
	}
	return &chunk.Message{
		CSID:            chunk.CSIDCommand,
		TypeID:          TypeCommandAMF0,
		MessageStreamID: msid,
		MessageLength:   uint32(len(payload)),
		Payload:         payload,
	}, nil
}
