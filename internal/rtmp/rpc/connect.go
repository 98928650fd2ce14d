package rpc

import (
	"github.com/pkg/errors"

	rerrors "github.com/zhangwz/rtmp-core/internal/errors"
)

// ConnectCommand represents the parsed contents of a "connect" command.
// Only the fields the session layer acts on are captured; the raw command
// object is retained for optional fields.
type ConnectCommand struct {
	TransactionID    float64
	App              string
	FlashVer         string
	TcURL            string
	ObjectEncoding   float64
	RawCommandObject map[string]interface{}
}

// ParseConnect validates a generic Command as a "connect" command and
// extracts its fields. The app field is required; only object encoding 0
// (AMF0) is accepted.
func ParseConnect(cmd *Command) (*ConnectCommand, error) {
	if cmd == nil {
		return nil, rerrors.NewProtocolError("connect.parse", errors.New("nil command"))
	}
	if cmd.Name != "connect" {
		return nil, rerrors.NewProtocolError("connect.parse", errors.Errorf("command name %q, want connect", cmd.Name))
	}
	if cmd.CommandObject == nil {
		return nil, rerrors.NewProtocolError("connect.parse", errors.New("missing command object"))
	}

	cc := &ConnectCommand{TransactionID: cmd.TransactionID, RawCommandObject: cmd.CommandObject}
	if v, ok := cmd.CommandObject["app"].(string); ok {
		cc.App = v
	}
	if v, ok := cmd.CommandObject["flashVer"].(string); ok {
		cc.FlashVer = v
	}
	if v, ok := cmd.CommandObject["tcUrl"].(string); ok {
		cc.TcURL = v
	}
	if v, ok := cmd.CommandObject["objectEncoding"].(float64); ok {
		cc.ObjectEncoding = v
	}

	if cc.App == "" {
		return nil, rerrors.NewProtocolError("connect.validate", errors.New("app field required"))
	}
	if cc.ObjectEncoding != 0 {
		return nil, rerrors.NewProtocolError("connect.validate",
			errors.Errorf("unsupported objectEncoding %.0f (only 0 supported)", cc.ObjectEncoding))
	}
	return cc, nil
}
