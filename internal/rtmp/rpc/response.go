package rpc

// Builders for the connect command's _result / _error responses. Responses
// always echo the request's transaction id and are emitted as AMF0.

import (
	"github.com/zhangwz/rtmp-core/internal/rtmp/chunk"
)

// Status codes used in connect responses.
const (
	StatusConnectSuccess  = "NetConnection.Connect.Success"
	StatusConnectRejected = "NetConnection.Connect.Rejected"
)

// ConnectCapabilities is the conventional capabilities bitmask advertised in
// the _result properties object.
const ConnectCapabilities = 31.0

// BuildConnectResult builds the _result for a successful connect:
//
//	["_result", transactionID,
//	  {fmsVer, capabilities},
//	  {level: "status", code: "NetConnection.Connect.Success",
//	   description: "Connection succeeded", objectEncoding: 0}]
func BuildConnectResult(transactionID float64, fmsVersion string) (*chunk.Message, error) {
	props := map[string]interface{}{
		"fmsVer":       fmsVersion,
		"capabilities": ConnectCapabilities,
	}
	info := map[string]interface{}{
		"level":          "status",
		"code":           StatusConnectSuccess,
		"description":    "Connection succeeded",
		"objectEncoding": 0.0,
	}
	return BuildCommandMessage(0, "_result", transactionID, props, info)
}

// BuildConnectError builds the _error for a rejected connect, echoing the
// request's transaction id and carrying the caller's reason.
func BuildConnectError(transactionID float64, description string) (*chunk.Message, error) {
	info := map[string]interface{}{
		"level":       "error",
		"code":        StatusConnectRejected,
		"description": description,
	}
	return BuildCommandMessage(0, "_error", transactionID, nil, info)
}
