package session

// Events surfaced to the Application and the output item type that keeps
// responses and events in one ordered list.

import "github.com/zhangwz/rtmp-core/internal/rtmp/chunk"

// Event is implemented by all application-visible session events.
type Event interface{ isEvent() }

// ConnectionRequested reports a peer connect command awaiting an application
// decision. The application answers with AcceptRequest or RejectRequest.
type ConnectionRequested struct {
	RequestID uint32
	AppName   string
}

// PeerChunkSizeChanged reports that the peer announced a new chunk size. The
// deframer has already applied the new inbound size by the time this event
// is produced; the event is informational.
type PeerChunkSizeChanged struct {
	Size uint32
}

// PingReceived reports a peer ping request; the matching response has already
// been queued by the session.
type PingReceived struct {
	Timestamp uint32
}

// SessionClosed is the terminal event after a fatal protocol violation or
// transport teardown.
type SessionClosed struct {
	Err error
}

func (ConnectionRequested) isEvent()  {}
func (PeerChunkSizeChanged) isEvent() {}
func (PingReceived) isEvent()         {}
func (SessionClosed) isEvent()        {}

// Output is one ordered item produced by the session: exactly one of
// Response (a message for the peer) or Event (for the application) is set.
// Modeling both as one list preserves the ordering guarantees without
// coupling the Transport and Application consumers.
type Output struct {
	Response *chunk.Message
	Event    Event
}

func responseOutput(m *chunk.Message) Output { return Output{Response: m} }
func eventOutput(e Event) Output             { return Output{Event: e} }

// Responses filters the response messages from outputs, in order.
func Responses(outputs []Output) []*chunk.Message {
	var msgs []*chunk.Message
	for _, o := range outputs {
		if o.Response != nil {
			msgs = append(msgs, o.Response)
		}
	}
	return msgs
}

// Events filters the events from outputs, in order.
func Events(outputs []Output) []Event {
	var evs []Event
	for _, o := range outputs {
		if o.Event != nil {
			evs = append(evs, o.Event)
		}
	}
	return evs
}
