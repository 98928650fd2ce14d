package session

// Session processor: the per-connection state machine that turns reassembled
// inbound messages into ordered responses and application events.
//
// Stage progression: Handshaking -> Started -> (connect command queues a
// pending request) -> Connected once the application accepts. Closed is the
// sink after a fatal protocol violation or transport teardown.
//
// Error model mirrors the protocol layers: malformed single messages are
// dropped with a log record and the session continues; only handshake and
// chunk stream violations (surfaced by the engine, not here) are fatal.
// Errors returned by this package are session state machine misuse
// (*errors.SessionError), never thrown across the core boundary.

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	rerrors "github.com/zhangwz/rtmp-core/internal/errors"
	"github.com/zhangwz/rtmp-core/internal/logger"
	"github.com/zhangwz/rtmp-core/internal/rtmp/chunk"
	"github.com/zhangwz/rtmp-core/internal/rtmp/control"
	"github.com/zhangwz/rtmp-core/internal/rtmp/rpc"
)

// Stage is the session lifecycle stage.
type Stage uint8

const (
	StageHandshaking Stage = iota
	StageStarted
	StageConnected
	StageClosed
)

func (s Stage) String() string {
	switch s {
	case StageHandshaking:
		return "handshaking"
	case StageStarted:
		return "started"
	case StageConnected:
		return "connected"
	case StageClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Config carries the values the session announces in its reply to a connect
// command (sent before the application decides) and the fmsVer placed in the
// _result on accept. All fields are required.
type Config struct {
	ChunkSize     uint32 // outbound chunk size announced after connect
	WindowAckSize uint32 // outbound window acknowledgement size
	PeerBandwidth uint32 // value sent in Set Peer Bandwidth
	FMSVersion    string // placed in the connect _result fmsVer property
}

func (c Config) validate() error {
	if c.ChunkSize == 0 || c.ChunkSize > chunk.MaxChunkSize {
		return errors.Errorf("chunk size %d outside 1..%d", c.ChunkSize, chunk.MaxChunkSize)
	}
	if c.WindowAckSize == 0 {
		return errors.New("window ack size required")
	}
	if c.PeerBandwidth == 0 {
		return errors.New("peer bandwidth required")
	}
	if c.FMSVersion == "" {
		return errors.New("fms version required")
	}
	return nil
}

type requestKind uint8

const requestConnect requestKind = iota

// pendingRequest is a queued application decision. active requests are the
// only place pending decisions live; accept/reject removes them atomically.
type pendingRequest struct {
	kind          requestKind
	appName       string
	transactionID float64
}

// Session owns all state for one RTMP session. Not safe for concurrent use:
// a session is a single cooperative unit driven by inbound bytes and
// application calls.
type Session struct {
	id    string
	cfg   Config
	stage Stage
	log   *zap.Logger

	// Peer-announced state.
	peerWindowAckSize uint32 // 0 = unset
	peerChunkSize     uint32
	peerBandwidth     uint32
	peerBandwidthLT   uint8
	lastPeerAck       uint32

	// Acknowledgement bookkeeping.
	peerBytesReceived uint64
	lastAckSentAt     uint64

	// Outbound chunk size currently in force (announced in the connect burst).
	outChunkSize uint32

	activeRequests map[uint32]*pendingRequest
	lastRequestID  uint32
	connectedApp   string
}

// New creates a Session in the Handshaking stage.
func New(cfg Config) (*Session, error) {
	if err := cfg.validate(); err != nil {
		return nil, rerrors.NewSessionError("config", err)
	}
	id := uuid.NewString()
	return &Session{
		id:             id,
		cfg:            cfg,
		stage:          StageHandshaking,
		log:            logger.Logger().With(zap.String("session_id", id), zap.String("component", "session")),
		peerChunkSize:  chunk.DefaultChunkSize,
		outChunkSize:   chunk.DefaultChunkSize,
		activeRequests: make(map[uint32]*pendingRequest),
	}, nil
}

// ID returns the session identifier (attached to all log records).
func (s *Session) ID() string { return s.id }

// Stage returns the current lifecycle stage.
func (s *Session) Stage() Stage { return s.stage }

// ConnectedApp returns the application name once the stage is Connected.
func (s *Session) ConnectedApp() string { return s.connectedApp }

// PeerChunkSize returns the inbound chunk size the peer announced.
func (s *Session) PeerChunkSize() uint32 { return s.peerChunkSize }

// OutboundChunkSize returns the outbound chunk size currently in force.
func (s *Session) OutboundChunkSize() uint32 { return s.outChunkSize }

// PendingRequests returns the number of requests awaiting a decision.
func (s *Session) PendingRequests() int { return len(s.activeRequests) }

// HandshakeComplete moves the session from Handshaking to Started.
func (s *Session) HandshakeComplete() error {
	if s.stage != StageHandshaking {
		return rerrors.NewSessionError("handshake_complete", errors.Errorf("invalid stage %s", s.stage))
	}
	s.stage = StageStarted
	return nil
}

// Close moves the session to Closed and drops pending requests. Idempotent.
func (s *Session) Close() {
	s.stage = StageClosed
	s.activeRequests = make(map[uint32]*pendingRequest)
}

// NotifyBytesReceived records n inbound transport bytes and emits one
// Acknowledgement per window boundary crossed. The first acknowledgement
// fires when exactly window-size bytes have accumulated; sequence numbers are
// the running received-byte count at each boundary.
func (s *Session) NotifyBytesReceived(n uint64) []Output {
	s.peerBytesReceived += n
	if s.peerWindowAckSize == 0 {
		return nil
	}
	var out []Output
	window := uint64(s.peerWindowAckSize)
	for s.peerBytesReceived-s.lastAckSentAt >= window {
		s.lastAckSentAt += window
		out = append(out, responseOutput(control.EncodeAcknowledgement(uint32(s.lastAckSentAt))))
	}
	return out
}

// Handle dispatches one reassembled inbound message, returning ordered
// outputs. Malformed payloads drop the message with a log record and return
// no error; a non-nil error means the session was used in an invalid stage.
func (s *Session) Handle(msg *chunk.Message) ([]Output, error) {
	if msg == nil {
		return nil, rerrors.NewSessionError("handle", errors.New("nil message"))
	}
	switch s.stage {
	case StageClosed:
		return nil, rerrors.NewSessionError("handle", errors.New("session closed"))
	case StageHandshaking:
		return nil, rerrors.NewSessionError("handle", errors.New("handshake incomplete"))
	}

	switch {
	case control.IsControl(msg.TypeID):
		return s.handleControl(msg), nil
	case rpc.IsCommand(msg.TypeID):
		return s.handleCommand(msg), nil
	case rpc.IsData(msg.TypeID):
		s.log.Debug("data message ignored",
			zap.Uint8("type_id", msg.TypeID), zap.Int("len", len(msg.Payload)))
		return nil, nil
	case msg.TypeID == 8 || msg.TypeID == 9:
		// Opaque media carriage: nothing for the session layer to do here.
		return nil, nil
	default:
		s.log.Warn("unknown message type ignored",
			zap.Uint8("type_id", msg.TypeID), zap.Int("len", len(msg.Payload)))
		return nil, nil
	}
}

// handleControl processes protocol control messages (types 1-6).
func (s *Session) handleControl(msg *chunk.Message) []Output {
	decoded, err := control.Decode(msg.TypeID, msg.Payload)
	if err != nil {
		s.log.Warn("malformed control message dropped",
			zap.Uint8("type_id", msg.TypeID), zap.Error(err))
		return nil
	}
	switch v := decoded.(type) {
	case *control.SetChunkSize:
		old := s.peerChunkSize
		s.peerChunkSize = v.Size
		s.log.Debug("peer chunk size changed", zap.Uint32("old", old), zap.Uint32("new", v.Size))
		return []Output{eventOutput(PeerChunkSizeChanged{Size: v.Size})}
	case *control.AbortMessage:
		// Reassembly discard happens in the deframer.
		s.log.Debug("abort received", zap.Uint32("csid", v.CSID))
		return nil
	case *control.Acknowledgement:
		s.lastPeerAck = v.SequenceNumber
		s.log.Debug("acknowledgement received", zap.Uint32("seq", v.SequenceNumber))
		return nil
	case *control.UserControl:
		return s.handleUserControl(v)
	case *control.WindowAcknowledgementSize:
		s.peerWindowAckSize = v.Size
		s.log.Debug("peer window ack size set", zap.Uint32("size", v.Size))
		return nil
	case *control.SetPeerBandwidth:
		s.peerBandwidth = v.Bandwidth
		s.peerBandwidthLT = v.LimitType
		s.log.Debug("peer bandwidth set",
			zap.Uint32("bandwidth", v.Bandwidth), zap.Uint8("limit_type", v.LimitType))
		return nil
	default:
		return nil
	}
}

func (s *Session) handleUserControl(uc *control.UserControl) []Output {
	switch uc.EventType {
	case control.UCPingRequest:
		s.log.Debug("ping request", zap.Uint32("ts", uc.Timestamp))
		return []Output{
			responseOutput(control.EncodeUserControlPingResponse(uc.Timestamp)),
			eventOutput(PingReceived{Timestamp: uc.Timestamp}),
		}
	case control.UCPingResponse:
		s.log.Debug("ping response", zap.Uint32("ts", uc.Timestamp))
	case control.UCStreamBegin:
		s.log.Debug("stream begin", zap.Uint32("stream_id", uc.StreamID))
	default:
		s.log.Debug("unhandled user control event", zap.Uint16("event_type", uc.EventType))
	}
	return nil
}

// handleCommand processes AMF command messages (types 17/20).
func (s *Session) handleCommand(msg *chunk.Message) []Output {
	cmd, err := rpc.ParseCommand(msg)
	if err != nil {
		s.log.Warn("malformed command dropped", zap.Error(err))
		return nil
	}
	switch {
	case cmd.Name == "connect" && s.stage == StageStarted:
		return s.handleConnect(cmd)
	default:
		s.log.Warn("unhandled command ignored",
			zap.String("command", cmd.Name), zap.String("stage", s.stage.String()))
		return nil
	}
}

// handleConnect queues a pending connect request and emits the negotiation
// burst in protocol order, followed by the ConnectionRequested event.
func (s *Session) handleConnect(cmd *rpc.Command) []Output {
	cc, err := rpc.ParseConnect(cmd)
	if err != nil {
		s.log.Warn("malformed connect dropped", zap.Error(err))
		return nil
	}
	s.lastRequestID++
	id := s.lastRequestID
	s.activeRequests[id] = &pendingRequest{
		kind:          requestConnect,
		appName:       cc.App,
		transactionID: cc.TransactionID,
	}
	s.log.Info("connection requested",
		zap.Uint32("request_id", id), zap.String("app", cc.App), zap.String("tc_url", cc.TcURL))

	outputs := []Output{
		responseOutput(control.EncodeSetPeerBandwidth(s.cfg.PeerBandwidth, control.BandwidthLimitHard)),
		responseOutput(control.EncodeWindowAcknowledgementSize(s.cfg.WindowAckSize)),
		responseOutput(control.EncodeSetChunkSize(s.cfg.ChunkSize)),
		responseOutput(control.EncodeUserControlStreamBegin(0)),
		eventOutput(ConnectionRequested{RequestID: id, AppName: cc.App}),
	}
	// The Set Chunk Size above takes effect for everything we send next.
	s.outChunkSize = s.cfg.ChunkSize
	return outputs
}

// AcceptRequest approves a pending request, removing it atomically. For a
// connect request the session transitions to Connected and the _result
// response (echoing the request's transaction id) is returned.
func (s *Session) AcceptRequest(requestID uint32) ([]Output, error) {
	req, ok := s.activeRequests[requestID]
	if !ok {
		return nil, rerrors.NewSessionError("accept_request", errors.Errorf("unknown request id %d", requestID))
	}
	delete(s.activeRequests, requestID)

	switch req.kind {
	case requestConnect:
		s.stage = StageConnected
		s.connectedApp = req.appName
		resp, err := rpc.BuildConnectResult(req.transactionID, s.cfg.FMSVersion)
		if err != nil {
			return nil, rerrors.NewSessionError("accept_request", err)
		}
		s.log.Info("connection accepted", zap.String("app", req.appName))
		return []Output{responseOutput(resp)}, nil
	default:
		return nil, rerrors.NewSessionError("accept_request", errors.Errorf("unknown request kind %d", req.kind))
	}
}

// RejectRequest declines a pending request, removing it atomically and
// returning the _error response with the caller's reason.
func (s *Session) RejectRequest(requestID uint32, reason string) ([]Output, error) {
	req, ok := s.activeRequests[requestID]
	if !ok {
		return nil, rerrors.NewSessionError("reject_request", errors.Errorf("unknown request id %d", requestID))
	}
	delete(s.activeRequests, requestID)

	switch req.kind {
	case requestConnect:
		resp, err := rpc.BuildConnectError(req.transactionID, reason)
		if err != nil {
			return nil, rerrors.NewSessionError("reject_request", err)
		}
		s.log.Info("connection rejected",
			zap.String("app", req.appName), zap.String("reason", reason))
		return []Output{responseOutput(resp)}, nil
	default:
		return nil, rerrors.NewSessionError("reject_request", errors.Errorf("unknown request kind %d", req.kind))
	}
}
