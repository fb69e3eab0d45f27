package control

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"vigil/internal/fabric"
	"vigil/internal/playback"
)

// Upgrader is configured with a large write buffer for JPEG payloads;
// origin checking is left to the HTTP layer the caller owns.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 256 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const (
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	writeWait  = 10 * time.Second
)

// Response is the JSON body of a text-channel reply:
// {"code": 200|4xx, "text": string, "data"?: object}.
type Response struct {
	Code int    `json:"code"`
	Text string `json:"text"`
	Data any    `json:"data,omitempty"`
}

// Session owns one control connection for one camera: it runs the
// server side of the command/response state machine on top of a
// playback.Engine, and serializes all writes to the websocket through
// a single outbound channel and goroutine.
type Session struct {
	conn     *websocket.Conn
	cameraID string
	engine   *playback.Engine
	fab      *fabric.Fabric
	logger   *log.Logger

	out chan []byte
}

// NewSession wraps an already-upgraded connection.
func NewSession(conn *websocket.Conn, cameraID string, engine *playback.Engine, fab *fabric.Fabric, logger *log.Logger) *Session {
	return &Session{
		conn:     conn,
		cameraID: cameraID,
		engine:   engine,
		fab:      fab,
		logger:   logger,
		out:      make(chan []byte, 64),
	}
}

// Run drives the session until the connection closes or ctx is
// cancelled. It blocks the calling goroutine (the read loop); forwarder
// and writer loops run in their own goroutines and are stopped via the
// returned runCtx's cancellation.
func (s *Session) Run(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.engine.Stop()
	defer s.conn.Close()

	go s.writeLoop(runCtx)
	go s.forwardLoop(runCtx)

	s.conn.SetReadLimit(int64(maxCommandSize))
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Printf("[control] camera %s: read error: %v", s.cameraID, err)
			}
			return
		}
		if msgType != websocket.BinaryMessage {
			s.reply(Response{Code: 400, Text: "expected a binary-envelope message"})
			continue
		}
		s.handleEnvelope(runCtx, data)
	}
}

const maxCommandSize = 4096

func (s *Session) handleEnvelope(ctx context.Context, data []byte) {
	kind, _, text, err := Decode(data)
	if err != nil {
		s.reply(Response{Code: 400, Text: "malformed envelope"})
		return
	}
	if kind != KindText {
		s.reply(Response{Code: 400, Text: "clients may only send text-envelope commands"})
		return
	}

	cmd, err := ParseCommand(text)
	if err != nil {
		s.reply(Response{Code: 400, Text: "malformed command"})
		return
	}
	s.reply(s.dispatch(ctx, cmd))
}

// dispatch applies one command to the playback engine and returns the
// response to send back.
func (s *Session) dispatch(ctx context.Context, cmd Command) Response {
	switch cmd.Cmd {
	case CmdStart:
		to := cmd.To
		if err := s.engine.Replay(ctx, cmd.From, to, 1.0); err != nil {
			return Response{Code: 500, Text: err.Error()}
		}
		return Response{Code: 200, Text: "replaying"}

	case CmdStop:
		s.engine.Stop()
		return Response{Code: 200, Text: "idle"}

	case CmdLive:
		s.engine.GoLive(ctx, s.fab)
		return Response{Code: 200, Text: "live"}

	case CmdSpeed:
		if err := s.engine.SetSpeed(cmd.Speed); err != nil {
			return conflictOrError(err)
		}
		return Response{Code: 200, Text: "speed updated"}

	case CmdGoto:
		if err := s.engine.Goto(cmd.Timestamp); err != nil {
			return conflictOrError(err)
		}
		return Response{Code: 200, Text: "seeking"}

	default:
		return Response{Code: 400, Text: "unknown command"}
	}
}

func conflictOrError(err error) Response {
	if errors.Is(err, playback.ErrNoActiveReplay) {
		return Response{Code: 409, Text: "not currently replaying"}
	}
	return Response{Code: 500, Text: err.Error()}
}

func (s *Session) reply(resp Response) {
	body, err := EncodeText(resp)
	if err != nil {
		s.logger.Printf("[control] camera %s: marshal response: %v", s.cameraID, err)
		return
	}
	select {
	case s.out <- body:
	default:
		s.logger.Printf("[control] camera %s: outbound queue full, dropping response", s.cameraID)
	}
}

// forwardLoop relays playback deliveries and end-of-replay signals onto
// the shared outbound channel.
func (s *Session) forwardLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-s.engine.Deliveries():
			if !ok {
				return
			}
			select {
			case s.out <- EncodeBinaryFrame(d.TimestampMs, d.Data):
			case <-ctx.Done():
				return
			}
		case end, ok := <-s.engine.Ended():
			if !ok {
				return
			}
			body, err := EncodeText(Response{Code: 200, Text: "end of replay", Data: map[string]string{"reason": end.Reason}})
			if err != nil {
				continue
			}
			select {
			case s.out <- body:
			case <-ctx.Done():
				return
			}
		}
	}
}

// writeLoop is the connection's sole writer, serializing data frames
// against periodic pings — gorilla/websocket requires every write to
// go through one goroutine.
func (s *Session) writeLoop(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-s.out:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
