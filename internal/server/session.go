package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/livetemplate/mathwalk/internal/tutor"
)

// writeWait bounds a single WebSocket write.
const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Lessons are served to whoever can reach the port
	},
}

// Envelope is the JSON frame exchanged with the browser in both directions.
type Envelope struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Actions sent to the browser.
const (
	ActionStep   = "step"
	ActionCode   = "code"
	ActionOutput = "output"
	ActionReady  = "ready"
	ActionReload = "reload"
)

// Actions received from the browser.
const (
	ActionGoTo = "goto"
	ActionNext = "next"
	ActionPrev = "prev"
	ActionRun  = "run"
)

type gotoData struct {
	Index int `json:"index"`
}

type runData struct {
	Code string `json:"code"`
}

type readyData struct {
	Ready bool `json:"ready"`
}

type reloadData struct {
	File string `json:"file"`
}

// Session is one open tutorial page. It renders the controller's state as
// envelopes and routes the browser's envelopes back to the controller.
type Session struct {
	conn    *websocket.Conn
	ctrl    *tutor.Controller
	limiter *rate.Limiter
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	runs   sync.WaitGroup

	writeMu sync.Mutex
}

func newSession(ctx context.Context, conn *websocket.Conn, opts tutor.Options, limiter *rate.Limiter, logger *slog.Logger) (*Session, error) {
	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		conn:    conn,
		limiter: limiter,
		logger:  logger.With("component", "ws", "remote", conn.RemoteAddr().String()),
		ctx:     ctx,
		cancel:  cancel,
	}

	opts.View = s
	ctrl, err := tutor.New(ctx, opts)
	if err != nil {
		cancel()
		return nil, err
	}
	s.ctrl = ctrl
	return s, nil
}

// serve shows the first step, starts the interpreter and handles messages
// until the connection closes.
func (s *Session) serve() {
	s.logger.Debug("Client connected")

	s.ctrl.GoTo(0)
	s.ctrl.Start()

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Warn("Unexpected close", "error", err)
			}
			break
		}

		s.logger.Debug("Received", "message", string(message))
		s.handleMessage(message)
	}

	s.logger.Debug("Client disconnected")
}

func (s *Session) handleMessage(message []byte) {
	var envelope Envelope
	if err := json.Unmarshal(message, &envelope); err != nil {
		s.logger.Warn("Failed to parse message", "error", err)
		return
	}

	switch envelope.Action {
	case ActionGoTo:
		var data gotoData
		if err := decodeData(envelope.Data, &data); err != nil {
			s.logger.Warn("Bad goto payload", "error", err)
			return
		}
		s.ctrl.GoTo(data.Index)

	case ActionNext:
		s.ctrl.Next()

	case ActionPrev:
		s.ctrl.Previous()

	case ActionRun:
		var data runData
		if err := decodeData(envelope.Data, &data); err != nil {
			s.logger.Warn("Bad run payload", "error", err)
			return
		}
		if !s.limiter.Allow() {
			s.logger.Debug("Run rate limited")
			return
		}
		// Runs happen off the read loop so navigation stays responsive.
		s.runs.Add(1)
		go func() {
			defer s.runs.Done()
			err := s.ctrl.Run(s.ctx, data.Code)
			switch {
			case err == nil:
			case errors.Is(err, tutor.ErrBusy), errors.Is(err, tutor.ErrNotReady):
				s.logger.Debug("Run ignored", "reason", err)
			default:
				s.logger.Debug("Run failed", "error", err)
			}
		}()

	default:
		s.logger.Warn("Unknown action", "action", envelope.Action)
	}
}

func decodeData(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func (s *Session) RenderStep(v tutor.StepView) { s.send(ActionStep, v) }
func (s *Session) RenderCode(v tutor.CodeView) { s.send(ActionCode, v) }
func (s *Session) RenderOutput(o tutor.Output) { s.send(ActionOutput, o) }
func (s *Session) SetReady(ready bool)         { s.send(ActionReady, readyData{Ready: ready}) }

// reload tells the page that file changed on disk.
func (s *Session) reload(file string) {
	s.send(ActionReload, reloadData{File: file})
}

// send writes one envelope. Write errors are logged; the read loop notices
// the broken connection and ends the session.
func (s *Session) send(action string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("Failed to marshal payload", "action", action, "error", err)
		return
	}
	msg, err := json.Marshal(Envelope{Action: action, Data: raw})
	if err != nil {
		s.logger.Error("Failed to marshal envelope", "action", action, "error", err)
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		s.logger.Debug("Failed to send message", "action", action, "error", err)
		return
	}
	s.logger.Debug("Sent", "action", action)
}

// close ends the session: in-flight fetches and runs are cancelled and the
// interpreter is released.
func (s *Session) close() {
	s.cancel()
	if err := s.ctrl.Close(); err != nil {
		s.logger.Warn("Failed to close runtime", "error", err)
	}
	s.runs.Wait()
	s.conn.Close()
}
