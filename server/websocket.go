package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/scttfrdmn/agenkit/research-go/orchestrator"
)

const wsWriteWait = 10 * time.Second

// streamEvent is one websocket message. Type is "transition", "result" or
// "error".
type streamEvent struct {
	Type       string                   `json:"type"`
	Transition *orchestrator.Transition `json:"transition,omitempty"`
	Result     *orchestrator.Result     `json:"result,omitempty"`
	Error      *errorDetail             `json:"error,omitempty"`
}

// handleRunStream runs one turn over a websocket. The client sends a run
// request; the server streams every state transition and then the result or
// an error, and closes the connection. A client disconnect cancels the run.
func (s *Server) handleRunStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WarnContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxRequestBytes)

	var req runRequest
	if err := conn.ReadJSON(&req); err != nil || !req.valid() {
		s.writeEvent(conn, streamEvent{Type: "error", Error: &errorDetail{
			Code:    CodeInvalidRequest,
			Message: "session_id and question are required",
		}})
		s.closeStream(conn)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		// Any read after the request means the client went away or broke
		// protocol.
		if _, _, err := conn.NextReader(); err != nil {
			cancel()
		}
	}()

	observe := func(t orchestrator.Transition) {
		s.writeEvent(conn, streamEvent{Type: "transition", Transition: &t})
	}
	result, err := s.runner.Run(ctx, req.SessionID, req.Question, orchestrator.WithObserver(observe))
	if err != nil {
		_, code, msg := classify(err)
		s.logger.WarnContext(ctx, "streamed run failed", "session_id", req.SessionID, "code", code, "error", err)
		s.writeEvent(conn, streamEvent{Type: "error", Error: &errorDetail{Code: code, Message: msg}})
	} else {
		s.writeEvent(conn, streamEvent{Type: "result", Result: result})
	}
	s.closeStream(conn)
}

func (s *Server) writeEvent(conn *websocket.Conn, ev streamEvent) {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteJSON(ev); err != nil {
		s.logger.Debug("websocket write failed", "type", ev.Type, "error", err)
	}
}

func (s *Server) closeStream(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
}
