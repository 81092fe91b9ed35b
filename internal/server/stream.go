package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ziadkadry99/docqa/internal/agent"
)

// upgrader builds a websocket upgrader honoring the CORS origin list.
func (s *Server) upgrader() websocket.Upgrader {
	allowed := s.cfg.AllowedOrigins
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, a := range allowed {
				if a == "*" || strings.EqualFold(a, origin) {
					return true
				}
			}
			return false
		},
	}
}

// handleQueryStream runs one agent turn per client message and relays the
// turn's events as JSON text frames. Turns on one connection are sequential.
func (s *Server) handleQueryStream(w http.ResponseWriter, r *http.Request) {
	up := s.upgrader()
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx := r.Context()
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read", zap.Error(err))
			}
			return
		}

		var req queryRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			if !s.send(conn, agent.ErrorEvent{Message: "invalid message format"}) {
				return
			}
			continue
		}
		if s.app.Agent == nil {
			if !s.send(conn, agent.ErrorEvent{Message: "chat model not configured", ThreadID: req.ThreadID}) {
				return
			}
			continue
		}
		if req.ThreadID == "" {
			req.ThreadID = uuid.NewString()
		}

		if !s.relay(ctx, conn, req) {
			return
		}
	}
}

// relay streams one turn. On a failed write it cancels the turn and drains
// the channel so the thread lock is released.
func (s *Server) relay(ctx context.Context, conn *websocket.Conn, req queryRequest) bool {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := s.app.Agent.Stream(ctx, req.Query, req.ThreadID)
	for ev := range events {
		if !s.send(conn, ev) {
			cancel()
			for range events {
			}
			return false
		}
	}
	return true
}

func (s *Server) send(conn *websocket.Conn, ev agent.Event) bool {
	data, err := agent.MarshalEvent(ev)
	if err != nil {
		s.logger.Error("encoding event", zap.String("kind", ev.Kind()), zap.Error(err))
		return true
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.logger.Warn("websocket write", zap.Error(err))
		return false
	}
	return true
}
