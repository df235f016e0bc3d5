package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"goa.design/clue/log"

	"github.com/ratemysite/backend/internal/analysis"
)

const wsWriteWait = 10 * time.Second

// handleWSStream runs an analysis and streams its events over a WebSocket.
// The client may send {"type":"cancel"} to stop after the current site;
// closing the socket stops the run immediately.
func (s *Server) handleWSStream(w http.ResponseWriter, r *http.Request) {
	urls, err := s.orch.Validate(r.URL.Query()["u"])
	if err != nil {
		writeError(w, http.StatusBadRequest, inputError(err))
		return
	}

	upgrader := websocket.Upgrader{CheckOrigin: checkOrigin}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Errorf(r.Context(), err, "ws upgrade error")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	run, err := s.orch.Start(ctx, urls)
	if err != nil {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, err.Error()))
		return
	}
	ctx = log.With(ctx, log.KV{K: "session", V: run.SessionID()})
	log.Printf(ctx, "WebSocket client connected: %s", r.RemoteAddr)

	go s.readPump(ctx, conn, run.SessionID(), cancel)
	s.writePump(ctx, conn, run.Events(), cancel)
}

// readPump handles client control messages. Any read error means the peer
// is gone, which ends the run.
func (s *Server) readPump(ctx context.Context, conn *websocket.Conn, sessionID string, cancel context.CancelFunc) {
	defer cancel()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Debugf(ctx, "ignoring malformed client message: %v", err)
			continue
		}
		if msg.Type == MsgCancel {
			if err := s.store.Cancel(sessionID); err != nil {
				log.Error(ctx, err, log.KV{K: "msg", V: "ws cancel failed"})
			}
		}
	}
}

func (s *Server) writePump(ctx context.Context, conn *websocket.Conn, events <-chan analysis.Event, cancel context.CancelFunc) {
	for ev := range events {
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(WSMessage{Type: ev.Kind, Payload: ev.Payload}); err != nil {
			log.Error(ctx, err, log.KV{K: "msg", V: "ws write failed"})
			cancel()
			for range events {
			}
			return
		}
	}
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"))
}

func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}

	host := parsed.Host
	if host == r.Host {
		return true
	}
	for _, local := range []string{"localhost", "127.0.0.1", "[::1]"} {
		if host == local || strings.HasPrefix(host, local+":") {
			return true
		}
	}
	return false
}
