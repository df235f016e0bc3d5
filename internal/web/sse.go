package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"goa.design/clue/log"

	"github.com/ratemysite/backend/internal/analysis"
)

// EncodeSSE writes ev as one server-sent event frame.
func EncodeSSE(w io.Writer, ev analysis.Event) error {
	data, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", ev.Kind, err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data)
	return err
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	run, err := s.orch.Start(ctx, r.URL.Query()["u"])
	if err != nil {
		writeError(w, http.StatusBadRequest, inputError(err))
		return
	}
	ctx = log.With(ctx, log.KV{K: "session", V: run.SessionID()})

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	frame := func(write func() error) error {
		if err := write(); err != nil {
			return err
		}
		return rc.Flush()
	}

	ping := time.NewTicker(s.keepAlive)
	defer ping.Stop()

	events := run.Events()
	for {
		var err error
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			err = frame(func() error { return EncodeSSE(w, ev) })
		case <-ping.C:
			err = frame(func() error {
				_, err := io.WriteString(w, ": keep-alive\n\n")
				return err
			})
		}
		if err != nil {
			log.Error(ctx, err, log.KV{K: "msg", V: "sse write failed"})
			cancel()
			for range events {
			}
			return
		}
	}
}
