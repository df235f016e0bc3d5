package web

import (
	"errors"
	"net/http"
	"strconv"

	"goa.design/clue/log"

	"github.com/ratemysite/backend/internal/export"
	"github.com/ratemysite/backend/internal/monitor"
	"github.com/ratemysite/backend/internal/scoring"
	"github.com/ratemysite/backend/internal/session"
)

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	snap, err := s.store.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.Cancel(id); err != nil {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	log.Print(r.Context(), log.KV{K: "msg", V: "cancel requested"}, log.KV{K: "session", V: id})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	results, err := s.store.Results(id)
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, "Session not found or expired")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	case len(results) == 0:
		writeError(w, http.StatusBadRequest, "No results available for download")
		return
	}

	data, err := export.Excel(results, scoring.Rows)
	if err != nil {
		log.Error(r.Context(), err, log.KV{K: "msg", V: "excel export failed"}, log.KV{K: "session", V: id})
		writeError(w, http.StatusInternalServerError, "Failed to generate Excel file")
		return
	}

	h := w.Header()
	h.Set("Content-Type", export.ContentType)
	h.Set("Content-Disposition", `attachment; filename="`+export.Filename(s.now(), id)+`"`)
	h.Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

type sessionCounts struct {
	Total  int `json:"total"`
	Active int `json:"active"`
}

type healthResponse struct {
	Status   string                  `json:"status"`
	App      string                  `json:"app"`
	Sessions sessionCounts           `json:"sessions"`
	Scorer   *monitor.HealthSnapshot `json:"scorer,omitempty"`
	RSSBytes uint64                  `json:"rss_bytes,omitempty"`
}

// handleHealth always answers 200 while the process serves requests. Status
// turns "degraded" once the scorer has failed repeatedly.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status: "healthy",
		App:    AppName,
		Sessions: sessionCounts{
			Total:  s.store.Len(),
			Active: s.store.ActiveCount(),
		},
	}
	if s.health != nil {
		snap := s.health.Snapshot()
		resp.Scorer = &snap
		if snap.Status == monitor.StatusFailed {
			resp.Status = "degraded"
		}
	}
	if s.sampler != nil {
		if rss, err := s.sampler.RSS(); err == nil {
			resp.RSSBytes = rss
		} else {
			log.Debugf(r.Context(), "rss sample failed: %v", err)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
