package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/postwatch/postwatch/internal/pipeline"

	"go.uber.org/zap"
)

const (
	DefaultLimitPending = 50
	DefaultLimitErrors  = 50
)

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Healthy(r.Context()); err != nil {
		s.log.Error("healthz: store unreachable", zap.Error(err))
		http.Error(w, "store unreachable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) listPending(w http.ResponseWriter, r *http.Request) {
	s.log.Debug("listPending API called")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = DefaultLimitPending
	}
	items, err := s.svc.Pending(r.Context(), limit)
	if err != nil {
		s.log.Error("listPending: db error", zap.Error(err))
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	s.log.Debug("listPending: success", zap.Int("count", len(items)))
	_ = json.NewEncoder(w).Encode(items)
}

func (s *Server) listErrors(w http.ResponseWriter, r *http.Request) {
	s.log.Debug("listErrors API called")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = DefaultLimitErrors
	}
	recs, err := s.svc.Errors(r.Context(), limit)
	if err != nil {
		s.log.Error("listErrors: db error", zap.Error(err))
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(recs)
}

func (s *Server) listAccounts(w http.ResponseWriter, r *http.Request) {
	s.log.Debug("listAccounts API called")
	cursors, err := s.svc.Accounts(r.Context())
	if err != nil {
		s.log.Error("listAccounts: db error", zap.Error(err))
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(cursors)
}

func (s *Server) pausePoller(w http.ResponseWriter, r *http.Request) {
	s.log.Debug("pausePoller API called")
	s.svc.Pause()
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("poller paused"))
}

func (s *Server) resumePoller(w http.ResponseWriter, r *http.Request) {
	s.log.Debug("resumePoller API called")
	s.svc.Resume()
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("poller resumed"))
}

func (s *Server) runPoll(w http.ResponseWriter, r *http.Request) {
	s.log.Debug("runPoll API called")
	sum, err := s.svc.TriggerPoll(r.Context())
	switch {
	case errors.Is(err, pipeline.ErrCoolingDown):
		http.Error(w, "cooling down after rate limit", http.StatusConflict)
		return
	case errors.Is(err, pipeline.ErrNoAccounts):
		http.Error(w, "no accounts configured", http.StatusUnprocessableEntity)
		return
	case err != nil:
		s.log.Error("runPoll: failed", zap.Error(err))
		http.Error(w, "poll failed", http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(sum)
}

func (s *Server) runDeliver(w http.ResponseWriter, r *http.Request) {
	s.log.Debug("runDeliver API called")
	n, err := s.svc.TriggerDeliver(r.Context())
	if err != nil {
		s.log.Error("runDeliver: failed", zap.Int("delivered", n), zap.Error(err))
		http.Error(w, "delivery failed", http.StatusBadGateway)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]int{"delivered": n})
}
