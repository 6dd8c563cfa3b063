package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/postwatch/postwatch/internal/model"
	"github.com/postwatch/postwatch/internal/pipeline"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Server is the admin API server
type Server struct {
	cfg  ServerCfg
	svc  Service
	log  *zap.Logger
	http *http.Server
}

// ServerCfg is the configuration for the API server
type ServerCfg struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Service is the application surface the API exposes
type Service interface {
	Start(ctx context.Context)
	Stop()
	Pending(ctx context.Context, limit int) ([]model.PendingPost, error)
	Errors(ctx context.Context, limit int) ([]model.ErrorRecord, error)
	Accounts(ctx context.Context) ([]model.AccountCursor, error)
	TriggerPoll(ctx context.Context) (pipeline.Summary, error)
	TriggerDeliver(ctx context.Context) (int, error)
	Pause()
	Resume()
	Paused() bool
	Healthy(ctx context.Context) error
}

// NewServer creates a new API server
// and registers the routes
func NewServer(cfg ServerCfg, svc Service, log *zap.Logger) *Server {
	r := mux.NewRouter()
	s := &Server{
		cfg: cfg,
		svc: svc,
		log: log,
	}

	// health check
	r.HandleFunc("/healthz", s.healthz).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/pending", s.listPending).Methods("GET")
	api.HandleFunc("/errors", s.listErrors).Methods("GET")
	api.HandleFunc("/accounts", s.listAccounts).Methods("GET")
	api.HandleFunc("/poller/pause", s.pausePoller).Methods("POST")
	api.HandleFunc("/poller/resume", s.resumePoller).Methods("POST")
	api.HandleFunc("/run/poll", s.runPoll).Methods("POST")
	api.HandleFunc("/run/deliver", s.runDeliver).Methods("POST")

	s.http = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Handler exposes the configured router, used by tests
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Start starts the API server
// and the background service
func (s *Server) Start() error {
	s.log.Info("API server starting...")
	s.svc.Start(context.Background())
	s.log.Info("http server listening", zap.String("addr", s.http.Addr))
	return s.http.ListenAndServe()
}

// Shutdown shuts down the API server
// and the background service
func (s *Server) Shutdown(ctx context.Context) error {
	s.svc.Stop()
	return s.http.Shutdown(ctx)
}
