package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bryanchriswhite/FrameTap/internal/config"
	"github.com/bryanchriswhite/FrameTap/internal/logger"
	"github.com/bryanchriswhite/FrameTap/internal/output"
	"github.com/bryanchriswhite/FrameTap/internal/recorder"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Controller is the recorder surface the API drives
type Controller interface {
	Start() error
	Stop() error
	Running() bool
	SessionID() string
	Kind() recorder.Kind
	Stats() (sent, dropped uint64)
	Err() error
}

// Status is the recorder state reported by the API
type Status struct {
	Backend   string `json:"backend"`
	SessionID string `json:"session_id"`
	Running   bool   `json:"running"`
	Sent      uint64 `json:"frames_sent"`
	Dropped   uint64 `json:"frames_dropped"`
	Error     string `json:"error,omitempty"`
}

// Server represents the HTTP API server
type Server struct {
	router    *mux.Router
	rec       Controller
	configMgr *config.Manager
	mjpeg     *output.MJPEGOutput
	upgrader  websocket.Upgrader
	http      *http.Server
	log       *zerolog.Logger

	// StatsInterval is the period of the websocket status feed
	StatsInterval time.Duration
}

// NewServer creates a new API server. configMgr and mjpeg may be nil.
func NewServer(rec Controller, configMgr *config.Manager, mjpeg *output.MJPEGOutput) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		rec:       rec,
		configMgr: configMgr,
		mjpeg:     mjpeg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for local viewers
			},
		},
		log:           logger.WithComponent("api"),
		StatsInterval: time.Second,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	// Recorder control
	api.HandleFunc("/recorder/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/recorder/start", s.handleStart).Methods("POST")
	api.HandleFunc("/recorder/stop", s.handleStop).Methods("POST")
	api.HandleFunc("/recorder/events", s.handleEvents)

	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")
	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	if s.mjpeg != nil {
		s.router.HandleFunc("/stream", s.mjpeg.GetHTTPHandler())
		s.router.HandleFunc("/stats", s.mjpeg.GetStatsHandler()).Methods("GET")
		s.router.HandleFunc("/", s.mjpeg.GetViewerHandler()).Methods("GET")
	}
}

// Handler returns the root handler with CORS applied
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

// Start serves the API on port until Shutdown
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.http = &http.Server{Addr: addr, Handler: s.Handler()}
	s.log.Info().Str("addr", "http://localhost"+addr).Msg("Starting HTTP server")

	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// enableCORS adds CORS headers
func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) status() Status {
	sent, dropped := s.rec.Stats()
	st := Status{
		Backend:   s.rec.Kind().String(),
		SessionID: s.rec.SessionID(),
		Running:   s.rec.Running(),
		Sent:      sent,
		Dropped:   dropped,
	}
	if err := s.rec.Err(); err != nil {
		st.Error = err.Error()
	}
	return st
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// HTTP Handlers

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.rec.Start(); err != nil {
		s.controlError(w, "start", err)
		return
	}
	s.log.Info().Str("session", s.rec.SessionID()).Msg("Recorder started via API")
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.rec.Stop(); err != nil {
		s.controlError(w, "stop", err)
		return
	}
	s.log.Info().Str("session", s.rec.SessionID()).Msg("Recorder stopped via API")
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) controlError(w http.ResponseWriter, op string, err error) {
	code := http.StatusInternalServerError
	if errors.Is(err, recorder.ErrClosed) {
		code = http.StatusConflict
	}
	s.log.Warn().Err(err).Str("op", op).Msg("Recorder control failed")
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// handleEvents streams Status snapshots over a websocket until the
// client goes away
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	// Reader detects the client closing
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.StatsInterval)
	defer ticker.Stop()

	for {
		if err := conn.WriteJSON(s.status()); err != nil {
			s.log.Debug().Err(err).Msg("WebSocket write failed")
			return
		}
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if s.configMgr == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no configuration loaded"})
		return
	}
	writeJSON(w, http.StatusOK, s.configMgr.Get())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}
