// Package control exposes the HTTP surface that starts, stops and inspects
// the monitor, and accepts manual access-code entry.
package control

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/xkilldash9x/casewatch/api/schemas"
	"github.com/xkilldash9x/casewatch/internal/config"
)

// Runner is the monitor lifecycle as the control surface sees it.
type Runner interface {
	Run(ctx context.Context) error
	RunOnce(ctx context.Context) error
	Status() schemas.Status
}

// Factory builds a runner bound to the given credentials and manual-code
// slot. The returned cleanup releases the browser session.
type Factory func(creds schemas.Credentials, slot *CodeSlot) (Runner, func(), error)

// Server is the control surface. One runner exists at a time; starting while
// the loop runs is rejected rather than stacked.
type Server struct {
	factory Factory
	cfg     config.ControlConfig
	logger  *zap.Logger
	slot    *CodeSlot

	mu      sync.Mutex
	runner  Runner
	cleanup func()
	cancel  context.CancelFunc
	done    chan struct{}

	httpSrv *http.Server
}

func NewServer(factory Factory, cfg config.ControlConfig, logger *zap.Logger) *Server {
	s := &Server{
		factory: factory,
		cfg:     cfg,
		logger:  logger.Named("control"),
		slot:    NewCodeSlot(),
	}

	r := mux.NewRouter()
	r.HandleFunc("/api/start", s.handleStart).Methods(http.MethodPost)
	r.HandleFunc("/api/stop", s.handleStop).Methods(http.MethodPost)
	r.HandleFunc("/api/run-once", s.handleRunOnce).Methods(http.MethodPost)
	r.HandleFunc("/api/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/captcha", s.handleCode).Methods(http.MethodPost)

	s.httpSrv = &http.Server{Addr: cfg.ListenAddr, Handler: r}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.httpSrv.Handler }

// ListenAndServe blocks serving the control surface.
func (s *Server) ListenAndServe() error {
	s.logger.Info("Control surface listening", zap.String("addr", s.cfg.ListenAddr))
	return s.httpSrv.ListenAndServe()
}

// Shutdown stops the loop, releases the browser and closes the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.stopLocked()
	s.releaseLocked()
	s.mu.Unlock()
	return s.httpSrv.Shutdown(ctx)
}

// running reports whether the loop goroutine is alive. Callers hold mu.
func (s *Server) runningLocked() bool {
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// stopLocked cancels the loop and waits for it to drain. Callers hold mu.
func (s *Server) stopLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.done != nil {
		<-s.done
		s.done = nil
	}
}

// releaseLocked tears down the runner and its browser session. Callers hold mu
// and have already drained the loop.
func (s *Server) releaseLocked() {
	if s.cleanup != nil {
		s.cleanup()
	}
	s.cleanup = nil
	s.runner = nil
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req schemas.StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond(w, http.StatusBadRequest, schemas.APIResponse{Message: "invalid request body"})
		return
	}
	if req.Username == "" || req.Password == "" {
		respond(w, http.StatusBadRequest, schemas.APIResponse{Message: "username and password required"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.runningLocked() {
		respond(w, http.StatusConflict, schemas.APIResponse{Message: "monitor is already running"})
		return
	}

	// A leftover runner here means the previous loop ended on its own, most
	// likely on a dead browser. Discard it and start from a fresh session.
	s.releaseLocked()

	runner, cleanup, err := s.factory(
		schemas.Credentials{Username: req.Username, Password: req.Password}, s.slot)
	if err != nil {
		s.logger.Error("Failed to build monitor", zap.Error(err))
		respond(w, http.StatusInternalServerError, schemas.APIResponse{Message: err.Error()})
		return
	}
	s.runner = runner
	s.cleanup = cleanup

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	done := s.done
	go func() {
		defer close(done)
		if err := runner.Run(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("Monitor loop ended", zap.Error(err))
		}
	}()

	respond(w, http.StatusOK, schemas.APIResponse{Success: true, Message: "monitor started"})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.runningLocked() && s.runner == nil {
		respond(w, http.StatusOK, schemas.APIResponse{Message: "monitor is not running"})
		return
	}
	s.stopLocked()
	s.releaseLocked()
	respond(w, http.StatusOK, schemas.APIResponse{Success: true, Message: "monitor stopped"})
}

func (s *Server) handleRunOnce(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.runner == nil {
		respond(w, http.StatusConflict, schemas.APIResponse{Message: "monitor not started yet"})
		return
	}
	if s.runningLocked() {
		respond(w, http.StatusConflict, schemas.APIResponse{Message: "monitor loop is running"})
		return
	}

	if err := s.runner.RunOnce(r.Context()); err != nil {
		respond(w, http.StatusOK, schemas.APIResponse{Message: err.Error()})
		return
	}
	respond(w, http.StatusOK, schemas.APIResponse{Success: true, Message: "cycle completed"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	runner := s.runner
	s.mu.Unlock()

	if runner == nil {
		respond(w, http.StatusOK, schemas.Status{Session: schemas.SessionUnauthenticated})
		return
	}
	respond(w, http.StatusOK, runner.Status())
}

func (s *Server) handleCode(w http.ResponseWriter, r *http.Request) {
	var req schemas.CodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		respond(w, http.StatusBadRequest, schemas.APIResponse{Message: "code required"})
		return
	}
	s.slot.Fill(req.Code)
	respond(w, http.StatusOK, schemas.APIResponse{Success: true, Message: "code accepted"})
}

func respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
