// Package server runs the snap-prune agent: an HTTP control surface plus a
// cron schedule that trigger pruning runs against the configured hosts.
package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/valve"
	"github.com/jpillora/backoff"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/snapsync/snap-prune/pkg/pruner"
)

const scheduledRunAttempts = 3

// Server defines parameters for running the snap-prune agent.
type Server struct {
	Addr        string
	router      *chi.Mux
	runner      *pruner.Runner
	schedule    string
	cron        *cron.Cron
	useUnixSock bool

	mu         sync.Mutex
	running    bool
	lastReport *pruner.Report
	lastError  string

	// signal chan use for testing.
	testSignalCh chan os.Signal

	logger *zap.Logger
}

// New creates new server instance.
func New(opts ...Option) (*Server, error) {
	s := &Server{}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	s.router = chi.NewRouter()

	if s.logger == nil {
		l, err := zap.NewDevelopment()
		if err != nil {
			return nil, err
		}
		s.logger = l
	}

	s.setupRoutes()
	s.useUnixSock = strings.HasPrefix(s.Addr, "unix://")
	s.Addr = strings.TrimPrefix(s.Addr, "unix://")

	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.Route("/prune", func(r chi.Router) {
		r.Post("/", s.Prune)
	})
	s.router.Get("/status", s.Status)
	s.router.Get("/healthz", s.Healthz)
}

type pruneRequest struct {
	DryRun *bool `json:"dry_run"`
}

// Prune triggers one pruning run. Runs are serialized; a run already in
// progress yields 409.
func (s *Server) Prune(w http.ResponseWriter, r *http.Request) {
	var req pruneRequest
	if r.Body != nil {
		// An empty body means "use the configured dry-run setting".
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		http.Error(w, "a pruning run is already in progress", http.StatusConflict)
		return
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	runner := *s.runner
	if req.DryRun != nil {
		runner.DryRun = *req.DryRun
	}

	report, err := runner.Run(r.Context())
	s.recordRun(report, err)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(report)
}

// Status reports the last run.
func (s *Server) Status(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	resp := struct {
		Running    bool           `json:"running"`
		LastError  string         `json:"last_error,omitempty"`
		LastReport *pruner.Report `json:"last_report,omitempty"`
	}{
		Running:    s.running,
		LastError:  s.lastError,
		LastReport: s.lastReport,
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// Healthz is the liveness endpoint.
func (s *Server) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) recordRun(report *pruner.Report, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastReport = report
	s.lastError = ""
	if err != nil {
		s.lastError = err.Error()
	}
}

// scheduledRun is invoked by cron. A failed run is retried a few times with
// jittered backoff before giving up until the next schedule fire.
func (s *Server) scheduledRun(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn("skipping scheduled run, previous run still in progress")
		return
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	b := &backoff.Backoff{Jitter: true}
	for attempt := 1; attempt <= scheduledRunAttempts; attempt++ {
		report, err := s.runner.Run(ctx)
		s.recordRun(report, err)
		if err == nil {
			s.logger.Info("scheduled pruning run finished",
				zap.Int("failed_deletions", report.TotalFailed()))
			return
		}
		s.logger.Error("scheduled pruning run failed",
			zap.Int("attempt", attempt), zap.Error(err))
		if ctx.Err() != nil {
			return
		}
		time.Sleep(b.Duration())
	}
}

// Run starts the schedule and serves the control API until SIGINT/SIGTERM.
func (s *Server) Run() error {
	// Graceful valve shut-off package to manage code preemption and shutdown signaling.
	valv := valve.New()
	baseCtx := valv.Context()

	if s.schedule != "" {
		s.cron = cron.New()
		if _, err := s.cron.AddFunc(s.schedule, func() { s.scheduledRun(baseCtx) }); err != nil {
			return err
		}
		s.cron.Start()
		s.logger.Info("pruning schedule active", zap.String("schedule", s.schedule))
	}

	srv := http.Server{Handler: chi.ServerBaseContext(baseCtx, s.router)}

	c := make(chan os.Signal, 1)
	if s.testSignalCh != nil {
		c = s.testSignalCh
	}
	signal.Notify(c, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-c
		s.logger.Info("shutting down...")

		if s.cron != nil {
			<-s.cron.Stop().Done()
		}

		if err := valv.Shutdown(20 * time.Second); err != nil {
			s.logger.Error("failed to shutdown valv")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			s.logger.Error("failed to shutdown http server")
		}

		select {
		case <-time.After(21 * time.Second):
			s.logger.Error("not all connections done")
		case <-ctx.Done():
		}
	}()

	if s.useUnixSock {
		unixListener, err := net.Listen("unix", s.Addr)
		if err != nil {
			return err
		}
		return srv.Serve(unixListener)
	}

	srv.Addr = s.Addr
	return srv.ListenAndServe()
}
