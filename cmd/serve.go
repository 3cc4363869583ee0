package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/enrichment-worker/internal/model"
	"github.com/sells-group/enrichment-worker/internal/store"
	"github.com/sells-group/enrichment-worker/internal/worker"
)

// maxRequestBytes bounds an /enrich request body.
const maxRequestBytes = 10 << 20

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the enrichment trigger server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		exec := worker.NewExecutor(ctx, cfg.Worker.Concurrency, cfg.Worker.QueueSize)
		router := buildRouter(newAPI(cfg.Server.Secret, env.Store, env.Coordinator, exec))

		return serve(ctx, router, exec, resolvePort(servePort, cfg.Server.Port), seconds(cfg.Worker.DrainTimeoutSecs))
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// jobRunner drives one enrichment request to a terminal state.
type jobRunner interface {
	Run(ctx context.Context, req model.EnrichRequest) model.EnrichmentJob
}

// taskSubmitter queues background work without blocking.
type taskSubmitter interface {
	Submit(t worker.Task) error
	Pending() int
}

// api holds the handler dependencies for the trigger server.
type api struct {
	secret string
	jobs   store.JobStore
	runner jobRunner
	tasks  taskSubmitter

	mu       sync.Mutex
	inflight map[int64]bool
}

func newAPI(secret string, jobs store.JobStore, runner jobRunner, tasks taskSubmitter) *api {
	return &api{
		secret:   secret,
		jobs:     jobs,
		runner:   runner,
		tasks:    tasks,
		inflight: make(map[int64]bool),
	}
}

// buildRouter wires the middleware stack and routes.
func buildRouter(a *api) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(a.requireAuth)
		r.Post("/enrich", a.handleEnrich)
		r.Get("/jobs/{id}", a.handleGetJob)
	})

	return r
}

func (a *api) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !authorized(r.Header.Get("Authorization"), a.secret) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authorized compares a Bearer token with secret in constant time. An empty
// secret authorizes nothing.
func authorized(header, secret string) bool {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(secret)) == 1
}

func (a *api) handleEnrich(w http.ResponseWriter, r *http.Request) {
	var req model.EnrichRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	log := zap.L().With(
		zap.Int64("job_id", req.JobID),
		zap.String("search_id", req.SearchID),
		zap.String("request_id", middleware.GetReqID(r.Context())),
	)

	if !a.claim(req.JobID) {
		writeError(w, http.StatusConflict, "job already running")
		return
	}

	if err := a.jobs.EnsureJob(r.Context(), req.JobID, req.SearchID, len(req.Businesses)); err != nil {
		a.release(req.JobID)
		log.Error("serve: ensure job failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not record job")
		return
	}
	job, err := a.jobs.GetJob(r.Context(), req.JobID)
	if err != nil {
		a.release(req.JobID)
		log.Error("serve: load job failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not record job")
		return
	}
	if job.Status != model.JobStatusPending {
		a.release(req.JobID)
		writeError(w, http.StatusConflict, fmt.Sprintf("job is %s", job.Status))
		return
	}

	err = a.tasks.Submit(func(ctx context.Context) {
		defer a.release(req.JobID)
		a.runner.Run(ctx, req)
	})
	if err != nil {
		a.release(req.JobID)
		log.Warn("serve: job rejected", zap.Error(err))
		msg := "queue full"
		if errors.Is(err, worker.ErrClosed) {
			msg = "shutting down"
		}
		writeError(w, http.StatusServiceUnavailable, msg)
		return
	}

	log.Info("serve: job accepted",
		zap.Int("total", len(req.Businesses)),
		zap.Int("queued", a.tasks.Pending()),
	)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status": "accepted",
		"job_id": req.JobID,
	})
}

func (a *api) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	job, err := a.jobs.GetJob(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		zap.L().Error("serve: get job failed", zap.Int64("job_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not load job")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// claim marks jobID as in flight in this process. It reports false when the
// job is already claimed.
func (a *api) claim(jobID int64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.inflight[jobID] {
		return false
	}
	a.inflight[jobID] = true
	return true
}

func (a *api) release(jobID int64) {
	a.mu.Lock()
	delete(a.inflight, jobID)
	a.mu.Unlock()
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// resolvePort prefers the flag value over the configured port.
func resolvePort(flagPort, cfgPort int) int {
	if flagPort != 0 {
		return flagPort
	}
	return cfgPort
}

// drainer stops intake and waits for queued work.
type drainer interface {
	Shutdown(ctx context.Context) error
}

// serve runs the HTTP server until ctx is done, then drains the executor
// for at most drain.
func serve(ctx context.Context, handler http.Handler, exec drainer, port int, drain time.Duration) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return startServer(gctx, handler, port)
	})
	g.Go(func() error {
		<-gctx.Done()
		drainCtx := context.Background()
		if drain > 0 {
			var cancel context.CancelFunc
			drainCtx, cancel = context.WithTimeout(drainCtx, drain)
			defer cancel()
		}
		zap.L().Info("draining executor", zap.Duration("timeout", drain))
		return exec.Shutdown(drainCtx)
	})

	return g.Wait()
}

// startServer listens on port until ctx is done and shuts down gracefully.
func startServer(ctx context.Context, handler http.Handler, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("starting server", zap.Int("port", port))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	case <-ctx.Done():
	}

	zap.L().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "server shutdown")
	}
	return nil
}
