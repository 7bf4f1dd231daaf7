package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"survey-insights-go/internal/config"
	"survey-insights-go/internal/logger"
	"survey-insights-go/internal/store"
	"survey-insights-go/internal/types"
)

// runStore is the read side of the job store served by the API.
type runStore interface {
	ListRuns(ctx context.Context) ([]store.RunSummary, error)
	ListJobs(ctx context.Context, runID string) ([]types.Job, error)
}

func main() {
	_ = godotenv.Load() // loads .env

	cfg, err := config.Load(envOr("CONFIG_FILE", ""))
	if err != nil {
		logger.New().WithError(err).Fatal("failed to load configuration")
	}
	log := logger.NewWithLevel(cfg.Log.Level)
	log.WithField("service", "survey-insights-go").Info("starting status api")

	if cfg.Store.Path == "" {
		log.Fatal("STORE_PATH must point at the job store")
	}
	log.WithField("store_path", cfg.Store.Path).Info("opening job store")
	db, err := store.InitDB(cfg.Store.Path, log.Component("store"))
	if err != nil {
		log.WithError(err).Fatal("failed to open job store")
	}
	st := store.NewStore(db)
	defer st.Close()

	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      newRouter(st, log),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.WithField("addr", addr).Info("listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Fatal("server terminated")
	}
	log.Info("status api stopped")
}

func newRouter(st runStore, log *logger.Logger) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID, middleware.Recoverer)

	// health
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		log.WithRequest(r).Debug("health check")
		fmt.Fprint(w, "ok")
	})

	router.Handle("/metrics", promhttp.Handler())

	router.Get("/runs", func(w http.ResponseWriter, r *http.Request) {
		reqLog := log.WithRequest(r).WithField("handler", "runs")
		runs, err := st.ListRuns(r.Context())
		if err != nil {
			reqLog.WithError(err).Error("list runs failed")
			http.Error(w, "store error", http.StatusInternalServerError)
			return
		}
		if runs == nil {
			runs = []store.RunSummary{}
		}
		writeJSON(w, runs, reqLog)
	})

	router.Get("/runs/{runID}/jobs", func(w http.ResponseWriter, r *http.Request) {
		runID := chi.URLParam(r, "runID")
		reqLog := log.WithRequest(r).WithField("handler", "jobs").WithField("run_id", runID)
		jobs, err := st.ListJobs(r.Context(), runID)
		if err != nil {
			reqLog.WithError(err).Error("list jobs failed")
			http.Error(w, "store error", http.StatusInternalServerError)
			return
		}
		if len(jobs) == 0 {
			reqLog.Warn("unknown run")
			http.Error(w, "run not found", http.StatusNotFound)
			return
		}
		writeJSON(w, jobs, reqLog)
	})

	return router
}

func writeJSON(w http.ResponseWriter, v any, log *logrus.Entry) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.WithError(err).Error("failed to write response")
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
