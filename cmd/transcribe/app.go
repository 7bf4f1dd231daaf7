package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"survey-insights-go/internal/batch"
	"survey-insights-go/internal/config"
	"survey-insights-go/internal/dataset"
	"survey-insights-go/internal/logger"
	"survey-insights-go/internal/storage"
	"survey-insights-go/internal/store"
	"survey-insights-go/internal/transcription"
	"survey-insights-go/internal/types"
)

// app holds what every command needs once flags and config are resolved.
type app struct {
	cfg *config.Config
	log *logger.Logger
}

func newApp() (*app, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	log := logger.NewWithLevel(cfg.Log.Level)
	log.WithField("service", "survey-insights-go").Debug("configuration loaded")
	return &app{cfg: cfg, log: log}, nil
}

func (a *app) jobConfig() types.JobConfig {
	return types.JobConfig{
		Model:        a.cfg.Batch.Model,
		LanguageCode: a.cfg.Batch.LanguageCode,
		Mode:         a.cfg.Batch.Mode,
	}
}

func (a *app) client() (*transcription.Client, error) {
	if a.cfg.Sarvam.APIKey == "" {
		return nil, errors.New("SARVAM_API_KEY is not set")
	}
	return transcription.NewClient(a.cfg.Sarvam.BaseURL, a.cfg.Sarvam.APIKey,
		transcription.WithHTTPClient(&http.Client{Timeout: a.cfg.Sarvam.HTTPTimeout}),
		transcription.WithMaxRetryTime(a.cfg.Sarvam.MaxRetryTime),
		transcription.WithLogger(a.log.Entry),
	), nil
}

// openStore returns nil when persistence is disabled.
func (a *app) openStore() (*store.Store, error) {
	if a.cfg.Store.Path == "" {
		return nil, nil
	}
	db, err := store.InitDB(a.cfg.Store.Path, a.log.Component("store"))
	if err != nil {
		return nil, fmt.Errorf("initializing data store: %w", err)
	}
	return store.NewStore(db), nil
}

func (a *app) orchestrator(svc batch.Service, runID string, st *store.Store) *batch.Orchestrator {
	opts := []batch.Option{batch.WithLogger(a.log.Component("orchestrator"))}
	if st != nil {
		opts = append(opts, batch.WithStore(st))
	}
	return batch.New(svc, batch.Options{
		RunID:        runID,
		MaxChunkSize: a.cfg.Batch.MaxChunkSize,
		PollInterval: a.cfg.Batch.PollInterval(),
		PollTimeout:  a.cfg.Batch.PollTimeout(),
		SubmitPause:  a.cfg.Batch.SubmitPause,
		OutputDir:    a.cfg.Batch.OutputDir,
		Job:          a.jobConfig(),
	}, opts...)
}

func (a *app) loadCatalog() ([]types.WorkItem, error) {
	log := a.log.WithField("dataset_path", a.cfg.Dataset.CatalogPath)
	log.Info("loading work catalog")
	items, err := dataset.Load(a.cfg.Dataset.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	log.WithField("items", len(items)).Info("work catalog loaded")
	return items, nil
}

// finish writes the result dataset, logs its summary and publishes it when an
// object store is configured.
func (a *app) finish(ctx context.Context, runID string, records []types.AggregatedRecord) error {
	path := a.cfg.Dataset.ResultPath
	if err := dataset.Write(path, records); err != nil {
		return fmt.Errorf("write result dataset: %w", err)
	}
	log := a.log.WithField("run_id", runID).WithField("result_path", path)
	dataset.Summarize(records).Log(log)

	osCfg := a.cfg.ObjectStore
	if osCfg.Endpoint == "" {
		return nil
	}
	pub, err := storage.NewPublisher(
		storage.WithEndpoint(osCfg.Endpoint),
		storage.WithBucket(osCfg.Bucket),
		storage.WithAccessKey(osCfg.AccessKey),
		storage.WithSecretKey(osCfg.SecretKey),
		storage.WithSSL(osCfg.UseSSL),
	)
	if err != nil {
		return fmt.Errorf("object store: %w", err)
	}
	loc, err := pub.Publish(ctx, path, runID)
	if err != nil {
		return err
	}
	log.WithField("location", loc).Info("result dataset published")
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
}

// serveMetrics exposes /metrics on addr until the returned func is called.
func serveMetrics(addr string, log *logrus.Entry) func() {
	if addr == "" {
		return func() {}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.WithField("addr", addr).Info("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("metrics server terminated")
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
