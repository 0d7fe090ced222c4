package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/civiclens/planrag/internal/bootstrap"
	"github.com/civiclens/planrag/internal/config"
	"github.com/civiclens/planrag/internal/core/domain"
	"github.com/civiclens/planrag/internal/observability/logging"
	"github.com/civiclens/planrag/internal/observability/metrics"
)

const serviceName = "planrag-translator"

const jobTimeout = 5 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.NewJSONLogger(serviceName, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap error", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	translatorMetrics := metrics.NewTranslatorMetrics(serviceName)
	metricsServer := &http.Server{
		Addr:    ":" + cfg.TranslatorMetricsPort,
		Handler: translatorMetrics.Handler(),
	}
	go func() {
		slog.Info("translator metrics listening", "port", cfg.TranslatorMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	slog.Info("translator subscribed", "subject", cfg.NATSJobsSubject)
	err = app.Queue.SubscribeTranslationJobs(ctx, func(handlerCtx context.Context, job domain.TranslationJob) error {
		jobCtx, cancel := context.WithTimeout(handlerCtx, jobTimeout)
		defer cancel()
		return handleJob(jobCtx, app, translatorMetrics, job)
	})
	if err != nil {
		slog.Error("translator subscribe error", "error", err)
		os.Exit(1)
	}
}

func handleJob(ctx context.Context, app *bootstrap.App, m *metrics.TranslatorMetrics, job domain.TranslationJob) error {
	start := time.Now()
	m.StartJob()

	items, err := app.Translator.TranslateBatch(ctx, job.Questions, job.MunicipalityID)
	if err != nil {
		m.FinishJob(serviceName, time.Since(start), err)
		return err
	}

	translated := 0
	for _, item := range items {
		if item.Translated != item.Original {
			translated++
		}
	}
	m.RecordItems(serviceName, "translated", translated)
	m.RecordItems(serviceName, "kept_original", len(items)-translated)

	err = app.Queue.PublishTranslationResult(ctx, domain.TranslationJobResult{
		JobID: job.ID,
		Items: items,
	})
	m.FinishJob(serviceName, time.Since(start), err)
	if err != nil {
		return err
	}

	slog.Info("translation_job_done",
		"job_id", job.ID,
		"municipality_id", job.MunicipalityID,
		"items", len(items),
		"translated", translated,
		"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
	)
	return nil
}
