package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kondrup/gdprscan/internal/bootstrap"
	"github.com/kondrup/gdprscan/internal/config"
	"github.com/kondrup/gdprscan/internal/core/domain"
	"github.com/kondrup/gdprscan/internal/observability/metrics"
)

const serviceName = "gdprscan-worker"

func main() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	metricsServer := &http.Server{
		Addr:    ":" + cfg.MetricsPort,
		Handler: workerMetrics.Handler(),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("metrics server error: %v", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	app.Logger.Info("worker_started", "subject", cfg.NATSSubject, "metrics_port", cfg.MetricsPort)
	err = app.Queue.SubscribeDocumentJobs(ctx, func(handlerCtx context.Context, job domain.DocumentJob) error {
		processCtx, cancel := context.WithTimeout(handlerCtx, 5*time.Minute)
		defer cancel()

		workerMetrics.StartDocument()
		workerMetrics.ObserveQueueLag(serviceName, time.Since(job.Timestamp))
		started := time.Now()
		processErr := app.ProcessUC.Process(processCtx, job)
		workerMetrics.FinishDocument(serviceName, time.Since(started), processErr)
		return processErr
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}
}
