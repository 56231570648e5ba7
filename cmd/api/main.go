package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/bizledger/internal/api"
	"github.com/dvloznov/bizledger/internal/app"
	"github.com/dvloznov/bizledger/internal/audit"
	"github.com/dvloznov/bizledger/internal/config"
	"github.com/dvloznov/bizledger/internal/jobs/inmemory"
	"github.com/dvloznov/bizledger/internal/logger"
	"github.com/dvloznov/bizledger/internal/receipts"
)

func main() {
	port := flag.String("port", "", "HTTP server port (overrides PORT)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		l := logger.New()
		l.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *port != "" {
		cfg.Server.Port = *port
	}

	log := logger.NewWithLevel(cfg.Logger.Level)
	ctx := logger.WithContext(context.Background(), log)

	store, err := app.NewLedger(ctx, cfg.Ledger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open ledger")
	}
	defer store.Close()

	// Receipt archiving is optional
	var uploader audit.ReceiptUploader
	if cfg.Audit.ReceiptsBucket != "" {
		archive, err := receipts.NewArchive(ctx, cfg.Audit.ReceiptsBucket)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create receipt archive")
		}
		defer archive.Close()
		uploader = archive
	} else {
		log.Warn().Msg("No RECEIPTS_BUCKET configured - receipt images will not be archived")
	}

	// Audit queue
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(cfg.Audit.QueueSize, cfg.Audit.Workers, jobStore)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	processor := audit.NewProcessor(store, uploader)
	if err := jobQueue.Start(workerCtx, processor.Handle); err != nil {
		log.Fatal().Err(err).Msg("Failed to start audit workers")
	}

	assistant, err := app.NewAssistant(ctx, cfg.Assistant, audit.NewRecorder(jobQueue, cfg.Assistant.ModelName()))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create assistant")
	}

	handler := api.NewRouter(api.Deps{
		Assistant: assistant,
		Ledger:    store,
		Jobs:      jobStore,
		Log:       log,
	})

	// The write timeout covers every attempt of a model call, retries included.
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: app.RequestTimeout(cfg.Assistant),
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("port", cfg.Server.Port).
			Str("model", cfg.Assistant.ModelName()).
			Str("ledger", cfg.Ledger.Backend).
			Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Wait for in-flight audit jobs before the ledger closes
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping audit queue")
	}
	cancelWorker()

	log.Info().Msg("Server exited")
}
