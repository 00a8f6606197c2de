package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/sheikh-saqib/client-ledger/internal/config"
	"github.com/sheikh-saqib/client-ledger/internal/events"
	"github.com/sheikh-saqib/client-ledger/internal/handler/rest"
	"github.com/sheikh-saqib/client-ledger/internal/ledger"
	"github.com/sheikh-saqib/client-ledger/internal/logger"
	"github.com/sheikh-saqib/client-ledger/internal/metrics"
	"github.com/sheikh-saqib/client-ledger/internal/statement"
	"github.com/sheikh-saqib/client-ledger/internal/storage"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zl.Sync()

	if err := run(cfg, zl); err != nil {
		zl.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, zl *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer store.Close()

	m := metrics.New()
	opts := []ledger.Option{
		ledger.WithLogger(zl.Named("ledger")),
		ledger.WithMetrics(m),
		ledger.WithOverdraft(cfg.Ledger.AllowOverdraft),
	}
	publisher, err := events.NewPublisher(cfg.Events)
	if err != nil {
		return err
	}
	if publisher != nil {
		defer publisher.Close()
		opts = append(opts, ledger.WithPublisher(publisher))
	}

	ledgerService := ledger.NewLedger(store, opts...)
	builder := statement.NewBuilder(store, zl.Named("statement"))
	h := rest.NewHandler(ledgerService, builder, m, zl.Named("http"))

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           h.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zl.Info("starting server",
			zap.String("addr", srv.Addr),
			zap.String("storage", cfg.Storage.Driver),
			zap.String("events", cfg.Events.Driver),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zl.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
