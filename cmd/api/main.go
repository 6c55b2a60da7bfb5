package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	datafeed "github.com/fazecat/benfordscan/Internal/database"
	"github.com/fazecat/benfordscan/Internal/utils/config"
	"github.com/fazecat/benfordscan/Internal/utils/logger"
	"github.com/fazecat/benfordscan/Internal/utils/telemetry"
	"github.com/fazecat/benfordscan/cmd/api/internal"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Logging)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := telemetry.New(reg)

	var store internal.TradeStore
	if cfg.Database.Enabled {
		db, err := datafeed.Open(ctx, cfg.Database, log)
		if err != nil {
			log.Warn("results store unavailable, trade history disabled", logger.Error(err))
		} else {
			defer db.Close()
			store = db
		}
	}

	jwtMgr, err := internal.NewJWTManager(cfg.API.JWTSecret, cfg.API.TokenTTLHours)
	if err != nil {
		return fmt.Errorf("set JWT_SECRET_KEY or api.jwt_secret: %w", err)
	}

	if cfg.API.APIKey == "" {
		log.Warn("no api key configured, token issuance disabled")
	}

	api := internal.NewAPI(cfg, log, rec, jwtMgr, store)
	srv := &http.Server{
		Addr:              cfg.API.Addr,
		Handler:           internal.NewRouter(api, promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting API server", logger.String("addr", srv.Addr))
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

	log.Info("shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
