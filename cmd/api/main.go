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

	"go.uber.org/zap"

	"github.com/hamed0406/hostsweep/internal/config"
	"github.com/hamed0406/hostsweep/internal/httpapi"
	"github.com/hamed0406/hostsweep/internal/logging"
	"github.com/hamed0406/hostsweep/internal/probe"
)

func main() {
	cfg := config.FromEnv()
	if path := os.Getenv("HEALTHCHECK_CONFIG"); path != "" {
		var err error
		if cfg, err = config.LoadFile(path, cfg); err != nil {
			log.Fatal(err)
		}
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger, err := logging.NewLogger(logging.Options{Dir: cfg.LogDir, Debug: cfg.Debug, Console: true})
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	pinger, err := probe.NewPinger(cfg.PingMode, logger)
	if err != nil {
		logger.Fatal("ping_backend", zap.Error(err))
	}
	api := httpapi.NewServer(logger, cfg, pinger)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		// a sweep of MaxSweepHosts can take several probe timeouts to answer
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("api_listen",
		zap.String("addr", cfg.Addr),
		zap.String("ping_backend", pinger.Name()),
		zap.Int("max_sweep_hosts", cfg.MaxSweepHosts),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("api_listen_failed", zap.Error(err))
	}
	logger.Info("api_stopped")
}
