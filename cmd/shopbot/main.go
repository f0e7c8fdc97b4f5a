package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Desarso/shopbot"
	"github.com/Desarso/shopbot/logging"
	"github.com/Desarso/shopbot/metrics"
	"github.com/Desarso/shopbot/server"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := shopbot.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("config failed")
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := metrics.NewRegistry()
	svc, err := shopbot.NewServices(ctx, cfg, reg)
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
	defer svc.Close()

	janitor, err := server.NewUploadJanitor(cfg.UploadDir, cfg.UploadTTL, cfg.UploadSweepCron, reg)
	if err != nil {
		log.Fatal().Err(err).Str("spec", cfg.UploadSweepCron).Msg("invalid upload sweep schedule")
	}
	janitor.Start()
	defer janitor.Stop()

	srv := server.New(svc.Manager, svc.Analyzer, reg, server.Options{
		Address:   cfg.Address,
		UploadDir: cfg.UploadDir,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("server failed")
		}
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
