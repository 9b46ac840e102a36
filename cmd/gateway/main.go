package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clinic_intake_backend/internal/gateway"
	"clinic_intake_backend/internal/intake/domain"
	"clinic_intake_backend/internal/queue"
	"clinic_intake_backend/platform/config"
	"clinic_intake_backend/platform/logger"
	"clinic_intake_backend/platform/validator"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting intake gateway", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := queue.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize queue client", "error", err)
		panic("failed to initialize queue client: " + err.Error())
	}
	defer func() { _ = client.Close() }()

	scanner := domain.NewKeywordScanner(cfg.GetUrgentKeywords())
	handler := gateway.NewHandler(client, scanner, validator.New(), log)
	router := gateway.NewRouter(cfg, handler, log)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("gateway shutdown failed", "error", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("gateway stopped", "error", err)
		panic("gateway stopped: " + err.Error())
	}
	log.Info("intake gateway stopped")
}
