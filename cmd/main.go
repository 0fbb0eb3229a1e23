package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/nuhmanudheent/hosp-connect-hospital/internal/config"
	"github.com/nuhmanudheent/hosp-connect-hospital/internal/di"
	"github.com/nuhmanudheent/hosp-connect-hospital/logs"
)

func main() {
	config.LoadEnv()
	cfg, err := config.Load("config.yml")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	logger := logs.NewLoggerWithLevel(cfg.Server.LogLevel)

	app, err := di.NewApp(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to start service")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := app.Run(ctx); err != nil {
		logger.WithError(err).Fatal("Server stopped with error")
	}
	logger.Info("Service exited")
}
