package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	appconfig "github.com/querylens/intent-platform/internal/config"
	classifyworker "github.com/querylens/intent-platform/internal/worker/classify"
	"github.com/querylens/intent-platform/pkg/logging"
)

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting intent classification worker",
		"env", cfg.Env,
		"workers", cfg.WorkerCount,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		logger.Info("shutting down classification worker...")
		cancel()
	}()

	if err := classifyworker.Run(ctx, cfg, logger); err != nil {
		logger.Error("classification worker failed", "error", err)
		os.Exit(1)
	}
}
