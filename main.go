package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/varannik/dental-saas/app"
	"github.com/varannik/dental-saas/config"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Fatal error loading config: %v", err)
	}

	// 2. Wire the service
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Fatal error during startup: %v", err)
	}

	// 3. Serve until a shutdown signal arrives
	if err := a.Run(ctx); err != nil {
		log.Fatalf("Service exited with error: %v", err)
	}
}
