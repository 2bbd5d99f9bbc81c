package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/diralist-hq/diralist-harvester/internal/app"
	"github.com/diralist-hq/diralist-harvester/internal/config"
	"github.com/diralist-hq/diralist-harvester/internal/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "seeder failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	accountID := flag.String("account", "", "account id to capture a session for")
	loginURL := flag.String("url", "https://www.facebook.com/login", "login page to open")
	flag.Parse()

	if *accountID == "" {
		flag.Usage()
		return fmt.Errorf("-account is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if _, err := logger.Init(cfg); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	seeder, err := app.NewSeeder(cfg, logger.Std{})
	if err != nil {
		logger.ErrorObj("failed to initialize seeder", "error", err)
		return err
	}

	if err := seeder.Run(ctx, *accountID, *loginURL, os.Stdin, os.Stdout); err != nil {
		return fmt.Errorf("seeder run: %w", err)
	}

	return nil
}
