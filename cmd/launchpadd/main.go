// ====================================
// File: cmd/launchpadd/main.go
// ====================================
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/snowball-dex/launchpad/internal/config"
	"github.com/snowball-dex/launchpad/internal/engine"
	"github.com/snowball-dex/launchpad/internal/keeper"
	"github.com/snowball-dex/launchpad/internal/logger"
)

func main() {
	configPath := flag.String("config", "configs/launchpad.yaml", "path to the launchpad config")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logCfg := logger.DefaultConfig()
	logCfg.LogFile = cfg.LogFile
	logCfg.Development = cfg.DebugLogging
	log, err := logger.New(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting launchpad daemon",
		zap.String("config", *configPath),
		zap.String("journal", cfg.JournalPath))

	eng, err := engine.New(cfg, log.Logger)
	if err != nil {
		log.Fatal("Failed to initialize engine", zap.Error(err))
	}
	defer eng.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-shutdownCh
		log.Info("Signal received: " + sig.String())
		cancel()
	}()

	k := keeper.New(eng.Wrapper(), eng.Router(),
		time.Duration(cfg.KeeperIntervalMS)*time.Millisecond,
		cfg.KeeperBatchSize, cfg.KeeperRetries, log.Logger)

	if err := k.Run(ctx); err != nil && err != context.DeadlineExceeded {
		log.Error("Keeper stopped with error", zap.Error(err))
		os.Exit(1)
	}

	log.Info("Launchpad daemon shut down gracefully")
}
