package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/din-network/din-monitor/pkg/config"
	"github.com/din-network/din-monitor/pkg/registry"
	"github.com/din-network/din-monitor/pkg/reporter"
	"github.com/din-network/din-monitor/pkg/store"
	"github.com/din-network/din-monitor/pkg/website"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	configFile = flag.String("config", "config.example.yaml", "path to config file")
)

// The standalone website reads operators from the postgres store the monitor writes to.
func main() {
	flag.Parse()

	loggingConfig := zap.NewDevelopmentConfig()
	loggingConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder

	zapLogger, err := loggingConfig.Build()
	if err != nil {
		log.Fatalf("could not open log file: %v", err)
	}
	defer func() {
		_ = zapLogger.Sync()
	}()
	logger := zapLogger.Sugar()

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Fatalf("could not load config: %v", err)
	}
	if cfg.Store.Dsn == "" {
		logger.Fatal("the standalone website requires store.dsn")
	}

	minStake, err := cfg.MinStake()
	if err != nil {
		logger.Fatalf("could not load config: %v", err)
	}

	logger.Infof("using network: %s", cfg.Network.Name)

	// Create the store.
	store, err := store.NewPostgresStore(cfg.Store.Dsn, zapLogger)
	if err != nil {
		logger.Fatalw("could not instantiate postgres store", "error", err)
	}
	defer store.Close()

	// Create the reporter.
	reg := registry.New(store, zapLogger)
	reporter := reporter.NewReporter(reg, nil, reporter.NewScorer(logger), logger)

	websiteListenAddr := fmt.Sprintf("%s:%d", cfg.Website.Host, cfg.Website.Port)

	// Create the website service
	opts := &website.WebserverOpts{
		ListenAddress:     websiteListenAddr,
		Network:           cfg.Network.Name,
		MinStake:          minStake,
		Registry:          reg,
		Reporter:          reporter,
		Log:               logger,
		ShowConfigDetails: cfg.Website.ShowConfigDetails,
		LinkMonitorAPI:    cfg.Website.LinkMonitorAPI,
	}

	srv, err := website.NewWebserver(opts)
	if err != nil {
		logger.Fatalw("failed to create service", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start the server
	logger.Infof("webserver starting on %s ...", websiteListenAddr)
	if err := srv.StartServer(ctx); err != nil {
		logger.Errorf("webserver exited: %v", err)
	}
}
