package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/din-network/din-monitor/pkg/config"
	"github.com/din-network/din-monitor/pkg/monitor"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	configFile = flag.String("config", "config.example.yaml", "path to config file")
)

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m, err := monitor.New(ctx, cfg, zapLogger)
	if err != nil {
		logger.Fatalf("could not instantiate monitor: %v", err)
	}
	defer m.Close()

	if err := m.Run(ctx); err != nil {
		logger.Errorf("monitor exited: %v", err)
	}
}
