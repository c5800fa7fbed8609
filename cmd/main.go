package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"airmon-server/internal/app"
	"airmon-server/internal/config"
	"airmon-server/internal/logging"
)

var version = "dev"
var appName = "airmon-server"

func main() {
	// Optional .env for local runs; environment always wins.
	_ = godotenv.Load()

	sensorPort := flag.String("sensor-port", "", "serial port of the sensor (overrides SENSOR_PORT)")
	httpAddr := flag.String("http-addr", "", "listen address (overrides HTTP_ADDR)")
	flag.Parse()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	if *sensorPort != "" {
		cfg.SensorPort = *sensorPort
	}
	if *httpAddr != "" {
		cfg.HTTPAddr = *httpAddr
	}

	logger := logging.New(cfg, version, appName)
	slog.SetDefault(logger)

	slog.Info("starting",
		"app", appName,
		"version", version,
		"env", cfg.AppEnv,
		"log_level", cfg.LogLevel.String(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run failed", "err", err)
		os.Exit(1)
	}

	slog.Info("shutting down")
}
