package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"airmon-server/internal/config"
	db "airmon-server/internal/db"
	httpapi "airmon-server/internal/httpapi"
	"airmon-server/internal/metrics"
	"airmon-server/internal/migrate"
	airquality "airmon-server/internal/modules/airquality"
	"airmon-server/internal/modules/airquality/repository"
	"airmon-server/internal/modules/airquality/service"
	"airmon-server/internal/mqtt"
	"airmon-server/internal/sensor"
	"airmon-server/internal/ws"
)

// connectRetryDelay is the single automatic retry window after a failed
// startup connect. Further reconnects go through the sensor API.
const connectRetryDelay = 30 * time.Second

func Run(ctx context.Context, cfg config.Config) error {
	slog.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"httpAddr", cfg.HTTPAddr,
		"staticDir", cfg.StaticDir,
		"sqliteDriver", cfg.Driver,
		"sqlitePath", cfg.Path,
		"sqliteMaxOpenConns", cfg.MaxOpenConns,
		"sqliteMaxIdleConns", cfg.MaxIdleConns,
		"sqliteConnMaxLifetime", cfg.ConnMaxLifetime,
		"sensorPort", cfg.SensorPort,
		"sensorBaud", cfg.SensorBaud,
		"mqttBroker", cfg.MQTTBroker,
	)
	dbConn, err := db.Open(cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeErr := db.Close(dbConn)
		if closeErr != nil {
			slog.Error("db close", "error", closeErr)
		}
	}()

	if err := migrate.Run(dbConn); err != nil {
		return err
	}

	var ok int
	err = dbConn.QueryRow(`SELECT 1`).Scan(&ok)
	if err != nil {
		return err
	}
	if ok != 1 {
		return errors.New("database connection failed")
	}
	slog.Info("database connection successful")

	m := metrics.New()
	repo := repository.NewRepository(dbConn)
	hub := ws.NewHub(slog.Default())
	agg := service.NewAggregator(time.Now())

	link := sensor.NewLink(cfg.SensorPort, cfg.SensorBaud, slog.Default())
	link.OnReject = m.LinesRejected.Inc

	publisher := mqtt.NewPublisher(cfg, slog.Default())
	if publisher != nil {
		// Short timeout so startup doesn't block when the broker is down;
		// publishing stays best-effort and the client reconnects on its own.
		connectCtx, connectCancel := context.WithTimeout(ctx, 5*time.Second)
		err = publisher.Connect(connectCtx)
		connectCancel()
		if err != nil {
			slog.Warn("mqtt connection failed (continuing without mqtt)", "error", err)
		}
	}

	pipeline := service.NewPipeline(agg, repo, hub, publisher, m, slog.Default())
	pipeline.LinkProbe = func() float64 { return float64(link.State()) }

	mux := httpapi.NewMux(dbConn, cfg.StaticDir, m.Handler())
	airquality.RegisterFeature(mux, repo, link, agg, hub)

	pipelineCtx, stopPipeline := context.WithCancel(context.Background())
	pipelineDone := make(chan struct{})
	go func() {
		defer close(pipelineDone)
		pipeline.Run(pipelineCtx, link.Readings())
	}()

	go autoConnect(ctx, link)

	srv := httpapi.NewServer(cfg, mux)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http listening", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		stopPipeline()
		<-pipelineDone
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	slog.Info("sensor disconnecting")
	link.Disconnect()

	// Let the pipeline drain any buffered readings before it stops.
	stopPipeline()
	<-pipelineDone

	publisher.Disconnect()
	hub.Close()

	slog.Info("http shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	err = <-errCh
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return ctx.Err()
}

// autoConnect brings the sensor up at startup. A failed attempt gets exactly
// one retry after a fixed delay; after that reconnection is manual.
func autoConnect(ctx context.Context, link *sensor.Link) {
	if tryConnect(link) {
		return
	}

	slog.Warn("sensor not found, retrying once", "delay", connectRetryDelay)
	select {
	case <-ctx.Done():
		return
	case <-time.After(connectRetryDelay):
	}
	if !tryConnect(link) {
		slog.Warn("sensor connect retry failed, waiting for manual connect")
	}
}

func tryConnect(link *sensor.Link) bool {
	if err := link.Connect(); err != nil {
		slog.Warn("sensor connect failed", "error", err)
		return false
	}
	if err := link.StartReading(); err != nil {
		slog.Error("start reading failed", "error", err)
		return false
	}
	return true
}
