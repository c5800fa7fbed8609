package controller

import (
	"net/http"
	"time"

	"airmon-server/internal/modules/airquality/repository"
	"airmon-server/internal/modules/airquality/types"
	"airmon-server/internal/sensor"
)

type AirQualityController interface {
	RegisterRoutes(mux *http.ServeMux)
}

// sensorLink is the subset of the device link the handlers drive. The
// concrete *sensor.Link satisfies it; tests substitute a fake.
type sensorLink interface {
	Status() sensor.Status
	SetPort(port string)
	Connect() error
	StartReading() error
	Disconnect()
	SendCommand(cmd string) error
}

// progressSource reports the in-progress collection hour; the aggregator
// satisfies it.
type progressSource interface {
	Progress(now time.Time) types.Progress
}

type airQualityControllerImpl struct {
	repository repository.AirQualityRepository
	link       sensorLink
	progress   progressSource
	now        func() time.Time
}

func NewAirQualityController(
	repo repository.AirQualityRepository,
	link sensorLink,
	progress progressSource,
) AirQualityController {
	return &airQualityControllerImpl{
		repository: repo,
		link:       link,
		progress:   progress,
		now:        time.Now,
	}
}

func (c *airQualityControllerImpl) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/hourly_samples", c.handleHourlySamples)
	mux.HandleFunc("GET /api/current_stats", c.handleCurrentStats)
	mux.HandleFunc("GET /api/current_progress", c.handleCurrentProgress)
	mux.HandleFunc("GET /api/long_term_stats", c.handleLongTermStats)
	mux.HandleFunc("GET /api/export/last_7days", c.handleExportLast7Days)
	mux.HandleFunc("GET /api/sensor/status", c.handleSensorStatus)
	mux.HandleFunc("POST /api/sensor/connect", c.handleSensorConnect)
	mux.HandleFunc("POST /api/sensor/disconnect", c.handleSensorDisconnect)
	mux.HandleFunc("POST /api/sensor/command", c.handleSensorCommand)
}
