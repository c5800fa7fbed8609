package airquality

import (
	"net/http"

	"airmon-server/internal/modules/airquality/controller"
	"airmon-server/internal/modules/airquality/repository"
	"airmon-server/internal/modules/airquality/service"
	"airmon-server/internal/sensor"
	"airmon-server/internal/ws"
)

// RegisterFeature mounts the air-quality API and the live-event websocket.
func RegisterFeature(
	mux *http.ServeMux,
	repo repository.AirQualityRepository,
	link *sensor.Link,
	agg *service.Aggregator,
	hub *ws.Hub,
) {
	airQualityController := controller.NewAirQualityController(repo, link, agg)
	airQualityController.RegisterRoutes(mux)
	mux.Handle("GET /ws", hub)
}
