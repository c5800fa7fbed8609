package controller

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"airmon-server/internal/modules/airquality/types"
	"airmon-server/internal/utils"
)

// defaultHourlySampleCount is one week of hourly summaries.
const defaultHourlySampleCount = 168

func (c *airQualityControllerImpl) handleHourlySamples(w http.ResponseWriter, r *http.Request) {
	limit, err := parseHoursQuery(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	samples, err := c.repository.GetHourlySamples(limit)
	if err != nil {
		slog.Error("get hourly samples failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load hourly samples")
		return
	}
	if samples == nil {
		samples = []types.HourlySummary{}
	}
	utils.WriteJSON(w, http.StatusOK, samples)
}

func (c *airQualityControllerImpl) handleCurrentStats(w http.ResponseWriter, r *http.Request) {
	stats, err := c.repository.GetCurrentHourRawStats(c.now())
	if err != nil {
		slog.Error("get current hour stats failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load current stats")
		return
	}
	utils.WriteJSON(w, http.StatusOK, stats)
}

func (c *airQualityControllerImpl) handleCurrentProgress(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, c.progress.Progress(c.now()))
}

func (c *airQualityControllerImpl) handleLongTermStats(w http.ResponseWriter, r *http.Request) {
	stats, err := c.repository.GetLongTermStats()
	if err != nil {
		slog.Error("get long term stats failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load long term stats")
		return
	}
	utils.WriteJSON(w, http.StatusOK, stats)
}

func (c *airQualityControllerImpl) handleExportLast7Days(w http.ResponseWriter, r *http.Request) {
	now := c.now()
	summaries, err := c.repository.GetSummariesSince(now.Add(-7 * 24 * time.Hour))
	if err != nil {
		slog.Error("export summaries failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load export data")
		return
	}
	if len(summaries) == 0 {
		utils.WriteError(w, http.StatusNotFound, "no data available")
		return
	}

	rows := make([][]string, 0, len(summaries))
	for _, s := range summaries {
		rows = append(rows, []string{
			s.HourStart.Format(time.RFC3339),
			csvFloat(s.PM1Avg),
			csvFloat(s.PM25Avg),
			csvFloat(s.PM10Avg),
			csvFloat(s.TemperatureAvg),
			csvFloat(s.HumidityAvg),
			csvInt(s.AQI),
			strconv.Itoa(s.SampleCount),
		})
	}
	filename := fmt.Sprintf("air_quality_%s.csv", now.Format("20060102"))
	utils.WriteCSV(w, filename,
		[]string{"hour_start", "pm1_avg", "pm25_avg", "pm10_avg", "temperature_avg", "humidity_avg", "aqi_avg", "sample_count"},
		rows,
	)
}

func (c *airQualityControllerImpl) handleSensorStatus(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, c.link.Status())
}

func (c *airQualityControllerImpl) handleSensorConnect(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Port string `json:"port"`
	}
	// An absent or empty body keeps the configured port.
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		utils.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.Port != "" {
		c.link.SetPort(body.Port)
	}

	if err := c.link.Connect(); err != nil {
		slog.Warn("sensor connect failed", "error", err)
		utils.WriteJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"message": "failed to connect",
		})
		return
	}
	if err := c.link.StartReading(); err != nil {
		slog.Error("start reading failed", "error", err)
		utils.WriteJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"message": "connected but failed to start reading",
		})
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "connected to sensor",
	})
}

func (c *airQualityControllerImpl) handleSensorDisconnect(w http.ResponseWriter, r *http.Request) {
	c.link.Disconnect()
	utils.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "disconnected",
	})
}

func (c *airQualityControllerImpl) handleSensorCommand(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Command string `json:"command"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Command == "" {
		utils.WriteError(w, http.StatusBadRequest, "missing command")
		return
	}
	if err := c.link.SendCommand(body.Command); err != nil {
		slog.Warn("send command failed", "command", body.Command, "error", err)
		utils.WriteJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"message": "failed to send command",
		})
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "command sent",
	})
}

func parseHoursQuery(r *http.Request) (int, error) {
	limit := defaultHourlySampleCount
	if s := r.URL.Query().Get("hours"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, errors.New("invalid 'hours' (expected integer)")
		}
		if n <= 0 {
			return 0, errors.New("'hours' must be > 0")
		}
		if n > 8760 {
			return 0, errors.New("'hours' must be <= 8760")
		}
		limit = n
	}
	return limit, nil
}

func csvFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 1, 64)
}

func csvInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
