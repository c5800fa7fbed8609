package types

import "time"

// Reading is one decoded sensor sample. PM25, Temperature and Humidity are
// always set (a line without them never becomes a Reading); PM1 and PM10 are
// optional because not every firmware revision reports them.
type Reading struct {
	Time        time.Time `json:"time"`
	PM1         *float64  `json:"pm1,omitempty"`
	PM25        float64   `json:"pm25"`
	PM10        *float64  `json:"pm10,omitempty"`
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
}

// HourlySummary is the average of one completed hour of readings.
// Per-metric averages are nil when no reading in the hour carried that metric.
type HourlySummary struct {
	HourStart      time.Time `json:"hour_start"`
	PM1Avg         *float64  `json:"pm1_avg"`
	PM25Avg        *float64  `json:"pm25_avg"`
	PM10Avg        *float64  `json:"pm10_avg"`
	TemperatureAvg *float64  `json:"temperature_avg"`
	HumidityAvg    *float64  `json:"humidity_avg"`
	AQI            *int      `json:"aqi"`
	SampleCount    int       `json:"sample_count"`
}

// CurrentHourStats aggregates the raw readings persisted in the last hour.
type CurrentHourStats struct {
	SampleCount    int        `json:"sample_count"`
	PM1Avg         *float64   `json:"pm1_avg,omitempty"`
	PM25Avg        *float64   `json:"pm25_avg,omitempty"`
	PM10Avg        *float64   `json:"pm10_avg,omitempty"`
	TemperatureAvg *float64   `json:"temperature_avg,omitempty"`
	HumidityAvg    *float64   `json:"humidity_avg,omitempty"`
	AQIAvg         *int       `json:"aqi_avg,omitempty"`
	FirstSample    *time.Time `json:"first_sample,omitempty"`
	LastSample     *time.Time `json:"last_sample,omitempty"`
	Progress       float64    `json:"progress"`
	Remaining      int        `json:"remaining"`
}

// LongTermStats covers the whole measurement history.
type LongTermStats struct {
	TotalReadings int        `json:"total_readings"`
	TotalHours    int        `json:"total_hours"`
	FirstReading  *time.Time `json:"first_reading"`
	LastReading   *time.Time `json:"last_reading"`
}

// Progress reports how far the in-progress hour of collection has advanced.
type Progress struct {
	SamplesCollected int     `json:"samples_collected"`
	Remaining        int     `json:"remaining"`
	Progress         float64 `json:"progress"`
}
