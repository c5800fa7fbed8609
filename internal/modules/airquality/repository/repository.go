package repository

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"airmon-server/internal/modules/airquality/types"
)

//go:embed sql/insert-reading.sql
var insertReadingSQL string

//go:embed sql/upsert-hourly-average.sql
var upsertHourlyAverageSQL string

//go:embed sql/get-hourly-samples.sql
var getHourlySamplesSQL string

//go:embed sql/get-summaries-since.sql
var getSummariesSinceSQL string

//go:embed sql/get-current-hour-stats.sql
var getCurrentHourStatsSQL string

//go:embed sql/get-long-term-stats.sql
var getLongTermStatsSQL string

// AirQualityRepository is the persistence boundary of the pipeline. Hourly
// summaries are upsert-keyed by hour_start, so replaying the same hour
// overwrites instead of duplicating.
type AirQualityRepository interface {
	SaveReading(r types.Reading) error
	UpsertHourlySummary(s types.HourlySummary) error
	GetHourlySamples(limit int) ([]types.HourlySummary, error)
	GetSummariesSince(t time.Time) ([]types.HourlySummary, error)
	GetCurrentHourRawStats(now time.Time) (types.CurrentHourStats, error)
	GetLongTermStats() (types.LongTermStats, error)
}

type repositoryImpl struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) AirQualityRepository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) SaveReading(reading types.Reading) error {
	aqi := types.AQIFromPM25(reading.PM25)
	_, err := r.db.Exec(insertReadingSQL,
		formatTime(reading.Time),
		nullableFloat(reading.PM1),
		reading.PM25,
		nullableFloat(reading.PM10),
		reading.Temperature,
		reading.Humidity,
		aqi,
	)
	if err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}
	return nil
}

func (r *repositoryImpl) UpsertHourlySummary(s types.HourlySummary) error {
	_, err := r.db.Exec(upsertHourlyAverageSQL,
		formatTime(s.HourStart),
		nullableFloat(s.PM1Avg),
		nullableFloat(s.PM25Avg),
		nullableFloat(s.PM10Avg),
		nullableFloat(s.TemperatureAvg),
		nullableFloat(s.HumidityAvg),
		nullableInt(s.AQI),
		s.SampleCount,
	)
	if err != nil {
		return fmt.Errorf("upsert hourly summary %s: %w", s.HourStart.Format(time.RFC3339), err)
	}
	return nil
}

func (r *repositoryImpl) GetHourlySamples(limit int) ([]types.HourlySummary, error) {
	rows, err := r.db.Query(getHourlySamplesSQL, limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close hourly samples rows", "error", err)
		}
	}()
	return scanSummaries(rows)
}

func (r *repositoryImpl) GetSummariesSince(t time.Time) ([]types.HourlySummary, error) {
	rows, err := r.db.Query(getSummariesSinceSQL, formatTime(t))
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close summaries rows", "error", err)
		}
	}()
	return scanSummaries(rows)
}

func (r *repositoryImpl) GetCurrentHourRawStats(now time.Time) (types.CurrentHourStats, error) {
	var (
		out                        types.CurrentHourStats
		pm1, pm25, pm10, temp, hum sql.NullFloat64
		aqi                        sql.NullFloat64
		firstStr                   sql.NullString
		lastStr                    sql.NullString
	)
	err := r.db.QueryRow(getCurrentHourStatsSQL, formatTime(now.Add(-time.Hour))).Scan(
		&out.SampleCount, &pm1, &pm25, &pm10, &temp, &hum, &aqi, &firstStr, &lastStr,
	)
	if err != nil {
		return types.CurrentHourStats{}, err
	}
	if out.SampleCount == 0 {
		return types.CurrentHourStats{Remaining: 3600}, nil
	}

	out.PM1Avg = fromNullFloat(pm1)
	out.PM25Avg = fromNullFloat(pm25)
	out.PM10Avg = fromNullFloat(pm10)
	out.TemperatureAvg = fromNullFloat(temp)
	out.HumidityAvg = fromNullFloat(hum)
	if aqi.Valid {
		v := int(aqi.Float64)
		out.AQIAvg = &v
	}

	first, err := parseNullTime(firstStr)
	if err != nil {
		return types.CurrentHourStats{}, err
	}
	last, err := parseNullTime(lastStr)
	if err != nil {
		return types.CurrentHourStats{}, err
	}
	out.FirstSample = first
	out.LastSample = last

	if first != nil {
		elapsed := now.Sub(*first).Seconds()
		progress := elapsed / 3600 * 100
		if progress > 100 {
			progress = 100
		}
		remaining := 3600 - elapsed
		if remaining < 0 {
			remaining = 0
		}
		out.Progress = progress
		out.Remaining = int(remaining)
	}
	return out, nil
}

func (r *repositoryImpl) GetLongTermStats() (types.LongTermStats, error) {
	var (
		out      types.LongTermStats
		firstStr sql.NullString
		lastStr  sql.NullString
	)
	err := r.db.QueryRow(getLongTermStatsSQL).Scan(&out.TotalReadings, &out.TotalHours, &firstStr, &lastStr)
	if err != nil {
		return types.LongTermStats{}, err
	}
	first, err := parseNullTime(firstStr)
	if err != nil {
		return types.LongTermStats{}, err
	}
	last, err := parseNullTime(lastStr)
	if err != nil {
		return types.LongTermStats{}, err
	}
	out.FirstReading = first
	out.LastReading = last
	return out, nil
}

func scanSummaries(rows *sql.Rows) ([]types.HourlySummary, error) {
	var out []types.HourlySummary
	for rows.Next() {
		var (
			s                          types.HourlySummary
			hourStr                    string
			pm1, pm25, pm10, temp, hum sql.NullFloat64
			aqi                        sql.NullInt64
		)
		if err := rows.Scan(&hourStr, &pm1, &pm25, &pm10, &temp, &hum, &aqi, &s.SampleCount); err != nil {
			return nil, err
		}
		t, err := parseTime(hourStr)
		if err != nil {
			return nil, err
		}
		s.HourStart = t
		s.PM1Avg = fromNullFloat(pm1)
		s.PM25Avg = fromNullFloat(pm25)
		s.PM10Avg = fromNullFloat(pm10)
		s.TemperatureAvg = fromNullFloat(temp)
		s.HumidityAvg = fromNullFloat(hum)
		if aqi.Valid {
			v := int(aqi.Int64)
			s.AQI = &v
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		var err2 error
		t, err2 = time.Parse(time.RFC3339, s)
		if err2 != nil {
			return time.Time{}, fmt.Errorf("parse timestamp %q: RFC3339Nano: %w; RFC3339: %w", s, err, err2)
		}
	}
	return t, nil
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullableFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func fromNullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
