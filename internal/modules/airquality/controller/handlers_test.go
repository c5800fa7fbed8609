package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"airmon-server/internal/modules/airquality/types"
	"airmon-server/internal/sensor"
)

type stubRepo struct {
	samples    []types.HourlySummary
	summaries  []types.HourlySummary
	current    types.CurrentHourStats
	longTerm   types.LongTermStats
	err        error
	gotLimit   int
	gotSince   time.Time
	gotStatsAt time.Time
}

func (s *stubRepo) SaveReading(types.Reading) error               { return nil }
func (s *stubRepo) UpsertHourlySummary(types.HourlySummary) error { return nil }

func (s *stubRepo) GetHourlySamples(limit int) ([]types.HourlySummary, error) {
	s.gotLimit = limit
	return s.samples, s.err
}

func (s *stubRepo) GetSummariesSince(t time.Time) ([]types.HourlySummary, error) {
	s.gotSince = t
	return s.summaries, s.err
}

func (s *stubRepo) GetCurrentHourRawStats(now time.Time) (types.CurrentHourStats, error) {
	s.gotStatsAt = now
	return s.current, s.err
}

func (s *stubRepo) GetLongTermStats() (types.LongTermStats, error) {
	return s.longTerm, s.err
}

type stubLink struct {
	status       sensor.Status
	port         string
	connectErr   error
	startErr     error
	cmdErr       error
	disconnected bool
	commands     []string
}

func (s *stubLink) Status() sensor.Status { return s.status }
func (s *stubLink) SetPort(port string)   { s.port = port }
func (s *stubLink) Connect() error        { return s.connectErr }
func (s *stubLink) StartReading() error   { return s.startErr }
func (s *stubLink) Disconnect()           { s.disconnected = true }

func (s *stubLink) SendCommand(cmd string) error {
	s.commands = append(s.commands, cmd)
	return s.cmdErr
}

type stubProgress struct{ p types.Progress }

func (s *stubProgress) Progress(time.Time) types.Progress { return s.p }

func newTestMux(repo *stubRepo, link *stubLink, progress *stubProgress) *http.ServeMux {
	if progress == nil {
		progress = &stubProgress{}
	}
	mux := http.NewServeMux()
	NewAirQualityController(repo, link, progress).RegisterRoutes(mux)
	return mux
}

func doRequest(t *testing.T, mux *http.ServeMux, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestHandleHourlySamples(t *testing.T) {
	avg := 20.5
	repo := &stubRepo{samples: []types.HourlySummary{
		{HourStart: time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC), PM25Avg: &avg, SampleCount: 10},
	}}
	mux := newTestMux(repo, &stubLink{}, nil)

	rec := doRequest(t, mux, http.MethodGet, "/api/hourly_samples", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultHourlySampleCount, repo.gotLimit)

	var got []types.HourlySummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, 10, got[0].SampleCount)
}

func TestHandleHourlySamples_HoursQuery(t *testing.T) {
	repo := &stubRepo{}
	mux := newTestMux(repo, &stubLink{}, nil)

	rec := doRequest(t, mux, http.MethodGet, "/api/hourly_samples?hours=24", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 24, repo.gotLimit)

	// An empty result serializes as [], not null.
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}

func TestHandleHourlySamples_BadHoursQuery(t *testing.T) {
	mux := newTestMux(&stubRepo{}, &stubLink{}, nil)

	for _, q := range []string{"hours=abc", "hours=0", "hours=-5", "hours=99999"} {
		rec := doRequest(t, mux, http.MethodGet, "/api/hourly_samples?"+q, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestHandleHourlySamples_RepoError(t *testing.T) {
	repo := &stubRepo{err: errors.New("db locked")}
	mux := newTestMux(repo, &stubLink{}, nil)

	rec := doRequest(t, mux, http.MethodGet, "/api/hourly_samples", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandleCurrentProgress(t *testing.T) {
	progress := &stubProgress{p: types.Progress{SamplesCollected: 42, Remaining: 1800, Progress: 50}}
	mux := newTestMux(&stubRepo{}, &stubLink{}, progress)

	rec := doRequest(t, mux, http.MethodGet, "/api/current_progress", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got types.Progress
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 42, got.SamplesCollected)
	assert.Equal(t, 1800, got.Remaining)
	assert.Equal(t, 50.0, got.Progress)
}

func TestHandleExportLast7Days(t *testing.T) {
	avg := 20.0
	aqi := 68
	repo := &stubRepo{summaries: []types.HourlySummary{
		{
			HourStart:   time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC),
			PM25Avg:     &avg,
			AQI:         &aqi,
			SampleCount: 10,
		},
	}}
	mux := newTestMux(repo, &stubLink{}, nil)

	rec := doRequest(t, mux, http.MethodGet, "/api/export/last_7days", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "air_quality_")

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "hour_start,pm1_avg,pm25_avg,pm10_avg,temperature_avg,humidity_avg,aqi_avg,sample_count", lines[0])
	assert.Equal(t, "2025-06-01T14:00:00Z,,20.0,,,,68,10", lines[1])
}

func TestHandleExportLast7Days_NoData(t *testing.T) {
	mux := newTestMux(&stubRepo{}, &stubLink{}, nil)

	rec := doRequest(t, mux, http.MethodGet, "/api/export/last_7days", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleSensorStatus(t *testing.T) {
	link := &stubLink{status: sensor.Status{State: "reading", Connected: true, Port: "/dev/ttyUSB0", BaudRate: 9600}}
	mux := newTestMux(&stubRepo{}, link, nil)

	rec := doRequest(t, mux, http.MethodGet, "/api/sensor/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got sensor.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.Connected)
	assert.Equal(t, "reading", got.State)
}

func TestHandleSensorConnect(t *testing.T) {
	link := &stubLink{}
	mux := newTestMux(&stubRepo{}, link, nil)

	rec := doRequest(t, mux, http.MethodPost, "/api/sensor/connect", `{"port":"/dev/ttyACM1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/dev/ttyACM1", link.port)

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, true, got["success"])
}

func TestHandleSensorConnect_EmptyBody(t *testing.T) {
	link := &stubLink{}
	mux := newTestMux(&stubRepo{}, link, nil)

	rec := doRequest(t, mux, http.MethodPost, "/api/sensor/connect", "")
	require.Equal(t, http.StatusOK, rec.Code)
	// Configured port untouched.
	assert.Empty(t, link.port)
}

func TestHandleSensorConnect_Failure(t *testing.T) {
	link := &stubLink{connectErr: errors.New("no such device")}
	mux := newTestMux(&stubRepo{}, link, nil)

	rec := doRequest(t, mux, http.MethodPost, "/api/sensor/connect", "")
	// Connection failures are an expected outcome, reported in the body.
	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, false, got["success"])
}

func TestHandleSensorConnect_BadJSON(t *testing.T) {
	mux := newTestMux(&stubRepo{}, &stubLink{}, nil)

	rec := doRequest(t, mux, http.MethodPost, "/api/sensor/connect", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSensorDisconnect(t *testing.T) {
	link := &stubLink{}
	mux := newTestMux(&stubRepo{}, link, nil)

	rec := doRequest(t, mux, http.MethodPost, "/api/sensor/disconnect", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, link.disconnected)
}

func TestHandleSensorCommand(t *testing.T) {
	link := &stubLink{}
	mux := newTestMux(&stubRepo{}, link, nil)

	rec := doRequest(t, mux, http.MethodPost, "/api/sensor/command", `{"command":"RESET"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, link.commands, 1)
	assert.Equal(t, "RESET", link.commands[0])
}

func TestHandleSensorCommand_Missing(t *testing.T) {
	mux := newTestMux(&stubRepo{}, &stubLink{}, nil)

	rec := doRequest(t, mux, http.MethodPost, "/api/sensor/command", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
