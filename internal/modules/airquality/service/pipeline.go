package service

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"airmon-server/internal/metrics"
	"airmon-server/internal/modules/airquality/repository"
	"airmon-server/internal/modules/airquality/types"
)

// EventSink receives live pipeline events for dashboard push.
type EventSink interface {
	Broadcast(event string, data any)
}

// Publisher mirrors the optional MQTT fan-out; implementations must tolerate
// being called with a nil concrete receiver.
type Publisher interface {
	Publish(subtopic string, v any)
}

const rolloverCheckInterval = time.Second

// Pipeline wires the sensor reading stream into the aggregator and the
// persistence sink, and drives the hourly rollover clock. Two goroutines run
// for its lifetime: the ingest consumer and the rollover ticker. Both touch
// the aggregator's bucket; its mutex is the only shared-state discipline.
// Persistence failures are operational errors, never fatal: the affected
// sample or summary is dropped from durable storage and processing continues.
type Pipeline struct {
	logger  *slog.Logger
	agg     *Aggregator
	repo    repository.AirQualityRepository
	sink    EventSink
	pub     Publisher
	metrics *metrics.Set

	// LinkProbe, when set, is sampled every tick into the link state gauge.
	LinkProbe func() float64

	now func() time.Time
}

func NewPipeline(
	agg *Aggregator,
	repo repository.AirQualityRepository,
	sink EventSink,
	pub Publisher,
	m *metrics.Set,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		logger:  logger,
		agg:     agg,
		repo:    repo,
		sink:    sink,
		pub:     pub,
		metrics: m,
		now:     time.Now,
	}
}

// Run consumes readings and drives the rollover check until ctx is cancelled.
// It blocks until both activities have finished their in-flight work, so a
// summary write that started before shutdown always completes.
func (p *Pipeline) Run(ctx context.Context, readings <-chan types.Reading) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case r, ok := <-readings:
				if !ok {
					return
				}
				p.handleReading(r)
			}
		}
	}()

	go func() {
		defer wg.Done()
		ticker := time.NewTicker(rolloverCheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.checkRollover(p.now())
			}
		}
	}()

	wg.Wait()
}

// handleReading persists the sample write-through, appends it to the current
// bucket and notifies observers.
func (p *Pipeline) handleReading(r types.Reading) {
	count := p.agg.Ingest(r)

	if err := p.repo.SaveReading(r); err != nil {
		p.logger.Error("save reading failed", "error", err)
		p.metrics.PersistenceFailures.Inc()
	}
	p.metrics.ReadingsIngested.Inc()

	p.sink.Broadcast("reading_accumulated", map[string]any{
		"time":              r.Time.Format("15:04:05"),
		"status":            "collecting",
		"accumulated_count": count,
	})
	if p.pub != nil {
		p.pub.Publish("readings", r)
	}
}

func (p *Pipeline) checkRollover(now time.Time) {
	if p.LinkProbe != nil {
		p.metrics.LinkState.Set(p.LinkProbe())
	}

	summary := p.agg.MaybeRollover(now)
	if summary == nil {
		return
	}

	if err := p.repo.UpsertHourlySummary(*summary); err != nil {
		p.logger.Error("save hourly summary failed",
			"hour_start", summary.HourStart, "error", err)
		p.metrics.PersistenceFailures.Inc()
	}
	p.metrics.RolloversCompleted.Inc()
	p.logger.Info("hourly rollover",
		"hour_start", summary.HourStart,
		"sample_count", summary.SampleCount,
	)

	p.sink.Broadcast("hourly_summary", SummaryEvent(*summary, now))
	if p.pub != nil {
		p.pub.Publish("hourly_summary", summary)
	}
}

// SummaryEvent shapes a summary for the dashboard: metric values rounded to
// one decimal, "--" placeholders where no samples contributed, and the
// human-readable quality label.
func SummaryEvent(s types.HourlySummary, now time.Time) map[string]any {
	return map[string]any{
		"hour_start":   s.HourStart.Format(time.RFC3339),
		"pm25":         roundedOrPlaceholder(s.PM25Avg),
		"pm1":          roundedOrPlaceholder(s.PM1Avg),
		"pm10":         roundedOrPlaceholder(s.PM10Avg),
		"temperature":  roundedOrPlaceholder(s.TemperatureAvg),
		"humidity":     roundedOrPlaceholder(s.HumidityAvg),
		"aqi":          intOrPlaceholder(s.AQI),
		"quality":      types.QualityLabel(s.AQI),
		"sample_count": s.SampleCount,
		"time":         now.Format("15:04:05"),
	}
}

func roundedOrPlaceholder(v *float64) any {
	if v == nil {
		return "--"
	}
	return math.Round(*v*10) / 10
}

func intOrPlaceholder(v *int) any {
	if v == nil {
		return "--"
	}
	return *v
}
