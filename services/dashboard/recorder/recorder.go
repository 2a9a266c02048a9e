// Package recorder persists a thinned history of greenhouse readings.
package recorder

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/Kwame-Minta2021/AgricMind-Ai/services/dashboard/db"
	"github.com/Kwame-Minta2021/AgricMind-Ai/services/dashboard/greenhouse"
)

// Writer stores readings.
type Writer interface {
	InsertReadings(ctx context.Context, readings []db.Reading) error
}

// Config controls thinning and batching.
type Config struct {
	MinInterval   time.Duration
	Epsilon       float64
	FlushInterval time.Duration
	BatchSize     int
}

func (c Config) withDefaults() Config {
	if c.MinInterval <= 0 {
		c.MinInterval = 5 * time.Minute
	}
	if c.Epsilon <= 0 {
		c.Epsilon = 0.1
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 10 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	return c
}

// Recorder turns monitor updates into history rows.
type Recorder struct {
	monitor *greenhouse.Monitor
	writer  Writer
	cfg     Config
	log     *zap.Logger
	now     func() time.Time
}

// New returns a recorder. Zero config fields take defaults.
func New(monitor *greenhouse.Monitor, writer Writer, cfg Config, logger *zap.Logger) *Recorder {
	return &Recorder{
		monitor: monitor,
		writer:  writer,
		cfg:     cfg.withDefaults(),
		log:     logger.Named("recorder"),
		now:     time.Now,
	}
}

// Run records until ctx is cancelled, flushing what is pending on the way out.
func (r *Recorder) Run(ctx context.Context) error {
	updates := make(chan greenhouse.State, 64)
	cancel := r.monitor.Subscribe(func(s greenhouse.State) {
		select {
		case updates <- s:
		default:
			r.log.Debug("recorder busy, update dropped")
		}
	})
	defer cancel()

	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()

	var (
		last    *db.Reading
		pending []db.Reading
	)
	flush := func(ctx context.Context) {
		if len(pending) == 0 {
			return
		}
		if err := r.writer.InsertReadings(ctx, pending); err != nil {
			r.log.Error("insert readings failed", zap.Int("count", len(pending)), zap.Error(err))
			return
		}
		r.log.Debug("readings recorded", zap.Int("count", len(pending)))
		pending = pending[:0]
	}

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			flush(shutdownCtx)
			done()
			return nil
		case <-ticker.C:
			flush(ctx)
		case s := <-updates:
			if !s.HasReadings() {
				continue
			}
			cand := FromState(s, r.now())
			if !ShouldRecord(last, cand, r.cfg.MinInterval, r.cfg.Epsilon) {
				continue
			}
			last = &cand
			pending = append(pending, cand)
			if len(pending) >= r.cfg.BatchSize {
				flush(ctx)
			}
		}
	}
}

// FromState converts dashboard state to a history row stamped at ts.
func FromState(s greenhouse.State, ts time.Time) db.Reading {
	return db.Reading{
		Timestamp:           ts.UTC(),
		Temperature:         s.Sensors.Temperature,
		Humidity:            s.Sensors.Humidity,
		SoilMoisture:        s.Sensors.SoilMoisture,
		SoilMoisturePercent: s.Sensors.SoilMoisturePercent,
		PumpStatus:          s.Actuators.PumpStatus,
		BulbStatus:          s.Actuators.BulbStatus,
	}
}

// ShouldRecord reports whether cand is worth storing after prev: always for
// the first reading, once minInterval has passed, or when anything changed.
func ShouldRecord(prev *db.Reading, cand db.Reading, minInterval time.Duration, epsilon float64) bool {
	if prev == nil {
		return true
	}
	if cand.Timestamp.Sub(prev.Timestamp) >= minInterval {
		return true
	}
	return !readingsEqual(*prev, cand, epsilon)
}

func readingsEqual(a, b db.Reading, epsilon float64) bool {
	return valuesEqual(a.Temperature, b.Temperature, epsilon) &&
		valuesEqual(a.Humidity, b.Humidity, epsilon) &&
		valuesEqual(a.SoilMoisturePercent, b.SoilMoisturePercent, epsilon) &&
		a.PumpStatus == b.PumpStatus &&
		a.BulbStatus == b.BulbStatus
}

func valuesEqual(a, b, epsilon float64) bool {
	return math.Abs(a-b) <= epsilon
}
