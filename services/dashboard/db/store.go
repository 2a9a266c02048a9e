package db

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store wraps database access helpers.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store backed by a pgx pool.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool resources.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Pool exposes the underlying pool so the realtime store can share it.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS greenhouse_readings (
    id                    BIGSERIAL PRIMARY KEY,
    ts                    TIMESTAMPTZ NOT NULL,
    temperature           DOUBLE PRECISION NOT NULL,
    humidity              DOUBLE PRECISION NOT NULL,
    soil_moisture         INTEGER NOT NULL,
    soil_moisture_percent DOUBLE PRECISION NOT NULL,
    pump_status           BOOLEAN NOT NULL,
    bulb_status           BOOLEAN NOT NULL
);
CREATE INDEX IF NOT EXISTS greenhouse_readings_ts_idx ON greenhouse_readings (ts DESC);
`

// EnsureSchema creates the history table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schemaSQL)
	return err
}

// Reading is one recorded sample of the greenhouse.
type Reading struct {
	ID                  int64     `json:"id"`
	Timestamp           time.Time `json:"ts"`
	Temperature         float64   `json:"temperature"`
	Humidity            float64   `json:"humidity"`
	SoilMoisture        int       `json:"soil_moisture"`
	SoilMoisturePercent float64   `json:"soil_moisture_percent"`
	PumpStatus          bool      `json:"pump_status"`
	BulbStatus          bool      `json:"bulb_status"`
}

// ReadingQuery holds filters for retrieving readings.
type ReadingQuery struct {
	Limit int
	Since *time.Time
	Until *time.Time
}

const readingColumns = `id, ts, temperature, humidity, soil_moisture, soil_moisture_percent, pump_status, bulb_status`

// FetchReadings returns the most recent readings matching q, oldest first.
func (s *Store) FetchReadings(ctx context.Context, q ReadingQuery) ([]Reading, error) {
	conditions := []string{}
	args := []any{}
	if q.Since != nil {
		conditions = append(conditions, "ts >= $"+strconv.Itoa(len(args)+1))
		args = append(args, *q.Since)
	}
	if q.Until != nil {
		conditions = append(conditions, "ts <= $"+strconv.Itoa(len(args)+1))
		args = append(args, *q.Until)
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}
	limit := ""
	if q.Limit > 0 {
		limit = " LIMIT $" + strconv.Itoa(len(args)+1)
		args = append(args, q.Limit)
	}

	sql := "SELECT * FROM (SELECT " + readingColumns + " FROM greenhouse_readings" + where +
		" ORDER BY ts DESC" + limit + ") recent ORDER BY ts"

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	readings := make([]Reading, 0)
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

// InsertReadings writes readings in one batch.
func (s *Store) InsertReadings(ctx context.Context, readings []Reading) error {
	if len(readings) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `INSERT INTO greenhouse_readings (ts, temperature, humidity, soil_moisture, soil_moisture_percent, pump_status, bulb_status)
VALUES ($1,$2,$3,$4,$5,$6,$7)`

	for _, r := range readings {
		batch.Queue(query, r.Timestamp, r.Temperature, r.Humidity, r.SoilMoisture, r.SoilMoisturePercent, r.PumpStatus, r.BulbStatus)
	}

	res := s.pool.SendBatch(ctx, batch)
	defer res.Close()

	for range readings {
		if _, err := res.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// AveragesResult holds mean readings over recent windows. Fields are nil when
// nothing was recorded in the window.
type AveragesResult struct {
	Temperature1h  *float64 `json:"temperature_1h,omitempty"`
	Temperature24h *float64 `json:"temperature_24h,omitempty"`
	Humidity1h     *float64 `json:"humidity_1h,omitempty"`
	Humidity24h    *float64 `json:"humidity_24h,omitempty"`
	Soil1h         *float64 `json:"soil_moisture_percent_1h,omitempty"`
	Soil24h        *float64 `json:"soil_moisture_percent_24h,omitempty"`
}

const averagesSQL = `
SELECT
  AVG(temperature)           FILTER (WHERE ts >= now() - interval '1 hour'),
  AVG(temperature),
  AVG(humidity)              FILTER (WHERE ts >= now() - interval '1 hour'),
  AVG(humidity),
  AVG(soil_moisture_percent) FILTER (WHERE ts >= now() - interval '1 hour'),
  AVG(soil_moisture_percent)
FROM greenhouse_readings
WHERE ts >= now() - interval '24 hours'
`

// GetAverages computes hourly and daily means of the recorded readings.
func (s *Store) GetAverages(ctx context.Context) (*AveragesResult, error) {
	var a AveragesResult
	if err := s.pool.QueryRow(ctx, averagesSQL).Scan(
		&a.Temperature1h, &a.Temperature24h,
		&a.Humidity1h, &a.Humidity24h,
		&a.Soil1h, &a.Soil24h,
	); err != nil {
		return nil, err
	}
	return &a, nil
}

func scanReading(row pgx.Row) (Reading, error) {
	var r Reading
	err := row.Scan(
		&r.ID,
		&r.Timestamp,
		&r.Temperature,
		&r.Humidity,
		&r.SoilMoisture,
		&r.SoilMoisturePercent,
		&r.PumpStatus,
		&r.BulbStatus,
	)
	return r, err
}
