package devicelink

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Kwame-Minta2021/AgricMind-Ai/services/dashboard/greenhouse"
)

// Telemetry is one device report. Nil fields were absent from the payload.
type Telemetry struct {
	Temperature  *float64
	Humidity     *float64
	SoilMoisture *float64
	PumpStatus   *bool
	BulbStatus   *bool
	Timestamp    time.Time
}

// ParseTelemetry decodes a telemetry payload. Numbers may arrive as JSON
// numbers or numeric strings; snake_case keys are accepted too. A missing or
// unparseable timestamp falls back to now.
func ParseTelemetry(payload []byte, now time.Time) (Telemetry, error) {
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Telemetry{}, fmt.Errorf("decode telemetry: %w", err)
	}

	t := Telemetry{Timestamp: now.UTC()}
	if v, ok := getFloat64Value(raw, "temperature"); ok {
		t.Temperature = &v
	}
	if v, ok := getFloat64Value(raw, "humidity"); ok {
		t.Humidity = &v
	}
	if v, ok := getFloat64Value(raw, "soilMoisture", "soil_moisture"); ok {
		t.SoilMoisture = &v
	}
	if v, ok := getBoolValue(raw, "pumpStatus", "pump_status"); ok {
		t.PumpStatus = &v
	}
	if v, ok := getBoolValue(raw, "bulbStatus", "bulb_status"); ok {
		t.BulbStatus = &v
	}
	if ts, ok := getTimestamp(raw, "timestamp"); ok {
		t.Timestamp = ts
	}

	if t.Temperature == nil && t.Humidity == nil && t.SoilMoisture == nil && t.PumpStatus == nil && t.BulbStatus == nil {
		return Telemetry{}, fmt.Errorf("decode telemetry: no known fields")
	}
	return t, nil
}

// Updates maps the report onto realtime store paths.
func (t Telemetry) Updates() map[string]any {
	out := map[string]any{
		greenhouse.PathDeviceOnline: true,
		greenhouse.PathLastUpdate:   t.Timestamp.Unix(),
	}
	if t.Temperature != nil {
		out[greenhouse.PathTemperature] = *t.Temperature
	}
	if t.Humidity != nil {
		out[greenhouse.PathHumidity] = *t.Humidity
	}
	if t.SoilMoisture != nil {
		out[greenhouse.PathSoilMoisture] = int(*t.SoilMoisture)
		out[greenhouse.PathSoilMoisturePercent] = greenhouse.NormalizeSoilMoisture(*t.SoilMoisture)
	}
	if t.PumpStatus != nil {
		out[greenhouse.PathPumpStatus] = *t.PumpStatus
	}
	if t.BulbStatus != nil {
		out[greenhouse.PathBulbStatus] = *t.BulbStatus
	}
	return out
}

// ParseStatus reads the device's online/offline status message.
func ParseStatus(payload []byte) (bool, error) {
	s := strings.ToLower(strings.Trim(strings.TrimSpace(string(payload)), `"`))
	switch s {
	case "online", "true", "1", "connected":
		return true, nil
	case "offline", "false", "0", "disconnected":
		return false, nil
	}
	return false, fmt.Errorf("unknown device status %q", s)
}

// getFloat64Value returns the first of keys holding a number.
func getFloat64Value(data map[string]any, keys ...string) (float64, bool) {
	for _, key := range keys {
		val, ok := data[key]
		if !ok {
			continue
		}
		switch v := val.(type) {
		case float64:
			return v, true
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

func getBoolValue(data map[string]any, keys ...string) (bool, bool) {
	for _, key := range keys {
		val, ok := data[key]
		if !ok {
			continue
		}
		switch v := val.(type) {
		case bool:
			return v, true
		case float64:
			return v != 0, true
		case string:
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "true", "on", "1":
				return true, true
			case "false", "off", "0":
				return false, true
			}
		}
	}
	return false, false
}

// getTimestamp accepts RFC3339 strings and unix seconds or milliseconds.
func getTimestamp(data map[string]any, key string) (time.Time, bool) {
	switch v := data[key].(type) {
	case string:
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			return ts.UTC(), true
		}
	case float64:
		if v <= 0 {
			return time.Time{}, false
		}
		if v > 1e12 {
			return time.UnixMilli(int64(v)).UTC(), true
		}
		return time.Unix(int64(v), 0).UTC(), true
	}
	return time.Time{}, false
}
