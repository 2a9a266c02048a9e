// Package greenhouse holds the greenhouse data model, its decoding from the
// realtime store, the live state monitor and the actuator command writer.
package greenhouse

import (
	"errors"
	"fmt"
	"strings"
)

// Store paths read and written by the dashboard.
const (
	PathSensors   = "sensors"
	PathActuators = "actuators"
	PathControls  = "controls"
	PathSystem    = "system"

	PathTemperature         = "sensors/temperature"
	PathHumidity            = "sensors/humidity"
	PathSoilMoisture        = "sensors/soilMoisture"
	PathSoilMoisturePercent = "sensors/soilMoisturePercent"

	PathPumpStatus = "actuators/pumpStatus"
	PathBulbStatus = "actuators/bulbStatus"

	PathDeviceOnline = "system/deviceOnline"
	PathLastUpdate   = "system/lastUpdate"

	PathRemoteControlEnabled = "controls/remoteControlEnabled"
	PathRemotePumpControl    = "controls/remotePumpControl"
	PathRemoteBulbControl    = "controls/remoteBulbControl"
	PathManualPumpCommand    = "controls/manualPumpCommand"
	PathManualBulbCommand    = "controls/manualBulbCommand"
)

// SensorReading is the latest telemetry published by the device.
type SensorReading struct {
	Temperature         float64 `json:"temperature"`
	Humidity            float64 `json:"humidity"`
	SoilMoisture        int     `json:"soilMoisture"`
	SoilMoisturePercent float64 `json:"soilMoisturePercent"`
}

// ActuatorState mirrors the physical pump and grow light.
type ActuatorState struct {
	PumpStatus bool `json:"pumpStatus"`
	BulbStatus bool `json:"bulbStatus"`
}

// ControlFlags select whether each actuator obeys dashboard commands or the
// device's local control loop, and carry the last issued commands.
type ControlFlags struct {
	RemoteControlEnabled bool `json:"remoteControlEnabled"`
	RemotePumpControl    bool `json:"remotePumpControl"`
	RemoteBulbControl    bool `json:"remoteBulbControl"`
	ManualPumpCommand    bool `json:"manualPumpCommand"`
	ManualBulbCommand    bool `json:"manualBulbCommand"`
}

// SystemStatus is the device heartbeat.
type SystemStatus struct {
	DeviceOnline bool  `json:"deviceOnline"`
	LastUpdate   int64 `json:"lastUpdate"`
}

// State is the dashboard's view of the greenhouse.
type State struct {
	Sensors   SensorReading `json:"sensors"`
	Actuators ActuatorState `json:"actuators"`
	Controls  ControlFlags  `json:"controls"`
	System    SystemStatus  `json:"system"`
	Connected bool          `json:"connected"`
	Loading   bool          `json:"loading"`
	Error     string        `json:"error,omitempty"`
}

// HasReadings reports whether any sensor telemetry has arrived.
func (s State) HasReadings() bool {
	r := s.Sensors
	return !s.Loading && (r.Temperature != 0 || r.Humidity != 0 || r.SoilMoisture != 0 || r.SoilMoisturePercent != 0)
}

// Actuator names a controllable device.
type Actuator string

const (
	Pump Actuator = "pump"
	Bulb Actuator = "bulb"
)

// ErrUnknownActuator is returned for names other than pump and bulb.
var ErrUnknownActuator = errors.New("unknown actuator")

// ParseActuator accepts the API names plus the dashboard titles.
func ParseActuator(name string) (Actuator, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "pump", "water-pump", "water pump":
		return Pump, nil
	case "bulb", "light", "grow-light", "grow light":
		return Bulb, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownActuator, name)
}

// Title is the human-readable name used in insights.
func (a Actuator) Title() string {
	switch a {
	case Pump:
		return "Water Pump"
	case Bulb:
		return "Grow Light"
	}
	return string(a)
}

// OnOff renders a boolean the way the dashboard shows it.
func OnOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
