package greenhouse

import "github.com/Kwame-Minta2021/AgricMind-Ai/services/dashboard/rtdb"

// SoilADCMax is the full-scale reading of the device's 12-bit soil probe.
// The probe reads high when dry.
const SoilADCMax = 4095

// NormalizeSoilMoisture maps a raw probe reading to a 0-100 % wetness scale.
func NormalizeSoilMoisture(raw float64) float64 {
	return clampPercent((SoilADCMax - raw) / SoilADCMax * 100)
}

func clampPercent(v float64) float64 {
	switch {
	case v != v: // NaN
		return 0
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}

// DecodeSensors reads the sensors subtree. Absent fields decode as zero; the
// percentage is derived from the raw reading when present, otherwise taken from
// the device-published percentage.
func DecodeSensors(snap rtdb.Snapshot) SensorReading {
	r := SensorReading{
		Temperature: snap.Child("temperature").Float(),
		Humidity:    snap.Child("humidity").Float(),
	}
	if raw := snap.Child("soilMoisture"); raw.Exists() {
		r.SoilMoisture = int(raw.Int())
		r.SoilMoisturePercent = NormalizeSoilMoisture(raw.Float())
	} else if pct := snap.Child("soilMoisturePercent"); pct.Exists() {
		r.SoilMoisturePercent = clampPercent(pct.Float())
	}
	return r
}

// DecodeActuators reads the actuators subtree; absent flags are OFF.
func DecodeActuators(snap rtdb.Snapshot) ActuatorState {
	return ActuatorState{
		PumpStatus: snap.Child("pumpStatus").Bool(),
		BulbStatus: snap.Child("bulbStatus").Bool(),
	}
}

// DecodeControls reads the controls subtree.
func DecodeControls(snap rtdb.Snapshot) ControlFlags {
	return ControlFlags{
		RemoteControlEnabled: snap.Child("remoteControlEnabled").Bool(),
		RemotePumpControl:    snap.Child("remotePumpControl").Bool(),
		RemoteBulbControl:    snap.Child("remoteBulbControl").Bool(),
		ManualPumpCommand:    snap.Child("manualPumpCommand").Bool(),
		ManualBulbCommand:    snap.Child("manualBulbCommand").Bool(),
	}
}

// DecodeSystem reads the device heartbeat.
func DecodeSystem(snap rtdb.Snapshot) SystemStatus {
	return SystemStatus{
		DeviceOnline: snap.Child("deviceOnline").Bool(),
		LastUpdate:   snap.Child("lastUpdate").Int(),
	}
}

// Decode reads the whole tree from a root snapshot.
func Decode(root rtdb.Snapshot) State {
	return State{
		Sensors:   DecodeSensors(root.Child(PathSensors)),
		Actuators: DecodeActuators(root.Child(PathActuators)),
		Controls:  DecodeControls(root.Child(PathControls)),
		System:    DecodeSystem(root.Child(PathSystem)),
	}
}
