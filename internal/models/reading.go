package models

import (
	"encoding/json"
	"time"
)

// Reading represents a single telemetry sample from the tank
type Reading struct {
	ID           int64     `json:"-"`
	Temperature  float64   `json:"temperature"` // °C
	Level        float64   `json:"level"`       // % of the tank's usable range
	PumpStatus   bool      `json:"pump_status"`
	HeaterStatus bool      `json:"heater_status"`
	Timestamp    time.Time `json:"timestamp"`
	CreatedAt    time.Time `json:"-"`

	// Placeholder marks a synthesized reading. Only the values are stored,
	// not the flag.
	Placeholder bool `json:"placeholder,omitempty"`
}

// wireReading is the JSON shape consumed by the dashboard
type wireReading struct {
	Temperature  float64 `json:"temperature"`
	Level        float64 `json:"level"`
	PumpStatus   int     `json:"pump_status"`
	HeaterStatus int     `json:"heater_status"`
	Timestamp    string  `json:"timestamp"`
	Placeholder  bool    `json:"placeholder,omitempty"`
}

// MarshalJSON encodes actuator flags as 0|1 and the timestamp as RFC 3339 UTC
func (r Reading) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireReading{
		Temperature:  r.Temperature,
		Level:        r.Level,
		PumpStatus:   boolToInt(r.PumpStatus),
		HeaterStatus: boolToInt(r.HeaterStatus),
		Timestamp:    r.Timestamp.UTC().Format(time.RFC3339Nano),
		Placeholder:  r.Placeholder,
	})
}

// UnmarshalJSON is the inverse of MarshalJSON, used by API clients and tests
func (r *Reading) UnmarshalJSON(data []byte) error {
	var w wireReading
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	ts, err := time.Parse(time.RFC3339Nano, w.Timestamp)
	if err != nil {
		return err
	}
	*r = Reading{
		Temperature:  w.Temperature,
		Level:        w.Level,
		PumpStatus:   w.PumpStatus != 0,
		HeaterStatus: w.HeaterStatus != 0,
		Timestamp:    ts,
		Placeholder:  w.Placeholder,
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ReadingsResponse is the payload of both read endpoints
type ReadingsResponse struct {
	Readings  []Reading `json:"readings"`
	Setpoints Setpoints `json:"setpoints"`
}
