package upstream

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"aquamon/internal/models"
)

// Payload is the decoded body of the channel's last-feed endpoint.
// Values keep their JSON type (json.Number, string, nil).
type Payload map[string]interface{}

// Field names published by the channel, primary name first then the
// ThingSpeak-native alias
var (
	temperatureKeys = []string{"campo1", "field1"}
	levelKeys       = []string{"campo2", "field2"}
	pumpKeys        = []string{"campo3", "field3"}
	heaterKeys      = []string{"campo4", "field4"}
	createdAtKeys   = []string{"criado_em", "created_at"}
)

// Placeholder values used when the channel has nothing usable
const (
	DefaultTemperature = 25.0
	DefaultLevel       = 75.0
)

// timestampFormats are tried in order when reading the upstream creation time
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05 MST",
	"2006-01-02",
}

// Normalize converts a raw channel payload into a reading. Missing or
// unparsable numbers become 0, missing flags become false, and the sample
// time falls back to now.
func Normalize(p Payload, now time.Time) models.Reading {
	ts, ok := parseTimestamp(lookup(p, createdAtKeys))
	if !ok {
		ts = now
	}
	return models.Reading{
		Temperature:  ParseDecimal(lookup(p, temperatureKeys)),
		Level:        ParseDecimal(lookup(p, levelKeys)),
		PumpStatus:   ParseFlag(lookup(p, pumpKeys)),
		HeaterStatus: ParseFlag(lookup(p, heaterKeys)),
		Timestamp:    ts.UTC(),
	}
}

// DefaultReading is the placeholder reading that keeps the series continuous
// when the channel is unreachable
func DefaultReading(now time.Time) models.Reading {
	return models.Reading{
		Temperature:  DefaultTemperature,
		Level:        DefaultLevel,
		PumpStatus:   false,
		HeaterStatus: false,
		Timestamp:    now.UTC(),
		Placeholder:  true,
	}
}

// ParseDecimal coerces a JSON value to float64. Strings are tried as
// dot-decimal first, then with a comma decimal separator; anything else is 0.
func ParseDecimal(v interface{}) float64 {
	switch value := v.(type) {
	case nil:
		return 0
	case float64:
		return finite(value)
	case float32:
		return finite(float64(value))
	case int:
		return float64(value)
	case int64:
		return float64(value)
	case json.Number:
		return parseDecimalString(value.String())
	case string:
		return parseDecimalString(value)
	default:
		return 0
	}
}

func parseDecimalString(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return finite(f)
	}
	// "23,5" style locale formatting, only when the comma is the sole separator
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		if f, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64); err == nil {
			return finite(f)
		}
	}
	return 0
}

// finite maps NaN and ±Inf to 0 so they never reach storage
func finite(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// ParseFlag coerces an actuator flag to a bool. Any non-zero integer part is
// true; absent or unparsable values are false.
func ParseFlag(v interface{}) bool {
	switch value := v.(type) {
	case bool:
		return value
	case nil:
		return false
	default:
		return math.Trunc(ParseDecimal(value)) != 0
	}
}

func lookup(p Payload, keys []string) interface{} {
	for _, k := range keys {
		if v, ok := p[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func parseTimestamp(v interface{}) (time.Time, bool) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	s = strings.TrimSpace(s)
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
