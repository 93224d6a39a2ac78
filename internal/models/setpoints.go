package models

// Setpoints is the singleton band configuration (id=1) shown by the dashboard
type Setpoints struct {
	Temp  TempBand  `json:"temp"`
	Level LevelBand `json:"level"`
}

// TempBand is the acceptable temperature range in °C
type TempBand struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// LevelBand is the acceptable water level range in %
type LevelBand struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// DefaultSetpoints returns the values seeded on first initialization
func DefaultSetpoints() Setpoints {
	return Setpoints{
		Temp:  TempBand{Min: 20.0, Max: 30.0},
		Level: LevelBand{Min: 60, Max: 90},
	}
}

// TempInBand reports whether t lies within the temperature band
func (s Setpoints) TempInBand(t float64) bool {
	return t >= s.Temp.Min && t <= s.Temp.Max
}

// LevelInBand reports whether l lies within the level band
func (s Setpoints) LevelInBand(l float64) bool {
	return l >= float64(s.Level.Min) && l <= float64(s.Level.Max)
}
