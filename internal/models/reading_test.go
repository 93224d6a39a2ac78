package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestReadingJSON(t *testing.T) {
	r := Reading{
		ID:           7,
		Temperature:  24.5,
		Level:        80,
		PumpStatus:   true,
		HeaterStatus: false,
		Timestamp:    time.Date(2024, 3, 1, 7, 0, 0, 0, time.FixedZone("BRT", -3*3600)),
	}

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"temperature":24.5,"level":80,"pump_status":1,"heater_status":0,"timestamp":"2024-03-01T10:00:00Z"}`
	if string(data) != want {
		t.Fatalf("got  %s\nwant %s", data, want)
	}

	var back Reading
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if !back.PumpStatus || back.HeaterStatus || !back.Timestamp.Equal(r.Timestamp) {
		t.Fatalf("decoded %+v", back)
	}
}

func TestPlaceholderFlagOnlyWhenSet(t *testing.T) {
	data, err := json.Marshal(Reading{Temperature: 25, Level: 75, Placeholder: true})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"placeholder":true`) {
		t.Fatalf("placeholder flag missing: %s", data)
	}
}

func TestSetpointsBands(t *testing.T) {
	sp := DefaultSetpoints()
	if !sp.TempInBand(20) || !sp.TempInBand(30) || sp.TempInBand(30.1) {
		t.Fatal("temperature band bounds are inclusive")
	}
	if !sp.LevelInBand(60) || sp.LevelInBand(59.9) || sp.LevelInBand(91) {
		t.Fatal("level band bounds are inclusive")
	}

	data, err := json.Marshal(sp)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"temp":{"min":20,"max":30},"level":{"min":60,"max":90}}` {
		t.Fatalf("setpoints encoding = %s", data)
	}
}
