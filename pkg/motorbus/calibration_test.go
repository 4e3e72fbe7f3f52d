package motorbus

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestCalibrationSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calibration.json")

	cal := Calibration{
		"shoulder_pan": {ID: 1, DriveMode: 0, HomingOffset: -1047, RangeMin: 823, RangeMax: 3278},
		"gripper":      {ID: 6, DriveMode: 1, HomingOffset: 12, RangeMin: 2010, RangeMax: 3510},
	}

	if err := cal.Save(path); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadCalibration(path)
	if err != nil {
		t.Fatal(err)
	}

	if len(loaded) != len(cal) {
		t.Fatalf("loaded %d entries, want %d", len(loaded), len(cal))
	}
	for name, want := range cal {
		if loaded[name] != want {
			t.Errorf("%s: loaded %+v, want %+v", name, loaded[name], want)
		}
	}
}

func TestCalibrationJSONFields(t *testing.T) {
	mc := MotorCalibration{ID: 3, DriveMode: 1, HomingOffset: -200, RangeMin: 100, RangeMax: 4000}

	data, err := json.Marshal(mc)
	if err != nil {
		t.Fatal(err)
	}

	var fields map[string]int
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatal(err)
	}

	want := map[string]int{
		"id":            3,
		"drive_mode":    1,
		"homing_offset": -200,
		"range_min":     100,
		"range_max":     4000,
	}
	if len(fields) != len(want) {
		t.Fatalf("persisted %d fields, want %d: %s", len(fields), len(want), data)
	}
	for k, v := range want {
		if fields[k] != v {
			t.Errorf("field %q = %d, want %d", k, fields[k], v)
		}
	}
}

func TestLoadCalibrationMissingFile(t *testing.T) {
	if _, err := LoadCalibration("/nonexistent/calibration.json"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadCalibrationBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadCalibration(path); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestCalibrationCovers(t *testing.T) {
	cal := Calibration{
		"a": {ID: 1, RangeMin: 100, RangeMax: 4000},
		"b": {ID: 2, RangeMin: 500, RangeMax: 3500},
		"c": {ID: 3, RangeMin: 2048, RangeMax: 2048}, // degenerate
	}

	if !cal.Covers([]string{"a", "b"}) {
		t.Error("should cover a and b")
	}
	if cal.Covers([]string{"a", "b", "c"}) {
		t.Error("should not cover c, range is degenerate")
	}
	if cal.Covers([]string{"a", "d"}) {
		t.Error("should not cover d, no entry")
	}
}

func TestMotorCalibrationValid(t *testing.T) {
	tests := []struct {
		mc    MotorCalibration
		valid bool
	}{
		{MotorCalibration{RangeMin: 0, RangeMax: 4095}, true},
		{MotorCalibration{RangeMin: 2048, RangeMax: 2048}, false},
		{MotorCalibration{RangeMin: 3000, RangeMax: 1000}, false},
	}

	for _, tt := range tests {
		if got := tt.mc.Valid(); got != tt.valid {
			t.Errorf("Valid(%+v) = %v, want %v", tt.mc, got, tt.valid)
		}
	}
}
