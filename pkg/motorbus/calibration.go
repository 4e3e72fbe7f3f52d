package motorbus

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// MotorCalibration holds calibration data for a single motor. The persisted
// form is exactly these five fields.
type MotorCalibration struct {
	ID           int `json:"id"`
	DriveMode    int `json:"drive_mode"`
	HomingOffset int `json:"homing_offset"`
	RangeMin     int `json:"range_min"`
	RangeMax     int `json:"range_max"`
}

// Valid reports whether the calibrated range is usable.
func (c MotorCalibration) Valid() bool {
	return c.RangeMin < c.RangeMax
}

// Calibration holds calibration data for a set of motors, keyed by name.
type Calibration map[string]MotorCalibration

// LoadCalibration loads calibration data from a JSON file.
func LoadCalibration(path string) (Calibration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read calibration file")
	}

	var cal Calibration
	if err := json.Unmarshal(data, &cal); err != nil {
		return nil, errors.Wrap(err, "parse calibration JSON")
	}
	return cal, nil
}

// Save writes the calibration to a JSON file.
func (c Calibration) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode calibration")
	}
	return errors.Wrap(os.WriteFile(path, data, 0644), "write calibration file")
}

// Covers reports whether every named motor has a valid calibration entry.
func (c Calibration) Covers(names []string) bool {
	for _, name := range names {
		mc, ok := c[name]
		if !ok || !mc.Valid() {
			return false
		}
	}
	return true
}
