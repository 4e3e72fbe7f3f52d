package motorbus

import (
	"math"
	"testing"
)

func TestSignMagnitudeRoundTrip(t *testing.T) {
	for _, signBit := range []int{11, 15, 31} {
		for _, v := range []int{0, 1, -1, 100, -100, 2047, -2047} {
			encoded := EncodeSignMagnitude(v, signBit)
			got := DecodeSignMagnitude(encoded, signBit)
			if got != v {
				t.Errorf("sign bit %d: round trip of %d gave %d (encoded 0x%X)", signBit, v, got, encoded)
			}
		}
	}
}

func TestDecodeSignMagnitude(t *testing.T) {
	tests := []struct {
		value    int
		signBit  int
		expected int
	}{
		{0, 11, 0},
		{100, 11, 100},
		{2048 + 100, 11, -100},  // bit 11 set -> negative magnitude
		{2047, 11, 2047},        // max positive
		{4095, 11, -2047},       // max negative
		{32768 + 500, 15, -500}, // velocity registers use bit 15
		{500, 0, 500},           // sign bit 0 means passthrough
		{4095, 0, 4095},
	}

	for _, tt := range tests {
		got := DecodeSignMagnitude(tt.value, tt.signBit)
		if got != tt.expected {
			t.Errorf("DecodeSignMagnitude(%d, %d) = %d, want %d", tt.value, tt.signBit, got, tt.expected)
		}
	}
}

func TestEncodeSignMagnitude(t *testing.T) {
	tests := []struct {
		value    int
		signBit  int
		expected int
	}{
		{0, 11, 0},
		{100, 11, 100},
		{-100, 11, 2048 + 100},
		{-2047, 11, 4095},
		{-500, 15, 32768 + 500},
		{-500, 0, -500}, // passthrough
	}

	for _, tt := range tests {
		got := EncodeSignMagnitude(tt.value, tt.signBit)
		if got != tt.expected {
			t.Errorf("EncodeSignMagnitude(%d, %d) = %d, want %d", tt.value, tt.signBit, got, tt.expected)
		}
	}
}

func TestNormalizeRangeM100To100(t *testing.T) {
	cal := MotorCalibration{RangeMin: 1000, RangeMax: 3000}

	tests := []struct {
		raw      int
		expected float64
	}{
		{1000, -100.0},
		{3000, 100.0},
		{2000, 0.0},
		{1500, -50.0},
		{2500, 50.0},
		{500, -100.0},  // below range clamps to min
		{3500, 100.0},  // above range clamps to max
	}

	for _, tt := range tests {
		got, err := normalizeValue("shoulder", tt.raw, cal, NormRangeM100To100, 4096)
		if err != nil {
			t.Fatalf("normalizeValue(%d): %v", tt.raw, err)
		}
		if math.Abs(got-tt.expected) > 0.001 {
			t.Errorf("normalizeValue(%d) = %f, want %f", tt.raw, got, tt.expected)
		}
	}
}

func TestNormalizeRange0To100(t *testing.T) {
	cal := MotorCalibration{RangeMin: 500, RangeMax: 2500}

	tests := []struct {
		raw      int
		expected float64
	}{
		{500, 0.0},
		{2500, 100.0},
		{1500, 50.0},
		{0, 0.0},      // clamped
		{4000, 100.0}, // clamped
	}

	for _, tt := range tests {
		got, err := normalizeValue("gripper", tt.raw, cal, NormRange0To100, 4096)
		if err != nil {
			t.Fatalf("normalizeValue(%d): %v", tt.raw, err)
		}
		if math.Abs(got-tt.expected) > 0.001 {
			t.Errorf("normalizeValue(%d) = %f, want %f", tt.raw, got, tt.expected)
		}
	}
}

func TestNormalizeDegrees(t *testing.T) {
	// Degrees mode ignores calibration entirely.
	got, err := normalizeValue("wrist", 2048, MotorCalibration{}, NormDegrees, 4096)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(got-180.0) > 0.001 {
		t.Errorf("normalizeValue(2048, degrees) = %f, want 180", got)
	}

	raw, err := unnormalizeValue("wrist", 90.0, MotorCalibration{}, NormDegrees, 4096)
	if err != nil {
		t.Fatal(err)
	}
	if raw != 1024 {
		t.Errorf("unnormalizeValue(90, degrees) = %d, want 1024", raw)
	}
}

func TestNormalizeInvertedDrive(t *testing.T) {
	cal := MotorCalibration{DriveMode: DriveInverted, RangeMin: 1000, RangeMax: 3000}

	// Inverted drive mirrors the raw value within the range, so the
	// physical min reads as +100.
	got, err := normalizeValue("elbow", 1000, cal, NormRangeM100To100, 4096)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(got-100.0) > 0.001 {
		t.Errorf("inverted normalizeValue(1000) = %f, want 100", got)
	}

	got, err = normalizeValue("elbow", 3000, cal, NormRangeM100To100, 4096)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(got+100.0) > 0.001 {
		t.Errorf("inverted normalizeValue(3000) = %f, want -100", got)
	}
}

func TestNormalizeRoundTrip(t *testing.T) {
	cal := MotorCalibration{RangeMin: 823, RangeMax: 3278}

	for _, mode := range []NormMode{NormRangeM100To100, NormRange0To100} {
		for raw := cal.RangeMin; raw <= cal.RangeMax; raw += 137 {
			norm, err := normalizeValue("joint", raw, cal, mode, 4096)
			if err != nil {
				t.Fatal(err)
			}
			back, err := unnormalizeValue("joint", norm, cal, mode, 4096)
			if err != nil {
				t.Fatal(err)
			}
			if abs := back - raw; abs > 1 || abs < -1 {
				t.Errorf("%s: round trip of %d gave %d", mode, raw, back)
			}
		}
	}
}

func TestUnnormalizeClamps(t *testing.T) {
	cal := MotorCalibration{RangeMin: 1000, RangeMax: 3000}

	tests := []struct {
		mode     NormMode
		value    float64
		expected int
	}{
		{NormRangeM100To100, 150.0, 3000},  // clamped to +100 -> max
		{NormRangeM100To100, -150.0, 1000}, // clamped to -100 -> min
		{NormRange0To100, 120.0, 3000},
		{NormRange0To100, -5.0, 1000},
	}

	for _, tt := range tests {
		got, err := unnormalizeValue("joint", tt.value, cal, tt.mode, 4096)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.expected {
			t.Errorf("unnormalizeValue(%f, %s) = %d, want %d", tt.value, tt.mode, got, tt.expected)
		}
	}
}

func TestNormalizeDegenerateRange(t *testing.T) {
	cal := MotorCalibration{RangeMin: 2048, RangeMax: 2048}

	if _, err := normalizeValue("joint", 2048, cal, NormRangeM100To100, 4096); err == nil {
		t.Error("expected error for degenerate range on normalize")
	} else if _, ok := err.(*DegenerateCalibrationError); !ok {
		t.Errorf("expected DegenerateCalibrationError, got %T", err)
	}

	if _, err := unnormalizeValue("joint", 0, cal, NormRange0To100, 4096); err == nil {
		t.Error("expected error for degenerate range on unnormalize")
	}
}
