package motorbus

import "math"

// DecodeSignMagnitude converts a sign-magnitude encoded register value to a
// signed integer. STS servos store sign and magnitude as separate bit fields
// rather than two's complement. A signBit of 0 means no encoding.
func DecodeSignMagnitude(value, signBit int) int {
	if signBit == 0 {
		return value
	}
	signMask := 1 << signBit
	if value&signMask != 0 {
		return -(value & (signMask - 1))
	}
	return value
}

// EncodeSignMagnitude is the exact inverse of DecodeSignMagnitude.
func EncodeSignMagnitude(value, signBit int) int {
	if signBit == 0 {
		return value
	}
	if value < 0 {
		return (-value) | (1 << signBit)
	}
	return value
}

// normalizeValue converts a raw encoder count into the motor's unit range.
// Raw values outside the calibrated range are clamped, never extrapolated.
func normalizeValue(name string, raw int, calib MotorCalibration, mode NormMode, resolution int) (float64, error) {
	switch mode {
	case NormRaw:
		return float64(raw), nil
	case NormDegrees:
		return float64(raw) * 360.0 / float64(resolution), nil
	}

	if calib.RangeMax == calib.RangeMin {
		return 0, &DegenerateCalibrationError{Motor: name, Value: calib.RangeMin}
	}

	raw = clampInt(raw, calib.RangeMin, calib.RangeMax)
	if calib.DriveMode == DriveInverted {
		raw = calib.RangeMax - (raw - calib.RangeMin)
	}

	span := float64(calib.RangeMax - calib.RangeMin)
	frac := float64(raw-calib.RangeMin) / span

	switch mode {
	case NormRangeM100To100:
		return frac*200 - 100, nil
	case NormRange0To100:
		return frac * 100, nil
	}
	return float64(raw), nil
}

// unnormalizeValue is the inverse of normalizeValue, used on the write path.
// Out-of-range inputs are clamped to the declared unit bounds.
func unnormalizeValue(name string, value float64, calib MotorCalibration, mode NormMode, resolution int) (int, error) {
	switch mode {
	case NormRaw:
		return int(math.Round(value)), nil
	case NormDegrees:
		return int(math.Round(value * float64(resolution) / 360.0)), nil
	}

	if calib.RangeMax == calib.RangeMin {
		return 0, &DegenerateCalibrationError{Motor: name, Value: calib.RangeMin}
	}

	span := float64(calib.RangeMax - calib.RangeMin)
	var frac float64
	switch mode {
	case NormRangeM100To100:
		value = clampFloat(value, -100, 100)
		frac = (value + 100) / 200
	case NormRange0To100:
		value = clampFloat(value, 0, 100)
		frac = value / 100
	default:
		return int(math.Round(value)), nil
	}

	raw := calib.RangeMin + int(math.Round(frac*span))
	if calib.DriveMode == DriveInverted {
		raw = calib.RangeMax - (raw - calib.RangeMin)
	}
	return raw, nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
