// Package motorbus maps named joints to bus servos and translates register
// operations into batched wire transactions with calibrated values.
package motorbus

import "fmt"

// NormMode selects the unit range a calibrated value is mapped into.
type NormMode int

const (
	// NormRaw passes encoder counts through unscaled.
	NormRaw NormMode = iota
	// NormDegrees converts counts to degrees using the model resolution.
	NormDegrees
	// NormRangeM100To100 maps the calibrated range to [-100, 100].
	NormRangeM100To100
	// NormRange0To100 maps the calibrated range to [0, 100].
	NormRange0To100
)

func (m NormMode) String() string {
	switch m {
	case NormRaw:
		return "raw"
	case NormDegrees:
		return "degrees"
	case NormRangeM100To100:
		return "range_m100_100"
	case NormRange0To100:
		return "range_0_100"
	default:
		return fmt.Sprintf("norm_mode(%d)", int(m))
	}
}

// Motor describes one servo on the bus. Immutable after bus construction.
type Motor struct {
	ID       int
	Model    string
	NormMode NormMode
}

// Drive modes.
const (
	DriveNormal   = 0
	DriveInverted = 1
)

// Torque enable register values.
const (
	TorqueDisabled = 0
	TorqueEnabled  = 1
)

// Operating modes shared by STS servos (Feetech numbering).
const (
	ModePosition = 0
	ModeVelocity = 1
	ModePWM      = 2
	ModeStep     = 3
)

// Dynamixel X-series operating modes differ from the Feetech numbering.
const (
	DynamixelModeCurrent         = 0
	DynamixelModeVelocity        = 1
	DynamixelModePosition        = 3
	DynamixelModeExtendedPos     = 4
	DynamixelModeCurrentBasedPos = 5
	DynamixelModePWM             = 16
)
