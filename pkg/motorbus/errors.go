package motorbus

import (
	"fmt"
	"sort"
	"strings"
)

// NotConnectedError is returned when an operation is attempted on a bus that
// has not been connected, or after it was disconnected.
type NotConnectedError struct {
	Op string
}

func (e *NotConnectedError) Error() string {
	return fmt.Sprintf("%s: bus is not connected, call Connect first", e.Op)
}

// AlreadyConnectedError is returned by Connect on an already connected bus.
type AlreadyConnectedError struct{}

func (e *AlreadyConnectedError) Error() string {
	return "bus is already connected"
}

// CommError is a transient communication failure: a timeout, a checksum
// mismatch, or a missing status packet. It names the servo IDs involved.
type CommError struct {
	Op  string
	IDs []int
	Err error
}

func (e *CommError) Error() string {
	if len(e.IDs) > 0 {
		return fmt.Sprintf("%s failed for ids %v: %v", e.Op, e.IDs, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *CommError) Unwrap() error {
	return e.Err
}

// UnknownRegisterError is returned when a model does not define a register.
type UnknownRegisterError struct {
	Model    string
	Register Register
}

func (e *UnknownRegisterError) Error() string {
	if e.Model == "" {
		return fmt.Sprintf("unknown register %s", e.Register)
	}
	return fmt.Sprintf("model %q does not define register %s", e.Model, e.Register)
}

// RegisterMismatchError is returned when motors in one batched call resolve a
// register to different (address, length) pairs. This is a setup error and is
// detected before any wire I/O.
type RegisterMismatchError struct {
	Register Register
	Models   []string
}

func (e *RegisterMismatchError) Error() string {
	return fmt.Sprintf("register %s has conflicting layouts across models %v", e.Register, e.Models)
}

// ModelMismatch pairs the expected and found model numbers for one servo.
type ModelMismatch struct {
	Expected int
	Found    int
}

// MotorMismatchError reports every servo that failed the connect handshake:
// IDs that did not respond and IDs that reported an unexpected model number.
type MotorMismatchError struct {
	Missing map[int]int           // id -> expected model number
	Wrong   map[int]ModelMismatch // id -> expected/found model numbers
}

func (e *MotorMismatchError) Error() string {
	var b strings.Builder
	b.WriteString("motor check failed:")

	if len(e.Missing) > 0 {
		b.WriteString(" missing ids:")
		for _, id := range sortedKeys(e.Missing) {
			fmt.Fprintf(&b, " %d (expected model %d)", id, e.Missing[id])
		}
	}
	if len(e.Wrong) > 0 {
		b.WriteString(" wrong models:")
		for _, id := range sortedKeys(e.Wrong) {
			mm := e.Wrong[id]
			fmt.Fprintf(&b, " %d (expected %d, found %d)", id, mm.Expected, mm.Found)
		}
	}
	return b.String()
}

// DegenerateCalibrationError is returned when a calibrated range is empty
// (range_min == range_max), which would otherwise divide by zero.
type DegenerateCalibrationError struct {
	Motor string
	Value int
}

func (e *DegenerateCalibrationError) Error() string {
	return fmt.Sprintf("motor %q has a degenerate calibration range (min == max == %d)", e.Motor, e.Value)
}

// MissingCalibrationError is returned when a normalized operation targets a
// joint that has no calibration entry.
type MissingCalibrationError struct {
	Motor string
}

func (e *MissingCalibrationError) Error() string {
	return fmt.Sprintf("motor %q has no calibration, calibrate it or read raw values", e.Motor)
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
