package motorbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"
)

// Config holds configuration for creating a Bus.
type Config struct {
	// Transport is the protocol adapter driving the serial line.
	Transport Transport

	// Motors maps joint names to servo configurations.
	Motors map[string]Motor

	// Calibration is optional; load it from disk or capture it later.
	Calibration Calibration

	// Retries is the default retry count for calls that pass a negative
	// retry count. Zero means no retries.
	Retries int

	// Logger receives background poll warnings. Nil discards.
	Logger *slog.Logger

	// SampleInterval paces the range-of-motion recording loop.
	// Default is 66ms (about 15 Hz).
	SampleInterval time.Duration
}

// Bus is the motor communication layer for one serial bus. All transport
// access, foreground and background, is serialized behind one mutex.
type Bus struct {
	transport      Transport
	motors         map[string]Motor
	order          []string
	retries        int
	logger         *slog.Logger
	sampleInterval time.Duration

	mu          sync.Mutex
	connected   bool
	calibration Calibration
	poller      *Poller
}

// NewBus creates a bus over the given transport. Motors are immutable after
// construction; unknown models and duplicate IDs are rejected here, not at
// call time.
func NewBus(cfg Config) (*Bus, error) {
	if cfg.Transport == nil {
		return nil, errors.New("motorbus: transport is required")
	}
	if len(cfg.Motors) == 0 {
		return nil, errors.New("motorbus: at least one motor is required")
	}

	seen := make(map[int]string, len(cfg.Motors))
	order := make([]string, 0, len(cfg.Motors))
	for name, motor := range cfg.Motors {
		if motor.ID <= 0 {
			return nil, fmt.Errorf("motorbus: motor %q has invalid id %d", name, motor.ID)
		}
		if other, dup := seen[motor.ID]; dup {
			return nil, fmt.Errorf("motorbus: motors %q and %q share id %d", other, name, motor.ID)
		}
		if _, ok := LookupModel(motor.Model); !ok {
			return nil, fmt.Errorf("motorbus: motor %q has unknown model %q", name, motor.Model)
		}
		seen[motor.ID] = name
		order = append(order, name)
	}
	// Stable name order, lowest servo ID first.
	sort.Slice(order, func(i, j int) bool {
		return cfg.Motors[order[i]].ID < cfg.Motors[order[j]].ID
	})

	calibration := make(Calibration, len(cfg.Calibration))
	for name, mc := range cfg.Calibration {
		calibration[name] = mc
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	sampleInterval := cfg.SampleInterval
	if sampleInterval == 0 {
		sampleInterval = 66 * time.Millisecond
	}

	return &Bus{
		transport:      cfg.Transport,
		motors:         cfg.Motors,
		order:          order,
		retries:        cfg.Retries,
		logger:         logger,
		sampleInterval: sampleInterval,
		calibration:    calibration,
	}, nil
}

// MotorNames returns the joint names in bus order (lowest servo ID first).
func (b *Bus) MotorNames() []string {
	names := make([]string, len(b.order))
	copy(names, b.order)
	return names
}

// Motor returns the configuration for a named joint.
func (b *Bus) Motor(name string) (Motor, bool) {
	m, ok := b.motors[name]
	return m, ok
}

// IsConnected reports whether Connect succeeded and Disconnect has not run.
func (b *Bus) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

// Calibration returns a copy of the in-memory calibration cache.
func (b *Bus) Calibration() Calibration {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(Calibration, len(b.calibration))
	for name, mc := range b.calibration {
		out[name] = mc
	}
	return out
}

// IsCalibrated reports whether every configured joint has a valid
// calibration entry.
func (b *Bus) IsCalibrated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calibration.Covers(b.order)
}

// Connect opens the transport. With handshake, every configured servo is
// pinged and its model number checked; all discrepancies are collected into
// one MotorMismatchError. A handshake failure is a setup error, never
// retried.
func (b *Bus) Connect(ctx context.Context, handshake bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.connected {
		return &AlreadyConnectedError{}
	}
	if err := b.transport.Open(); err != nil {
		return fmt.Errorf("open transport: %w", err)
	}

	if handshake {
		if err := b.verifyMotorsLocked(ctx); err != nil {
			b.transport.Close()
			return err
		}
	}

	b.connected = true
	return nil
}

func (b *Bus) verifyMotorsLocked(ctx context.Context) error {
	missing := make(map[int]int)
	wrong := make(map[int]ModelMismatch)

	for _, name := range b.order {
		motor := b.motors[name]
		model, _ := LookupModel(motor.Model)

		var found int
		err := b.withRetry(b.retries, func() error {
			var pingErr error
			found, pingErr = b.transport.Ping(ctx, motor.ID)
			return pingErr
		})
		switch {
		case err != nil:
			missing[motor.ID] = model.Number
		case found != model.Number:
			wrong[motor.ID] = ModelMismatch{Expected: model.Number, Found: found}
		}
	}

	if len(missing) > 0 || len(wrong) > 0 {
		return &MotorMismatchError{Missing: missing, Wrong: wrong}
	}
	return nil
}

// Disconnect stops any background poller, then closes the transport. It does
// not return until the polling goroutine has exited, so the transport handle
// is never used after close.
func (b *Bus) Disconnect() error {
	b.mu.Lock()
	poller := b.poller
	b.poller = nil
	b.mu.Unlock()

	if poller != nil {
		poller.Stop()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return &NotConnectedError{Op: "disconnect"}
	}
	b.connected = false
	return b.transport.Close()
}

// SyncRead reads one register across the named joints in a single bus
// transaction. A nil names slice selects every configured joint. With
// normalize, values of normalizable registers pass through calibration into
// the joint's unit range. Transient failures are retried up to retries
// times; pass a negative count for the bus default.
func (b *Bus) SyncRead(ctx context.Context, reg Register, names []string, normalize bool, retries int) (map[string]float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.syncReadLocked(ctx, reg, names, normalize, retries)
}

func (b *Bus) syncReadLocked(ctx context.Context, reg Register, names []string, normalize bool, retries int) (map[string]float64, error) {
	if !b.connected {
		return nil, &NotConnectedError{Op: "sync read"}
	}
	names, ids, modelNames, err := b.resolve(names)
	if err != nil {
		return nil, err
	}
	entry, err := UniformEntry(modelNames, reg)
	if err != nil {
		return nil, err
	}

	var raw map[int]int
	err = b.withRetry(b.effectiveRetries(retries), func() error {
		var readErr error
		raw, readErr = b.transport.SyncRead(ctx, entry.Addr, entry.Length, ids)
		return readErr
	})
	if err != nil {
		return nil, err
	}

	values := make(map[string]float64, len(names))
	for i, name := range names {
		v, ok := raw[ids[i]]
		if !ok {
			return nil, &CommError{Op: "sync read", IDs: []int{ids[i]}, Err: errors.New("no value in response")}
		}
		v = DecodeSignMagnitude(v, entry.SignBit)

		if normalize && entry.Normalizable {
			values[name], err = b.toUnitsLocked(name, v)
			if err != nil {
				return nil, err
			}
		} else {
			values[name] = float64(v)
		}
	}
	return values, nil
}

// SyncWrite writes per-joint values to one register in a single bus
// transaction. The inverse pipeline of SyncRead: unnormalize, encode sign,
// batch. The write either queues every ID or fails as a whole.
func (b *Bus) SyncWrite(ctx context.Context, reg Register, values map[string]float64, normalize bool, retries int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.syncWriteLocked(ctx, reg, values, normalize, retries)
}

// SyncWriteAll broadcasts a single value to every configured joint.
func (b *Bus) SyncWriteAll(ctx context.Context, reg Register, value float64, normalize bool, retries int) error {
	values := make(map[string]float64, len(b.order))
	for _, name := range b.order {
		values[name] = value
	}
	return b.SyncWrite(ctx, reg, values, normalize, retries)
}

func (b *Bus) syncWriteLocked(ctx context.Context, reg Register, values map[string]float64, normalize bool, retries int) error {
	if !b.connected {
		return &NotConnectedError{Op: "sync write"}
	}
	if len(values) == 0 {
		return nil
	}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	names, ids, modelNames, err := b.resolve(names)
	if err != nil {
		return err
	}
	entry, err := UniformEntry(modelNames, reg)
	if err != nil {
		return err
	}
	if entry.ReadOnly {
		return fmt.Errorf("register %s is read-only", reg)
	}

	wire := make(map[int]int, len(names))
	for i, name := range names {
		var raw int
		if normalize && entry.Normalizable {
			raw, err = b.fromUnitsLocked(name, values[name])
			if err != nil {
				return err
			}
		} else {
			raw = int(math.Round(values[name]))
		}
		wire[ids[i]] = EncodeSignMagnitude(raw, entry.SignBit)
	}

	return b.withRetry(b.effectiveRetries(retries), func() error {
		return b.transport.SyncWrite(ctx, entry.Addr, entry.Length, wire)
	})
}

// Read reads one register from a single joint, for configuration registers
// touched rarely.
func (b *Bus) Read(ctx context.Context, reg Register, name string, normalize bool, retries int) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.readLocked(ctx, reg, name, normalize, retries)
}

func (b *Bus) readLocked(ctx context.Context, reg Register, name string, normalize bool, retries int) (float64, error) {
	if !b.connected {
		return 0, &NotConnectedError{Op: "read"}
	}
	motor, ok := b.motors[name]
	if !ok {
		return 0, fmt.Errorf("unknown motor %q", name)
	}
	entry, err := LookupRegister(motor.Model, reg)
	if err != nil {
		return 0, err
	}

	var raw int
	err = b.withRetry(b.effectiveRetries(retries), func() error {
		var readErr error
		raw, readErr = b.transport.ReadRegister(ctx, motor.ID, entry.Addr, entry.Length)
		return readErr
	})
	if err != nil {
		return 0, err
	}

	raw = DecodeSignMagnitude(raw, entry.SignBit)
	if normalize && entry.Normalizable {
		return b.toUnitsLocked(name, raw)
	}
	return float64(raw), nil
}

// Write writes one register on a single joint.
func (b *Bus) Write(ctx context.Context, reg Register, name string, value float64, normalize bool, retries int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writeLocked(ctx, reg, name, value, normalize, retries)
}

func (b *Bus) writeLocked(ctx context.Context, reg Register, name string, value float64, normalize bool, retries int) error {
	if !b.connected {
		return &NotConnectedError{Op: "write"}
	}
	motor, ok := b.motors[name]
	if !ok {
		return fmt.Errorf("unknown motor %q", name)
	}
	entry, err := LookupRegister(motor.Model, reg)
	if err != nil {
		return err
	}
	if entry.ReadOnly {
		return fmt.Errorf("register %s is read-only", reg)
	}

	raw := int(math.Round(value))
	if normalize && entry.Normalizable {
		raw, err = b.fromUnitsLocked(name, value)
		if err != nil {
			return err
		}
	}
	raw = EncodeSignMagnitude(raw, entry.SignBit)

	return b.withRetry(b.effectiveRetries(retries), func() error {
		return b.transport.WriteRegister(ctx, motor.ID, entry.Addr, entry.Length, raw)
	})
}

// EnableTorque enables torque on the named joints (all joints when none are
// given) and re-engages the configuration write-lock on models that have one.
func (b *Bus) EnableTorque(ctx context.Context, names ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(names) == 0 {
		names = b.order
	}
	for _, name := range names {
		if err := b.writeLocked(ctx, RegTorqueEnable, name, TorqueEnabled, false, -1); err != nil {
			return err
		}
		motor := b.motors[name]
		if HasRegister(motor.Model, RegLock) {
			if err := b.writeLocked(ctx, RegLock, name, 1, false, -1); err != nil {
				return err
			}
		}
	}
	return nil
}

// DisableTorque disables torque so the servos accept manual repositioning.
// Order matters: torque goes down first, then the write-lock is cleared.
func (b *Bus) DisableTorque(ctx context.Context, names ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(names) == 0 {
		names = b.order
	}
	for _, name := range names {
		if err := b.writeLocked(ctx, RegTorqueEnable, name, TorqueDisabled, false, -1); err != nil {
			return err
		}
		motor := b.motors[name]
		if HasRegister(motor.Model, RegLock) {
			if err := b.writeLocked(ctx, RegLock, name, 0, false, -1); err != nil {
				return err
			}
		}
	}
	return nil
}

// Configure applies the bus settings used for live control: zero response
// delay and maximum acceleration.
func (b *Bus) Configure(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, name := range b.order {
		motor := b.motors[name]
		if err := b.writeLocked(ctx, RegReturnDelay, name, 0, false, -1); err != nil {
			return err
		}
		if HasRegister(motor.Model, RegMaxAcceleration) {
			if err := b.writeLocked(ctx, RegMaxAcceleration, name, 254, false, -1); err != nil {
				return err
			}
		}
		if err := b.writeLocked(ctx, RegAcceleration, name, 254, false, -1); err != nil {
			return err
		}
	}
	return nil
}

// SetHalfTurnHomings makes each servo's present position the center of its
// logical range: the homing offset becomes position minus a half turn.
// Offsets are pushed to the hardware homing register and cached. The
// returned map holds the new offsets per joint.
func (b *Bus) SetHalfTurnHomings(ctx context.Context) (map[string]int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	positions, err := b.syncReadLocked(ctx, RegPresentPosition, nil, false, -1)
	if err != nil {
		return nil, err
	}

	offsets := make(map[string]int, len(positions))
	for _, name := range b.order {
		motor := b.motors[name]
		model, _ := LookupModel(motor.Model)
		offset := int(positions[name]) - (model.Resolution-1)/2
		if err := b.writeLocked(ctx, RegHomingOffset, name, float64(offset), false, -1); err != nil {
			return nil, err
		}
		offsets[name] = offset
	}

	// Cache only after every write succeeded.
	for name, offset := range offsets {
		mc := b.calibration[name]
		mc.ID = b.motors[name].ID
		mc.HomingOffset = offset
		b.calibration[name] = mc
	}
	return offsets, nil
}

// RangeSample is one observation of the range-of-motion recording loop.
type RangeSample struct {
	Positions map[string]int
	Mins      map[string]int
	Maxes     map[string]int
}

// RecordRangesOfMotion samples raw positions at the configured interval
// until stop fires, tracking running extrema seeded from the first sample.
// observe, when non-nil, is invoked after every sample for live rendering.
func (b *Bus) RecordRangesOfMotion(ctx context.Context, stop <-chan struct{}, observe func(RangeSample)) (map[string]int, map[string]int, error) {
	mins := make(map[string]int, len(b.order))
	maxes := make(map[string]int, len(b.order))

	ticker := time.NewTicker(b.sampleInterval)
	defer ticker.Stop()

	for {
		positions, err := b.SyncRead(ctx, RegPresentPosition, nil, false, -1)
		if err != nil {
			return nil, nil, err
		}

		sample := RangeSample{
			Positions: make(map[string]int, len(positions)),
			Mins:      make(map[string]int, len(positions)),
			Maxes:     make(map[string]int, len(positions)),
		}
		for name, v := range positions {
			pos := int(v)
			sample.Positions[name] = pos
			if _, seeded := mins[name]; !seeded {
				mins[name] = pos
				maxes[name] = pos
			} else {
				mins[name] = min(mins[name], pos)
				maxes[name] = max(maxes[name], pos)
			}
			sample.Mins[name] = mins[name]
			sample.Maxes[name] = maxes[name]
		}
		if observe != nil {
			observe(sample)
		}

		select {
		case <-stop:
			return mins, maxes, nil
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// WriteCalibration pushes homing offsets and range limits to the servos and
// updates the in-memory cache. The cache is only updated when every write
// succeeded, so a failed push never reports stale success.
func (b *Bus) WriteCalibration(ctx context.Context, cal Calibration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, name := range b.order {
		mc, ok := cal[name]
		if !ok {
			continue
		}
		if mc.RangeMin == mc.RangeMax {
			return &DegenerateCalibrationError{Motor: name, Value: mc.RangeMin}
		}
		if !mc.Valid() {
			return fmt.Errorf("motor %q calibration has range_min %d >= range_max %d", name, mc.RangeMin, mc.RangeMax)
		}

		if err := b.writeLocked(ctx, RegHomingOffset, name, float64(mc.HomingOffset), false, -1); err != nil {
			return err
		}
		if err := b.writeLocked(ctx, RegMinPositionLimit, name, float64(mc.RangeMin), false, -1); err != nil {
			return err
		}
		if err := b.writeLocked(ctx, RegMaxPositionLimit, name, float64(mc.RangeMax), false, -1); err != nil {
			return err
		}
	}

	for name, mc := range cal {
		if _, ok := b.motors[name]; ok {
			b.calibration[name] = mc
		}
	}
	return nil
}

// ReadCalibration pulls homing offsets and range limits from the servos.
// Drive modes are not stored on the hardware and carry over from the cache.
func (b *Bus) ReadCalibration(ctx context.Context) (Calibration, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cal := make(Calibration, len(b.order))
	for _, name := range b.order {
		motor := b.motors[name]

		minPos, err := b.readLocked(ctx, RegMinPositionLimit, name, false, -1)
		if err != nil {
			return nil, err
		}
		maxPos, err := b.readLocked(ctx, RegMaxPositionLimit, name, false, -1)
		if err != nil {
			return nil, err
		}
		offset, err := b.readLocked(ctx, RegHomingOffset, name, false, -1)
		if err != nil {
			return nil, err
		}

		cal[name] = MotorCalibration{
			ID:           motor.ID,
			DriveMode:    b.calibration[name].DriveMode,
			HomingOffset: int(offset),
			RangeMin:     int(minPos),
			RangeMax:     int(maxPos),
		}
	}
	return cal, nil
}

// Internal helpers. All assume b.mu is held where relevant.

func (b *Bus) resolve(names []string) ([]string, []int, []string, error) {
	if len(names) == 0 {
		names = b.order
	}
	ids := make([]int, len(names))
	modelNames := make([]string, len(names))
	for i, name := range names {
		motor, ok := b.motors[name]
		if !ok {
			return nil, nil, nil, fmt.Errorf("unknown motor %q", name)
		}
		ids[i] = motor.ID
		modelNames[i] = motor.Model
	}
	return names, ids, modelNames, nil
}

func (b *Bus) toUnitsLocked(name string, raw int) (float64, error) {
	motor := b.motors[name]
	model, _ := LookupModel(motor.Model)
	calib, ok := b.calibration[name]
	if !ok && rangeMode(motor.NormMode) {
		return 0, &MissingCalibrationError{Motor: name}
	}
	return normalizeValue(name, raw, calib, motor.NormMode, model.Resolution)
}

func (b *Bus) fromUnitsLocked(name string, value float64) (int, error) {
	motor := b.motors[name]
	model, _ := LookupModel(motor.Model)
	calib, ok := b.calibration[name]
	if !ok && rangeMode(motor.NormMode) {
		return 0, &MissingCalibrationError{Motor: name}
	}
	return unnormalizeValue(name, value, calib, motor.NormMode, model.Resolution)
}

func rangeMode(mode NormMode) bool {
	return mode == NormRangeM100To100 || mode == NormRange0To100
}

func (b *Bus) effectiveRetries(retries int) int {
	if retries < 0 {
		return b.retries
	}
	return retries
}

// withRetry retries fn on transient communication errors only. Setup errors
// pass through untouched; there is no backoff, the bus is low latency and a
// failed transfer is best repeated immediately.
func (b *Bus) withRetry(retries int, fn func() error) error {
	var err error
	for attempt := 0; attempt <= retries; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		var commErr *CommError
		if !errors.As(err, &commErr) {
			return err
		}
	}
	return err
}
