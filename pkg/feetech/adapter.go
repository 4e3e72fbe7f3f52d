package feetech

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/teleokit/motorbus/pkg/motorbus"
	"github.com/teleokit/motorbus/pkg/transport"
)

// Sentinel errors for common failure modes.
var (
	ErrTimeout    = errors.New("communication timeout")
	ErrNoResponse = errors.New("no response from servo")
	ErrClosed     = errors.New("adapter is closed")
)

// Adapter drives Feetech STS/SMS servos over a byte-level connection and
// implements motorbus.Transport.
//
// The adapter performs no locking of its own; the owning bus serializes all
// access to the underlying half-duplex line.
type Adapter struct {
	conn    transport.Conn
	dial    func() (transport.Conn, error)
	timeout time.Duration
	minGap  time.Duration
	lastCmd time.Time
	open    bool
}

// Config holds configuration for creating an Adapter.
type Config struct {
	// Conn is an already-open byte connection, used when provided.
	Conn transport.Conn

	// Port is the serial device path, used when Conn is nil.
	Port string

	// BaudRate is the line speed. Default 1000000.
	BaudRate int

	// Timeout bounds each response read. Default 1s.
	Timeout time.Duration

	// MinCommandGap is the minimum time between packets. Default 1ms.
	MinCommandGap time.Duration
}

// NewAdapter creates an adapter. The port is claimed by Open, not here.
func NewAdapter(cfg Config) (*Adapter, error) {
	if cfg.Conn == nil && cfg.Port == "" {
		return nil, errors.New("feetech: either Conn or Port must be specified")
	}
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 1000000
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Second
	}
	if cfg.MinCommandGap == 0 {
		cfg.MinCommandGap = time.Millisecond
	}

	a := &Adapter{
		timeout: cfg.Timeout,
		minGap:  cfg.MinCommandGap,
	}
	if cfg.Conn != nil {
		a.conn = cfg.Conn
	} else {
		port, baud, timeout := cfg.Port, cfg.BaudRate, cfg.Timeout
		a.dial = func() (transport.Conn, error) {
			return transport.OpenSerial(transport.SerialConfig{
				Port:     port,
				BaudRate: baud,
				Timeout:  timeout,
			})
		}
	}
	return a, nil
}

// Open claims the underlying connection.
func (a *Adapter) Open() error {
	if a.open {
		return nil
	}
	if a.conn == nil {
		conn, err := a.dial()
		if err != nil {
			return err
		}
		a.conn = conn
	}
	a.open = true
	a.lastCmd = time.Now()
	return nil
}

// Close releases the connection. The adapter cannot be reopened after a
// dialed connection is closed.
func (a *Adapter) Close() error {
	if !a.open {
		return nil
	}
	a.open = false
	return a.conn.Close()
}

// SetBaudRate changes the line speed.
func (a *Adapter) SetBaudRate(baud int) error {
	if !a.open {
		return ErrClosed
	}
	return a.conn.SetBaudRate(baud)
}

// Ping verifies a servo responds and returns its model number, read from the
// model number register after the ping handshake.
func (a *Adapter) Ping(ctx context.Context, id int) (int, error) {
	if err := a.checkID(id); err != nil {
		return 0, err
	}
	if !a.open {
		return 0, &motorbus.CommError{Op: "ping", IDs: []int{id}, Err: ErrClosed}
	}

	if err := a.send(pingPacket(byte(id))); err != nil {
		return 0, &motorbus.CommError{Op: "ping", IDs: []int{id}, Err: err}
	}
	if _, err := a.readStatus(ctx, byte(id), 0); err != nil {
		return 0, &motorbus.CommError{Op: "ping", IDs: []int{id}, Err: err}
	}

	// STS servos do not return the model number in the ping status packet;
	// it lives at address 3 in the control table.
	model, err := a.ReadRegister(ctx, id, 3, 2)
	if err != nil {
		return 0, err
	}
	return model, nil
}

// ReadRegister reads one register from one servo.
func (a *Adapter) ReadRegister(ctx context.Context, id int, addr uint16, length int) (int, error) {
	if err := a.checkID(id); err != nil {
		return 0, err
	}
	if !a.open {
		return 0, &motorbus.CommError{Op: "read", IDs: []int{id}, Err: ErrClosed}
	}

	if err := a.send(readPacket(byte(id), byte(addr), byte(length))); err != nil {
		return 0, &motorbus.CommError{Op: "read", IDs: []int{id}, Err: err}
	}
	pkt, err := a.readStatus(ctx, byte(id), length)
	if err != nil {
		return 0, &motorbus.CommError{Op: "read", IDs: []int{id}, Err: err}
	}

	value, err := decodeValue(pkt.Params)
	if err != nil {
		return 0, &motorbus.CommError{Op: "read", IDs: []int{id}, Err: err}
	}
	return value, nil
}

// WriteRegister writes one register on one servo and waits for the status
// packet.
func (a *Adapter) WriteRegister(ctx context.Context, id int, addr uint16, length int, value int) error {
	if err := a.checkID(id); err != nil {
		return err
	}
	if !a.open {
		return &motorbus.CommError{Op: "write", IDs: []int{id}, Err: ErrClosed}
	}

	data, err := encodeValue(value, length)
	if err != nil {
		return err
	}
	if err := a.send(writePacket(byte(id), byte(addr), data)); err != nil {
		return &motorbus.CommError{Op: "write", IDs: []int{id}, Err: err}
	}
	if _, err := a.readStatus(ctx, byte(id), 0); err != nil {
		return &motorbus.CommError{Op: "write", IDs: []int{id}, Err: err}
	}
	return nil
}

// SyncRead reads the same register from several servos in one transaction.
// Every servo answers with its own status packet.
func (a *Adapter) SyncRead(ctx context.Context, addr uint16, length int, ids []int) (map[int]int, error) {
	if !a.open {
		return nil, &motorbus.CommError{Op: "sync read", IDs: ids, Err: ErrClosed}
	}

	byteIDs := make([]byte, len(ids))
	for i, id := range ids {
		if err := a.checkID(id); err != nil {
			return nil, err
		}
		byteIDs[i] = byte(id)
	}

	if err := a.send(syncReadPacket(byte(addr), byte(length), byteIDs)); err != nil {
		return nil, &motorbus.CommError{Op: "sync read", IDs: ids, Err: err}
	}

	expected := len(ids) * (minPacketLen + length)
	raw, err := a.readRaw(ctx, expected)
	if err != nil {
		return nil, &motorbus.CommError{Op: "sync read", IDs: ids, Err: err}
	}

	values := make(map[int]int, len(ids))
	offset := 0
	for offset < len(raw) && len(values) < len(ids) {
		pkt, consumed, err := decode(raw[offset:])
		if err != nil {
			break
		}
		offset += consumed
		if pkt.Error != 0 {
			return nil, &motorbus.CommError{Op: "sync read", IDs: []int{int(pkt.ID)}, Err: pkt.Error}
		}
		v, err := decodeValue(pkt.Params)
		if err != nil {
			return nil, &motorbus.CommError{Op: "sync read", IDs: []int{int(pkt.ID)}, Err: err}
		}
		values[int(pkt.ID)] = v
	}

	var missing []int
	for _, id := range ids {
		if _, ok := values[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, &motorbus.CommError{Op: "sync read", IDs: missing, Err: ErrNoResponse}
	}
	return values, nil
}

// SyncWrite writes per-servo values to the same register in one broadcast
// transaction. Broadcast writes receive no status packets: the transfer
// either leaves the wire whole or fails before anything is sent.
func (a *Adapter) SyncWrite(ctx context.Context, addr uint16, length int, values map[int]int) error {
	ids := make([]int, 0, len(values))
	for id := range values {
		ids = append(ids, id)
	}

	if !a.open {
		return &motorbus.CommError{Op: "sync write", IDs: ids, Err: ErrClosed}
	}

	byteIDs := make([]byte, 0, len(values))
	data := make(map[byte][]byte, len(values))
	for id, value := range values {
		if err := a.checkID(id); err != nil {
			return err
		}
		encoded, err := encodeValue(value, length)
		if err != nil {
			return err
		}
		byteIDs = append(byteIDs, byte(id))
		data[byte(id)] = encoded
	}

	if err := a.send(syncWritePacket(byte(addr), byte(length), byteIDs, data)); err != nil {
		return &motorbus.CommError{Op: "sync write", IDs: ids, Err: err}
	}
	return nil
}

func (a *Adapter) checkID(id int) error {
	if id < 0 || id > MaxServoID {
		return fmt.Errorf("invalid servo id %d (valid range 0-%d)", id, MaxServoID)
	}
	return nil
}

func (a *Adapter) send(packet []byte) error {
	// Pace back-to-back commands; some STS firmware drops packets that
	// arrive while the previous response is still draining.
	if gap := time.Since(a.lastCmd); gap < a.minGap {
		time.Sleep(a.minGap - gap)
	}

	a.conn.Flush()

	n, err := a.conn.Write(packet)
	if err != nil {
		return fmt.Errorf("write failed: %w", err)
	}
	if n != len(packet) {
		return fmt.Errorf("incomplete write: %d of %d bytes", n, len(packet))
	}
	a.lastCmd = time.Now()

	// Half-duplex turnaround.
	time.Sleep(100 * time.Microsecond)
	return nil
}

func (a *Adapter) readStatus(ctx context.Context, id byte, paramLen int) (Packet, error) {
	raw, err := a.readRaw(ctx, minPacketLen+paramLen)
	if err != nil {
		return Packet{}, err
	}
	pkt, _, err := decode(raw)
	if err != nil {
		return Packet{}, err
	}
	if pkt.ID != id {
		return Packet{}, fmt.Errorf("wrong servo id in response: expected %d, got %d", id, pkt.ID)
	}
	if pkt.Error != 0 {
		return Packet{}, pkt.Error
	}
	return pkt, nil
}

func (a *Adapter) readRaw(ctx context.Context, expected int) ([]byte, error) {
	buf := make([]byte, expected*2)
	total := 0
	deadline := time.Now().Add(a.timeout)

	for total < expected {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if time.Now().After(deadline) {
			if total == 0 {
				return nil, ErrNoResponse
			}
			return nil, fmt.Errorf("%w: read %d of %d expected bytes", ErrTimeout, total, expected)
		}

		remaining := max(time.Until(deadline), 10*time.Millisecond)
		a.conn.SetReadTimeout(remaining)

		n, err := a.conn.Read(buf[total:])
		if err != nil {
			if n == 0 {
				time.Sleep(time.Millisecond)
				continue
			}
			return nil, fmt.Errorf("read error: %w", err)
		}
		total += n
	}
	return buf[:total], nil
}
