package feetech

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/teleokit/motorbus/pkg/motorbus"
	"github.com/teleokit/motorbus/pkg/transport"
)

// newTestAdapter wires an adapter to a mock connection with a short timeout
// so missing-response tests stay fast.
func newTestAdapter(t *testing.T, mock *transport.Mock) *Adapter {
	t.Helper()
	a, err := NewAdapter(Config{
		Conn:          mock,
		Timeout:       30 * time.Millisecond,
		MinCommandGap: time.Nanosecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Open(); err != nil {
		t.Fatal(err)
	}
	return a
}

// respondTo queues the canned status response for each request instruction.
func respondTo(mock *transport.Mock, responses map[byte][]byte) {
	mock.WriteFunc = func(p []byte) {
		if len(p) < 5 {
			return
		}
		if resp, ok := responses[p[4]]; ok {
			mock.QueueRead(resp)
		}
	}
}

func TestNewAdapterRequiresConnOrPort(t *testing.T) {
	if _, err := NewAdapter(Config{}); err == nil {
		t.Error("expected error without Conn or Port")
	}
}

func TestPing(t *testing.T) {
	mock := &transport.Mock{}
	// Ping acks with an empty status; the model number follows from a read
	// of address 3 (777 = 0x0309 little endian).
	respondTo(mock, map[byte][]byte{
		instPing: encode(1, 0x00, nil),
		instRead: encode(1, 0x00, []byte{0x09, 0x03}),
	})
	a := newTestAdapter(t, mock)

	model, err := a.Ping(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if model != 777 {
		t.Errorf("model = %d, want 777", model)
	}
}

func TestPingNoResponse(t *testing.T) {
	mock := &transport.Mock{}
	a := newTestAdapter(t, mock)

	_, err := a.Ping(context.Background(), 1)
	var commErr *motorbus.CommError
	if !errors.As(err, &commErr) {
		t.Fatalf("expected CommError, got %v", err)
	}
	if !errors.Is(err, ErrNoResponse) {
		t.Errorf("expected ErrNoResponse, got %v", err)
	}
}

func TestReadRegister(t *testing.T) {
	mock := &transport.Mock{}
	respondTo(mock, map[byte][]byte{
		instRead: encode(1, 0x00, []byte{0xD0, 0x07}), // 2000
	})
	a := newTestAdapter(t, mock)

	value, err := a.ReadRegister(context.Background(), 1, 56, 2)
	if err != nil {
		t.Fatal(err)
	}
	if value != 2000 {
		t.Errorf("value = %d, want 2000", value)
	}

	// The request addressed register 56 on servo 1.
	want := readPacket(1, 56, 2)
	got := mock.WriteData
	if len(got) != len(want) {
		t.Fatalf("wrote % X, want % X", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("wrote % X, want % X", got, want)
		}
	}
}

func TestReadRegisterWrongID(t *testing.T) {
	mock := &transport.Mock{}
	respondTo(mock, map[byte][]byte{
		instRead: encode(2, 0x00, []byte{0x00, 0x00}),
	})
	a := newTestAdapter(t, mock)

	if _, err := a.ReadRegister(context.Background(), 1, 56, 2); err == nil {
		t.Error("expected error for mismatched servo id")
	}
}

func TestReadRegisterStatusError(t *testing.T) {
	mock := &transport.Mock{}
	respondTo(mock, map[byte][]byte{
		instRead: encode(1, byte(ErrOverheat), []byte{0x00, 0x00}),
	})
	a := newTestAdapter(t, mock)

	_, err := a.ReadRegister(context.Background(), 1, 56, 2)
	if err == nil {
		t.Fatal("expected status error")
	}
	var statusErr StatusError
	if !errors.As(err, &statusErr) || statusErr&ErrOverheat == 0 {
		t.Errorf("expected overheat flag, got %v", err)
	}
}

func TestWriteRegister(t *testing.T) {
	mock := &transport.Mock{}
	respondTo(mock, map[byte][]byte{
		instWrite: encode(1, 0x00, nil),
	})
	a := newTestAdapter(t, mock)

	if err := a.WriteRegister(context.Background(), 1, 42, 2, 2048); err != nil {
		t.Fatal(err)
	}

	want := writePacket(1, 42, []byte{0x00, 0x08})
	got := mock.WriteData
	if len(got) != len(want) {
		t.Fatalf("wrote % X, want % X", got, want)
	}
}

func TestSyncRead(t *testing.T) {
	mock := &transport.Mock{}
	respondTo(mock, map[byte][]byte{
		instSyncRead: append(append(
			encode(1, 0x00, []byte{0xE8, 0x03}), // 1000
			encode(2, 0x00, []byte{0xD0, 0x07})...), // 2000
			encode(3, 0x00, []byte{0xB8, 0x0B})...), // 3000
	})
	a := newTestAdapter(t, mock)

	values, err := a.SyncRead(context.Background(), 56, 2, []int{1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}

	want := map[int]int{1: 1000, 2: 2000, 3: 3000}
	for id, v := range want {
		if values[id] != v {
			t.Errorf("values[%d] = %d, want %d", id, values[id], v)
		}
	}
}

func TestSyncReadMissingServo(t *testing.T) {
	mock := &transport.Mock{}
	// Servos 1 and 2 answer; servo 3 stays silent and its slot is filled
	// with line noise so the read completes without it.
	resp := append(encode(1, 0x00, []byte{0xE8, 0x03}), encode(2, 0x00, []byte{0xD0, 0x07})...)
	resp = append(resp, make([]byte, 8)...)
	respondTo(mock, map[byte][]byte{instSyncRead: resp})
	a := newTestAdapter(t, mock)

	_, err := a.SyncRead(context.Background(), 56, 2, []int{1, 2, 3})
	var commErr *motorbus.CommError
	if !errors.As(err, &commErr) {
		t.Fatalf("expected CommError, got %v", err)
	}
	if len(commErr.IDs) != 1 || commErr.IDs[0] != 3 {
		t.Errorf("missing ids = %v, want [3]", commErr.IDs)
	}
	if !errors.Is(err, ErrNoResponse) {
		t.Errorf("expected ErrNoResponse, got %v", err)
	}
}

func TestSyncReadTimeout(t *testing.T) {
	mock := &transport.Mock{}
	a := newTestAdapter(t, mock)

	_, err := a.SyncRead(context.Background(), 56, 2, []int{1, 2})
	var commErr *motorbus.CommError
	if !errors.As(err, &commErr) {
		t.Fatalf("expected CommError, got %v", err)
	}
}

func TestSyncWrite(t *testing.T) {
	mock := &transport.Mock{}
	a := newTestAdapter(t, mock)

	err := a.SyncWrite(context.Background(), 42, 2, map[int]int{1: 1000, 2: 2000})
	if err != nil {
		t.Fatal(err)
	}

	got := mock.WriteData
	if got[2] != BroadcastID {
		t.Errorf("id = 0x%02X, want broadcast", got[2])
	}
	if got[4] != instSyncWrite {
		t.Errorf("instruction = 0x%02X, want 0x83", got[4])
	}
}

func TestClosedAdapter(t *testing.T) {
	mock := &transport.Mock{}
	a := newTestAdapter(t, mock)
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}
	if !mock.Closed {
		t.Error("underlying connection not closed")
	}

	if _, err := a.Ping(context.Background(), 1); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if err := a.SetBaudRate(500000); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestInvalidServoID(t *testing.T) {
	mock := &transport.Mock{}
	a := newTestAdapter(t, mock)

	if _, err := a.Ping(context.Background(), 300); err == nil {
		t.Error("expected error for out-of-range id")
	}
	if _, err := a.ReadRegister(context.Background(), -1, 56, 2); err == nil {
		t.Error("expected error for negative id")
	}
}

func TestContextCancellation(t *testing.T) {
	mock := &transport.Mock{}
	a, err := NewAdapter(Config{Conn: mock, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Open(); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = a.ReadRegister(ctx, 1, 56, 2)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
