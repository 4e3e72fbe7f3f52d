package motorbus

import "testing"

func TestLookupModel(t *testing.T) {
	tests := []struct {
		name       string
		number     int
		resolution int
	}{
		{"sts3215", 777, 4096},
		{"sts3250", 2825, 4096},
		{"sm8512bl", 11272, 4096},
		{"xl330-m288", 1200, 4096},
		{"xm430-w350", 1020, 4096},
	}

	for _, tt := range tests {
		m, ok := LookupModel(tt.name)
		if !ok {
			t.Fatalf("LookupModel(%q) not found", tt.name)
		}
		if m.Number != tt.number {
			t.Errorf("%s: model number %d, want %d", tt.name, m.Number, tt.number)
		}
		if m.Resolution != tt.resolution {
			t.Errorf("%s: resolution %d, want %d", tt.name, m.Resolution, tt.resolution)
		}
	}

	if _, ok := LookupModel("nonexistent"); ok {
		t.Error("LookupModel should not find nonexistent model")
	}
}

func TestLookupModelByNumber(t *testing.T) {
	m, ok := LookupModelByNumber(777)
	if !ok || m.Name != "sts3215" {
		t.Errorf("LookupModelByNumber(777) = %v, %v; want sts3215", m, ok)
	}
	if _, ok := LookupModelByNumber(99999); ok {
		t.Error("LookupModelByNumber should not find unknown number")
	}
}

func TestLookupRegister(t *testing.T) {
	tests := []struct {
		model  string
		reg    Register
		addr   uint16
		length int
	}{
		{"sts3215", RegGoalPosition, 42, 2},
		{"sts3215", RegPresentPosition, 56, 2},
		{"sts3215", RegTorqueEnable, 40, 1},
		{"sts3215", RegHomingOffset, 31, 2},
		{"xl330-m288", RegGoalPosition, 116, 4},
		{"xl330-m288", RegPresentPosition, 132, 4},
		{"xl330-m288", RegTorqueEnable, 64, 1},
	}

	for _, tt := range tests {
		entry, err := LookupRegister(tt.model, tt.reg)
		if err != nil {
			t.Fatalf("LookupRegister(%s, %s): %v", tt.model, tt.reg, err)
		}
		if entry.Addr != tt.addr || entry.Length != tt.length {
			t.Errorf("%s %s: got addr %d len %d, want addr %d len %d",
				tt.model, tt.reg, entry.Addr, entry.Length, tt.addr, tt.length)
		}
	}
}

func TestLookupRegisterUnknown(t *testing.T) {
	// STS servos have a configuration lock, X series does not.
	if _, err := LookupRegister("xl330-m288", RegLock); err == nil {
		t.Error("expected error for Lock on xl330-m288")
	}
	if _, err := LookupRegister("bogus-model", RegGoalPosition); err == nil {
		t.Error("expected error for unknown model")
	}

	if !HasRegister("sts3215", RegLock) {
		t.Error("sts3215 should have Lock")
	}
	if HasRegister("xl330-m288", RegLock) {
		t.Error("xl330-m288 should not have Lock")
	}
}

func TestSignBits(t *testing.T) {
	// STS position-adjacent registers use sign-magnitude encoding; the X
	// series is plain two's complement.
	tests := []struct {
		model   string
		reg     Register
		signBit int
	}{
		{"sts3215", RegHomingOffset, 11},
		{"sts3215", RegGoalVelocity, 15},
		{"sts3215", RegPresentVelocity, 15},
		{"sts3215", RegPresentPosition, 0},
		{"xl330-m288", RegHomingOffset, 0},
		{"xl330-m288", RegPresentVelocity, 0},
	}

	for _, tt := range tests {
		entry, err := LookupRegister(tt.model, tt.reg)
		if err != nil {
			t.Fatal(err)
		}
		if entry.SignBit != tt.signBit {
			t.Errorf("%s %s: sign bit %d, want %d", tt.model, tt.reg, entry.SignBit, tt.signBit)
		}
	}
}

func TestUniformEntry(t *testing.T) {
	// Same family agrees on the layout.
	entry, err := UniformEntry([]string{"sts3215", "sts3250", "sts3215"}, RegGoalPosition)
	if err != nil {
		t.Fatal(err)
	}
	if entry.Addr != 42 || entry.Length != 2 {
		t.Errorf("got addr %d len %d, want 42/2", entry.Addr, entry.Length)
	}

	// Mixed families disagree and must fail before any wire I/O.
	_, err = UniformEntry([]string{"sts3215", "xl330-m288"}, RegGoalPosition)
	if err == nil {
		t.Fatal("expected mismatch error for mixed families")
	}
	if _, ok := err.(*RegisterMismatchError); !ok {
		t.Errorf("expected RegisterMismatchError, got %T", err)
	}

	// A register one model lacks fails with UnknownRegisterError.
	_, err = UniformEntry([]string{"sts3215", "xl330-m288"}, RegLock)
	if err == nil {
		t.Fatal("expected error for register missing on one model")
	}
}

func TestReadOnlyRegisters(t *testing.T) {
	for _, model := range []string{"sts3215", "xl330-m288"} {
		for _, reg := range []Register{RegPresentPosition, RegModelNumber} {
			entry, err := LookupRegister(model, reg)
			if err != nil {
				t.Fatal(err)
			}
			if !entry.ReadOnly {
				t.Errorf("%s %s should be read-only", model, reg)
			}
		}
		entry, err := LookupRegister(model, RegGoalPosition)
		if err != nil {
			t.Fatal(err)
		}
		if entry.ReadOnly {
			t.Errorf("%s Goal_Position should be writable", model)
		}
	}
}
