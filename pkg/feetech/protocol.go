// Package feetech implements the Feetech STS/SMS serial bus protocol and a
// transport adapter for the motor bus.
package feetech

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Instruction codes per the Feetech protocol specification.
const (
	instPing      byte = 0x01
	instRead      byte = 0x02
	instWrite     byte = 0x03
	instSyncRead  byte = 0x82
	instSyncWrite byte = 0x83
)

// Special ID values.
const (
	BroadcastID = 0xFE
	MaxServoID  = 0xFD
)

const (
	headerByte = 0xFF
	// header(2) + id + length + error + checksum
	minPacketLen = 6
)

// StatusError holds the error flags a servo reports in its status packet.
type StatusError byte

const (
	ErrVoltage     StatusError = 1 << 0
	ErrAngleLimit  StatusError = 1 << 1
	ErrOverheat    StatusError = 1 << 2
	ErrRange       StatusError = 1 << 3
	ErrChecksum    StatusError = 1 << 4
	ErrOverload    StatusError = 1 << 5
	ErrInstruction StatusError = 1 << 6
)

func (e StatusError) Error() string {
	if e == 0 {
		return "no error"
	}
	var msgs []string
	for _, f := range []struct {
		flag StatusError
		name string
	}{
		{ErrVoltage, "voltage"},
		{ErrAngleLimit, "angle limit"},
		{ErrOverheat, "overheat"},
		{ErrRange, "range"},
		{ErrChecksum, "checksum"},
		{ErrOverload, "overload"},
		{ErrInstruction, "instruction"},
	} {
		if e&f.flag != 0 {
			msgs = append(msgs, f.name)
		}
	}
	return fmt.Sprintf("servo status error: %v", msgs)
}

// Packet is one decoded status packet.
type Packet struct {
	ID     byte
	Error  StatusError
	Params []byte
}

// checksum is the Feetech checksum: complement of the byte sum from the ID
// field through the last parameter.
func checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return ^sum
}

// encode builds a wire-format instruction packet.
func encode(id, instruction byte, params []byte) []byte {
	buf := make([]byte, 0, minPacketLen+len(params))
	buf = append(buf, headerByte, headerByte, id, byte(len(params)+2), instruction)
	buf = append(buf, params...)
	buf = append(buf, checksum(buf[2:]))
	return buf
}

// decode parses the first status packet in data, scanning past any leading
// line noise. It returns the packet and the number of bytes consumed.
func decode(data []byte) (Packet, int, error) {
	start := -1
	for i := 0; i+minPacketLen <= len(data); i++ {
		if data[i] == headerByte && data[i+1] == headerByte {
			start = i
			break
		}
	}
	if start < 0 {
		return Packet{}, 0, errors.New("status packet header not found")
	}
	data = data[start:]

	length := int(data[3])
	total := 4 + length
	if len(data) < total {
		return Packet{}, 0, fmt.Errorf("incomplete status packet: need %d bytes, have %d", total, len(data))
	}

	want := checksum(data[2 : total-1])
	if got := data[total-1]; got != want {
		return Packet{}, 0, fmt.Errorf("checksum mismatch: expected 0x%02X, got 0x%02X", want, got)
	}

	pkt := Packet{ID: data[2], Error: StatusError(data[4])}
	if n := length - 2; n > 0 {
		pkt.Params = make([]byte, n)
		copy(pkt.Params, data[5:5+n])
	}
	return pkt, start + total, nil
}

// Instruction packet builders used by the adapter.

func pingPacket(id byte) []byte {
	return encode(id, instPing, nil)
}

func readPacket(id, addr, length byte) []byte {
	return encode(id, instRead, []byte{addr, length})
}

func writePacket(id, addr byte, data []byte) []byte {
	params := make([]byte, 0, 1+len(data))
	params = append(params, addr)
	params = append(params, data...)
	return encode(id, instWrite, params)
}

func syncReadPacket(addr, length byte, ids []byte) []byte {
	params := make([]byte, 0, 2+len(ids))
	params = append(params, addr, length)
	params = append(params, ids...)
	return encode(BroadcastID, instSyncRead, params)
}

func syncWritePacket(addr, length byte, ids []byte, values map[byte][]byte) []byte {
	params := make([]byte, 0, 2+len(ids)*(1+int(length)))
	params = append(params, addr, length)
	for _, id := range ids {
		params = append(params, id)
		params = append(params, values[id]...)
	}
	return encode(BroadcastID, instSyncWrite, params)
}

// encodeValue serializes an integer register value in STS byte order
// (little endian).
func encodeValue(value, length int) ([]byte, error) {
	switch length {
	case 1:
		return []byte{byte(value)}, nil
	case 2:
		buf := make([]byte, 2)
		binary.LittleEndian.PutUint16(buf, uint16(value))
		return buf, nil
	case 4:
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, uint32(value))
		return buf, nil
	}
	return nil, fmt.Errorf("unsupported register length %d", length)
}

// decodeValue is the inverse of encodeValue.
func decodeValue(data []byte) (int, error) {
	switch len(data) {
	case 1:
		return int(data[0]), nil
	case 2:
		return int(binary.LittleEndian.Uint16(data)), nil
	case 4:
		return int(binary.LittleEndian.Uint32(data)), nil
	}
	return 0, fmt.Errorf("unsupported register length %d", len(data))
}
