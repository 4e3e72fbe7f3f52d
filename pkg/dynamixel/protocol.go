// Package dynamixel implements Dynamixel Protocol 2.0 and a transport
// adapter for the motor bus.
package dynamixel

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Instruction codes per the Protocol 2.0 specification.
const (
	instPing      byte = 0x01
	instRead      byte = 0x02
	instWrite     byte = 0x03
	instStatus    byte = 0x55
	instSyncRead  byte = 0x82
	instSyncWrite byte = 0x83
)

// Special ID values.
const (
	BroadcastID = 0xFE
	MaxServoID  = 0xFC
)

var header = []byte{0xFF, 0xFF, 0xFD, 0x00}

// header(4) + id(1) + length(2) + inst(1) + crc(2)
const minPacketLen = 10

// crcTable is the CRC-16 (poly 0x8005) table used by Protocol 2.0,
// computed once at init.
var crcTable [256]uint16

func init() {
	for i := range crcTable {
		crc := uint16(i) << 8
		for range 8 {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x8005
			} else {
				crc <<= 1
			}
		}
		crcTable[i] = crc
	}
}

func updateCRC(crc uint16, data []byte) uint16 {
	for _, b := range data {
		crc = crc<<8 ^ crcTable[byte(crc>>8)^b]
	}
	return crc
}

// stuff escapes header-like byte runs in the parameter block: every
// FF FF FD becomes FF FF FD FD so a receiver never mistakes payload for a
// packet start.
func stuff(params []byte) []byte {
	if !bytes.Contains(params, header[:3]) {
		return params
	}
	out := make([]byte, 0, len(params)+2)
	run := 0
	for _, b := range params {
		out = append(out, b)
		switch {
		case run >= 2 && b == 0xFD:
			out = append(out, 0xFD)
			run = 0
		case b == 0xFF:
			run++
		default:
			run = 0
		}
	}
	return out
}

// unstuff reverses stuff.
func unstuff(params []byte) []byte {
	if !bytes.Contains(params, header[:3]) {
		return params
	}
	out := make([]byte, 0, len(params))
	run := 0
	skip := false
	for _, b := range params {
		if skip {
			skip = false
			run = 0
			continue
		}
		out = append(out, b)
		switch {
		case run >= 2 && b == 0xFD:
			skip = true
		case b == 0xFF:
			run++
		default:
			run = 0
		}
	}
	return out
}

// statusPacket is one decoded response.
type statusPacket struct {
	ID     byte
	Err    byte
	Params []byte
}

// HardwareError reports the error field of a status packet.
type HardwareError byte

func (e HardwareError) Error() string {
	desc := map[byte]string{
		0x01: "result fail",
		0x02: "instruction error",
		0x03: "crc mismatch",
		0x04: "data range error",
		0x05: "data length error",
		0x06: "data limit error",
		0x07: "access error",
	}
	code := byte(e) &^ 0x80
	if d, ok := desc[code]; ok {
		if e&0x80 != 0 {
			return fmt.Sprintf("servo error: %s (alert)", d)
		}
		return fmt.Sprintf("servo error: %s", d)
	}
	return fmt.Sprintf("servo error: 0x%02X", byte(e))
}

// buildPacket assembles a wire-format instruction packet with byte stuffing
// and CRC.
func buildPacket(id, inst byte, params []byte) []byte {
	params = stuff(params)
	length := len(params) + 3 // inst + crc(2)

	buf := make([]byte, 0, 7+length)
	buf = append(buf, header...)
	buf = append(buf, id)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(length))
	buf = append(buf, inst)
	buf = append(buf, params...)

	crc := updateCRC(0, buf)
	return binary.LittleEndian.AppendUint16(buf, crc)
}

// parsePacket decodes the first status packet in data, scanning past any
// leading line noise. It returns the packet and the number of bytes
// consumed.
func parsePacket(data []byte) (statusPacket, int, error) {
	start := bytes.Index(data, header)
	if start < 0 {
		return statusPacket{}, 0, errors.New("status packet header not found")
	}
	data = data[start:]

	if len(data) < minPacketLen {
		return statusPacket{}, 0, fmt.Errorf("incomplete status packet: have %d bytes", len(data))
	}

	length := int(binary.LittleEndian.Uint16(data[5:7]))
	total := 7 + length
	if length < 3 || len(data) < total {
		return statusPacket{}, 0, fmt.Errorf("incomplete status packet: need %d bytes, have %d", total, len(data))
	}

	want := updateCRC(0, data[:total-2])
	if got := binary.LittleEndian.Uint16(data[total-2:]); got != want {
		return statusPacket{}, 0, fmt.Errorf("crc mismatch: expected 0x%04X, got 0x%04X", want, got)
	}

	if data[7] != instStatus {
		return statusPacket{}, 0, fmt.Errorf("unexpected instruction 0x%02X in response", data[7])
	}

	pkt := statusPacket{ID: data[4], Err: data[8]}
	if n := length - 4; n > 0 { // minus inst, err, crc(2)
		pkt.Params = unstuff(data[9 : 9+n])
	}
	return pkt, start + total, nil
}

// Instruction packet builders used by the adapter.

func pingPacket(id byte) []byte {
	return buildPacket(id, instPing, nil)
}

func readPacket(id byte, addr, length uint16) []byte {
	params := make([]byte, 4)
	binary.LittleEndian.PutUint16(params[0:], addr)
	binary.LittleEndian.PutUint16(params[2:], length)
	return buildPacket(id, instRead, params)
}

func writePacket(id byte, addr uint16, data []byte) []byte {
	params := make([]byte, 2+len(data))
	binary.LittleEndian.PutUint16(params[0:], addr)
	copy(params[2:], data)
	return buildPacket(id, instWrite, params)
}

func syncReadPacket(addr, length uint16, ids []byte) []byte {
	params := make([]byte, 4, 4+len(ids))
	binary.LittleEndian.PutUint16(params[0:], addr)
	binary.LittleEndian.PutUint16(params[2:], length)
	params = append(params, ids...)
	return buildPacket(BroadcastID, instSyncRead, params)
}

func syncWritePacket(addr, length uint16, ids []byte, values map[byte][]byte) []byte {
	params := make([]byte, 4, 4+len(ids)*(1+int(length)))
	binary.LittleEndian.PutUint16(params[0:], addr)
	binary.LittleEndian.PutUint16(params[2:], length)
	for _, id := range ids {
		params = append(params, id)
		params = append(params, values[id]...)
	}
	return buildPacket(BroadcastID, instSyncWrite, params)
}

// encodeValue serializes an integer register value little endian. Negative
// values use two's complement, as Protocol 2.0 does.
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

// decodeValue is the inverse of encodeValue. Four-byte values are
// sign-extended; position registers report negative counts past the zero
// point.
func decodeValue(data []byte) (int, error) {
	switch len(data) {
	case 1:
		return int(data[0]), nil
	case 2:
		return int(binary.LittleEndian.Uint16(data)), nil
	case 4:
		return int(int32(binary.LittleEndian.Uint32(data))), nil
	}
	return 0, fmt.Errorf("unsupported register length %d", len(data))
}
