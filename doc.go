// Package motorbus drives serial bus servo arms over Feetech STS/SMS and
// Dynamixel Protocol 2.0 buses.
//
// It maps named joints to physical servo IDs, translates register names into
// wire-level reads and writes, batches per-register operations across many
// servos into single bus transactions, and converts raw encoder counts into
// calibrated joint values (degrees, percent, or a signed unit range).
//
// # Installation
//
//	go install github.com/teleokit/motorbus/cmd/motorbus@latest
//
// # Usage
//
// Scan a serial port for servos:
//
//	motorbus scan --port /dev/ttyUSB0
//
// Calibrate an arm and record its range of motion:
//
//	motorbus calibrate --port /dev/ttyUSB0
//
// Watch live joint positions:
//
//	motorbus monitor --port /dev/ttyUSB0
//
// # Packages
//
// The module is organized into the following packages:
//
//   - cmd/motorbus: CLI with scan, calibrate and monitor commands
//   - pkg/motorbus: motor bus core, register maps, calibration and polling
//   - pkg/feetech: Feetech STS/SMS protocol transport
//   - pkg/dynamixel: Dynamixel Protocol 2.0 transport
//   - pkg/transport: serial port and mock byte transports
package motorbus
