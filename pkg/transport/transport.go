// Package transport provides byte-level connections to half-duplex servo buses.
package transport

import (
	"io"
	"time"
)

// Conn is the interface for low-level communication with a servo bus.
// This abstraction allows for testing with mock implementations.
type Conn interface {
	io.ReadWriteCloser

	// SetReadTimeout sets the read timeout duration.
	SetReadTimeout(timeout time.Duration) error

	// SetBaudRate changes the line speed.
	SetBaudRate(baud int) error

	// Flush discards any buffered input data.
	Flush() error
}
