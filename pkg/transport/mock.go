package transport

import (
	"io"
	"time"
)

// Mock implements Conn for testing.
type Mock struct {
	ReadData    []byte
	ReadErr     error
	WriteData   []byte
	WriteErr    error
	Closed      bool
	ReadTimeout time.Duration
	BaudRate    int
	Flushed     bool

	// ReadFunc allows custom read behavior for complex tests.
	ReadFunc func(p []byte) (int, error)

	// WriteFunc is invoked after each successful Write, typically to queue
	// the response a real servo would produce for that packet.
	WriteFunc func(p []byte)
}

func (m *Mock) Read(p []byte) (int, error) {
	if m.ReadFunc != nil {
		return m.ReadFunc(p)
	}
	if m.ReadErr != nil {
		return 0, m.ReadErr
	}
	n := copy(p, m.ReadData)
	m.ReadData = m.ReadData[n:]
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (m *Mock) Write(p []byte) (int, error) {
	if m.WriteErr != nil {
		return 0, m.WriteErr
	}
	m.WriteData = append(m.WriteData, p...)
	if m.WriteFunc != nil {
		m.WriteFunc(p)
	}
	return len(p), nil
}

func (m *Mock) Close() error {
	m.Closed = true
	return nil
}

func (m *Mock) SetReadTimeout(timeout time.Duration) error {
	m.ReadTimeout = timeout
	return nil
}

func (m *Mock) SetBaudRate(baud int) error {
	m.BaudRate = baud
	return nil
}

func (m *Mock) Flush() error {
	m.Flushed = true
	// Keep ReadData - tests need to preserve queued response data
	return nil
}

// QueueRead appends data to be returned by subsequent Read calls.
func (m *Mock) QueueRead(data []byte) {
	m.ReadData = append(m.ReadData, data...)
}
