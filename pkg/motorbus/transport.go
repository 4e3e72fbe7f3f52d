package motorbus

import "context"

// Transport is the bus transport adapter contract, implemented once per
// vendor protocol. All operations are synchronous and block up to a
// protocol-defined timeout; failures surface as *CommError. A failed
// SyncWrite queues all IDs' values in one wire transaction or none.
type Transport interface {
	// Open claims the underlying port. Never reopened implicitly.
	Open() error
	Close() error
	SetBaudRate(baud int) error

	// Ping verifies a servo responds and returns its model number.
	Ping(ctx context.Context, id int) (int, error)

	// ReadRegister reads a single servo register of the given byte length.
	ReadRegister(ctx context.Context, id int, addr uint16, length int) (int, error)

	// WriteRegister writes a single servo register.
	WriteRegister(ctx context.Context, id int, addr uint16, length int, value int) error

	// SyncRead reads the same register from several servos in one bus
	// transaction. The result maps servo ID to the raw register value.
	SyncRead(ctx context.Context, addr uint16, length int, ids []int) (map[int]int, error)

	// SyncWrite writes per-servo values to the same register in one bus
	// transaction.
	SyncWrite(ctx context.Context, addr uint16, length int, values map[int]int) error
}
