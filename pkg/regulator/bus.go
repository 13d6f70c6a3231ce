package regulator

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// Bus writes register blocks to devices on an I2C bus.
type Bus interface {
	WriteBlock(ctx context.Context, addr, reg byte, data []byte) error
	Close() error
}

// Ensure I2CBus implements Bus.
var _ Bus = (*I2CBus)(nil)

// Ensure MockBus implements Bus.
var _ Bus = (*MockBus)(nil)

// I2CBus is a host I2C bus opened through periph.io.
type I2CBus struct {
	name string
	bus  i2c.BusCloser
	mu   sync.Mutex
}

// OpenI2C initializes the host drivers and opens the named bus ("1" for /dev/i2c-1).
func OpenI2C(name string) (*I2CBus, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "failed to initialize host drivers")
	}

	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open i2c bus %q", name)
	}

	return &I2CBus{name: name, bus: bus}, nil
}

// WriteBlock writes the register address followed by data in one transaction,
// the same framing as an SMBus block write without the byte count.
func (b *I2CBus) WriteBlock(ctx context.Context, addr, reg byte, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.bus == nil {
		return errors.Errorf("i2c bus %q is closed", b.name)
	}

	w := make([]byte, 0, len(data)+1)
	w = append(w, reg)
	w = append(w, data...)

	dev := &i2c.Dev{Bus: b.bus, Addr: uint16(addr)}
	if err := dev.Tx(w, nil); err != nil {
		return errors.Wrapf(err, "i2c write to 0x%02x reg 0x%02x", addr, reg)
	}
	return nil
}

// Close releases the bus.
func (b *I2CBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.bus == nil {
		return nil
	}
	err := b.bus.Close()
	b.bus = nil
	return err
}

func (b *I2CBus) String() string {
	return "i2c-" + b.name
}

// Write is one block write recorded by MockBus.
type Write struct {
	Addr byte
	Reg  byte
	Data []byte
}

func (w Write) String() string {
	return fmt.Sprintf("0x%02x[0x%02x] <- % x", w.Addr, w.Reg, w.Data)
}

// MockBus records block writes instead of touching hardware.
type MockBus struct {
	mu     sync.Mutex
	writes []Write
	failOn map[byte]error
	closed bool
}

// NewMockBus creates an empty mock bus.
func NewMockBus() *MockBus {
	return &MockBus{failOn: make(map[byte]error)}
}

// FailOn makes every write to reg return err.
func (m *MockBus) FailOn(reg byte, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOn[reg] = err
}

func (m *MockBus) WriteBlock(ctx context.Context, addr, reg byte, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errors.New("mock bus is closed")
	}
	if err, ok := m.failOn[reg]; ok {
		return err
	}

	m.writes = append(m.writes, Write{Addr: addr, Reg: reg, Data: append([]byte(nil), data...)})
	return nil
}

// Writes returns a copy of the recorded writes in order.
func (m *MockBus) Writes() []Write {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Write(nil), m.writes...)
}

func (m *MockBus) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MockBus) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
