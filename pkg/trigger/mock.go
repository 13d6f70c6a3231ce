package trigger

import (
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Level is a recorded output transition.
type Level struct {
	High bool
	At   time.Time
}

// MockPin records every level it is driven to.
type MockPin struct {
	mu     sync.Mutex
	levels []Level
	closed bool
	err    error
	now    func() time.Time
}

// NewMockPin creates a pin that only records transitions.
func NewMockPin() *MockPin {
	return &MockPin{now: time.Now}
}

// Fail makes every following High and Low return err.
func (p *MockPin) Fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func (p *MockPin) High() error { return p.set(true) }
func (p *MockPin) Low() error  { return p.set(false) }

func (p *MockPin) set(high bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("mock pin is closed")
	}
	if p.err != nil {
		return p.err
	}
	p.levels = append(p.levels, Level{High: high, At: p.now()})
	return nil
}

// Levels returns every recorded transition in order.
func (p *MockPin) Levels() []Level {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Level(nil), p.levels...)
}

func (p *MockPin) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Closed reports whether Close was called.
func (p *MockPin) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
