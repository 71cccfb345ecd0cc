package gpio

import (
	"sync"

	"github.com/sweeney/parking-gate/internal/logic"
)

// FakeActuator records output changes for tests.
type FakeActuator struct {
	mu sync.Mutex

	// Sets records every Set call in order.
	Sets []Output

	// SetError, if set, is returned by Set. The call is still recorded.
	SetError error

	Closed bool

	levels map[logic.Lane]bool
}

// Output is one recorded Set call.
type Output struct {
	Lane logic.Lane
	Open bool
}

// NewFakeActuator returns a FakeActuator with both lanes closed.
func NewFakeActuator() *FakeActuator {
	return &FakeActuator{levels: make(map[logic.Lane]bool)}
}

func (f *FakeActuator) Set(lane logic.Lane, open bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Sets = append(f.Sets, Output{Lane: lane, Open: open})
	if f.SetError != nil {
		return f.SetError
	}
	f.levels[lane] = open
	return nil
}

// Level returns the lane's current output.
func (f *FakeActuator) Level(lane logic.Lane) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.levels[lane]
}

// Close drives every output low.
func (f *FakeActuator) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	for lane := range f.levels {
		f.levels[lane] = false
	}
	return nil
}

// Reset clears recorded calls and errors.
func (f *FakeActuator) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Sets = nil
	f.SetError = nil
	f.Closed = false
	f.levels = make(map[logic.Lane]bool)
}
