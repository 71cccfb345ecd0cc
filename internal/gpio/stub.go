//go:build !linux

package gpio

import (
	"errors"

	"github.com/sweeney/parking-gate/internal/logic"
)

// RealActuator is not available on non-Linux platforms.
type RealActuator struct{}

// NewRealActuator returns an error on non-Linux platforms.
func NewRealActuator(chipName string, entryPin, exitPin int) (*RealActuator, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

func (a *RealActuator) Set(logic.Lane, bool) error {
	return errors.New("gpio: not supported")
}

func (a *RealActuator) Close() error {
	return nil
}
