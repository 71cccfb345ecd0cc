// Package gpio drives the gate actuation outputs.
// The real implementation uses the Linux GPIO character device; the fake
// records every Set for tests.
package gpio

import "github.com/sweeney/parking-gate/internal/logic"

// Actuator drives one boolean output per lane. High means open.
type Actuator interface {
	Set(lane logic.Lane, open bool) error

	// Close drives every line low and releases GPIO resources.
	Close() error
}

// DisabledPin marks a lane with no output line.
const DisabledPin = -1

// Disabled is the Actuator used when no GPIO lines are configured; the bus
// publisher is then the only actuation output.
type Disabled struct{}

func (Disabled) Set(logic.Lane, bool) error { return nil }
func (Disabled) Close() error               { return nil }

func level(open bool) int {
	if open {
		return 1
	}
	return 0
}
