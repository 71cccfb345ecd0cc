//go:build linux

package gpio

import (
	"fmt"

	"github.com/sweeney/parking-gate/internal/logic"
	"github.com/warthog618/go-gpiocdev"
)

// RealActuator drives gate relays through the Linux GPIO character device.
type RealActuator struct {
	chip  *gpiocdev.Chip
	lines map[logic.Lane]*gpiocdev.Line
}

// NewRealActuator requests entryPin and exitPin on chip as outputs, initially
// low (closed). A pin of DisabledPin leaves that lane without a line.
func NewRealActuator(chipName string, entryPin, exitPin int) (*RealActuator, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}

	a := &RealActuator{chip: chip, lines: make(map[logic.Lane]*gpiocdev.Line)}
	pins := map[logic.Lane]int{logic.LaneEntry: entryPin, logic.LaneExit: exitPin}
	for _, lane := range logic.Lanes {
		pin := pins[lane]
		if pin == DisabledPin {
			continue
		}
		line, err := chip.RequestLine(pin, gpiocdev.AsOutput(0), gpiocdev.WithConsumer("parking-gate"))
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("request %s pin %d: %w", lane, pin, err)
		}
		a.lines[lane] = line
	}
	return a, nil
}

// Set drives the lane's line high when open.
func (a *RealActuator) Set(lane logic.Lane, open bool) error {
	line, ok := a.lines[lane]
	if !ok {
		return nil
	}
	if err := line.SetValue(level(open)); err != nil {
		return fmt.Errorf("set %s gate: %w", lane, err)
	}
	return nil
}

// Close drives the lines low, then returns them to input with pull-down
// (the Pi boot default) so relays stay released across a reboot.
func (a *RealActuator) Close() error {
	var errs []error
	for lane, line := range a.lines {
		if err := line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("close %s gate: %w", lane, err))
		}
		if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure %s pin: %w", lane, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s pin: %w", lane, err))
		}
	}
	a.lines = nil
	if a.chip != nil {
		if err := a.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		a.chip = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
