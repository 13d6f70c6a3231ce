// Package trigger drives the GPIO line that enables the regulator.
package trigger

import (
	"github.com/pkg/errors"
	"github.com/stianeikeland/go-rpio/v4"
)

// Pin is a digital output.
type Pin interface {
	High() error
	Low() error
	Close() error
}

var (
	_ Pin = (*RPIOPin)(nil)
	_ Pin = (*MockPin)(nil)
)

// boardToBCM maps physical pins of the 40-pin Raspberry Pi header to BCM GPIO numbers.
var boardToBCM = map[int]uint8{
	3: 2, 5: 3, 7: 4, 8: 14, 10: 15,
	11: 17, 12: 18, 13: 27, 15: 22, 16: 23,
	18: 24, 19: 10, 21: 9, 22: 25, 23: 11,
	24: 8, 26: 7, 27: 0, 28: 1, 29: 5,
	31: 6, 32: 12, 33: 13, 35: 19, 36: 16,
	37: 26, 38: 20, 40: 21,
}

// BoardToBCM returns the BCM GPIO number of a physical header pin.
func BoardToBCM(board int) (uint8, error) {
	bcm, ok := boardToBCM[board]
	if !ok {
		return 0, errors.Errorf("board pin %d is not a GPIO", board)
	}
	return bcm, nil
}

// RPIOPin is a Raspberry Pi GPIO output driven through /dev/gpiomem.
type RPIOPin struct {
	board int
	pin   rpio.Pin
}

// OpenRPIO maps the GPIO memory and configures board pin as an output driven low.
func OpenRPIO(board int) (*RPIOPin, error) {
	bcm, err := BoardToBCM(board)
	if err != nil {
		return nil, err
	}
	if err := rpio.Open(); err != nil {
		return nil, errors.Wrapf(err, "failed to open gpio for board pin %d", board)
	}

	pin := rpio.Pin(bcm)
	pin.Output()
	pin.Low()
	return &RPIOPin{board: board, pin: pin}, nil
}

func (p *RPIOPin) High() error {
	p.pin.High()
	return nil
}

func (p *RPIOPin) Low() error {
	p.pin.Low()
	return nil
}

// Close drives the pin low and unmaps the GPIO memory.
func (p *RPIOPin) Close() error {
	p.pin.Low()
	return errors.Wrapf(rpio.Close(), "failed to close gpio for board pin %d", p.board)
}
