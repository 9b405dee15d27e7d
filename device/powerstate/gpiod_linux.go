//go:build linux
// +build linux

package powerstate

import (
	"fmt"
	"sync"

	"bab_miner/util"

	"github.com/warthog618/gpiod"
)

// Gpiod holds the bank select lines through the GPIO character device. The
// clock and data lines are only requested for the length of a pulse train
// so the SPI controller keeps them otherwise.
type Gpiod struct {
	mx    sync.Mutex
	chip  *gpiod.Chip
	banks *gpiod.Lines
	pins  Pins
	out   bool
}

func NewGpiod(name string, pins Pins) (*Gpiod, error) {
	c, err := gpiod.NewChip(name, gpiod.WithConsumer("bab_miner"))
	if err != nil {
		return nil, err
	}
	banks, err := c.RequestLines(pins.BankLines, gpiod.AsInput)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("%s: bank lines %v: %w", name, pins.BankLines, err)
	}
	return &Gpiod{chip: c, banks: banks, pins: pins}, nil
}

func (my *Gpiod) selectBank(bank int) error {
	if bank == 0 {
		if !my.out {
			return nil
		}
		my.out = false
		return my.banks.Reconfigure(gpiod.AsInput)
	}
	vals := make([]int, len(my.pins.BankLines))
	vals[bank-1] = 1
	if !my.out {
		my.out = true
		return my.banks.Reconfigure(gpiod.AsOutput(vals...))
	}
	return my.banks.SetValues(vals)
}

func (my *Gpiod) Reset(bank int, times int) error {
	if err := my.pins.checkBank(bank); err != nil {
		return err
	}
	my.mx.Lock()
	defer my.mx.Unlock()

	if err := my.selectBank(bank); err != nil {
		return fmt.Errorf("select bank %d: %w", bank, err)
	}
	if bank > 0 {
		util.Delay(my.pins.BankSettle)
	}

	clk, err := my.chip.RequestLine(my.pins.ClockLine, gpiod.AsOutput(0))
	if err != nil {
		return fmt.Errorf("clock line %d: %w", my.pins.ClockLine, err)
	}
	defer clk.Close()
	dat, err := my.chip.RequestLine(my.pins.DataLine, gpiod.AsOutput(0))
	if err != nil {
		return fmt.Errorf("data line %d: %w", my.pins.DataLine, err)
	}
	defer dat.Close()

	return pulse(clk.SetValue, dat.SetValue, times, my.pins.PulseWidth)
}

func (my *Gpiod) Close() error {
	my.mx.Lock()
	defer my.mx.Unlock()
	my.banks.Close()
	return my.chip.Close()
}
