// Package powerstate drives the GPIO side of the chain: the four bank select
// lines and the reset pulse train clocked on the SPI clock line while the
// data line is held high.
package powerstate

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"bab_miner/config"
	"bab_miner/log"
	"bab_miner/util"

	"gobot.io/x/gobot/sysfs"
)

var ErrBadBank = errors.New("ErrBadBank")

// Resetter selects a bank, 1 to 4, or releases all bank lines for bank 0,
// then clocks times reset pulses into the chain.
type Resetter interface {
	Reset(bank int, times int) error
	Close() error
}

type Pins struct {
	BankLines  []int
	ClockLine  int
	DataLine   int
	PulseWidth time.Duration
	BankSettle time.Duration
}

func PinsFromConfig(cfg config.GpioConfig) Pins {
	return Pins{
		BankLines:  cfg.BankLines,
		ClockLine:  cfg.ClockLine,
		DataLine:   cfg.DataLine,
		PulseWidth: cfg.PulseWidth.Duration,
		BankSettle: cfg.BankSettle.Duration,
	}
}

func (p Pins) checkBank(bank int) error {
	if bank < 0 || bank > len(p.BankLines) {
		return fmt.Errorf("%w: %d", ErrBadBank, bank)
	}
	return nil
}

// New opens the backend named in cfg.
func New(cfg config.GpioConfig) (Resetter, error) {
	pins := PinsFromConfig(cfg)
	switch cfg.Backend {
	case "gpiod":
		return NewGpiod(cfg.Chip, pins)
	case "sysfs":
		return NewSysfs(pins), nil
	case "none":
		return NewNop(), nil
	}
	return nil, fmt.Errorf("gpio backend %q", cfg.Backend)
}

// pulse toggles clock times while data is held high.
func pulse(clock func(int) error, data func(int) error, times int, width time.Duration) error {
	if err := data(1); err != nil {
		return err
	}
	for i := 0; i < times; i++ {
		if err := clock(1); err != nil {
			return err
		}
		util.Delay(width)
		if err := clock(0); err != nil {
			return err
		}
		util.Delay(width)
	}
	return data(0)
}

// Sysfs toggles the lines through /sys/class/gpio. Every reset exports and
// unexports the pins it touches.
type Sysfs struct {
	mx   sync.Mutex
	pins Pins
}

func NewSysfs(pins Pins) *Sysfs {
	return &Sysfs{pins: pins}
}

func outPin(n int, v int) error {
	pin := sysfs.NewDigitalPin(n)
	_ = pin.Export()
	defer func() {
		_ = pin.Unexport()
	}()
	if err := pin.Direction(sysfs.OUT); err != nil {
		return err
	}
	return pin.Write(v)
}

func inPin(n int) error {
	pin := sysfs.NewDigitalPin(n)
	_ = pin.Export()
	defer func() {
		_ = pin.Unexport()
	}()
	return pin.Direction(sysfs.IN)
}

func (my *Sysfs) Reset(bank int, times int) error {
	if err := my.pins.checkBank(bank); err != nil {
		return err
	}
	my.mx.Lock()
	defer my.mx.Unlock()

	if bank > 0 {
		for i, n := range my.pins.BankLines {
			v := 0
			if bank == i+1 {
				v = 1
			}
			if err := outPin(n, v); err != nil {
				return fmt.Errorf("bank line %d: %w", n, err)
			}
		}
		util.Delay(my.pins.BankSettle)
	} else {
		for _, n := range my.pins.BankLines {
			if err := inPin(n); err != nil {
				return fmt.Errorf("bank line %d: %w", n, err)
			}
		}
	}

	clk := sysfs.NewDigitalPin(my.pins.ClockLine)
	dat := sysfs.NewDigitalPin(my.pins.DataLine)
	_ = clk.Export()
	_ = dat.Export()
	defer func() {
		_ = clk.Unexport()
		_ = dat.Unexport()
	}()
	if err := clk.Direction(sysfs.OUT); err != nil {
		return err
	}
	if err := dat.Direction(sysfs.OUT); err != nil {
		return err
	}
	return pulse(clk.Write, dat.Write, times, my.pins.PulseWidth)
}

func (my *Sysfs) Close() error {
	return nil
}

// Nop records the resets it was asked for. It stands in on benches without
// bank select hardware.
type Nop struct {
	mx    sync.Mutex
	Banks []int
}

func NewNop() *Nop {
	return &Nop{}
}

func (my *Nop) Reset(bank int, times int) error {
	my.mx.Lock()
	defer my.mx.Unlock()
	my.Banks = append(my.Banks, bank)
	log.Debugf("Reset bank %d, %d pulses", bank, times)
	return nil
}

func (my *Nop) Resets() []int {
	my.mx.Lock()
	defer my.mx.Unlock()
	return append([]int(nil), my.Banks...)
}

func (my *Nop) Close() error {
	return nil
}
