package device

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"bab_miner/config"
	ac "bab_miner/device/asiccommon"
	"bab_miner/device/asicio"
	"bab_miner/device/powerstate"
	"bab_miner/device/smbus"
	"bab_miner/device/temperature"
	"bab_miner/log"
)

var ErrDevNotExist = errors.New("not exist")
var ErrNotStarted = errors.New("ErrNotStarted")

// DeviceManager owns the hardware behind one chain and the goroutines that
// drive it.
type DeviceManager struct {
	Dev *Device

	bus      asicio.Bus
	resetter powerstate.Resetter
	i2c      *smbus.SysIF

	cancel context.CancelFunc
	group  *errgroup.Group
}

// OpenBus opens the SPI backend named in cfg.
func OpenBus(cfg config.BusConfig) (asicio.Bus, error) {
	switch cfg.Backend {
	case "spidev":
		return asicio.OpenSpidev(cfg.Device, cfg.Mode, cfg.Bits, cfg.SpeedHz)
	case "periph":
		return asicio.OpenPeriph(cfg.Device, cfg.Mode, cfg.Bits, cfg.SpeedHz)
	case "loopback":
		return asicio.NewLoopback(false), nil
	}
	return nil, fmt.Errorf("bus backend %q", cfg.Backend)
}

func pipelineTiming(c config.TimingConfig) asicio.Timing {
	t := asicio.DefaultTiming
	if c.StdWait.Duration > 0 {
		t.StdWait = c.StdWait.Duration
	}
	if c.LongWait.Duration > 0 {
		t.LongWait = c.LongWait.Duration
	}
	if c.IdleSleep.Duration > 0 {
		t.IdleSleep = c.IdleSleep.Duration
	}
	return t
}

// Open brings up the bus, the bank lines and the optional board monitor
// and builds the device on top. Chips still have to be detected.
func Open(cfg config.MinerConfig, fw ac.Framework) (*DeviceManager, error) {
	my := &DeviceManager{}

	bus, err := OpenBus(cfg.Bus)
	if err != nil {
		return nil, fmt.Errorf("%s bus: %w", cfg.Bus.Backend, err)
	}
	my.bus = bus

	r, err := powerstate.New(cfg.Gpio)
	if err != nil {
		my.Close()
		return nil, fmt.Errorf("%s gpio: %w", cfg.Gpio.Backend, err)
	}
	my.resetter = r

	pipe := asicio.NewPipeline(bus, r, cfg.Gpio.Pulses, cfg.Bus.SpeedHz, pipelineTiming(cfg.Timing))
	my.Dev = NewDevice(0, cfg, pipe, fw)

	if cfg.Monitor.Enabled {
		i2c, err := smbus.New(cfg.Monitor.Bus)
		if err != nil {
			// the chain mines without its board controller
			log.Errorf("Board monitor on %s: %v", cfg.Monitor.Bus, err)
		} else {
			my.i2c = i2c
			my.Dev.Monitor = temperature.NewMonitor(i2c, cfg.Monitor.Slots, cfg.Monitor.Interval.Duration)
		}
	}
	return my, nil
}

// Start runs the I/O, result, scan and monitor loops until ctx ends or one
// of them fails.
func (my *DeviceManager) Start(ctx context.Context) error {
	if my.Dev == nil {
		return ErrDevNotExist
	}
	if len(my.Dev.Chips) == 0 {
		return ErrNotDetected
	}
	ctx, my.cancel = context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)
	my.group = g

	dev := my.Dev
	g.Go(func() error { return dev.Pipe.IOLoop(ctx) })
	g.Go(func() error { return dev.ResultLoop(ctx) })
	g.Go(func() error { return dev.ScanLoop(ctx) })
	if dev.Monitor != nil {
		g.Go(func() error { return dev.Monitor.Run(ctx) })
	}
	log.Infof("%s%d started with %d chips", dev.Name, dev.ID, len(dev.Chips))
	return nil
}

// Wait blocks until every loop has returned.
func (my *DeviceManager) Wait() error {
	if my.group == nil {
		return ErrNotStarted
	}
	return my.group.Wait()
}

// Stop cancels the loops and waits for them.
func (my *DeviceManager) Stop() error {
	if my.cancel == nil {
		return ErrNotStarted
	}
	my.cancel()
	err := my.group.Wait()
	my.Dev.FlushAll()
	log.Infof("%s%d stopped", my.Dev.Name, my.Dev.ID)
	return err
}

// Close releases the hardware. The loops must be stopped first.
func (my *DeviceManager) Close() error {
	var errs []error
	if my.bus != nil {
		errs = append(errs, my.bus.Close())
	}
	if my.resetter != nil {
		errs = append(errs, my.resetter.Close())
	}
	if my.i2c != nil {
		errs = append(errs, my.i2c.Close())
	}
	return errors.Join(errs...)
}
