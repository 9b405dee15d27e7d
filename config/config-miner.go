package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

var ErrInvalidConfig = errors.New("invalid config")

// Duration lets toml files write "3ms" or "1.2s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type BusConfig struct {
	Backend string `toml:"backend"` // spidev, periph or loopback
	Device  string `toml:"device"`
	Mode    uint8  `toml:"mode"`
	Bits    uint8  `toml:"bits"`
	SpeedHz uint32 `toml:"speed_hz"`
}

type GpioConfig struct {
	Backend    string   `toml:"backend"` // gpiod, sysfs or none
	Chip       string   `toml:"chip"`
	BankLines  []int    `toml:"bank_lines"`
	ClockLine  int      `toml:"clock_line"`
	DataLine   int      `toml:"data_line"`
	Pulses     int      `toml:"pulses"`
	PulseWidth Duration `toml:"pulse_width"`
	BankSettle Duration `toml:"bank_settle"`
}

type ChipConfig struct {
	MaxChips     int         `toml:"max_chips"`
	Banks        []int       `toml:"banks"`
	DefaultSpeed int         `toml:"default_speed"`
	MinSpeed     int         `toml:"min_speed"`
	MaxSpeed     int         `toml:"max_speed"`
	Speeds       []ChipSpeed `toml:"speed"`
}

type ChipSpeed struct {
	Chip  int `toml:"chip"`
	Speed int `toml:"speed"`
}

type TimingConfig struct {
	StdWait     Duration `toml:"std_wait"`
	LongWait    Duration `toml:"long_wait"`
	IdleSleep   Duration `toml:"idle_sleep"`
	ResultSleep Duration `toml:"result_sleep"`
	StdWork     Duration `toml:"std_work"`
	StdDelay    Duration `toml:"std_delay"`
}

type PoolConfig struct {
	WorkBlock     int  `toml:"work_block"`
	ResultBlock   int  `toml:"result_block"`
	RetainMatched bool `toml:"retain_matched"`
}

type MonitorConfig struct {
	Enabled  bool     `toml:"enabled"`
	Bus      string   `toml:"bus"`
	Slots    []int    `toml:"slots"`
	Interval Duration `toml:"interval"`
}

type WorkConfig struct {
	Template   string  `toml:"template"`
	Difficulty float64 `toml:"difficulty"`
	Limit      int     `toml:"limit"`
}

type MinerConfig struct {
	Name    string        `toml:"name"`
	Bus     BusConfig     `toml:"bus"`
	Gpio    GpioConfig    `toml:"gpio"`
	Chips   ChipConfig    `toml:"chips"`
	Timing  TimingConfig  `toml:"timing"`
	Pool    PoolConfig    `toml:"pool"`
	Monitor MonitorConfig `toml:"monitor"`
	Work    WorkConfig    `toml:"work"`
}

const (
	MAX_CHIPS  = 256
	MAX_BANKS  = 4
	MAX_PULSES = 1024

	// thermometer code is 8 groups of 8 bits
	MAX_OSC_SPEED = 64
)

// Default matches the stock BaB board: 4 banks selected by GPIO 18, 23,
// 24, 25 and the SPI clock/data pins bit banged for reset.
func Default() MinerConfig {
	return MinerConfig{
		Name: "BaB",
		Bus: BusConfig{
			Backend: "spidev",
			Device:  "/dev/spidev0.0",
			Mode:    0,
			Bits:    8,
			SpeedHz: 96000,
		},
		Gpio: GpioConfig{
			Backend:    "gpiod",
			Chip:       "gpiochip0",
			BankLines:  []int{18, 23, 24, 25},
			ClockLine:  10,
			DataLine:   11,
			Pulses:     64,
			PulseWidth: Duration{time.Microsecond},
			BankSettle: Duration{4096 * time.Microsecond},
		},
		Chips: ChipConfig{
			MaxChips:     MAX_CHIPS,
			DefaultSpeed: 54,
			MinSpeed:     52,
			MaxSpeed:     57,
		},
		Timing: TimingConfig{
			StdWait:     Duration{3 * time.Millisecond},
			LongWait:    Duration{1200 * time.Millisecond},
			IdleSleep:   Duration{100 * time.Millisecond},
			ResultSleep: Duration{3 * time.Millisecond},
			StdWork:     Duration{time.Second},
			StdDelay:    Duration{30 * time.Millisecond},
		},
		Pool: PoolConfig{
			WorkBlock:   4096,
			ResultBlock: 256,
		},
		Monitor: MonitorConfig{
			Enabled:  false,
			Bus:      "/dev/i2c-1",
			Interval: Duration{10 * time.Second},
		},
		Work: WorkConfig{
			Difficulty: 1,
		},
	}
}

// Load reads a toml file on top of the defaults.
func Load(path string) (MinerConfig, error) {
	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()

	if _, err := toml.NewDecoder(f).Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

func (my *MinerConfig) Validate() error {
	switch my.Bus.Backend {
	case "spidev", "periph", "loopback":
	default:
		return invalid("bus backend %q", my.Bus.Backend)
	}
	switch my.Gpio.Backend {
	case "gpiod", "sysfs", "none":
	default:
		return invalid("gpio backend %q", my.Gpio.Backend)
	}
	if my.Gpio.Backend != "none" && len(my.Gpio.BankLines) != MAX_BANKS {
		return invalid("need %d bank lines, have %d", MAX_BANKS, len(my.Gpio.BankLines))
	}
	if my.Gpio.Pulses < 1 || my.Gpio.Pulses > MAX_PULSES {
		return invalid("reset pulses %d", my.Gpio.Pulses)
	}
	if my.Chips.MaxChips < 1 || my.Chips.MaxChips > MAX_CHIPS {
		return invalid("max_chips %d", my.Chips.MaxChips)
	}
	for _, b := range my.Chips.Banks {
		if b < 1 || b > MAX_BANKS {
			return invalid("bank %d", b)
		}
	}
	c := my.Chips
	if c.MinSpeed < 1 || c.MinSpeed > c.MaxSpeed || c.MaxSpeed > MAX_OSC_SPEED {
		return invalid("speed range %d-%d", c.MinSpeed, c.MaxSpeed)
	}
	if c.DefaultSpeed < c.MinSpeed || c.DefaultSpeed > c.MaxSpeed {
		return invalid("default_speed %d outside %d-%d", c.DefaultSpeed, c.MinSpeed, c.MaxSpeed)
	}
	for _, s := range c.Speeds {
		if s.Chip < 0 || s.Chip >= c.MaxChips || s.Speed < c.MinSpeed || s.Speed > c.MaxSpeed {
			return invalid("speed %d for chip %d", s.Speed, s.Chip)
		}
	}
	if my.Pool.WorkBlock < 1 || my.Pool.ResultBlock < 1 {
		return invalid("pool blocks %d/%d", my.Pool.WorkBlock, my.Pool.ResultBlock)
	}
	if my.Timing.StdDelay.Duration <= 0 || my.Timing.StdWork.Duration < my.Timing.StdDelay.Duration {
		return invalid("std_work %v std_delay %v", my.Timing.StdWork, my.Timing.StdDelay)
	}
	if my.Monitor.Enabled {
		if my.Monitor.Interval.Duration <= 0 {
			return invalid("monitor interval %v", my.Monitor.Interval)
		}
		for _, s := range my.Monitor.Slots {
			if s < 0 || s > 31 {
				return invalid("monitor slot %d", s)
			}
		}
	}
	return nil
}
