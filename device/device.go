package device

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"bab_miner/config"
	"bab_miner/device/asiccommon"
	"bab_miner/device/asicio"
	"bab_miner/device/chip"
	"bab_miner/job"
	"bab_miner/log"
	"bab_miner/util"
)

const (
	STATUS_ALIVE = iota
	STATUS_SICK
	STATUS_DEAD
	STATUS_NOSTART
	STATUS_INIT
)

func StatusCode(s int) string {
	switch s {
	case STATUS_ALIVE:
		return "Alive"
	case STATUS_SICK:
		return "Sick"
	case STATUS_DEAD:
		return "Dead"
	case STATUS_NOSTART:
		return "NoStart"
	case STATUS_INIT:
		return "Initialising"
	default:
		return "Dead"
	}
}

var (
	ErrNoChipsFound = errors.New("ErrNoChipsFound")
	ErrBadSpeed     = errors.New("ErrBadSpeed")
	ErrNotDetected  = errors.New("ErrNotDetected")
)

// Timing of the scan and result loops.
type Timing struct {
	// scan cycle length and the poll step inside it
	StdWork  time.Duration
	StdDelay time.Duration
	// idle sleep of the result worker
	ResultSleep time.Duration
}

var DefaultTiming = Timing{
	StdWork:     time.Second,
	StdDelay:    30 * time.Millisecond,
	ResultSleep: 3 * time.Millisecond,
}

func TimingFromConfig(c config.TimingConfig) Timing {
	t := DefaultTiming
	if c.StdWork.Duration > 0 {
		t.StdWork = c.StdWork.Duration
	}
	if c.StdDelay.Duration > 0 {
		t.StdDelay = c.StdDelay.Duration
	}
	if c.ResultSleep.Duration > 0 {
		t.ResultSleep = c.ResultSleep.Duration
	}
	return t
}

type counters struct {
	offsets        [len(chip.NonceOffsets)]atomic.Uint64
	tested         atomic.Uint64
	untested       atomic.Uint64
	totalTests     atomic.Uint64
	maxTests       atomic.Uint64
	totalLinks     atomic.Uint64
	maxLinks       atomic.Uint64
	initialIgnored atomic.Uint64
	belowTarget    atomic.Uint64
	hwErrors       atomic.Uint64
	newNonces      atomic.Uint64
	cycles         atomic.Uint64
}

func storeMax(v *atomic.Uint64, n uint64) {
	for {
		old := v.Load()
		if n <= old || v.CompareAndSwap(old, n) {
			return
		}
	}
}

// Device is one BaB chain: up to 256 chips on one SPI bus split into banks.
type Device struct {
	ID      uint
	Name    string
	Status  int
	UpSince float64

	Chips   []*chip.Chip
	Work    *WorkPool
	Results *ResultPool
	Pipe    *asicio.Pipeline
	Monitor asiccommon.BoardMonitor

	fw     asiccommon.Framework
	cfg    config.ChipConfig
	timing Timing

	cnt counters
}

// NewDevice builds a device around an opened pipeline. Chips are added by
// Detect or UseChips.
func NewDevice(id uint, cfg config.MinerConfig, pipe *asicio.Pipeline, fw asiccommon.Framework) *Device {
	return &Device{
		ID:      id,
		Name:    cfg.Name,
		Status:  STATUS_NOSTART,
		UpSince: util.NowInSec(),
		Work:    NewWorkPool(0, cfg.Pool.WorkBlock, cfg.Pool.RetainMatched, fw),
		Results: NewResultPool(cfg.Pool.ResultBlock),
		Pipe:    pipe,
		fw:      fw,
		cfg:     cfg.Chips,
		timing:  TimingFromConfig(cfg.Timing),
	}
}

func (my *Device) Uptime() float64 {
	return util.UptimeInSec(util.NowInSec(), my.UpSince)
}

func (my *Device) defaultSpeed() int {
	if my.cfg.DefaultSpeed > 0 {
		return my.cfg.DefaultSpeed
	}
	return 54
}

// Detect finds the chips of each configured bank, or of the unbanked chain
// when no bank is configured. Chips keep the bank they answered on.
func (my *Device) Detect() (int, error) {
	my.Status = STATUS_INIT
	max := my.cfg.MaxChips
	if max <= 0 || max > chip.CHIP_MAX {
		max = chip.CHIP_MAX
	}
	banks := my.cfg.Banks
	if len(banks) == 0 {
		banks = []int{0}
	}

	cands := make([]*chip.Chip, max)
	found := 0
	for _, bank := range banks {
		if found >= max {
			break
		}
		for i := found; i < max; i++ {
			cands[i] = chip.New(i, bank, my.defaultSpeed())
		}
		n, err := my.Pipe.Detect(cands, bank, found, max)
		if err != nil {
			my.Status = STATUS_DEAD
			return found, fmt.Errorf("bank %d: %w", bank, err)
		}
		if n > found {
			log.Infof("%s%d bank %d: chips %d-%d", my.Name, my.ID, bank, found, n-1)
		}
		found = n
	}
	if found == 0 {
		my.Status = STATUS_DEAD
		return 0, ErrNoChipsFound
	}

	my.UseChips(cands[:found])
	log.Infof("%s%d found %d chips", my.Name, my.ID, found)
	return found, nil
}

// UseChips installs an already known chain, applying per-chip speed
// overrides.
func (my *Device) UseChips(chips []*chip.Chip) {
	for _, s := range my.cfg.Speeds {
		if s.Chip >= 0 && s.Chip < len(chips) {
			chips[s.Chip].SetFast(s.Speed)
			log.Debugf("%s%d chip %d speed %d", my.Name, my.ID, s.Chip, s.Speed)
		}
	}
	my.Chips = chips
	my.Work.Resize(len(chips))
	my.Status = STATUS_ALIVE
}

func (my *Device) chip(i int) (*chip.Chip, error) {
	if i < 0 || i >= len(my.Chips) {
		return nil, fmt.Errorf("%w: %d", ErrBadChip, i)
	}
	return my.Chips[i], nil
}

// SetChipSpeed changes a chip's oscillator set point. It is asserted on the
// next cycle.
func (my *Device) SetChipSpeed(i int, fast int) error {
	c, err := my.chip(i)
	if err != nil {
		return err
	}
	lo, hi := my.cfg.MinSpeed, my.cfg.MaxSpeed
	if lo <= 0 {
		lo = 1
	}
	if hi <= 0 || hi > config.MAX_OSC_SPEED {
		hi = config.MAX_OSC_SPEED
	}
	if fast < lo || fast > hi {
		return fmt.Errorf("%w: %d not in %d-%d", ErrBadSpeed, fast, lo, hi)
	}
	c.SetFast(fast)
	return nil
}

// RequestRefresh resends chip i's full configuration on its next fix turn.
func (my *Device) RequestRefresh(i int) error {
	c, err := my.chip(i)
	if err != nil {
		return err
	}
	c.RequestRefresh()
	return nil
}

// QueueFull pulls at most one job per call and reports true once there is
// a pending job for every chip.
func (my *Device) QueueFull() bool {
	if my.Work.Counts().Pending >= len(my.Chips) {
		return true
	}
	j, err := my.fw.GetNextJob()
	if err != nil || j == nil {
		if err != nil && !errors.Is(err, job.ErrNoJob) {
			log.Errorf("%s%d get job: %v", my.Name, my.ID, err)
		}
		util.Delay(10 * time.Millisecond)
		return false
	}
	if _, err := my.Work.AllocJobSlot(j); err != nil {
		log.Errorf("%s%d store job: %v", my.Name, my.ID, err)
	}
	return false
}

// Flush drops the jobs not sent yet and lets the next scan start at once.
func (my *Device) Flush() {
	my.Pipe.ClearLastDid()
	if n := my.Work.Flush(); n > 0 {
		log.Debugf("%s%d flushed %d jobs", my.Name, my.ID, n)
	}
}

// FlushAll hands every job the device still holds back to the framework,
// including the ones on the chips. Only for a device whose loops are stopped.
func (my *Device) FlushAll() {
	my.Pipe.ClearLastDid()
	if n := my.Work.FlushAll(); n > 0 {
		log.Debugf("%s%d flushed all %d jobs", my.Name, my.ID, n)
	}
}
