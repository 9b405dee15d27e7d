package temperature

import (
	"context"
	"sort"
	"sync"
	"time"

	"bab_miner/log"
)

// Board controller protocol
const (
	TM_ADDR      = 0xC0
	TM_GET_TEMP  = 0x10
	TM_GET_CORE0 = 0x11
	TM_GET_CORE1 = 0x12

	MAX_SLOT = 31

	MONITOR_INTERVAL = 10 * time.Second
)

const (
	HIGH_TEMP = 100

	// readings outside this range are glitches
	MIN_VALID_TEMP = -27
	MAX_VALID_TEMP = 250
)

// Requester is one command/answer exchange with a board controller.
type Requester interface {
	Request(addr uint16, cmd uint8, data uint16) (uint16, error)
}

type Reading struct {
	Slot  int
	Temp  float64
	Core0 float64
	Core1 float64
	TS    time.Time
	Err   error
}

// Data2Temp converts the 10 bit ADC answer to degrees C.
func Data2Temp(v uint16) float64 {
	return (float64(v)/1023.0*3.3*2 - 2.73) * 100.0
}

// Data2Core converts the 10 bit ADC answer to core volts.
func Data2Core(v uint16) float64 {
	return float64(v) / 1023.0 * 3.3
}

func SlotAddr(slot int) uint16 {
	return uint16(TM_ADDR>>1 + slot)
}

type Monitor struct {
	bus      Requester
	interval time.Duration

	mx       sync.Mutex
	slots    []int
	readings map[int]Reading
	failures map[int]int
	alarm    bool
}

func NewMonitor(bus Requester, slots []int, interval time.Duration) *Monitor {
	return &Monitor{
		bus:      bus,
		interval: interval,
		slots:    append([]int(nil), slots...),
		readings: make(map[int]Reading),
		failures: make(map[int]int),
	}
}

// Detect asks every slot for a controller and keeps those that answer.
// It is only needed when no slots were configured.
func (my *Monitor) Detect() []int {
	var found []int
	for slot := 0; slot <= MAX_SLOT; slot++ {
		if _, err := my.bus.Request(SlotAddr(slot), TM_GET_CORE0, 0); err == nil {
			found = append(found, slot)
		}
	}
	my.mx.Lock()
	my.slots = found
	my.mx.Unlock()
	log.Infof("Board monitor found %d controllers: %v", len(found), found)
	return found
}

func (my *Monitor) Slots() []int {
	my.mx.Lock()
	defer my.mx.Unlock()
	return append([]int(nil), my.slots...)
}

func (my *Monitor) read(slot int) Reading {
	r := Reading{Slot: slot, TS: time.Now()}
	addr := SlotAddr(slot)
	v, err := my.bus.Request(addr, TM_GET_TEMP, 0)
	if err != nil {
		r.Err = err
		return r
	}
	r.Temp = Data2Temp(v)
	if v, err = my.bus.Request(addr, TM_GET_CORE0, 0); err != nil {
		r.Err = err
		return r
	}
	r.Core0 = Data2Core(v)
	if v, err = my.bus.Request(addr, TM_GET_CORE1, 0); err != nil {
		r.Err = err
		return r
	}
	r.Core1 = Data2Core(v)
	return r
}

// Poll reads every slot once.
func (my *Monitor) Poll() []Reading {
	slots := my.Slots()
	out := make([]Reading, 0, len(slots))
	for _, slot := range slots {
		r := my.read(slot)
		out = append(out, r)

		my.mx.Lock()
		if r.Err != nil {
			my.failures[slot]++
			n := my.failures[slot]
			my.mx.Unlock()
			if n < 2 || n%100 == 0 { // Don't spam the log
				log.Errorf("Error reading board controller slot %d: %v", slot, r.Err)
			}
			continue
		}
		my.failures[slot] = 0
		if r.Temp < MIN_VALID_TEMP || r.Temp > MAX_VALID_TEMP {
			my.mx.Unlock()
			log.Debugf("Board controller slot %d temperature %.2fC ignored", slot, r.Temp)
			continue
		}
		my.readings[slot] = r
		my.mx.Unlock()
	}
	my.checkAlarm()
	return out
}

func (my *Monitor) checkAlarm() {
	my.mx.Lock()
	defer my.mx.Unlock()
	prev := my.alarm
	my.alarm = false
	for _, r := range my.readings {
		if r.Temp >= HIGH_TEMP {
			my.alarm = true
			if !prev {
				log.Errorf("ALARM: board slot %d temperature %.2fC is above limit %.2fC", r.Slot, r.Temp, float64(HIGH_TEMP))
			}
		}
	}
	if prev && !my.alarm {
		log.Infof("Board temperatures back below %.2fC", float64(HIGH_TEMP))
	}
}

func (my *Monitor) TempTooHigh() bool {
	my.mx.Lock()
	defer my.mx.Unlock()
	return my.alarm
}

// Snapshot returns the last good reading of each slot, by slot.
func (my *Monitor) Snapshot() []Reading {
	my.mx.Lock()
	defer my.mx.Unlock()
	out := make([]Reading, 0, len(my.readings))
	for _, r := range my.readings {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	return out
}

// Run polls until ctx ends.
func (my *Monitor) Run(ctx context.Context) error {
	if len(my.Slots()) == 0 {
		my.Detect()
	}
	interval := my.interval
	if interval <= 0 {
		interval = MONITOR_INTERVAL
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		my.Poll()
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
