package device

import (
	"fmt"
	"strings"
	"time"

	"bab_miner/device/chip"
	"bab_miner/device/temperature"
)

type ChipStats struct {
	Index      int
	Bank       int
	Nonces     uint64
	Good       uint64
	Bad        uint64
	Miso       uint64
	Framing    uint64
	Conf       uint8
	Fast       int
	HasReplied bool
	// since the last nonce, 0 before the first one
	Idle time.Duration
}

// Stats is a point in time copy of a device's counters.
type Stats struct {
	ID     uint
	Name   string
	Status string
	Uptime float64

	Chips []ChipStats

	OffsetCounts   []uint64
	Tested         uint64
	Untested       uint64
	TotalTests     uint64
	MaxTests       uint64
	AvgTests       float64
	TotalLinks     uint64
	MaxLinks       uint64
	AvgLinks       float64
	InitialIgnored uint64
	BelowTarget    uint64
	HWErrors       uint64
	Cycles         uint64

	Transfers uint64
	TxErrors  uint64
	Overflows uint64

	Work    PoolCounts
	Results ResultCounts

	Temps []temperature.Reading
	// a board is at or above temperature.HIGH_TEMP
	TempTooHigh bool
}

func (my *Device) Stats() Stats {
	s := Stats{
		ID:     my.ID,
		Name:   my.Name,
		Status: StatusCode(my.Status),
		Uptime: my.Uptime(),
	}
	for _, c := range my.Chips {
		s.Chips = append(s.Chips, ChipStats{
			Index:      c.Index,
			Bank:       c.Bank,
			Nonces:     c.Nonces.Load(),
			Good:       c.Good.Load(),
			Bad:        c.Bad.Load(),
			Miso:       c.MisoCount.Load(),
			Framing:    c.FramingErrors.Load(),
			Conf:       c.PublishedConf(),
			Fast:       c.Fast(),
			HasReplied: c.HasReplied(),
			Idle:       c.SinceLastNonce(),
		})
	}

	for i := range my.cnt.offsets {
		s.OffsetCounts = append(s.OffsetCounts, my.cnt.offsets[i].Load())
	}
	s.Tested = my.cnt.tested.Load()
	s.Untested = my.cnt.untested.Load()
	s.TotalTests = my.cnt.totalTests.Load()
	s.MaxTests = my.cnt.maxTests.Load()
	s.TotalLinks = my.cnt.totalLinks.Load()
	s.MaxLinks = my.cnt.maxLinks.Load()
	s.InitialIgnored = my.cnt.initialIgnored.Load()
	s.BelowTarget = my.cnt.belowTarget.Load()
	s.HWErrors = my.cnt.hwErrors.Load()
	s.Cycles = my.cnt.cycles.Load()

	var matched uint64
	for _, v := range s.OffsetCounts {
		matched += v
	}
	if matched > 0 {
		s.AvgTests = float64(s.TotalTests) / float64(matched)
		s.AvgLinks = float64(s.TotalLinks) / float64(matched)
	}

	if my.Pipe != nil {
		s.Transfers = my.Pipe.Transfers.Load()
		s.TxErrors = my.Pipe.TxErrors.Load()
		s.Overflows = my.Pipe.Overflows.Load()
	}
	s.Work = my.Work.Counts()
	s.Results = my.Results.Counts()
	if my.Monitor != nil {
		s.Temps = my.Monitor.Snapshot()
		s.TempTooHigh = my.Monitor.TempTooHigh()
	}
	return s
}

// ChipLines renders the per-chip counters 16 chips to a line, the way the
// stats block of the board firmware groups them.
func (s *Stats) ChipLines() []string {
	var lines []string
	for base := 0; base < len(s.Chips); base += 16 {
		end := base + 16
		if end > len(s.Chips) {
			end = len(s.Chips)
		}
		var nonces, good, bad, conf, fast []string
		for _, c := range s.Chips[base:end] {
			nonces = append(nonces, fmt.Sprintf("%d", c.Nonces))
			good = append(good, fmt.Sprintf("%d", c.Good))
			bad = append(bad, fmt.Sprintf("%d", c.Bad))
			conf = append(conf, fmt.Sprintf("0x%02x", c.Conf))
			fast = append(fast, fmt.Sprintf("%d", c.Fast))
		}
		lines = append(lines,
			fmt.Sprintf("Nonces %d - %d: %s", base, end-1, strings.Join(nonces, " ")),
			fmt.Sprintf("Good %d - %d: %s", base, end-1, strings.Join(good, " ")),
			fmt.Sprintf("Bad %d - %d: %s", base, end-1, strings.Join(bad, " ")),
			fmt.Sprintf("Conf %d - %d: %s", base, end-1, strings.Join(conf, " ")),
			fmt.Sprintf("Fast %d - %d: %s", base, end-1, strings.Join(fast, " ")),
		)
	}
	return lines
}

// OffsetLine names each nonce offset with its match count.
func (s *Stats) OffsetLine() string {
	parts := make([]string, 0, len(s.OffsetCounts))
	for i, v := range s.OffsetCounts {
		parts = append(parts, fmt.Sprintf("%d=%d", chip.NonceOffsets[i], v))
	}
	return strings.Join(parts, " ")
}
