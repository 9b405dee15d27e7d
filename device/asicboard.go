package device

import (
	"context"
	"time"

	"bab_miner/block"
	"bab_miner/device/chip"
	"bab_miner/job"
	"bab_miner/log"
	"bab_miner/util"
)

// one diff-1 share is worth this many hashes
const HASHES_PER_NONCE = 0xffffffff

// polls without a changed reply slot before a chip is tagged MISO
const MISO_IDLE_POLLS = 2

// fillInput loads the chip's input registers with j.
func fillInput(in *chip.WorkSend, j *job.Job) {
	ms := j.Midstate()
	tail := j.Tail()
	in.Midstate = ms
	in.MS3Steps = block.MS3Steps(ms, tail)
	in.Merkle7 = tail[0]
	in.NTime = tail[1]
	in.Bits = tail[2]
}

type diffSummary struct {
	pushed  int
	miso    int
	framing int
	patched int
}

// doWork gives every chip its next job, queues the transaction and picks up
// the replies of the previous one. A chip without a job aborts the cycle and
// the jobs already handed out go back to pending.
func (my *Device) doWork() bool {
	chips := my.Chips
	if len(chips) == 0 {
		return false
	}
	for i, c := range chips {
		_, j, ok := my.Work.NextForChip(i)
		if !ok {
			log.Errorf("%s%d: short work list (%d) expected %d - discarded", my.Name, my.ID, i, len(chips))
			for k := 0; k < i; k++ {
				my.Work.DiscardLast(k)
			}
			return false
		}
		fillInput(&c.Input, j)
	}

	if ok, err := my.Pipe.Build(chips); !ok {
		log.Debugf("%s%d: couldn't put work ... %v", my.Name, my.ID, err)
	}

	ok, err := my.Pipe.Extract(chips)
	if !ok {
		log.Debugf("%s%d: didn't get work reply ... %v", my.Name, my.ID, err)
		return false
	}
	my.cnt.cycles.Add(1)

	s := my.diffReplies()
	log.Debugf("%s%d work: items:%d new:%d patched:%d miso:%d framing:%d", my.Name, my.ID, len(chips), s.pushed, s.patched, s.miso, s.framing)
	return true
}

// diffReplies compares each chip's reply ring with the one of the previous
// cycle and queues the nonces written since. A chip's busy slot is the one
// it writes next; slots from busy up to the last changed one are complete.
func (my *Device) diffReplies() diffSummary {
	var s diffSummary
	for i, c := range my.Chips {
		if c.Conf == 0 {
			continue
		}
		busy := c.Busy
		newbusy := busy
		match := 0
		for j := 1; j < chip.REPLY_NONCES; j++ {
			k := (busy + j) % chip.REPLY_NONCES
			if c.Reply.Nonce[k] != c.Prev.Nonce[k] {
				newbusy = k
			} else {
				match++
			}
		}

		if match == 0 {
			// every slot moved: the line is floating, not a reply
			c.IdlePolls = 0
			my.tagMiso(c, &s)
			c.Prev = c.Reply
			continue
		}
		if newbusy == busy {
			c.IdlePolls++
		} else {
			c.IdlePolls = 0
		}
		if c.IdlePolls >= MISO_IDLE_POLLS {
			// nothing changed two polls running: the line looks idle
			my.tagMiso(c, &s)
		} else {
			c.Miso = false
		}

		if sel := c.Reply.JobSel; sel != chip.NONCE_EMPTY && sel != chip.NONCE_ZEROED {
			c.FramingErrors.Add(1)
			s.framing++
			log.Debugf("%s%d: SPI ERROR on chip %d (0x%08x)", my.Name, my.ID, i, sel)
		}

		got := false
		for ; busy != newbusy; busy = (busy + 1) % chip.REPLY_NONCES {
			n := c.Reply.Nonce[busy]
			if chip.IsEmptyNonce(n) {
				c.Reply.Nonce[busy] = c.Prev.Nonce[busy]
				s.patched++
				continue
			}
			my.Results.Push(i, n, c.NonceBefore)
			s.pushed++
			got = true
		}
		if got {
			c.NonceBefore = true
		}
		c.Busy = busy
		c.Prev = c.Reply
	}
	return s
}

// tagMiso counts a chip once per MISO streak.
func (my *Device) tagMiso(c *chip.Chip, s *diffSummary) {
	if !c.Miso {
		c.MisoCount.Add(1)
		s.miso++
	}
	c.Miso = true
}

// ScanWork runs one cycle, then waits until the cycle has lasted StdWork
// counted from the last transfer. It returns the hashes done since the last
// call.
func (my *Device) ScanWork(ctx context.Context) int64 {
	my.doWork()

	limit := my.timing.StdWork - my.timing.StdDelay
	for ctx.Err() == nil {
		last := my.Pipe.LastDid()
		if last.IsZero() || time.Since(last) >= limit {
			break
		}
		util.SleepCtx(ctx, my.timing.StdDelay)
	}

	n := my.cnt.newNonces.Swap(0)
	return int64(HASHES_PER_NONCE) * int64(n)
}

// ScanLoop is the submission path: keep the pending list topped up and scan.
func (my *Device) ScanLoop(ctx context.Context) error {
	if len(my.Chips) == 0 {
		return ErrNotDetected
	}
	log.Debugf("%s%d scan loop started", my.Name, my.ID)
	var hashes int64
	report := time.Now()
	for ctx.Err() == nil {
		for !my.QueueFull() {
			if ctx.Err() != nil {
				return nil
			}
		}
		hashes += my.ScanWork(ctx)
		if time.Since(report) >= time.Minute {
			log.Infof("%s%d %.2f GH/s", my.Name, my.ID, float64(hashes)/time.Since(report).Seconds()/1e9)
			hashes = 0
			report = time.Now()
		}
	}
	log.Debugf("%s%d scan loop stopped", my.Name, my.ID)
	return nil
}
