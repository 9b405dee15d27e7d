package device

import (
	"errors"
	"fmt"
	"sync"

	"bab_miner/device/arena"
	"bab_miner/device/asiccommon"
	"bab_miner/job"
	"bab_miner/log"
)

var (
	ErrNilJob     = errors.New("ErrNilJob")
	ErrBadChip    = errors.New("ErrBadChip")
	ErrNotPending = errors.New("ErrNotPending")
	ErrNotOnChip  = errors.New("ErrNotOnChip")
)

const WORK_BLOCK = 4096

type workSlot struct {
	job    *job.Job
	chip   int
	nonces int
}

// ChainEntry is one job on a chip's list as seen by a snapshot.
type ChainEntry struct {
	Handle arena.Handle
	Job    *job.Job
	Nonces int
}

type PoolCounts struct {
	Total    int
	Blocks   int
	Free     int
	Pending  int
	Retiring int
	PerChip  []int
	Grows    int
}

// Assigned is the sum over all chip lists.
func (c PoolCounts) Assigned() int {
	n := 0
	for _, v := range c.PerChip {
		n += v
	}
	return n
}

// WorkPool tracks every job between the framework handing it out and the
// driver reporting it complete. A job slot is on exactly one list: free,
// pending (not sent yet) or one chip's list, newest first.
type WorkPool struct {
	mx            sync.RWMutex
	slots         *arena.Arena[workSlot]
	pending       *arena.List
	retiring      *arena.List
	chips         []*arena.List
	retainMatched bool
	fw            asiccommon.Framework
	grows         int
}

func NewWorkPool(nChips int, block int, retainMatched bool, fw asiccommon.Framework) *WorkPool {
	if block <= 0 {
		block = WORK_BLOCK
	}
	my := &WorkPool{
		slots:         arena.New[workSlot](block),
		pending:       arena.NewList("pending"),
		retiring:      arena.NewList("retiring"),
		retainMatched: retainMatched,
		fw:            fw,
	}
	my.Resize(nChips)
	return my
}

// Resize makes room for n chip lists. Lists are never removed.
func (my *WorkPool) Resize(n int) {
	my.mx.Lock()
	defer my.mx.Unlock()
	for i := len(my.chips); i < n; i++ {
		my.chips = append(my.chips, arena.NewList(fmt.Sprintf("chip%d", i)))
	}
}

func (my *WorkPool) chipList(chip int) (*arena.List, error) {
	if chip < 0 || chip >= len(my.chips) {
		return nil, fmt.Errorf("%w: %d", ErrBadChip, chip)
	}
	return my.chips[chip], nil
}

// AllocJobSlot stores j at the head of the pending list.
func (my *WorkPool) AllocJobSlot(j *job.Job) (arena.Handle, error) {
	if j == nil {
		return arena.Nil, ErrNilJob
	}
	my.mx.Lock()
	h, grew := my.slots.Alloc(my.pending)
	s, _ := my.slots.Get(h)
	s.job = j
	s.chip = -1
	s.nonces = 0
	if grew {
		my.grows++
	}
	total, blocks := my.slots.Cap(), my.slots.Blocks()
	my.mx.Unlock()

	if grew {
		log.Warnf("Work pool exhausted, grown to %d slots in %d blocks (pending %d)", total, blocks, my.pending.Len())
	}
	return h, nil
}

// AssignToChip moves a pending slot to the head of the chip's list.
func (my *WorkPool) AssignToChip(h arena.Handle, chip int) error {
	my.mx.Lock()
	defer my.mx.Unlock()
	l, err := my.chipList(chip)
	if err != nil {
		return err
	}
	if !my.slots.Valid(h) {
		return arena.ErrStaleHandle
	}
	if my.slots.Owner(h) != my.pending {
		return fmt.Errorf("%w: %v", ErrNotPending, h)
	}
	if err := my.slots.MoveFront(h, l); err != nil {
		return err
	}
	s, _ := my.slots.Get(h)
	s.chip = chip
	return nil
}

// NextForChip hands the newest pending job to the chip.
func (my *WorkPool) NextForChip(chip int) (arena.Handle, *job.Job, bool) {
	my.mx.Lock()
	defer my.mx.Unlock()
	l, err := my.chipList(chip)
	if err != nil {
		return arena.Nil, nil, false
	}
	h := my.slots.Front(my.pending)
	if h.IsNil() {
		return arena.Nil, nil, false
	}
	if err := my.slots.MoveFront(h, l); err != nil {
		log.Errorf("Work pool move %v to chip %d: %v", h, chip, err)
		return arena.Nil, nil, false
	}
	s, _ := my.slots.Get(h)
	s.chip = chip
	return h, s.job, true
}

// DiscardLast undoes the chip's newest assignment, the job goes back to the
// head of the pending list.
func (my *WorkPool) DiscardLast(chip int) bool {
	my.mx.Lock()
	defer my.mx.Unlock()
	l, err := my.chipList(chip)
	if err != nil {
		return false
	}
	h := my.slots.Front(l)
	if h.IsNil() {
		return false
	}
	if err := my.slots.MoveFront(h, my.pending); err != nil {
		log.Errorf("Work pool move %v from chip %d: %v", h, chip, err)
		return false
	}
	s, _ := my.slots.Get(h)
	s.chip = -1
	return true
}

// CountNonce credits one verified nonce to the slot.
func (my *WorkPool) CountNonce(h arena.Handle) error {
	my.mx.Lock()
	defer my.mx.Unlock()
	s, err := my.slots.Get(h)
	if err != nil {
		return err
	}
	s.nonces++
	return nil
}

// Chain snapshots the chip's list, newest first. The entries stay readable
// after the lock is gone; handles in it may go stale.
func (my *WorkPool) Chain(chip int) []ChainEntry {
	my.mx.RLock()
	defer my.mx.RUnlock()
	l, err := my.chipList(chip)
	if err != nil {
		return nil
	}
	out := make([]ChainEntry, 0, l.Len())
	for h := my.slots.Front(l); !h.IsNil(); h = my.slots.Next(h) {
		s, _ := my.slots.Get(h)
		out = append(out, ChainEntry{Handle: h, Job: s.job, Nonces: s.nonces})
	}
	return out
}

// RetireFrom takes h and every older job off the chip's list and reports
// them complete. With retainMatched, h itself stays and only the older ones
// go. The framework is called without the pool lock held.
func (my *WorkPool) RetireFrom(chip int, h arena.Handle) ([]arena.Handle, error) {
	my.mx.Lock()
	l, err := my.chipList(chip)
	if err != nil {
		my.mx.Unlock()
		return nil, err
	}
	if !my.slots.Valid(h) {
		my.mx.Unlock()
		return nil, arena.ErrStaleHandle
	}
	if my.slots.Owner(h) != l {
		my.mx.Unlock()
		return nil, fmt.Errorf("%w: %v chip %d", ErrNotOnChip, h, chip)
	}
	from := h
	if my.retainMatched {
		from = my.slots.Next(h)
	}
	var gone []arena.Handle
	for x := from; !x.IsNil(); x = my.slots.Next(x) {
		gone = append(gone, x)
	}
	gone, jobs := my.detach(gone)
	my.mx.Unlock()

	my.complete(gone, jobs)
	return gone, nil
}

// Flush retires every job that was never sent.
func (my *WorkPool) Flush() int {
	my.mx.Lock()
	gone := my.collect(my.pending, nil)
	gone, jobs := my.detach(gone)
	my.mx.Unlock()

	my.complete(gone, jobs)
	return len(gone)
}

// FlushAll retires every job in the pool, the ones the chips are still
// working on included. Used once the device has stopped.
func (my *WorkPool) FlushAll() int {
	my.mx.Lock()
	gone := my.collect(my.pending, nil)
	for _, l := range my.chips {
		gone = my.collect(l, gone)
	}
	gone, jobs := my.detach(gone)
	my.mx.Unlock()

	my.complete(gone, jobs)
	return len(gone)
}

func (my *WorkPool) collect(l *arena.List, hs []arena.Handle) []arena.Handle {
	for x := my.slots.Front(l); !x.IsNil(); x = my.slots.Next(x) {
		hs = append(hs, x)
	}
	return hs
}

// detach parks hs on the retiring list and returns the ones it could move
// with their jobs. Caller holds the lock.
func (my *WorkPool) detach(hs []arena.Handle) ([]arena.Handle, []*job.Job) {
	moved := make([]arena.Handle, 0, len(hs))
	jobs := make([]*job.Job, 0, len(hs))
	for _, x := range hs {
		s, err := my.slots.Get(x)
		if err == nil {
			err = my.slots.MoveFront(x, my.retiring)
		}
		if err != nil {
			log.Errorf("Work pool retire %v: %v", x, err)
			continue
		}
		moved = append(moved, x)
		jobs = append(jobs, s.job)
	}
	return moved, jobs
}

func (my *WorkPool) complete(hs []arena.Handle, jobs []*job.Job) {
	if my.fw != nil {
		for _, j := range jobs {
			my.fw.ReportJobComplete(j)
		}
	}
	if len(hs) == 0 {
		return
	}
	my.mx.Lock()
	defer my.mx.Unlock()
	for _, x := range hs {
		if err := my.slots.Release(x); err != nil {
			log.Errorf("Work pool release %v: %v", x, err)
		}
	}
}

func (my *WorkPool) Counts() PoolCounts {
	my.mx.RLock()
	defer my.mx.RUnlock()
	c := PoolCounts{
		Total:    my.slots.Cap(),
		Blocks:   my.slots.Blocks(),
		Free:     my.slots.Free.Len(),
		Pending:  my.pending.Len(),
		Retiring: my.retiring.Len(),
		PerChip:  make([]int, len(my.chips)),
		Grows:    my.grows,
	}
	for i, l := range my.chips {
		c.PerChip[i] = l.Len()
	}
	return c
}
