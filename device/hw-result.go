package device

import (
	"sync"

	"bab_miner/device/arena"
	"bab_miner/log"
)

const RESULT_BLOCK = 256

type resultSlot struct {
	chip            int
	nonce           uint32
	afterFirstReply bool
}

// ResultRecord is one raw nonce taken from a chip's reply ring.
type ResultRecord struct {
	Chip  int
	Nonce uint32
	// the chip had produced a nonce before this one
	AfterFirstReply bool
}

type ResultCounts struct {
	Total  int
	Free   int
	Queued int
}

// ResultPool queues raw nonces from the reply diff to the result worker,
// newest at the head.
type ResultPool struct {
	mx    sync.Mutex
	slots *arena.Arena[resultSlot]
	queue *arena.List
}

func NewResultPool(block int) *ResultPool {
	if block <= 0 {
		block = RESULT_BLOCK
	}
	return &ResultPool{
		slots: arena.New[resultSlot](block),
		queue: arena.NewList("results"),
	}
}

func (my *ResultPool) Push(chip int, nonce uint32, afterFirstReply bool) {
	my.mx.Lock()
	h, grew := my.slots.Alloc(my.queue)
	s, _ := my.slots.Get(h)
	*s = resultSlot{chip: chip, nonce: nonce, afterFirstReply: afterFirstReply}
	total := my.slots.Cap()
	my.mx.Unlock()

	if grew {
		log.Warnf("Result pool exhausted, grown to %d records", total)
	}
}

// PopOldest removes the oldest queued record.
func (my *ResultPool) PopOldest() (ResultRecord, bool) {
	my.mx.Lock()
	defer my.mx.Unlock()
	h := my.slots.Back(my.queue)
	if h.IsNil() {
		return ResultRecord{}, false
	}
	s, _ := my.slots.Get(h)
	r := ResultRecord{Chip: s.chip, Nonce: s.nonce, AfterFirstReply: s.afterFirstReply}
	if err := my.slots.Release(h); err != nil {
		log.Errorf("Result pool release %v: %v", h, err)
	}
	return r, true
}

func (my *ResultPool) Counts() ResultCounts {
	my.mx.Lock()
	defer my.mx.Unlock()
	return ResultCounts{
		Total:  my.slots.Cap(),
		Free:   my.slots.Free.Len(),
		Queued: my.queue.Len(),
	}
}
