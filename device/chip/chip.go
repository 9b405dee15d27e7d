package chip

import (
	"sync/atomic"
	"time"
)

// Config register bits. ICLK and DIV2 are active low in the chip.
const (
	CONF_AUTO = 0x01
	CONF_ICLK = 0x02
	CONF_FAST = 0x04
	CONF_DIV2 = 0x08
	CONF_SLOW = 0x10
	CONF_OCLK = 0x20
	// config refresh pending
	CONF_CFGD = 0x40

	CONF_DEFAULT = CONF_AUTO | CONF_ICLK | CONF_DIV2 | CONF_SLOW
	CONF_MASK    = 0x7f &^ CONF_CFGD
)

// Chip holds one chip's state. Fields without atomics are owned by the scan
// goroutine: configuration by the transaction builder, reply rings and busy
// cursor by the reply diff. Everything read from other goroutines is atomic.
type Chip struct {
	Index int
	Bank  int
	SpiHz uint32

	// last asserted
	OldFast int
	OldConf uint8
	// desired, builder side
	Conf uint8

	Busy        int
	NonceBefore bool
	Miso        bool
	// consecutive polls in which no reply slot changed
	IdlePolls int
	Prev      Reply
	Reply     Reply
	Input     WorkSend

	fast       atomic.Int32
	refresh    atomic.Bool
	hasReplied atomic.Bool
	pubConf    atomic.Uint32

	Nonces        atomic.Uint64
	Good          atomic.Uint64
	Bad           atomic.Uint64
	MisoCount     atomic.Uint64
	FramingErrors atomic.Uint64
	lastNonce     atomic.Int64
}

// SpiSpeed is the clock used while a transfer ends inside chip i's payload.
// Chips further down the chain need a slower clock.
func SpiSpeed(i int) uint32 {
	return uint32(int(1000000.0/(100.0+31.0*float64(i+1))) * 1000)
}

func New(index int, bank int, fast int) *Chip {
	c := &Chip{
		Index:   index,
		Bank:    bank,
		SpiHz:   SpiSpeed(index),
		Conf:    CONF_DEFAULT,
		OldConf: CONF_DEFAULT,
		OldFast: fast,
	}
	c.fast.Store(int32(fast))
	c.pubConf.Store(CONF_DEFAULT)
	// the reply ring of a fresh chip reads all ones
	for i := range c.Prev.Nonce {
		c.Prev.Nonce[i] = NONCE_EMPTY
	}
	c.Prev.JobSel = NONCE_EMPTY
	return c
}

func (my *Chip) Fast() int {
	return int(my.fast.Load())
}

func (my *Chip) SetFast(fast int) {
	my.fast.Store(int32(fast))
}

// RequestRefresh asks the builder to resend the full configuration the next
// time this chip is the fix chip.
func (my *Chip) RequestRefresh() {
	my.refresh.Store(true)
}

// TakeRefresh folds a pending refresh request into Conf and reports
// whether there was one.
func (my *Chip) TakeRefresh() bool {
	if my.refresh.Swap(false) {
		my.Conf |= CONF_CFGD
		return true
	}
	return false
}

// Configured reports whether the chip gets job payloads.
func (my *Chip) Configured() bool {
	return my.Conf != 0
}

// Commit records a configuration as asserted once its buffer was built.
func (my *Chip) Commit(fast int, conf uint8) {
	my.OldFast = fast
	my.OldConf = conf
	my.Conf = conf
	my.pubConf.Store(uint32(conf))
}

// PublishedConf is the last committed configuration, safe from any goroutine.
func (my *Chip) PublishedConf() uint8 {
	return uint8(my.pubConf.Load())
}

func (my *Chip) HasReplied() bool {
	return my.hasReplied.Load()
}

func (my *Chip) MarkReplied() {
	my.hasReplied.Store(true)
}

func (my *Chip) CountNonce() {
	my.Nonces.Add(1)
	my.lastNonce.Store(time.Now().UnixNano())
}

// SinceLastNonce is the staleness signal a chip timeout watchdog needs. Zero
// when the chip never produced a nonce.
func (my *Chip) SinceLastNonce() time.Duration {
	ts := my.lastNonce.Load()
	if ts == 0 {
		return 0
	}
	return time.Since(time.Unix(0, ts))
}
