package asicio

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"bab_miner/device/chip"
	"bab_miner/log"
	"bab_miner/util"
)

// BankResetter selects a bank (0 means no bank select) and clocks the reset
// pulse train into it.
type BankResetter interface {
	Reset(bank int, times int) error
}

type Timing struct {
	StdWait   time.Duration // least time between two transfers
	LongWait  time.Duration
	IdleSleep time.Duration
	// consecutive transfer failures before each escalated log
	FailEscalate int
}

var DefaultTiming = Timing{
	StdWait:      3 * time.Millisecond,
	LongWait:     1200 * time.Millisecond,
	IdleSleep:    100 * time.Millisecond,
	FailEscalate: 10,
}

const (
	RESET_PULSES   = 64
	WAIT_MSG_EVERY = 10
)

// Pipeline owns the two transaction buffers and moves them through
// Done -> Ready -> Sending -> Sent -> Reading -> Done.
type Pipeline struct {
	mx       sync.Mutex
	bufs     [BUFFERS]*TxBuf
	bus      Bus
	resetter BankResetter
	pulses   int
	baseHz   uint32
	timing   Timing
	fixchip  int

	didMx   sync.Mutex
	lastDid time.Time

	Transfers atomic.Uint64
	TxErrors  atomic.Uint64
	Overflows atomic.Uint64
	LongWaits atomic.Uint64
}

func NewPipeline(bus Bus, resetter BankResetter, pulses int, baseHz uint32, timing Timing) *Pipeline {
	if pulses <= 0 {
		pulses = RESET_PULSES
	}
	if baseHz == 0 {
		baseHz = SPI_SPEED
	}
	if timing.FailEscalate <= 0 {
		timing.FailEscalate = DefaultTiming.FailEscalate
	}
	my := &Pipeline{
		bus:      bus,
		resetter: resetter,
		pulses:   pulses,
		baseHz:   baseHz,
		timing:   timing,
	}
	for i := range my.bufs {
		my.bufs[i] = newTxBuf()
	}
	return my
}

// State returns the state of buffer i.
func (my *Pipeline) State(i int) int {
	my.mx.Lock()
	defer my.mx.Unlock()
	return my.bufs[i].state
}

// transition moves buffer i from one state to another, failing when the
// buffer is not in the expected state.
func (my *Pipeline) transition(i int, from int, to int) error {
	my.mx.Lock()
	defer my.mx.Unlock()
	if my.bufs[i].state != from {
		return fmt.Errorf("%w: buffer %d is %s, want %s", ErrNotClaimable, i, StateName(my.bufs[i].state), StateName(from))
	}
	my.bufs[i].state = to
	return nil
}

// claim takes the first buffer found in one of the from states, in order,
// and moves it to state to.
func (my *Pipeline) claim(to int, from ...int) (int, bool) {
	my.mx.Lock()
	defer my.mx.Unlock()
	for _, f := range from {
		for i, b := range my.bufs {
			if b.state == f {
				b.state = to
				return i, true
			}
		}
	}
	return -1, false
}

// Build lays out the next transaction. An idle buffer is preferred; a built
// but unsent one is taken back and rebuilt with the fresher jobs. It reports
// false when both buffers are busy.
func (my *Pipeline) Build(chips []*chip.Chip) (bool, error) {
	if len(chips) == 0 {
		return false, ErrNoChips
	}
	i, ok := my.claim(STATE_DONE, STATE_DONE, STATE_READY)
	if !ok {
		return false, nil
	}
	b := my.bufs[i]
	if my.fixchip >= len(chips) {
		my.fixchip = 0
	}
	if err := b.build(chips, my.fixchip); err != nil {
		my.Overflows.Add(1)
		log.Errorf("Transaction build for %d chips aborted: %v", len(chips), err)
		return false, err
	}
	if err := my.transition(i, STATE_DONE, STATE_READY); err != nil {
		return false, err
	}
	my.fixchip = (my.fixchip + 1) % len(chips)
	return true, nil
}

// Extract copies the replies of a sent buffer into the chips. It reports
// false when nothing was sent since the last call.
func (my *Pipeline) Extract(chips []*chip.Chip) (bool, error) {
	i, ok := my.claim(STATE_READING, STATE_SENT)
	if !ok {
		return false, nil
	}
	err := my.bufs[i].extract(chips)
	if terr := my.transition(i, STATE_READING, STATE_DONE); terr != nil && err == nil {
		err = terr
	}
	return err == nil, err
}

// Transmit sends one ready buffer. A failed transfer leaves the buffer
// ready so the next cycle retries it.
func (my *Pipeline) Transmit() (bool, error) {
	i, ok := my.claim(STATE_SENDING, STATE_READY)
	if !ok {
		return false, nil
	}
	if err := my.txrx(my.bufs[i]); err != nil {
		my.TxErrors.Add(1)
		if terr := my.transition(i, STATE_SENDING, STATE_READY); terr != nil {
			log.Errorf("%v", terr)
		}
		return true, err
	}
	return true, my.transition(i, STATE_SENDING, STATE_SENT)
}

func (my *Pipeline) reset(bank int) error {
	if my.resetter == nil {
		return nil
	}
	return my.resetter.Reset(bank, my.pulses)
}

// txrx clocks the whole buffer through the bus in chunks. A chunk never
// crosses a bank boundary, each new bank gets its reset first, and the clock
// is the one of the first chip whose work starts past the chunk, or the base
// clock when there is none.
func (my *Pipeline) txrx(b *TxBuf) error {
	bank := 0
	for ; bank <= MAX_BANKS; bank++ {
		if b.BankOff[bank] != 0 {
			if err := my.reset(bank); err != nil {
				return err
			}
			break
		}
	}
	if bank > MAX_BANKS {
		return ErrNoBank
	}

	pos := 0
	siz := b.Used
	i := 0
	for siz > 0 {
		if pos == b.BankOff[bank] {
			for bank++; bank <= MAX_BANKS; bank++ {
				if b.BankOff[bank] > pos {
					if err := my.reset(bank); err != nil {
						return err
					}
					break
				}
			}
			if bank > MAX_BANKS {
				return ErrNoBank
			}
		}

		n := siz
		if n > SPI_BUFSIZ {
			n = SPI_BUFSIZ
		}
		if pos < b.BankOff[bank] && b.BankOff[bank] < pos+n {
			n = b.BankOff[bank] - pos
		}

		speed := my.baseHz
		for ; i < b.Chips; i++ {
			if b.ChipOff[i] == 0 {
				continue
			}
			if b.ChipOff[i] >= pos+n {
				speed = chip.SpiSpeed(i)
				break
			}
		}

		if err := my.bus.Transfer(b.Write[pos:pos+n], b.Read[pos:pos+n], speed); err != nil {
			return fmt.Errorf("transfer %d bytes at %d: %w", n, pos, err)
		}
		my.Transfers.Add(1)
		siz -= n
		pos += n
	}

	my.didMx.Lock()
	my.lastDid = time.Now()
	my.didMx.Unlock()
	return nil
}

// LastDid is the end of the last complete transaction.
func (my *Pipeline) LastDid() time.Time {
	my.didMx.Lock()
	defer my.didMx.Unlock()
	return my.lastDid
}

// ClearLastDid lets the next scan start without waiting.
func (my *Pipeline) ClearLastDid() {
	my.didMx.Lock()
	defer my.didMx.Unlock()
	my.lastDid = time.Time{}
}

// IOLoop keeps the bus busy until ctx ends.
func (my *Pipeline) IOLoop(ctx context.Context) error {
	log.Debugf("SPI I/O loop started")
	msgs := 0
	fails := 0
	start := time.Now()
	for ctx.Err() == nil {
		t0 := time.Now()
		sent, err := my.Transmit()
		if !sent {
			if wait := time.Since(start); wait > my.timing.LongWait {
				if msgs%WAIT_MSG_EVERY == 0 {
					my.LongWaits.Add(1)
					log.Warnf("SPI waiting %v ...", wait.Round(time.Microsecond))
				}
				msgs++
			}
			util.SleepCtx(ctx, my.timing.IdleSleep)
			continue
		}

		if err != nil {
			fails++
			if fails%my.timing.FailEscalate == 0 {
				log.Errorf("SPI transfer failed %d times in a row: %v", fails, err)
			} else {
				log.Debugf("SPI transfer failed: %v", err)
			}
		} else {
			fails = 0
		}

		wait := time.Since(t0)
		if wait < my.timing.StdWait {
			util.SleepCtx(ctx, my.timing.StdWait-wait)
		} else if wait > my.timing.LongWait {
			log.Debugf("SPI waited %v", wait.Round(time.Microsecond))
		}
		start = time.Now()
		msgs = 0
	}
	log.Debugf("SPI I/O loop stopped")
	return nil
}
