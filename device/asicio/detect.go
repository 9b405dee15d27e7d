package asicio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"syscall"

	"bab_miner/device/chip"
	"bab_miner/log"
)

var ErrPipelineBusy = errors.New("ErrPipelineBusy")

// Detect walks chips[first:last] of one bank. Each chip is configured in
// turn with everything upstream passing the stream through, then the test
// work goes to all of them at once. It returns one past the last chip whose
// reply carries any nonce, first when none answered.
//
// Both buffers must be idle. They are held for the whole run.
func (my *Pipeline) Detect(chips []*chip.Chip, bank int, first int, last int) (int, error) {
	if last > len(chips) {
		last = len(chips)
	}
	if last > MAX_CHIPS {
		last = MAX_CHIPS
	}
	if first < 0 || first >= last {
		return first, fmt.Errorf("%w: %d-%d", ErrNoChips, first, last)
	}
	if err := my.holdAll(); err != nil {
		return first, err
	}
	defer my.releaseAll()

	b := my.bufs[0]
	prev := make([]int, 0, last-first)
	for i := first; i < last; i++ {
		b.buildDetectStep(chips[i], prev)
		if err := b.Err(); err != nil {
			return first, err
		}
		if err := my.txrx(b); err != nil {
			return first, fmt.Errorf("configure chip %d: %w", i, err)
		}
		prev = append(prev, i)
	}

	b = my.bufs[1]
	b.buildDetectAll(bank, first, last)
	if err := b.Err(); err != nil {
		return first, err
	}
	if err := my.txrx(b); err != nil {
		// the chain may simply end before last
		if !errors.Is(err, syscall.ETIMEDOUT) {
			return first, err
		}
		log.Debugf("Detect bank %d: %v", bank, err)
	}

	found := first
	for i := first; i < last; i++ {
		off := b.ChipOff[i]
		for j := 0; j < chip.REPLY_NONCES; j++ {
			v := binary.LittleEndian.Uint32(b.Read[off+j*4:])
			if v != chip.NONCE_EMPTY && v != chip.NONCE_ZEROED {
				found = i + 1
				break
			}
		}
	}
	log.Debugf("Detect bank %d chips %d-%d: found %d", bank, first, last, found-first)
	return found, nil
}

// holdAll takes both buffers away from the scan and I/O loops.
func (my *Pipeline) holdAll() error {
	my.mx.Lock()
	defer my.mx.Unlock()
	for i, b := range my.bufs {
		if b.state != STATE_DONE {
			return fmt.Errorf("%w: buffer %d is %s", ErrPipelineBusy, i, StateName(b.state))
		}
	}
	for _, b := range my.bufs {
		b.state = STATE_READING
	}
	return nil
}

func (my *Pipeline) releaseAll() {
	my.mx.Lock()
	defer my.mx.Unlock()
	for _, b := range my.bufs {
		b.reset()
		b.state = STATE_DONE
	}
}
