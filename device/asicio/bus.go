package asicio

import (
	"fmt"
	"sync"
)

// Bus is a full duplex SPI transfer. r receives len(w) bytes clocked at
// speedHz.
type Bus interface {
	Transfer(w []byte, r []byte, speedHz uint32) error
	Close() error
}

type Transfer struct {
	Write   []byte
	Read    []byte
	SpeedHz uint32
}

// Loopback stands in for the chain on a bench without hardware. By default
// it echoes the write side back. OnTransfer, when set, produces the read
// side instead.
type Loopback struct {
	mx         sync.Mutex
	transfers  []Transfer
	Keep       bool
	OnTransfer func(w []byte, r []byte, speedHz uint32) error
	closed     bool
}

func NewLoopback(keep bool) *Loopback {
	return &Loopback{Keep: keep}
}

func (my *Loopback) Transfer(w []byte, r []byte, speedHz uint32) error {
	if len(w) != len(r) {
		return fmt.Errorf("loopback: write %d bytes, read %d", len(w), len(r))
	}
	my.mx.Lock()
	defer my.mx.Unlock()
	if my.closed {
		return fmt.Errorf("loopback: closed")
	}
	if my.OnTransfer != nil {
		if err := my.OnTransfer(w, r, speedHz); err != nil {
			return err
		}
	} else {
		copy(r, w)
	}
	if my.Keep {
		my.transfers = append(my.transfers, Transfer{
			Write:   append([]byte(nil), w...),
			Read:    append([]byte(nil), r...),
			SpeedHz: speedHz,
		})
	}
	return nil
}

// Transfers returns what was kept since the last Reset.
func (my *Loopback) Transfers() []Transfer {
	my.mx.Lock()
	defer my.mx.Unlock()
	return append([]Transfer(nil), my.transfers...)
}

func (my *Loopback) Reset() {
	my.mx.Lock()
	defer my.mx.Unlock()
	my.transfers = nil
}

func (my *Loopback) Close() error {
	my.mx.Lock()
	defer my.mx.Unlock()
	my.closed = true
	return nil
}
