package asicio

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// PeriphSPI drives the chain through periph.io. The port is connected once,
// at the configured clock, and the per chunk speed is ignored.
type PeriphSPI struct {
	mx   sync.Mutex
	port spi.PortCloser
	conn spi.Conn
	hz   uint32
}

func OpenPeriph(name string, mode uint8, bits uint8, hz uint32) (*PeriphSPI, error) {
	if _, err := host.Init(); err != nil {
		return nil, err
	}
	port, err := spireg.Open(name)
	if err != nil {
		return nil, err
	}
	conn, err := port.Connect(physic.Frequency(hz)*physic.Hertz, spi.Mode(mode), int(bits))
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("%s: connect: %w", name, err)
	}
	return &PeriphSPI{port: port, conn: conn, hz: hz}, nil
}

func (my *PeriphSPI) Transfer(w []byte, r []byte, speedHz uint32) error {
	if len(w) != len(r) {
		return fmt.Errorf("periph: write %d bytes, read %d", len(w), len(r))
	}
	my.mx.Lock()
	defer my.mx.Unlock()
	return my.conn.Tx(w, r)
}

func (my *PeriphSPI) Close() error {
	my.mx.Lock()
	defer my.mx.Unlock()
	return my.port.Close()
}
