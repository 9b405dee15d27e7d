// Package smbus is a wrapper around the periph.io library for I2C communication.
// It avoids using cgo, unsafe and syscalls.
package smbus

import (
	"errors"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

var ErrCmdMismatch = errors.New("ErrCmdMismatch")

// REQ_SIZE is the length of a board controller request and of its answer:
// command, data lsb, data msb.
const REQ_SIZE = 3

// SysIF is the system interface to the I2C bus.
type SysIF struct {
	BusFile string
	Bus     i2c.BusCloser
	i2cmu   *sync.Mutex
}

func New(busFile string) (*SysIF, error) {
	if _, err := host.Init(); err != nil {
		return nil, err
	}

	bus, err := i2creg.Open(busFile)
	if err != nil {
		return nil, err
	}
	return &SysIF{
		BusFile: busFile,
		Bus:     bus,
		i2cmu:   &sync.Mutex{},
	}, nil
}

// Close the I2C bus.
func (s *SysIF) Close() error {
	s.i2cmu.Lock()
	defer s.i2cmu.Unlock()
	return s.Bus.Close()
}

// periph.io addresses are 16 bits long, the controllers use 7 bit ones.

// WriteN writes the bytes as one message.
func (s *SysIF) WriteN(addr uint16, data []byte) error {
	s.i2cmu.Lock()
	defer s.i2cmu.Unlock()
	d := &i2c.Dev{Addr: addr, Bus: s.Bus}
	_, err := d.Write(data)
	return err
}

// ReadN reads n bytes as one message.
func (s *SysIF) ReadN(addr uint16, n int) ([]byte, error) {
	s.i2cmu.Lock()
	defer s.i2cmu.Unlock()
	d := &i2c.Dev{Addr: addr, Bus: s.Bus}
	read := make([]byte, n)
	if err := d.Tx(nil, read); err != nil {
		return nil, err
	}
	return read, nil
}

// Request sends a command with a 16 bit argument to a board controller and
// reads its 16 bit answer. The controller echoes the command first.
func (s *SysIF) Request(addr uint16, cmd uint8, data uint16) (uint16, error) {
	if err := s.WriteN(addr, EncodeRequest(cmd, data)); err != nil {
		return 0, fmt.Errorf("i2c 0x%02x cmd 0x%02x: %w", addr, cmd, err)
	}
	read, err := s.ReadN(addr, REQ_SIZE)
	if err != nil {
		return 0, fmt.Errorf("i2c 0x%02x cmd 0x%02x: %w", addr, cmd, err)
	}
	return DecodeAnswer(cmd, read)
}

func EncodeRequest(cmd uint8, data uint16) []byte {
	return []byte{cmd, uint8(data), uint8(data >> 8)}
}

func DecodeAnswer(cmd uint8, read []byte) (uint16, error) {
	if len(read) < REQ_SIZE {
		return 0, fmt.Errorf("short answer: %d bytes", len(read))
	}
	if read[0] != cmd {
		return 0, fmt.Errorf("%w: sent 0x%02x, got 0x%02x", ErrCmdMismatch, cmd, read[0])
	}
	return uint16(read[2])<<8 | uint16(read[1]), nil
}
