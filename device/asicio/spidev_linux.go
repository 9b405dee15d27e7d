//go:build linux
// +build linux

package asicio

import (
	"fmt"
	"os"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	SPI_IOC_MESSAGE_1        = 0x40206b00
	SPI_IOC_WR_MODE          = 0x40016b01
	SPI_IOC_WR_BITS_PER_WORD = 0x40016b03
	SPI_IOC_WR_MAX_SPEED_HZ  = 0x40046b04
)

// spiIocTransfer is struct spi_ioc_transfer, 32 bytes.
type spiIocTransfer struct {
	txBuf       uint64
	rxBuf       uint64
	length      uint32
	speedHz     uint32
	delayUsecs  uint16
	bitsPerWord uint8
	csChange    uint8
	txNbits     uint8
	rxNbits     uint8
	wordDelay   uint8
	pad         uint8
}

// Spidev talks to a /dev/spidevB.C node with one ioctl per transfer so every
// chunk can carry its own clock.
type Spidev struct {
	mx   sync.Mutex
	f    *os.File
	bits uint8
}

func OpenSpidev(path string, mode uint8, bits uint8, maxHz uint32) (*Spidev, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	my := &Spidev{f: f, bits: bits}
	if err := my.ioctl(SPI_IOC_WR_MODE, unsafe.Pointer(&mode)); err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: set mode %d: %w", path, mode, err)
	}
	if err := my.ioctl(SPI_IOC_WR_BITS_PER_WORD, unsafe.Pointer(&bits)); err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: set bits %d: %w", path, bits, err)
	}
	if err := my.ioctl(SPI_IOC_WR_MAX_SPEED_HZ, unsafe.Pointer(&maxHz)); err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: set speed %d: %w", path, maxHz, err)
	}
	return my, nil
}

func (my *Spidev) ioctl(req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, my.f.Fd(), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

func (my *Spidev) Transfer(w []byte, r []byte, speedHz uint32) error {
	if len(w) != len(r) {
		return fmt.Errorf("spidev: write %d bytes, read %d", len(w), len(r))
	}
	if len(w) == 0 {
		return nil
	}
	my.mx.Lock()
	defer my.mx.Unlock()
	tr := spiIocTransfer{
		txBuf:       uint64(uintptr(unsafe.Pointer(&w[0]))),
		rxBuf:       uint64(uintptr(unsafe.Pointer(&r[0]))),
		length:      uint32(len(w)),
		speedHz:     speedHz,
		bitsPerWord: my.bits,
	}
	return my.ioctl(SPI_IOC_MESSAGE_1, unsafe.Pointer(&tr))
}

func (my *Spidev) Close() error {
	my.mx.Lock()
	defer my.mx.Unlock()
	return my.f.Close()
}
