//go:build !linux
// +build !linux

package asicio

import "errors"

var ErrNoSpidev = errors.New("spidev is only available on linux")

type Spidev struct{}

func OpenSpidev(path string, mode uint8, bits uint8, maxHz uint32) (*Spidev, error) {
	return nil, ErrNoSpidev
}

func (my *Spidev) Transfer(w []byte, r []byte, speedHz uint32) error {
	return ErrNoSpidev
}

func (my *Spidev) Close() error {
	return nil
}
