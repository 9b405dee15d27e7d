//go:build !linux
// +build !linux

package powerstate

import "errors"

var ErrNoGpiod = errors.New("gpiod is only available on linux")

type Gpiod struct{}

func NewGpiod(name string, pins Pins) (*Gpiod, error) {
	return nil, ErrNoGpiod
}

func (my *Gpiod) Reset(bank int, times int) error {
	return ErrNoGpiod
}

func (my *Gpiod) Close() error {
	return nil
}
