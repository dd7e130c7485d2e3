//go:build !linux

package i2c

import "errors"

var errUnsupported = errors.New("i2c: i2c-dev is only available on linux")

// Bus is unavailable on this platform.
type Bus struct{}

func Open(path string) (*Bus, error) { return nil, errUnsupported }

func (b *Bus) Tx(addr uint16, w, r []byte) error { return errUnsupported }

func (b *Bus) Close() error { return nil }
