//go:build linux

package i2c

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// ioctl request that selects the target address for subsequent reads and writes.
const i2cSlave = 0x0703

// Bus is an open i2c-dev character device. Tx is serialized so the heater
// loop and the main loop can share one bus.
type Bus struct {
	mu   sync.Mutex
	path string
	fd   int
	addr int
}

// Open opens the i2c-dev device at path.
func Open(path string) (*Bus, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &Bus{path: path, fd: fd, addr: -1}, nil
}

// Tx writes w to the device at addr and then reads len(r) bytes into r.
func (b *Bus) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.fd < 0 {
		return ErrClosed
	}
	if int(addr) != b.addr {
		if err := unix.IoctlSetInt(b.fd, i2cSlave, int(addr)); err != nil {
			return fmt.Errorf("%s: select 0x%02x: %w", b.path, addr, err)
		}
		b.addr = int(addr)
	}
	if len(w) > 0 {
		n, err := unix.Write(b.fd, w)
		if err != nil {
			return fmt.Errorf("%s: write 0x%02x: %w", b.path, addr, err)
		}
		if n != len(w) {
			return fmt.Errorf("%s: short write 0x%02x: %d of %d", b.path, addr, n, len(w))
		}
	}
	if len(r) > 0 {
		n, err := unix.Read(b.fd, r)
		if err != nil {
			return fmt.Errorf("%s: read 0x%02x: %w", b.path, addr, err)
		}
		if n != len(r) {
			return fmt.Errorf("%s: short read 0x%02x: %d of %d", b.path, addr, n, len(r))
		}
	}
	return nil
}

// Close releases the device. Further Tx calls return ErrClosed.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fd < 0 {
		return nil
	}
	err := unix.Close(b.fd)
	b.fd = -1
	return err
}
