// Package eeprom models the byte-addressable non-volatile store that holds
// the persisted schedule slots.
//
// Writes and erases are wear-minimizing: a device skips the physical cycle
// when the cell already holds the requested value.
package eeprom

import (
	"errors"
	"fmt"
)

// Unprogrammed is the value of an erased cell.
const Unprogrammed byte = 0xFF

// ErrOutOfRange is returned for an address outside the device.
var ErrOutOfRange = errors.New("eeprom: address out of range")

// Device is a byte-addressable persistent store.
type Device interface {
	Read(addr int) (byte, error)
	// Update writes v only if the stored value differs.
	Update(addr int, v byte) error
	// Erase restores Unprogrammed, skipping cells that are already erased.
	Erase(addr int) error
	Size() int
}

// Locker is implemented by devices that can be shared between processes and
// need an exclusive section around multi-cell access.
type Locker interface {
	Lock() error
	Unlock() error
}

func checkAddr(addr, size int) error {
	if addr < 0 || addr >= size {
		return fmt.Errorf("%w: %d (size %d)", ErrOutOfRange, addr, size)
	}
	return nil
}
