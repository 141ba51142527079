package eeprom

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rowjay/trv-scheduler/internal/config"
	"github.com/rowjay/trv-scheduler/internal/lock"
)

// File is a device backed by an EEPROM image on disk. Bytes past the end of
// a short image read as Unprogrammed. Cross-process exclusion uses an
// advisory lock on <path>.lock.
type File struct {
	mu   sync.Mutex
	f    *os.File
	size int
	lock *lock.Lock
}

// OpenFile opens the image at path, creating an erased image of size bytes
// when it does not exist yet.
func OpenFile(path string, size int) (*File, error) {
	if size <= 0 {
		return nil, fmt.Errorf("eeprom: invalid image size %d", size)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create image directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0o600)
	if errors.Is(err, os.ErrNotExist) {
		f, err = createErased(path, size)
	}
	if err != nil {
		return nil, err
	}
	if err := padErased(f, size); err != nil {
		f.Close()
		return nil, err
	}
	return &File{f: f, size: size, lock: lock.New(config.DeviceLockPath(path))}, nil
}

// padErased extends a short image with erased cells so a later WriteAt never
// leaves a zero-filled gap that would decode as a valid midnight anchor.
func padErased(f *os.File, size int) error {
	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.Size() >= int64(size) {
		return nil
	}
	pad := make([]byte, int64(size)-info.Size())
	for i := range pad {
		pad[i] = Unprogrammed
	}
	if _, err := f.WriteAt(pad, info.Size()); err != nil {
		return fmt.Errorf("pad image: %w", err)
	}
	return f.Sync()
}

func createErased(path string, size int) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	blank := make([]byte, size)
	for i := range blank {
		blank[i] = Unprogrammed
	}
	if _, err := f.Write(blank); err != nil {
		f.Close()
		return nil, fmt.Errorf("initialise image: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func (d *File) Size() int { return d.size }

func (d *File) Read(addr int) (byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := checkAddr(addr, d.size); err != nil {
		return Unprogrammed, err
	}
	return d.read(addr)
}

func (d *File) read(addr int) (byte, error) {
	buf := []byte{Unprogrammed}
	if _, err := d.f.ReadAt(buf, int64(addr)); err != nil {
		if errors.Is(err, io.EOF) {
			return Unprogrammed, nil
		}
		return Unprogrammed, err
	}
	return buf[0], nil
}

func (d *File) Update(addr int, v byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := checkAddr(addr, d.size); err != nil {
		return err
	}
	return d.put(addr, v)
}

func (d *File) Erase(addr int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := checkAddr(addr, d.size); err != nil {
		return err
	}
	return d.put(addr, Unprogrammed)
}

func (d *File) put(addr int, v byte) error {
	current, err := d.read(addr)
	if err != nil {
		return err
	}
	if current == v {
		return nil
	}
	if _, err := d.f.WriteAt([]byte{v}, int64(addr)); err != nil {
		return err
	}
	return d.f.Sync()
}

// Lock takes the cross-process lock for the image.
func (d *File) Lock() error { return d.lock.Lock() }

// Unlock releases the cross-process lock.
func (d *File) Unlock() error { return d.lock.Unlock() }

func (d *File) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.f.Close()
}
