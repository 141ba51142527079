package eeprom

import "sync"

// Memory is an in-process device. It counts physical write and erase cycles
// so callers can observe wear.
type Memory struct {
	mu     sync.Mutex
	cells  []byte
	writes int
	erases int
}

// NewMemory returns a fully erased device of the given size.
func NewMemory(size int) *Memory {
	cells := make([]byte, size)
	for i := range cells {
		cells[i] = Unprogrammed
	}
	return &Memory{cells: cells}
}

// NewMemoryFrom returns a device preloaded with a copy of image.
// Preloading does not count as wear.
func NewMemoryFrom(image []byte) *Memory {
	cells := make([]byte, len(image))
	copy(cells, image)
	return &Memory{cells: cells}
}

func (m *Memory) Size() int { return len(m.cells) }

func (m *Memory) Read(addr int) (byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := checkAddr(addr, len(m.cells)); err != nil {
		return Unprogrammed, err
	}
	return m.cells[addr], nil
}

func (m *Memory) Update(addr int, v byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := checkAddr(addr, len(m.cells)); err != nil {
		return err
	}
	if m.cells[addr] == v {
		return nil
	}
	m.cells[addr] = v
	m.writes++
	return nil
}

func (m *Memory) Erase(addr int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := checkAddr(addr, len(m.cells)); err != nil {
		return err
	}
	if m.cells[addr] == Unprogrammed {
		return nil
	}
	m.cells[addr] = Unprogrammed
	m.erases++
	return nil
}

// Writes returns the number of physical write cycles performed.
func (m *Memory) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Erases returns the number of physical erase cycles performed.
func (m *Memory) Erases() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.erases
}

// Snapshot returns a copy of the raw cells.
func (m *Memory) Snapshot() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]byte, len(m.cells))
	copy(out, m.cells)
	return out
}
