package schedule

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/rowjay/trv-scheduler/internal/eeprom"
)

// Store maps slot indexes to compressed anchor times held on a Device, one
// byte per slot starting at Params.BaseAddress.
//
// Every device access happens inside an exclusive section so no reader sees a
// slot array that another writer is halfway through updating.
type Store struct {
	mu  sync.Mutex
	dev eeprom.Device
	p   Params
	log zerolog.Logger
}

func NewStore(dev eeprom.Device, p Params, log zerolog.Logger) (*Store, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.BaseAddress+p.Slots > dev.Size() {
		return nil, fmt.Errorf("%d slots at base address %d do not fit in a %d byte device", p.Slots, p.BaseAddress, dev.Size())
	}
	return &Store{dev: dev, p: p, log: log.With().Str("component", "store").Logger()}, nil
}

func (s *Store) Params() Params { return s.p }

func (s *Store) exclusive(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.dev.(eeprom.Locker); ok {
		if err := l.Lock(); err != nil {
			return err
		}
		defer l.Unlock()
	}
	return fn()
}

// Anchor returns the stored minutes after midnight for slot. ok is false when
// the slot is out of range, unprogrammed, corrupt or unreadable.
func (s *Store) Anchor(slot int) (minutes int, ok bool) {
	if !s.p.validSlot(slot) {
		return 0, false
	}
	var v byte
	err := s.exclusive(func() error {
		var rerr error
		v, rerr = s.dev.Read(s.p.BaseAddress + slot)
		return rerr
	})
	if err != nil {
		s.log.Warn().Err(err).Int("slot", slot).Msg("slot unreadable, treating as unset")
		return 0, false
	}
	return s.p.decode(v)
}

// Set stores minutes, rounded down to the granularity, for slot. Rewriting
// the value already stored costs no write cycle.
func (s *Store) Set(slot, minutes int) error {
	if !s.p.validSlot(slot) {
		return fmt.Errorf("%w: %d", ErrInvalidSlot, slot)
	}
	if minutes < 0 || minutes >= MinutesPerDay {
		return fmt.Errorf("%w: %d", ErrInvalidTime, minutes)
	}
	v := byte(minutes / s.p.Granularity)
	if err := s.exclusive(func() error { return s.dev.Update(s.p.BaseAddress+slot, v) }); err != nil {
		return fmt.Errorf("write slot %d: %w", slot, err)
	}
	s.log.Info().Int("slot", slot).Int("minutes", int(v)*s.p.Granularity).Msg("schedule set")
	return nil
}

// Clear erases slot. An out-of-range slot is ignored.
func (s *Store) Clear(slot int) error {
	if !s.p.validSlot(slot) {
		return nil
	}
	if err := s.exclusive(func() error { return s.dev.Erase(s.p.BaseAddress + slot) }); err != nil {
		return fmt.Errorf("erase slot %d: %w", slot, err)
	}
	s.log.Info().Int("slot", slot).Msg("schedule cleared")
	return nil
}

// IsAnySet reports whether any slot holds a valid anchor.
func (s *Store) IsAnySet() bool {
	found := false
	err := s.exclusive(func() error {
		for slot := 0; slot < s.p.Slots; slot++ {
			v, rerr := s.dev.Read(s.p.BaseAddress + slot)
			if rerr != nil {
				s.log.Warn().Err(rerr).Int("slot", slot).Msg("slot unreadable, treating as unset")
				continue
			}
			if _, ok := s.p.decode(v); ok {
				found = true
				return nil
			}
		}
		return nil
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("slot scan failed")
		return false
	}
	return found
}

// Raw returns the slot bytes exactly as stored.
func (s *Store) Raw() ([]byte, error) {
	out := make([]byte, s.p.Slots)
	err := s.exclusive(func() error {
		for slot := range out {
			v, rerr := s.dev.Read(s.p.BaseAddress + slot)
			if rerr != nil {
				return fmt.Errorf("read slot %d: %w", slot, rerr)
			}
			out[slot] = v
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Load replaces every slot from image in one exclusive section. Bytes that
// do not decode to an anchor are stored as erased cells.
func (s *Store) Load(image []byte) error {
	if len(image) != s.p.Slots {
		return fmt.Errorf("image holds %d slots, store has %d", len(image), s.p.Slots)
	}
	err := s.exclusive(func() error {
		for slot, v := range image {
			addr := s.p.BaseAddress + slot
			var werr error
			if _, ok := s.p.decode(v); ok {
				werr = s.dev.Update(addr, v)
			} else {
				werr = s.dev.Erase(addr)
			}
			if werr != nil {
				return fmt.Errorf("load slot %d: %w", slot, werr)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.log.Info().Int("slots", len(image)).Msg("schedule image loaded")
	return nil
}
