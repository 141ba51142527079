package schedule

import (
	"bytes"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/rowjay/trv-scheduler/internal/eeprom"
)

func newTestStore(t *testing.T, p Params) (*Store, *eeprom.Memory) {
	t.Helper()
	dev := eeprom.NewMemory(p.BaseAddress + p.Slots + 8)
	store, err := NewStore(dev, p, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return store, dev
}

func TestStoreFreshDeviceIsUnset(t *testing.T) {
	store, _ := newTestStore(t, DefaultParams())
	for slot := 0; slot < store.Params().Slots; slot++ {
		if _, ok := store.Anchor(slot); ok {
			t.Fatalf("slot %d: expected unset on erased device", slot)
		}
	}
	if store.IsAnySet() {
		t.Fatalf("expected no schedule on erased device")
	}
}

func TestStoreSetRoundsDownToGranularity(t *testing.T) {
	p := DefaultParams()
	store, _ := newTestStore(t, p)
	for slot := 0; slot < p.Slots; slot++ {
		for m := 0; m < MinutesPerDay; m++ {
			if err := store.Set(slot, m); err != nil {
				t.Fatalf("set(%d, %d): %v", slot, m, err)
			}
			got, ok := store.Anchor(slot)
			if !ok {
				t.Fatalf("slot %d: expected anchor after set(%d)", slot, m)
			}
			if want := m / p.Granularity * p.Granularity; got != want {
				t.Fatalf("slot %d: set(%d) read back %d, want %d", slot, m, got, want)
			}
		}
	}
}

func TestStoreSetSameValueSkipsWrite(t *testing.T) {
	store, dev := newTestStore(t, DefaultParams())
	if err := store.Set(0, 420); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 423 rounds to the same stored byte as 420.
	for _, m := range []int{420, 423, 420} {
		if err := store.Set(0, m); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if dev.Writes() != 1 {
		t.Fatalf("expected 1 physical write, got %d", dev.Writes())
	}
}

func TestStoreClearIsIdempotent(t *testing.T) {
	store, dev := newTestStore(t, DefaultParams())
	if err := store.Set(1, 600); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := store.Clear(1); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if _, ok := store.Anchor(1); ok {
		t.Fatalf("expected slot 1 unset after clear")
	}
	if store.IsAnySet() {
		t.Fatalf("expected no schedule after clear")
	}
	if dev.Erases() != 1 {
		t.Fatalf("expected 1 physical erase, got %d", dev.Erases())
	}
}

func TestStoreRejectsInvalidSlot(t *testing.T) {
	p := DefaultParams()
	store, dev := newTestStore(t, p)
	before := dev.Snapshot()

	for _, slot := range []int{-1, p.Slots, p.Slots + 10} {
		err := store.Set(slot, 100)
		if !errors.Is(err, ErrInvalidSlot) {
			t.Fatalf("slot %d: expected ErrInvalidSlot, got %v", slot, err)
		}
		if _, ok := store.Anchor(slot); ok {
			t.Fatalf("slot %d: expected no anchor", slot)
		}
		if err := store.Clear(slot); err != nil {
			t.Fatalf("slot %d: clear should be a no-op, got %v", slot, err)
		}
	}
	if !bytes.Equal(before, dev.Snapshot()) {
		t.Fatalf("device changed after rejected operations")
	}
	if dev.Writes() != 0 || dev.Erases() != 0 {
		t.Fatalf("expected no wear, got %d writes %d erases", dev.Writes(), dev.Erases())
	}
}

func TestStoreRejectsInvalidTime(t *testing.T) {
	store, dev := newTestStore(t, DefaultParams())
	if err := store.Set(0, 300); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	before := dev.Snapshot()
	for _, m := range []int{MinutesPerDay, MinutesPerDay + 1, -1} {
		if err := store.Set(0, m); !errors.Is(err, ErrInvalidTime) {
			t.Fatalf("set(0, %d): expected ErrInvalidTime, got %v", m, err)
		}
	}
	if !bytes.Equal(before, dev.Snapshot()) {
		t.Fatalf("device changed after rejected time")
	}
	if got, _ := store.Anchor(0); got != 300 {
		t.Fatalf("expected prior anchor 300 to survive, got %d", got)
	}
}

func TestStoreCorruptByteReadsUnset(t *testing.T) {
	p := DefaultParams()
	image := bytes.Repeat([]byte{eeprom.Unprogrammed}, 8)
	image[0] = byte(p.MaxCompressed() + 1)
	image[1] = byte(p.MaxCompressed())
	store, err := NewStore(eeprom.NewMemoryFrom(image), p, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := store.Anchor(0); ok {
		t.Fatalf("expected out-of-range byte to read as unset")
	}
	got, ok := store.Anchor(1)
	if !ok || got != MinutesPerDay-p.Granularity {
		t.Fatalf("expected last valid anchor %d, got %d (ok=%v)", MinutesPerDay-p.Granularity, got, ok)
	}
	if !store.IsAnySet() {
		t.Fatalf("expected slot 1 to count as set")
	}
}

func TestStoreHonoursBaseAddress(t *testing.T) {
	p := DefaultParams()
	p.BaseAddress = 4
	store, dev := newTestStore(t, p)
	if err := store.Set(1, 60); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	raw := dev.Snapshot()
	if raw[5] != byte(60/p.Granularity) {
		t.Fatalf("expected slot 1 at address 5, image %v", raw)
	}
	for i, v := range raw {
		if i != 5 && v != eeprom.Unprogrammed {
			t.Fatalf("unexpected write at address %d", i)
		}
	}
}

func TestNewStoreRejectsLayoutPastDevice(t *testing.T) {
	p := DefaultParams()
	p.BaseAddress = 7
	if _, err := NewStore(eeprom.NewMemory(8), p, zerolog.Nop()); err == nil {
		t.Fatalf("expected layout error")
	}
}

func TestStoreRawAndLoad(t *testing.T) {
	p := DefaultParams()
	store, dev := newTestStore(t, p)
	if err := store.Set(0, 390); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	raw, err := store.Raw()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(raw) != p.Slots || raw[0] != byte(390/p.Granularity) || raw[1] != eeprom.Unprogrammed {
		t.Fatalf("unexpected raw image %v", raw)
	}

	if err := store.Load([]byte{eeprom.Unprogrammed, 200}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := store.Anchor(0); ok {
		t.Fatalf("expected slot 0 cleared by load")
	}
	if got, _ := store.Anchor(1); got != 200*p.Granularity {
		t.Fatalf("expected slot 1 anchor %d, got %d", 200*p.Granularity, got)
	}
	writes, erases := dev.Writes(), dev.Erases()
	if err := store.Load([]byte{eeprom.Unprogrammed, 200}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dev.Writes() != writes || dev.Erases() != erases {
		t.Fatalf("reloading the same image should cost no wear")
	}
	if err := store.Load([]byte{1}); err == nil {
		t.Fatalf("expected error for short image")
	}
}
