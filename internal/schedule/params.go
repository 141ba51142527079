package schedule

import (
	"errors"
	"fmt"

	"github.com/rowjay/trv-scheduler/internal/eeprom"
)

const MinutesPerDay = 24 * 60

var (
	ErrInvalidSlot = errors.New("schedule: invalid slot")
	ErrInvalidTime = errors.New("schedule: invalid time of day")
)

// Params fixes the shape of the slot array and the derived pre-warm offsets.
// They are computed once at startup and never change for the life of a Store.
type Params struct {
	Slots       int
	Granularity int
	BaseAddress int
	PreWarm     int
	PrePreWarm  int
}

// NewParams derives the pre-warm offsets from the base on-duration:
// preWarm = max(minPreWarm, granularity + base/2), prePreWarm = 3*preWarm/2.
func NewParams(slots, granularity, baseAddress, minPreWarm, baseOnDuration int) (Params, error) {
	preWarm := max(minPreWarm, granularity+baseOnDuration/2)
	p := Params{
		Slots:       slots,
		Granularity: granularity,
		BaseAddress: baseAddress,
		PreWarm:     preWarm,
		PrePreWarm:  3 * preWarm / 2,
	}
	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}

// DefaultParams is two slots at six-minute resolution with a 60 minute base
// on-duration, giving a 36 minute pre-warm and a 54 minute look-ahead.
func DefaultParams() Params {
	p, _ := NewParams(2, 6, 0, 30, 60)
	return p
}

// MaxCompressed is the largest stored byte that decodes to a valid anchor.
func (p Params) MaxCompressed() int {
	return MinutesPerDay/p.Granularity - 1
}

func (p Params) Validate() error {
	if p.Slots <= 0 {
		return fmt.Errorf("slot count must be positive, got %d", p.Slots)
	}
	if p.Granularity <= 0 || MinutesPerDay%p.Granularity != 0 {
		return fmt.Errorf("granularity %d must divide %d", p.Granularity, MinutesPerDay)
	}
	if p.MaxCompressed() >= int(eeprom.Unprogrammed) {
		return fmt.Errorf("granularity %d too fine to encode in one byte", p.Granularity)
	}
	if p.BaseAddress < 0 {
		return fmt.Errorf("base address must not be negative, got %d", p.BaseAddress)
	}
	if p.PreWarm < 0 || p.PreWarm >= MinutesPerDay {
		return fmt.Errorf("pre-warm %d out of range", p.PreWarm)
	}
	if p.PrePreWarm < p.PreWarm || p.PrePreWarm >= MinutesPerDay {
		return fmt.Errorf("pre-pre-warm %d must be at least pre-warm %d and under a day", p.PrePreWarm, p.PreWarm)
	}
	return nil
}

func (p Params) validSlot(slot int) bool {
	return slot >= 0 && slot < p.Slots
}

func (p Params) decode(v byte) (int, bool) {
	if int(v) > p.MaxCompressed() {
		return 0, false
	}
	return int(v) * p.Granularity, true
}
