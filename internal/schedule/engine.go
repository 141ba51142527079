package schedule

import "github.com/rs/zerolog"

// Engine answers aggregate questions across every slot.
type Engine struct {
	*Calculator
	override Override
	log      zerolog.Logger
}

type Option func(*Engine)

// WithOverride replaces the engine's answers with the fixed truth table of o.
func WithOverride(o Override) Option {
	return func(e *Engine) { e.override = o }
}

func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) { e.log = log.With().Str("component", "engine").Logger() }
}

func NewEngine(store *Store, policy Policy, opts ...Option) *Engine {
	e := &Engine{Calculator: NewCalculator(store, policy), log: zerolog.Nop()}
	for _, opt := range opts {
		opt(e)
	}
	if e.override != OverrideNone {
		e.log.Debug().Stringer("override", e.override).Msg("schedule answers overridden")
	}
	return e
}

// IsAnySet reports whether any slot holds a schedule.
func (e *Engine) IsAnySet() bool {
	if e.override != OverrideNone {
		set, _, _ := e.override.answers()
		return set
	}
	return e.store.IsAnySet()
}

// IsAnyActiveNow reports whether any warm window contains the current time,
// even when windows overlap.
func (e *Engine) IsAnyActiveNow() bool {
	if e.override != OverrideNone {
		_, now, _ := e.override.answers()
		return now
	}
	return e.anyActiveAt(e.policy.MinutesSinceMidnight())
}

// IsAnyStartingSoon reports whether a warm window will contain the time
// PrePreWarm minutes from now, so a set-back can be lifted early.
func (e *Engine) IsAnyStartingSoon() bool {
	if e.override != OverrideNone {
		_, _, soon := e.override.answers()
		return soon
	}
	return e.anyActiveAt(e.lookahead(e.policy.MinutesSinceMidnight()))
}

func (e *Engine) lookahead(now int) int {
	return (now + e.store.p.PrePreWarm) % MinutesPerDay
}

func (e *Engine) anyActiveAt(now int) bool {
	for slot := 0; slot < e.store.p.Slots; slot++ {
		w, ok := e.Window(slot)
		if !ok {
			continue
		}
		if w.Contains(now) {
			return true
		}
	}
	return false
}

// ActiveSlots lists every slot whose window contains now. Order is slot
// order; no slot takes priority over another.
func (e *Engine) ActiveSlots(now int) []int {
	var slots []int
	for slot := 0; slot < e.store.p.Slots; slot++ {
		if w, ok := e.Window(slot); ok && w.Contains(now) {
			slots = append(slots, slot)
		}
	}
	return slots
}

type SlotStatus struct {
	Slot   int
	Set    bool
	Window Window
	Active bool
	Soon   bool
}

// Status is a point-in-time report of every slot and the aggregate answers.
type Status struct {
	Now          int
	OnDuration   int
	PreWarm      int
	PrePreWarm   int
	Override     Override
	Slots        []SlotStatus
	AnySet       bool
	ActiveNow    bool
	StartingSoon bool
}

func (e *Engine) Status() Status {
	now := e.policy.MinutesSinceMidnight()
	ahead := e.lookahead(now)
	st := Status{
		Now:        now,
		OnDuration: e.policy.OnDuration(),
		PreWarm:    e.store.p.PreWarm,
		PrePreWarm: e.store.p.PrePreWarm,
		Override:   e.override,
		Slots:      make([]SlotStatus, 0, e.store.p.Slots),
	}
	for slot := 0; slot < e.store.p.Slots; slot++ {
		w, ok := e.Window(slot)
		ss := SlotStatus{Slot: slot, Set: ok}
		if ok {
			ss.Window = w
			ss.Active = w.Contains(now)
			ss.Soon = w.Contains(ahead)
		}
		st.Slots = append(st.Slots, ss)
	}
	if e.override != OverrideNone {
		st.AnySet, st.ActiveNow, st.StartingSoon = e.override.answers()
		return st
	}
	for _, ss := range st.Slots {
		st.AnySet = st.AnySet || ss.Set
		st.ActiveNow = st.ActiveNow || ss.Active
		st.StartingSoon = st.StartingSoon || ss.Soon
	}
	return st
}
