package schedule

// Policy supplies the values the calculator reads at call time.
type Policy interface {
	// OnDuration is the warm period after the anchor, in minutes.
	OnDuration() int
	// MinutesSinceMidnight is the local time of day in [0, MinutesPerDay).
	MinutesSinceMidnight() int
}

// Window is one slot's effective warm interval in minutes after midnight.
// Off is less than On when the window wraps past midnight.
type Window struct {
	Slot   int
	Anchor int
	On     int
	Off    int
}

// Wraps reports whether the window crosses midnight.
func (w Window) Wraps() bool { return w.Off < w.On }

// Contains reports whether the time of day now falls in [On, Off).
// A zero-length window contains nothing.
func (w Window) Contains(now int) bool {
	if w.Off == w.On {
		return false
	}
	if w.Wraps() {
		return now >= w.On || now < w.Off
	}
	return now >= w.On && now < w.Off
}

// Calculator derives effective on and off times from stored anchors.
type Calculator struct {
	store  *Store
	policy Policy
}

func NewCalculator(store *Store, policy Policy) *Calculator {
	return &Calculator{store: store, policy: policy}
}

// OnTime is the anchor wound back by the pre-warm offset so the room reaches
// its target by the anchor time. ok is false if the slot is unset.
func (c *Calculator) OnTime(slot int) (int, bool) {
	anchor, ok := c.store.Anchor(slot)
	if !ok {
		return 0, false
	}
	return c.on(anchor), true
}

// OffTime is the on time plus pre-warm plus the current on-duration.
func (c *Calculator) OffTime(slot int) (int, bool) {
	on, ok := c.OnTime(slot)
	if !ok {
		return 0, false
	}
	return c.off(on, c.policy.OnDuration()), true
}

// Window reads the anchor once and derives both ends from it.
func (c *Calculator) Window(slot int) (Window, bool) {
	anchor, ok := c.store.Anchor(slot)
	if !ok {
		return Window{}, false
	}
	on := c.on(anchor)
	return Window{Slot: slot, Anchor: anchor, On: on, Off: c.off(on, c.policy.OnDuration())}, true
}

func (c *Calculator) on(anchor int) int {
	preWarm := c.store.p.PreWarm
	if preWarm > anchor {
		anchor += MinutesPerDay
	}
	return anchor - preWarm
}

func (c *Calculator) off(on, duration int) int {
	if duration < 0 {
		duration = 0
	}
	return (on + c.store.p.PreWarm + duration) % MinutesPerDay
}
