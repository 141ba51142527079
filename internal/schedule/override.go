package schedule

// Override pins the engine's aggregate answers so time-dependent callers can
// be tested deterministically. The zero value runs the real computation.
type Override int

const (
	OverrideNone Override = iota
	OverrideOff
	OverrideSoon
	OverrideNow
)

func (o Override) String() string {
	switch o {
	case OverrideOff:
		return "off"
	case OverrideSoon:
		return "soon"
	case OverrideNow:
		return "now"
	default:
		return "none"
	}
}

// answers returns the fixed (anySet, activeNow, startingSoon) triple.
func (o Override) answers() (anySet, activeNow, startingSoon bool) {
	switch o {
	case OverrideSoon:
		return true, false, true
	case OverrideNow:
		return true, true, false
	default:
		return false, false, false
	}
}
