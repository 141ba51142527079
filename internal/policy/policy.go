// Package policy supplies the on-duration and the local time of day that the
// schedule engine evaluates windows against.
package policy

import (
	"fmt"
	"time"

	"github.com/rowjay/trv-scheduler/internal/config"
)

const minutesPerDay = 24 * 60

// Strategy picks the on-duration, in minutes, for the current conditions.
type Strategy interface {
	OnDuration() int
}

// Fixed always returns Minutes.
type Fixed struct {
	Minutes int
}

func (f Fixed) OnDuration() int { return f.Minutes }

// EcoBiasProvider reports whether the controller currently leans towards saving energy.
type EcoBiasProvider interface {
	HasEcoBias() bool
}

// StaticEcoBias is an EcoBiasProvider with a constant answer.
type StaticEcoBias bool

func (b StaticEcoBias) HasEcoBias() bool { return bool(b) }

// Binary chooses between the eco and comfort durations.
type Binary struct {
	Eco     int
	Comfort int
	Bias    EcoBiasProvider
}

func (b Binary) OnDuration() int {
	if b.Bias == nil || b.Bias.HasEcoBias() {
		return b.Eco
	}
	return b.Comfort
}

// TargetProvider reports the current WARM target temperature in whole degrees C.
type TargetProvider interface {
	WarmTargetC() int
}

// StaticTarget is a TargetProvider with a constant answer.
type StaticTarget int

func (t StaticTarget) WarmTargetC() int { return int(t) }

// Band is the classification of a WARM target temperature.
type Band int

const (
	BandEco Band = iota
	BandNeutral
	BandComfort
)

func (b Band) String() string {
	switch b {
	case BandEco:
		return "eco"
	case BandComfort:
		return "comfort"
	default:
		return "neutral"
	}
}

// ThreeWay maps the WARM target onto eco, comfort or the mean of the two
// durations so moving the dial changes behaviour gradually.
type ThreeWay struct {
	Eco         int
	Comfort     int
	EcoMaxC     int
	ComfortMinC int
	Target      TargetProvider
}

// Classify places a target temperature in a band.
func (t ThreeWay) Classify(c int) Band {
	switch {
	case c <= t.EcoMaxC:
		return BandEco
	case c >= t.ComfortMinC:
		return BandComfort
	default:
		return BandNeutral
	}
}

func (t ThreeWay) OnDuration() int {
	if t.Target == nil {
		return (t.Eco + t.Comfort) / 2
	}
	switch t.Classify(t.Target.WarmTargetC()) {
	case BandEco:
		return t.Eco
	case BandComfort:
		return t.Comfort
	default:
		return (t.Eco + t.Comfort) / 2
	}
}

// Source combines a duration strategy with a clock read in a fixed location.
type Source struct {
	strategy Strategy
	clock    Clock
	loc      *time.Location
}

// New returns a Source. A nil loc means the clock's own location.
func New(strategy Strategy, clock Clock, loc *time.Location) *Source {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Source{strategy: strategy, clock: clock, loc: loc}
}

// OnDuration is never negative.
func (s *Source) OnDuration() int {
	d := s.strategy.OnDuration()
	if d < 0 {
		return 0
	}
	return d
}

// MinutesSinceMidnight returns the local time of day in [0, 1440).
func (s *Source) MinutesSinceMidnight() int {
	now := s.clock.Now()
	if s.loc != nil {
		now = now.In(s.loc)
	}
	return (now.Hour()*60 + now.Minute()) % minutesPerDay
}

// FromConfig builds the strategy selected by cfg.Strategy.
func FromConfig(cfg config.PolicyConfig, timezone string, clock Clock) (*Source, error) {
	var loc *time.Location
	if timezone != "" {
		var err error
		loc, err = time.LoadLocation(timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid timezone: %w", err)
		}
	}
	var strategy Strategy
	switch cfg.Strategy {
	case "fixed":
		strategy = Fixed{Minutes: cfg.EcoMinutes}
	case "binary":
		strategy = Binary{Eco: cfg.EcoMinutes, Comfort: cfg.ComfortMinutes, Bias: StaticEcoBias(cfg.EcoBias)}
	case "threeway", "":
		strategy = ThreeWay{
			Eco:         cfg.EcoMinutes,
			Comfort:     cfg.ComfortMinutes,
			EcoMaxC:     cfg.EcoMaxC,
			ComfortMinC: cfg.ComfortMinC,
			Target:      StaticTarget(cfg.TargetC),
		}
	default:
		return nil, fmt.Errorf("unsupported policy strategy: %s", cfg.Strategy)
	}
	return New(strategy, clock, loc), nil
}
