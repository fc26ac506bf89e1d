package mibi

import (
	"fmt"
	"math"
	"strconv"
)

// Channel identifies one plane of an Image by the target it was stained for
// and, when known, the mass of its label.
type Channel struct {
	Target string
	// Mass is nil when the channel has no associated mass
	Mass *float64
}

// NewChannel returns a channel with a mass.
func NewChannel(target string, mass float64) Channel {
	return Channel{Target: target, Mass: &mass}
}

func (c Channel) HasMass() bool {
	return c.Mass != nil
}

func (c Channel) validate() error {
	if c.Target == "" {
		return fmt.Errorf("%w: empty channel target", ErrValidation)
	}
	if c.Mass != nil && (!(*c.Mass > 0) || math.IsInf(*c.Mass, 0)) {
		return fmt.Errorf("%w: channel %q has mass %v, must be positive", ErrValidation, c.Target, *c.Mass)
	}
	return nil
}

func (c Channel) clone() Channel {
	if c.Mass == nil {
		return Channel{Target: c.Target}
	}
	mass := *c.Mass
	return Channel{Target: c.Target, Mass: &mass}
}

func (c Channel) Equal(other Channel) bool {
	if c.Target != other.Target || (c.Mass == nil) != (other.Mass == nil) {
		return false
	}
	return c.Mass == nil || *c.Mass == *other.Mass
}

func (c Channel) String() string {
	if c.Mass == nil {
		return c.Target
	}
	return fmt.Sprintf("%s (%s)", c.Target, strconv.FormatFloat(*c.Mass, 'g', -1, 64))
}

// SelectorKind says which channel attribute a Selector matches on.
type SelectorKind int

const (
	ByTarget SelectorKind = iota + 1
	ByMass
	ByIndex
)

// Selector picks one channel of an Image. Build one with Target, Mass or
// Index.
type Selector struct {
	Kind   SelectorKind
	Target string
	Mass   float64
	Index  int
}

// Target selects the channel whose target is exactly name.
func Target(name string) Selector {
	return Selector{Kind: ByTarget, Target: name}
}

// Mass selects the channel whose mass is exactly mass.
func Mass(mass float64) Selector {
	return Selector{Kind: ByMass, Mass: mass}
}

// Index selects the channel at position i.
func Index(i int) Selector {
	return Selector{Kind: ByIndex, Index: i}
}

// Targets is shorthand for selecting several channels by target.
func Targets(names ...string) []Selector {
	selectors := make([]Selector, len(names))
	for i, name := range names {
		selectors[i] = Target(name)
	}
	return selectors
}

func (s Selector) String() string {
	switch s.Kind {
	case ByTarget:
		return fmt.Sprintf("target %q", s.Target)
	case ByMass:
		return "mass " + strconv.FormatFloat(s.Mass, 'g', -1, 64)
	case ByIndex:
		return "index " + strconv.Itoa(s.Index)
	}
	return "invalid selector"
}

// resolve returns the position of the single channel matching s.
func (s Selector) resolve(channels []Channel) (int, error) {
	if s.Kind == ByIndex {
		if s.Index < 0 || s.Index >= len(channels) {
			return 0, fmt.Errorf("%w: %s, image has %d channels", ErrLookup, s, len(channels))
		}
		return s.Index, nil
	}

	found := -1
	for i, c := range channels {
		var match bool
		switch s.Kind {
		case ByTarget:
			match = c.Target == s.Target
		case ByMass:
			match = c.Mass != nil && *c.Mass == s.Mass
		default:
			return 0, fmt.Errorf("%w: invalid selector kind %d", ErrValidation, s.Kind)
		}
		if !match {
			continue
		}
		if found >= 0 {
			return 0, fmt.Errorf("%w: %s is ambiguous, matches %q and %q", ErrLookup, s, channels[found].Target, c.Target)
		}
		found = i
	}

	if found < 0 {
		return 0, fmt.Errorf("%w: %s", ErrLookup, s)
	}
	return found, nil
}

// resolveSelectors maps selectors to channel positions, keeping the order of
// the request. Every selector must match exactly one channel and no channel
// may be requested twice.
func resolveSelectors(channels []Channel, selectors []Selector) ([]int, error) {
	if len(selectors) == 0 {
		return nil, fmt.Errorf("%w: no channels selected", ErrValidation)
	}

	seen := make(map[int]bool, len(selectors))
	inds := make([]int, len(selectors))
	for i, s := range selectors {
		ind, err := s.resolve(channels)
		if err != nil {
			return nil, err
		}
		if seen[ind] {
			return nil, fmt.Errorf("%w: channel %q selected more than once", ErrValidation, channels[ind].Target)
		}
		seen[ind] = true
		inds[i] = ind
	}

	return inds, nil
}
