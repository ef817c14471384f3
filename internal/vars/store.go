package vars

import "sort"

// Tier identifies where a variable value came from. Higher tiers win on
// conflict; precedence is fixed as CLI > SET > profile > environment >
// default.
type Tier int

const (
	TierDefault Tier = iota
	TierEnv
	TierProfile
	TierSet
	TierCLI
	numTiers
)

func (t Tier) String() string {
	switch t {
	case TierCLI:
		return "cli"
	case TierSet:
		return "set"
	case TierProfile:
		return "profile"
	case TierEnv:
		return "environment"
	default:
		return "default"
	}
}

// Store is a priority-ordered variable store. It is mutated while the
// pipeline is prepared (SET folding happens before planning) and is
// read-only during execution.
type Store struct {
	tiers [numTiers]map[string]Value
}

func NewStore() *Store {
	s := &Store{}
	for i := range s.tiers {
		s.tiers[i] = make(map[string]Value)
	}
	return s
}

// Set records a value at the given tier.
func (s *Store) Set(tier Tier, name string, value Value) {
	s.tiers[tier][name] = value
}

// SetAll records every entry of values at the given tier.
func (s *Store) SetAll(tier Tier, values map[string]Value) {
	for name, value := range values {
		s.tiers[tier][name] = value
	}
}

// Resolve looks up the value for name, highest tier first.
func (s *Store) Resolve(name string) (Value, bool) {
	for tier := numTiers - 1; tier >= 0; tier-- {
		if v, ok := s.tiers[tier][name]; ok {
			return v, true
		}
	}
	return Value{}, false
}

// Source returns the tier a name resolves from.
func (s *Store) Source(name string) (Tier, bool) {
	for tier := numTiers - 1; tier >= 0; tier-- {
		if _, ok := s.tiers[tier][name]; ok {
			return tier, true
		}
	}
	return TierDefault, false
}

// Names returns every defined variable name, sorted.
func (s *Store) Names() []string {
	seen := make(map[string]struct{})
	for _, tier := range s.tiers {
		for name := range tier {
			seen[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns a copy of the store. The executor takes a snapshot
// before a run so handlers share a read-only view.
func (s *Store) Snapshot() *Store {
	clone := NewStore()
	for i, tier := range s.tiers {
		for name, value := range tier {
			clone.tiers[i][name] = value
		}
	}
	return clone
}
