// Package rollout decides which logging components are active for a
// given deployment without any coordination service. Decisions are
// pure functions of the gate and its inputs, so every process in a
// fleet answers the same way and answers do not flap across restarts.
package rollout

import "hash/fnv"

// Gate holds the rollout controls for one environment.
type Gate struct {
	// Percentage of component names admitted, 0 to 100. Admission
	// hashes the component name, so a given component is either on
	// everywhere or off everywhere at a given percentage.
	Percentage int

	// Components, when non-empty, is an explicit allow-list that
	// replaces the percentage check entirely.
	Components []string

	// CanaryUsers always get every component, whatever the gate says.
	CanaryUsers []string
}

// Enabled reports whether the component is admitted by this gate.
func (g Gate) Enabled(component string) bool {
	if len(g.Components) > 0 {
		for _, c := range g.Components {
			if c == component {
				return true
			}
		}
		return false
	}
	return bucket(component) < clamp(g.Percentage)
}

// EnabledFor is Enabled with a canary override for the given user.
func (g Gate) EnabledFor(component, userID string) bool {
	if userID != "" {
		for _, u := range g.CanaryUsers {
			if u == userID {
				return true
			}
		}
	}
	return g.Enabled(component)
}

// bucket maps a name onto 0..99 deterministically.
func bucket(name string) int {
	h := fnv.New32a()
	h.Write([]byte(name))
	return int(h.Sum32() % 100)
}

func clamp(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
