package rollout

import "testing"

func TestPercentageBounds(t *testing.T) {
	components := []string{"console", "file", "http", "errtrack", "monitoring"}

	zero := Gate{Percentage: 0}
	full := Gate{Percentage: 100}
	for _, c := range components {
		if zero.Enabled(c) {
			t.Errorf("%s enabled at 0%%", c)
		}
		if !full.Enabled(c) {
			t.Errorf("%s disabled at 100%%", c)
		}
	}
}

func TestPercentageIsDeterministic(t *testing.T) {
	g := Gate{Percentage: 40}
	for _, c := range []string{"console", "file", "http"} {
		first := g.Enabled(c)
		for i := 0; i < 50; i++ {
			if g.Enabled(c) != first {
				t.Fatalf("%s flapped", c)
			}
		}
	}
}

func TestPercentageIsMonotonic(t *testing.T) {
	// Raising the percentage must never turn a component off.
	for _, c := range []string{"console", "file", "http", "errtrack", "monitoring"} {
		on := false
		for p := 0; p <= 100; p++ {
			now := Gate{Percentage: p}.Enabled(c)
			if on && !now {
				t.Fatalf("%s turned off when percentage rose to %d", c, p)
			}
			on = now
		}
		if !on {
			t.Fatalf("%s never enabled", c)
		}
	}
}

func TestAllowListReplacesPercentage(t *testing.T) {
	g := Gate{Percentage: 100, Components: []string{"console"}}
	if !g.Enabled("console") {
		t.Error("listed component should be on")
	}
	if g.Enabled("file") {
		t.Error("unlisted component should be off despite 100%")
	}
}

func TestCanaryUserWins(t *testing.T) {
	g := Gate{Percentage: 0, CanaryUsers: []string{"u-42"}}
	if !g.EnabledFor("errtrack", "u-42") {
		t.Error("canary user should bypass the gate")
	}
	if g.EnabledFor("errtrack", "u-7") {
		t.Error("other users follow the gate")
	}
	if g.EnabledFor("errtrack", "") {
		t.Error("anonymous follows the gate")
	}
}

func TestClamp(t *testing.T) {
	if (Gate{Percentage: -5}).Enabled("console") {
		t.Error("negative percentage should behave as 0")
	}
	if !(Gate{Percentage: 250}).Enabled("console") {
		t.Error("oversized percentage should behave as 100")
	}
}
