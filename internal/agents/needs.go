// Needs and reputation clamping. Every additive mutation goes through these
// helpers so intermediate out-of-range values never exist on the struct.
package agents

// ClampStat bounds a need or reputation value to [0, 100].
func ClampStat(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// AddHunger applies a delta and re-clamps atomically.
func (a *Agent) AddHunger(d int) { a.Hunger = ClampStat(a.Hunger + d) }

// AddRest applies a delta and re-clamps atomically.
func (a *Agent) AddRest(d int) { a.Rest = ClampStat(a.Rest + d) }

// AddFun applies a delta and re-clamps atomically.
func (a *Agent) AddFun(d int) { a.Fun = ClampStat(a.Fun + d) }

// AddReputation applies a delta and re-clamps atomically.
func (a *Agent) AddReputation(d int) { a.Reputation = ClampStat(a.Reputation + d) }

// DecayNeeds applies the per-tick passive decay rates.
func (a *Agent) DecayNeeds(hunger, rest, fun int) {
	a.AddHunger(-hunger)
	a.AddRest(-rest)
	a.AddFun(-fun)
}
