// The tick pipeline: a fixed ordered sequence of economic phases executed
// once per tick, each phase seeing the committed effects of all prior phases
// in the same tick. A phase failure is contained to that phase; the tick
// always completes and always produces a snapshot.
package engine

import (
	"fmt"
	"log/slog"

	"github.com/talgya/civitas/internal/agents"
	"github.com/talgya/civitas/internal/ledger"
	"github.com/talgya/civitas/internal/store"
)

// runPipeline executes the twelve phases in their fixed order.
func (c *City) runPipeline(tick uint64) {
	c.runPhase(tick, "needs_decay", c.decayNeeds)
	c.runPhase(tick, "demand_allocation", c.allocateDemandBudget)
	c.runPhase(tick, "salaries", c.paySalaries)
	c.runPhase(tick, "taxes", c.collectTaxes)
	c.runPhase(tick, "npc_demand", c.distributeNPCDemand)
	c.runPhase(tick, "outside_world", c.accumulateOutsideWorld)
	c.runPhase(tick, "upkeep", c.accrueAndSettleUpkeep)
	c.runPhase(tick, "living_expenses", c.chargeLivingExpenses)
	c.runPhase(tick, "jail_release", c.releaseJailed)
	c.runPhase(tick, "reputation_decay", c.decayIdleReputation)
	c.runPhase(tick, "city_manager", c.cityManagerBuild)
	c.runPhase(tick, "snapshot", c.recordSnapshot)
}

// runPhase contains a phase fault to that one phase.
func (c *City) runPhase(tick uint64, name string, fn func(uint64)) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("pipeline phase panicked", "phase", name, "tick", tick, "panic", r)
		}
	}()
	fn(tick)
}

// Phase 1: passive needs decay for all agents, clamped at zero.
func (c *City) decayNeeds(tick uint64) {
	for _, id := range c.agentOrder {
		a := c.agents[id]
		if a.Status != agents.StatusActive {
			continue
		}
		a.DecayNeeds(c.cfg.HungerDecay, c.cfg.RestDecay, c.cfg.FunDecay)
	}
}

// Phase 8: weekly living expenses, sunk to the NPC pool. Agents who cannot
// pay take a reputation penalty instead; the substitution is deliberate.
func (c *City) chargeLivingExpenses(tick uint64) {
	if !c.weekBoundary(tick) {
		return
	}
	for _, id := range c.agentOrder {
		a := c.agents[id]
		if a.Status != agents.StatusActive {
			continue
		}
		_, err := c.led.Sink(a.AccountID, c.cfg.LivingExpense, ledger.TxLiving, tick,
			map[string]string{"agent": a.ID})
		if err != nil {
			a.AddReputation(-c.cfg.LivingRepPenalty)
		}
	}
}

// Phase 9: release agents whose sentence has elapsed.
func (c *City) releaseJailed(tick uint64) {
	for _, id := range c.agentOrder {
		a := c.agents[id]
		if a.Status != agents.StatusJailed {
			continue
		}
		if tick-a.JailedAtTick >= c.cfg.JailTicks {
			a.Status = agents.StatusActive
			a.JailedAtTick = 0
			c.emit(tick, store.CategoryCrime,
				fmt.Sprintf("%s has been released from jail", a.Name),
				map[string]any{"agent_id": a.ID})
		}
	}
}

// Phase 10: weekly reputation decay for long-idle unemployed agents, then a
// city-wide re-clamp.
func (c *City) decayIdleReputation(tick uint64) {
	if !c.weekBoundary(tick) {
		return
	}
	for _, id := range c.agentOrder {
		a := c.agents[id]
		if a.Status != agents.StatusActive || a.Employed() {
			continue
		}
		if tick-a.LastActiveTick > c.cfg.IdleTicks {
			a.AddReputation(-c.cfg.IdleRepDecay)
		}
	}
	for _, a := range c.agents {
		a.Reputation = agents.ClampStat(a.Reputation)
	}
}
