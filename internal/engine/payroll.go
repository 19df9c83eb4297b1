// Salaries and taxes: phases 3 and 4 of the pipeline.
package engine

import (
	"errors"
	"log/slog"
	"math"

	"github.com/talgya/civitas/internal/agents"
	"github.com/talgya/civitas/internal/buildings"
	"github.com/talgya/civitas/internal/ledger"
	"github.com/talgya/civitas/internal/store"
)

// Phase 3: pay every employed, non-owner agent at an active building. Agents
// whose employer is inactive are unemployed as a side effect of this phase.
// Salaries come from the treasury, which is why the band multiplier applies.
func (c *City) paySalaries(tick uint64) {
	for _, id := range c.agentOrder {
		a := c.agents[id]
		if a.Status != agents.StatusActive || !a.Employed() {
			continue
		}
		b := c.buildings[a.EmployerID]
		if b == nil || b.Status != buildings.StatusActive {
			c.unemploy(a)
			continue
		}
		if b.OwnerID == a.ID {
			continue
		}

		salary := int64(math.Round(float64(agents.BaseSalary(a.Profession)) * c.salaryMult()))
		if a.Hunger < 20 {
			salary /= 2 // too hungry to work well
		}
		if salary < 1 {
			salary = 1
		}

		_, err := c.led.Transfer(store.AccountTreasury, a.AccountID, salary, ledger.TxSalary, tick,
			map[string]string{"agent": a.ID, "building": b.ID})
		if errors.Is(err, ledger.ErrInsufficientFunds) {
			slog.Warn("treasury cannot cover salary", "tick", tick, "agent", a.ID, "salary", salary)
			continue
		}
		if err != nil {
			slog.Error("salary transfer failed", "tick", tick, "agent", a.ID, "error", err)
			continue
		}

		c.flows.SalariesPaid += salary
		a.Stats.WorkHours++
		if a.Fun >= 20 {
			a.AddReputation(1)
		}
	}
}

// Phase 4: shop owners pay tax on building income from their personal
// account into the treasury.
func (c *City) collectTaxes(tick uint64) {
	rate := c.cfg.TaxRate + c.policy.Modifier(PolicyTax)
	for _, id := range c.buildingOrder {
		b := c.buildings[id]
		if b.OwnerID == "" || b.Status != buildings.StatusActive || b.Income() == 0 {
			continue
		}
		owner := c.agents[b.OwnerID]
		if owner == nil {
			continue
		}

		tax := int64(math.Round(float64(b.Income()) * rate))
		if tax < 1 {
			continue
		}
		_, err := c.led.Transfer(owner.AccountID, store.AccountTreasury, tax, ledger.TxTax, tick,
			map[string]string{"agent": owner.ID, "building": b.ID})
		if errors.Is(err, ledger.ErrInsufficientFunds) {
			continue // broke owners owe nothing this tick
		}
		if err != nil {
			slog.Error("tax transfer failed", "tick", tick, "building", b.ID, "error", err)
			continue
		}
		owner.Stats.TaxPaid += tax
		c.flows.TaxesCollected += tax
	}
}
