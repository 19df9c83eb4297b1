// Demand budget allocation and NPC demand revenue: phases 2, 5, and 6.
// The demand pool is the city's lever for simulating outside customers:
// funded from the treasury during each season's ramp window, spent back into
// commercial buildings every tick, with an import fee sunk on every sale.
package engine

import (
	"errors"
	"log/slog"
	"math"

	"github.com/talgya/civitas/internal/buildings"
	"github.com/talgya/civitas/internal/ledger"
	"github.com/talgya/civitas/internal/store"
)

// Phase 2: during the first N ticks of each season, move an installment from
// the treasury into the demand pool. The installment never takes the
// treasury below its crisis floor.
func (c *City) allocateDemandBudget(tick uint64) {
	intoSeason := tick % c.cfg.TicksPerSeason
	if intoSeason >= c.cfg.DemandRampTicks {
		return
	}

	treasuryBal, err := c.led.Balance(store.AccountTreasury)
	if err != nil {
		slog.Error("demand allocation: treasury read failed", "error", err)
		return
	}

	total := int64(math.Round(float64(treasuryBal) * c.cfg.DemandBaseRate * c.demandMult()))
	if total < c.cfg.DemandMin {
		total = c.cfg.DemandMin
	}
	if total > c.cfg.DemandMax {
		total = c.cfg.DemandMax
	}
	installment := total / int64(c.cfg.DemandRampTicks)
	if headroom := treasuryBal - c.cfg.TreasuryFloor; installment > headroom {
		installment = headroom
	}

	if installment <= 0 {
		// Announce once per season, on the first ramp tick that actually runs
		// (ticks start at 1, so season zero never sees intoSeason == 0).
		if intoSeason == 0 || tick == 1 {
			c.emit(tick, store.CategoryEconomy,
				"Treasury crisis: the city cannot fund the seasonal demand budget",
				map[string]any{"treasury": treasuryBal, "floor": c.cfg.TreasuryFloor})
		}
		return
	}

	if _, err := c.led.Transfer(store.AccountTreasury, store.AccountDemandPool,
		installment, ledger.TxDemand, tick, nil); err != nil {
		slog.Error("demand allocation failed", "tick", tick, "error", err)
		return
	}
	c.flows.DemandAllocated += installment
}

// Phase 5: spend a slice of the demand pool across eligible commercial
// buildings, weighted so under-staffed businesses get a demand boost. Each
// share loses an import fee to the money-destruction sink; municipal
// buildings route their net share to the treasury.
func (c *City) distributeNPCDemand(tick uint64) {
	demandBal, err := c.led.Balance(store.AccountDemandPool)
	if err != nil {
		slog.Error("npc demand: pool read failed", "error", err)
		return
	}
	if demandBal <= 0 {
		return
	}

	intoSeason := tick % c.cfg.TicksPerSeason
	remaining := c.cfg.TicksPerSeason - intoSeason
	rampProgress := float64(intoSeason+1) / float64(c.cfg.DemandRampTicks)
	if rampProgress > 1 {
		rampProgress = 1
	}
	spend := int64(math.Round(float64(demandBal) / float64(remaining) * rampProgress))
	if spend > demandBal {
		spend = demandBal
	}
	if spend <= 0 {
		return
	}

	type recipient struct {
		b      *buildings.Building
		weight float64
	}
	var (
		recipients []recipient
		totalW     float64
	)
	for _, id := range c.buildingOrder {
		b := c.buildings[id]
		if b.Status != buildings.StatusActive || !b.Spec().Commercial {
			continue
		}
		ratio := 0.0
		if max := b.MaxEmployees(); max > 0 {
			ratio = float64(len(b.Employees)) / float64(max)
		}
		w := float64(b.Income()) * math.Max(0.1, 1-0.5*ratio)
		if w <= 0 {
			continue
		}
		recipients = append(recipients, recipient{b, w})
		totalW += w
	}
	if totalW == 0 {
		return
	}

	for _, r := range recipients {
		share := int64(math.Round(float64(spend) * r.weight / totalW))
		if share <= 0 {
			continue
		}
		fee := int64(math.Round(float64(share) * c.cfg.ImportFeeRate))
		net := share - fee

		if fee > 0 {
			if _, err := c.led.Sink(store.AccountDemandPool, fee, ledger.TxImportFee, tick,
				map[string]string{"building": r.b.ID}); err != nil {
				if !errors.Is(err, ledger.ErrInsufficientFunds) {
					slog.Error("import fee sink failed", "building", r.b.ID, "error", err)
				}
				continue
			}
			c.flows.ImportFees += fee
		}
		if net <= 0 {
			continue
		}

		if r.b.Municipal() {
			if _, err := c.led.Transfer(store.AccountDemandPool, store.AccountTreasury,
				net, ledger.TxNPCRevenue, tick, map[string]string{"building": r.b.ID}); err != nil {
				continue
			}
			c.flows.NPCRevenue += net
			continue
		}

		// Owned business: the owner draws a profit share, the rest funds the
		// building's upkeep account.
		ownerCut := int64(math.Round(float64(net) * c.cfg.OwnerProfitShare))
		if owner := c.agents[r.b.OwnerID]; owner != nil && ownerCut > 0 {
			if _, err := c.led.Transfer(store.AccountDemandPool, owner.AccountID,
				ownerCut, ledger.TxOwnerDraw, tick, map[string]string{"building": r.b.ID}); err != nil {
				ownerCut = 0
			}
		} else {
			ownerCut = 0
		}
		if rest := net - ownerCut; rest > 0 {
			if _, err := c.led.Transfer(store.AccountDemandPool, r.b.AccountID,
				rest, ledger.TxNPCRevenue, tick, map[string]string{"building": r.b.ID}); err != nil {
				continue
			}
		}
		c.flows.NPCRevenue += net
	}
}

// Phase 6: import fees accumulate into a city-level counter for reporting.
func (c *City) accumulateOutsideWorld(tick uint64) {
	c.outsideWorld += c.flows.ImportFees
}
