// Upkeep: per-tick accrual, weekly settlement. Phase 7 of the pipeline.
package engine

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/talgya/civitas/internal/buildings"
	"github.com/talgya/civitas/internal/ledger"
	"github.com/talgya/civitas/internal/store"
)

// accrueAndSettleUpkeep accrues operating cost on every active building each
// tick. Settlement happens only at week boundaries: the accrued total is
// sunk in a single transaction, and a building that cannot cover the full
// amount closes instead of part-paying. Either way accruedUpkeep resets to
// zero atomically with the outcome.
func (c *City) accrueAndSettleUpkeep(tick uint64) {
	for _, id := range c.buildingOrder {
		b := c.buildings[id]
		if b.Status == buildings.StatusActive {
			b.AccruedUpkeep += b.OperatingCost()
		}
	}

	if !c.weekBoundary(tick) {
		return
	}

	for _, id := range c.buildingOrder {
		b := c.buildings[id]
		if b.Status != buildings.StatusActive || b.AccruedUpkeep == 0 {
			continue
		}
		c.settleUpkeep(tick, b)
	}

	// Reopen pass: a closed building comes back once its account covers at
	// least one full week of operating cost.
	for _, id := range c.buildingOrder {
		b := c.buildings[id]
		if b.Status != buildings.StatusClosed {
			continue
		}
		bal, err := c.led.Balance(b.AccountID)
		if err != nil {
			continue
		}
		if bal >= b.OperatingCost()*int64(c.cfg.TicksPerWeek) {
			b.Status = buildings.StatusActive
			c.emit(tick, store.CategoryCity,
				fmt.Sprintf("The %s at (%d, %d) has reopened", b.Type, b.X, b.Z),
				map[string]any{"building_id": b.ID})
		}
	}
}

// settleUpkeep debits the accrued total or closes the building. Both
// branches reset the accrual.
func (c *City) settleUpkeep(tick uint64, b *buildings.Building) {
	due := b.AccruedUpkeep
	_, err := c.led.Sink(b.AccountID, due, ledger.TxUpkeep, tick,
		map[string]string{"building": b.ID})
	if err == nil {
		b.AccruedUpkeep = 0
		c.flows.UpkeepPaid += due
		return
	}
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		slog.Error("upkeep settlement failed", "building", b.ID, "error", err)
		return
	}

	b.Status = buildings.StatusClosed
	b.AccruedUpkeep = 0
	c.emit(tick, store.CategoryEconomy,
		fmt.Sprintf("The %s at (%d, %d) could not cover %d upkeep and has closed",
			b.Type, b.X, b.Z, due),
		map[string]any{"building_id": b.ID, "due": due})
}
