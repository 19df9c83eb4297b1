// City manager: a deterministic heuristic that builds at most one municipal
// building per tick when unemployment, housing, or crime pressure demands
// it. Phase 11 of the pipeline.
package engine

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/talgya/civitas/internal/agents"
	"github.com/talgya/civitas/internal/buildings"
	"github.com/talgya/civitas/internal/ledger"
	"github.com/talgya/civitas/internal/store"
)

func (c *City) cityManagerBuild(tick uint64) {
	active := c.activeAgents()
	if active == 0 {
		return
	}

	// Pressure metrics.
	unemployed := 0
	for _, a := range c.agents {
		if a.Status == agents.StatusActive && !a.Employed() {
			unemployed++
		}
	}
	unemployment := float64(unemployed) / float64(active)

	beds := 0
	for _, b := range c.buildings {
		if b.Type == buildings.TypeHouse && b.Status == buildings.StatusActive {
			beds += 4 * b.Level
		}
	}
	homelessness := 1.0
	if beds >= active {
		homelessness = 0
	} else if active > 0 {
		homelessness = float64(active-beds) / float64(active)
	}

	crimeRate := float64(c.weeklyCrimes) / float64(active)

	var want buildings.Type
	switch {
	case unemployment > c.cfg.UnemploymentLimit:
		want = buildings.TypeOffice
	case homelessness > c.cfg.HomelessnessLimit:
		want = buildings.TypeHouse
	case crimeRate > c.cfg.CrimeRateLimit:
		want = buildings.TypePoliceStation
	default:
		return
	}

	// Hard cap: municipal buildings per active agent.
	municipal, closedMunicipal := 0, 0
	for _, b := range c.buildings {
		if !b.Municipal() {
			continue
		}
		municipal++
		if b.Status == buildings.StatusClosed {
			closedMunicipal++
		}
	}
	if municipal >= active/c.cfg.MunicipalPerAgents+1 {
		return
	}
	// Circuit breaker: stop building while too much stock sits closed.
	if municipal > 0 && float64(closedMunicipal)/float64(municipal) > c.cfg.ClosedRatioBreaker {
		return
	}

	spec := buildings.Catalog[want]
	treasuryBal, err := c.led.Balance(store.AccountTreasury)
	if err != nil || treasuryBal-spec.BuildCost < c.cfg.TreasuryFloor {
		return
	}

	x, z, found := c.findFootprint(spec.Width, spec.Depth)
	if !found {
		return
	}

	id := uuid.NewString()
	accountID := "acct-bld-" + id
	if err := c.db.CreateAccount(accountID, store.OwnerBuilding, id); err != nil {
		slog.Error("city manager: account create failed", "error", err)
		return
	}
	// Construction materials come from outside the city: the cost is sunk.
	if _, err := c.led.Sink(store.AccountTreasury, spec.BuildCost, ledger.TxBuild, tick,
		map[string]string{"building": id, "type": string(want)}); err != nil {
		_ = c.db.DeleteAccount(accountID)
		return
	}

	b := &buildings.Building{
		ID:          id,
		Type:        want,
		Level:       1,
		AccountID:   accountID,
		X:           x,
		Z:           z,
		W:           spec.Width,
		D:           spec.Depth,
		Employees:   []string{},
		Status:      buildings.StatusActive,
		CreatedTick: tick,
	}
	c.buildings[id] = b
	c.buildingOrder = append(c.buildingOrder, id)

	c.emit(tick, store.CategoryCity,
		fmt.Sprintf("The city built a municipal %s at (%d, %d)", want, x, z),
		map[string]any{"building_id": id, "type": string(want)})
}

// findFootprint searches outward in rings from the city center for an empty
// buildable footprint, preferring the most desirable site within a ring.
func (c *City) findFootprint(w, d int) (int, int, bool) {
	for r := 0; r <= c.cfg.RingSearchRadius; r++ {
		bestScore := -1.0
		bestX, bestZ := 0, 0
		for _, cell := range ringCells(r) {
			x, z := cell[0]*w, cell[1]*d // stride by footprint so rings don't self-collide
			if !c.footprintFree(x, z, w, d) {
				continue
			}
			if c.parcelInFootprint(x, z, w, d) {
				continue
			}
			if score := c.desirability(x, z); score > bestScore {
				bestScore = score
				bestX, bestZ = x, z
			}
		}
		if bestScore >= 0 {
			return bestX, bestZ, true
		}
	}
	return 0, 0, false
}

// parcelInFootprint reports whether any privately-owned parcel anchor falls
// inside the footprint.
func (c *City) parcelInFootprint(x, z, w, d int) bool {
	for key := range c.parcels {
		if key.X >= x && key.X < x+w && key.Z >= z && key.Z < z+d {
			return true
		}
	}
	return false
}

// ringCells enumerates the cells at Chebyshev distance r from the origin.
func ringCells(r int) [][2]int {
	if r == 0 {
		return [][2]int{{0, 0}}
	}
	var cells [][2]int
	for x := -r; x <= r; x++ {
		cells = append(cells, [2]int{x, -r}, [2]int{x, r})
	}
	for z := -r + 1; z < r; z++ {
		cells = append(cells, [2]int{-r, z}, [2]int{r, z})
	}
	return cells
}
