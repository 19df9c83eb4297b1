// Land purchase, construction, and upgrades. Parcel prices scale with a
// deterministic desirability field so central and scenic lots cost more.
package engine

import (
	"errors"
	"fmt"
	"math"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/talgya/civitas/internal/agents"
	"github.com/talgya/civitas/internal/buildings"
	"github.com/talgya/civitas/internal/ledger"
	"github.com/talgya/civitas/internal/store"
)

// desirability returns a [0,1] score for a world position, stable per city.
func (c *City) desirability(x, z int) float64 {
	return c.noise.Eval2(float64(x)*0.05, float64(z)*0.05)
}

// parcelPrice scales the base price by desirability (0.5x–1.5x).
func (c *City) parcelPrice(x, z int) int64 {
	p := float64(c.cfg.ParcelBasePrice) * (0.5 + c.desirability(x, z))
	price := int64(math.Round(p))
	if price < 1 {
		price = 1
	}
	return price
}

// footprintFree reports whether a WxD footprint at (x,z) overlaps no building.
func (c *City) footprintFree(x, z, w, d int) bool {
	for _, id := range c.buildingOrder {
		b := c.buildings[id]
		if buildings.Overlaps(x, z, w, d, b.X, b.Z, b.W, b.D) {
			return false
		}
	}
	return true
}

func (e *ActionEngine) handleBuyParcel(tick uint64, a *agents.Agent, req ActionRequest) (string, Diff, string) {
	c := e.city
	key := parcelKey{req.WorldX, req.WorldZ}
	if _, taken := c.parcels[key]; taken {
		return "", Diff{}, ReasonParcelTaken
	}

	price := c.parcelPrice(req.WorldX, req.WorldZ)
	_, err := c.led.Transfer(a.AccountID, store.AccountTreasury, price, ledger.TxLand, tick,
		map[string]string{"agent": a.ID, "x": fmt.Sprint(req.WorldX), "z": fmt.Sprint(req.WorldZ)})
	if errors.Is(err, ledger.ErrInsufficientFunds) {
		return fmt.Sprintf("%s cannot afford the %s-coin parcel.", a.Name, humanize.Comma(price)),
			Diff{}, ReasonInsufficientFunds
	}
	if err != nil {
		return "", Diff{}, ReasonInternal
	}

	c.parcels[key] = a.ID
	if err := c.db.SaveParcel(store.Parcel{X: req.WorldX, Z: req.WorldZ, OwnerID: a.ID, BoughtTick: tick}); err != nil {
		return "", Diff{}, ReasonInternal
	}

	return fmt.Sprintf("%s buys the parcel at (%d, %d) for %s coins.",
			a.Name, req.WorldX, req.WorldZ, humanize.Comma(price)),
		Diff{Money: -price}, ""
}

func (e *ActionEngine) handleBuild(tick uint64, a *agents.Agent, req ActionRequest) (string, Diff, string) {
	c := e.city
	btype := buildings.Type(req.BuildingType)
	if !buildings.Known(btype) {
		return "", Diff{}, ReasonUnknownBuilding
	}
	if owner, ok := c.parcels[parcelKey{req.WorldX, req.WorldZ}]; !ok || owner != a.ID {
		return "", Diff{}, ReasonParcelNotOwned
	}
	spec := buildings.Catalog[btype]
	if !c.footprintFree(req.WorldX, req.WorldZ, spec.Width, spec.Depth) {
		return "", Diff{}, ReasonFootprintBlocked
	}

	id := uuid.NewString()
	accountID := "acct-bld-" + id
	if err := c.db.CreateAccount(accountID, store.OwnerBuilding, id); err != nil {
		return "", Diff{}, ReasonInternal
	}

	_, err := c.led.Transfer(a.AccountID, store.AccountTreasury, spec.BuildCost, ledger.TxBuild, tick,
		map[string]string{"agent": a.ID, "building": id, "type": string(btype)})
	if errors.Is(err, ledger.ErrInsufficientFunds) {
		// Construction-failure rollback: the only path that deletes an account.
		_ = c.db.DeleteAccount(accountID)
		return fmt.Sprintf("%s cannot afford a %s (%s coins).",
				a.Name, btype, humanize.Comma(spec.BuildCost)),
			Diff{}, ReasonInsufficientFunds
	}
	if err != nil {
		_ = c.db.DeleteAccount(accountID)
		return "", Diff{}, ReasonInternal
	}

	b := &buildings.Building{
		ID:          id,
		Type:        btype,
		Level:       1,
		OwnerID:     a.ID,
		AccountID:   accountID,
		X:           req.WorldX,
		Z:           req.WorldZ,
		W:           spec.Width,
		D:           spec.Depth,
		AssetKey:    req.AssetKey,
		RotY:        req.RotY,
		Employees:   []string{},
		Status:      buildings.StatusActive,
		CreatedTick: tick,
	}
	c.buildings[id] = b
	c.buildingOrder = append(c.buildingOrder, id)

	c.emit(tick, store.CategoryCity,
		fmt.Sprintf("%s built a %s at (%d, %d)", a.Name, btype, req.WorldX, req.WorldZ),
		map[string]any{"building_id": id, "type": string(btype), "owner_id": a.ID})

	return fmt.Sprintf("%s builds a %s for %s coins.", a.Name, btype, humanize.Comma(spec.BuildCost)),
		Diff{Money: -spec.BuildCost}, ""
}

func (e *ActionEngine) handleUpgrade(tick uint64, a *agents.Agent, req ActionRequest) (string, Diff, string) {
	c := e.city
	b := c.buildings[req.TargetBuildingID]
	if b == nil {
		return "", Diff{}, ReasonBuildingNotFound
	}
	if b.OwnerID != a.ID {
		return "", Diff{}, ReasonNotOwner
	}
	if b.Status != buildings.StatusActive {
		return "", Diff{}, ReasonBuildingInactive
	}
	spec := b.Spec()
	if spec.UpgradeCost == 0 {
		return "", Diff{}, ReasonInvalidTarget
	}

	cost := spec.UpgradeCost * int64(b.Level)
	_, err := c.led.Transfer(a.AccountID, store.AccountTreasury, cost, ledger.TxUpgrade, tick,
		map[string]string{"agent": a.ID, "building": b.ID})
	if errors.Is(err, ledger.ErrInsufficientFunds) {
		return fmt.Sprintf("%s cannot afford the %s-coin upgrade.", a.Name, humanize.Comma(cost)),
			Diff{}, ReasonInsufficientFunds
	}
	if err != nil {
		return "", Diff{}, ReasonInternal
	}

	b.Level++
	c.emit(tick, store.CategoryCity,
		fmt.Sprintf("The %s at (%d, %d) was upgraded to level %d", b.Type, b.X, b.Z, b.Level),
		map[string]any{"building_id": b.ID, "level": b.Level})

	return fmt.Sprintf("%s upgrades the %s to level %d.", a.Name, b.Type, b.Level),
		Diff{Money: -cost}, ""
}
