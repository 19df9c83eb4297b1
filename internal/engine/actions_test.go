package engine

import (
	"testing"

	"github.com/talgya/civitas/internal/buildings"
	"github.com/talgya/civitas/internal/ledger"
	"github.com/talgya/civitas/internal/store"
)

func TestCooldownOnePerTick(t *testing.T) {
	c := newTestCity(t, nil)
	eng := NewActionEngine(c)
	a := registerTestAgent(t, c, "ada")

	if res := eng.Process(1, ActionRequest{AgentID: a.ID, Type: ActionSleep}); !res.OK {
		t.Fatalf("first action: %s", res.Reason)
	}
	if res := eng.Process(1, ActionRequest{AgentID: a.ID, Type: ActionSleep}); res.OK || res.Reason != ReasonCooldownActive {
		t.Errorf("second action same tick: ok=%v reason=%s", res.OK, res.Reason)
	}
	if res := eng.Process(2, ActionRequest{AgentID: a.ID, Type: ActionSleep}); !res.OK {
		t.Errorf("next tick should clear the cooldown: %s", res.Reason)
	}
}

func TestUnknownAgentAndAction(t *testing.T) {
	c := newTestCity(t, nil)
	eng := NewActionEngine(c)
	a := registerTestAgent(t, c, "ada")

	if res := eng.Process(1, ActionRequest{AgentID: "nobody", Type: ActionSleep}); res.OK || res.Reason != ReasonUnknownAgent {
		t.Errorf("unknown agent: ok=%v reason=%s", res.OK, res.Reason)
	}
	if res := eng.Process(1, ActionRequest{AgentID: a.ID, Type: "dance"}); res.OK || res.Reason != ReasonUnknownAction {
		t.Errorf("unknown action: ok=%v reason=%s", res.OK, res.Reason)
	}
}

func TestFailedActionDoesNotBurnCooldown(t *testing.T) {
	c := newTestCity(t, nil)
	eng := NewActionEngine(c)
	a := registerTestAgent(t, c, "ada")

	// Drain the starting grant so a meal is unaffordable.
	if _, err := c.led.Sink(a.AccountID, 100, ledger.TxLiving, 0, nil); err != nil {
		t.Fatalf("drain: %v", err)
	}

	res := eng.Process(1, ActionRequest{AgentID: a.ID, Type: ActionEat})
	if res.OK || res.Reason != ReasonInsufficientFunds {
		t.Fatalf("broke meal: ok=%v reason=%s", res.OK, res.Reason)
	}

	// The rejected attempt must not count as the tick's action.
	if res := eng.Process(1, ActionRequest{AgentID: a.ID, Type: ActionSleep}); !res.OK {
		t.Errorf("follow-up action blocked: %s", res.Reason)
	}
}

func TestEatFromStreetVendorSinksMoney(t *testing.T) {
	c := newTestCity(t, nil)
	eng := NewActionEngine(c)
	a := registerTestAgent(t, c, "ada")

	supplyBefore, _ := c.led.MoneySupply()
	res := eng.Process(1, ActionRequest{AgentID: a.ID, Type: ActionEat})
	if !res.OK {
		t.Fatalf("eat: %s", res.Reason)
	}
	if bal := mustBalance(t, c, a.AccountID); bal != 95 {
		t.Errorf("balance = %d, want 95", bal)
	}
	if a.Hunger != 100 {
		t.Errorf("hunger = %d, want clamped at 100", a.Hunger)
	}
	supplyAfter, _ := c.led.MoneySupply()
	if supplyAfter != supplyBefore-5 {
		t.Errorf("vendor meal should leave the economy: supply %d -> %d", supplyBefore, supplyAfter)
	}
}

func TestEatAtRestaurantPaysTheBusiness(t *testing.T) {
	c := newTestCity(t, nil)
	eng := NewActionEngine(c)
	a := registerTestAgent(t, c, "ada")
	owner := registerTestAgent(t, c, "ona")
	b := placeTestBuilding(t, c, "rest-1", buildings.TypeRestaurant, owner.ID, 0)

	res := eng.Process(1, ActionRequest{AgentID: a.ID, Type: ActionEat, TargetBuildingID: b.ID})
	if !res.OK {
		t.Fatalf("eat: %s", res.Reason)
	}
	if bal := mustBalance(t, c, b.AccountID); bal != 5 {
		t.Errorf("restaurant balance = %d, want 5", bal)
	}
}

func TestRelaxCreditsTreasury(t *testing.T) {
	c := newTestCity(t, nil)
	eng := NewActionEngine(c)
	a := registerTestAgent(t, c, "ada")

	treasuryBefore := mustBalance(t, c, store.AccountTreasury)
	res := eng.Process(1, ActionRequest{AgentID: a.ID, Type: ActionRelax})
	if !res.OK {
		t.Fatalf("relax: %s", res.Reason)
	}
	if a.Fun != 70 {
		t.Errorf("fun = %d, want 70", a.Fun)
	}
	if bal := mustBalance(t, c, a.AccountID); bal != 97 {
		t.Errorf("balance = %d, want 97", bal)
	}
	if got := mustBalance(t, c, store.AccountTreasury); got != treasuryBefore+3 {
		t.Errorf("treasury = %d, want %d", got, treasuryBefore+3)
	}
}

func TestApplyAndWork(t *testing.T) {
	c := newTestCity(t, nil)
	eng := NewActionEngine(c)
	a := registerTestAgent(t, c, "ada")
	owner := registerTestAgent(t, c, "ona")
	b := placeTestBuilding(t, c, "shop-1", buildings.TypeShop, owner.ID, 0)

	if res := eng.Process(1, ActionRequest{AgentID: a.ID, Type: ActionWork}); res.OK || res.Reason != ReasonNotEmployed {
		t.Fatalf("work while jobless: ok=%v reason=%s", res.OK, res.Reason)
	}

	res := eng.Process(2, ActionRequest{AgentID: a.ID, Type: ActionApply, TargetBuildingID: b.ID})
	if !res.OK {
		t.Fatalf("apply: %s", res.Reason)
	}
	if a.EmployerID != b.ID || len(b.Employees) != 1 {
		t.Fatalf("employment link not set: employer=%q employees=%v", a.EmployerID, b.Employees)
	}

	if res := eng.Process(3, ActionRequest{AgentID: a.ID, Type: ActionApply, TargetBuildingID: b.ID}); res.OK || res.Reason != ReasonAlreadyEmployed {
		t.Errorf("re-apply: ok=%v reason=%s", res.OK, res.Reason)
	}

	res = eng.Process(4, ActionRequest{AgentID: a.ID, Type: ActionWork})
	if !res.OK {
		t.Fatalf("work: %s", res.Reason)
	}
	if a.Rest != 70 || a.Fun != 45 || a.Reputation != 51 {
		t.Errorf("after shift rest=%d fun=%d rep=%d, want 70/45/51", a.Rest, a.Fun, a.Reputation)
	}
	if a.Stats.WorkHours != 1 {
		t.Errorf("work hours = %d, want 1", a.Stats.WorkHours)
	}
}

func TestApplyRejectsWrongProfession(t *testing.T) {
	c := newTestCity(t, nil)
	eng := NewActionEngine(c)
	a := registerTestAgent(t, c, "ada") // laborer
	station := placeTestBuilding(t, c, "pd-1", buildings.TypePoliceStation, "", 0)

	res := eng.Process(1, ActionRequest{AgentID: a.ID, Type: ActionApply, TargetBuildingID: station.ID})
	if res.OK || res.Reason != ReasonWrongProfession {
		t.Errorf("laborer at the station: ok=%v reason=%s", res.OK, res.Reason)
	}
}

func TestApplyRejectsFullRoster(t *testing.T) {
	c := newTestCity(t, nil)
	eng := NewActionEngine(c)
	owner := registerTestAgent(t, c, "ona")
	b := placeTestBuilding(t, c, "shop-1", buildings.TypeShop, owner.ID, 0)
	b.Employees = []string{"w1", "w2", "w3"} // level-1 shop cap

	a := registerTestAgent(t, c, "ada")
	res := eng.Process(1, ActionRequest{AgentID: a.ID, Type: ActionApply, TargetBuildingID: b.ID})
	if res.OK || res.Reason != ReasonNoVacancy {
		t.Errorf("full roster: ok=%v reason=%s", res.OK, res.Reason)
	}
}

func TestOwnerCannotHireThemselves(t *testing.T) {
	c := newTestCity(t, nil)
	eng := NewActionEngine(c)
	owner := registerTestAgent(t, c, "ona")
	b := placeTestBuilding(t, c, "shop-1", buildings.TypeShop, owner.ID, 0)

	res := eng.Process(1, ActionRequest{AgentID: owner.ID, Type: ActionApply, TargetBuildingID: b.ID})
	if res.OK || res.Reason != ReasonAlreadyEmployed {
		t.Errorf("owner self-hire: ok=%v reason=%s", res.OK, res.Reason)
	}
}

func TestRegisterActionEmitsJoinEvent(t *testing.T) {
	c := newTestCity(t, nil)
	eng := NewActionEngine(c)
	a := registerTestAgent(t, c, "ada")

	before := len(c.events)
	res := eng.Process(1, ActionRequest{AgentID: a.ID, Type: ActionRegister})
	if !res.OK {
		t.Fatalf("register: %s", res.Reason)
	}
	if len(c.events) != before+1 || c.events[len(c.events)-1].Category != store.CategoryAgent {
		t.Errorf("expected one buffered agent event, have %d", len(c.events)-before)
	}
}

func TestWorkAtClosedBuilding(t *testing.T) {
	c := newTestCity(t, nil)
	eng := NewActionEngine(c)
	a := registerTestAgent(t, c, "ada")
	owner := registerTestAgent(t, c, "ona")
	b := placeTestBuilding(t, c, "shop-1", buildings.TypeShop, owner.ID, 0)
	employ(a, b)
	b.Status = buildings.StatusClosed

	res := eng.Process(1, ActionRequest{AgentID: a.ID, Type: ActionWork})
	if res.OK || res.Reason != ReasonBuildingInactive {
		t.Errorf("shift at closed shop: ok=%v reason=%s", res.OK, res.Reason)
	}
}
