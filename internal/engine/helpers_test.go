package engine

import (
	"testing"

	"github.com/talgya/civitas/internal/agents"
	"github.com/talgya/civitas/internal/buildings"
	"github.com/talgya/civitas/internal/config"
	"github.com/talgya/civitas/internal/ledger"
	"github.com/talgya/civitas/internal/store"
)

// newTestCity builds a city over an in-memory store with a fixed seed.
// mutate, when non-nil, adjusts tuning before construction.
func newTestCity(t *testing.T, mutate func(*config.Tuning)) *City {
	t.Helper()

	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("open memory db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}

	led := ledger.New(db)
	c, err := NewCity(cfg, db, led, 1)
	if err != nil {
		t.Fatalf("new city: %v", err)
	}
	return c
}

func registerTestAgent(t *testing.T, c *City, name string) *agents.Agent {
	t.Helper()
	a, err := c.RegisterAgent(name, "test-model", agents.ProfessionLaborer)
	if err != nil {
		t.Fatalf("register %s: %v", name, err)
	}
	return a
}

// placeTestBuilding injects a building with a funded account directly into
// city state, bypassing the construction action.
func placeTestBuilding(t *testing.T, c *City, id string, btype buildings.Type, ownerID string, funds int64) *buildings.Building {
	t.Helper()

	accountID := "acct-bld-" + id
	if err := c.db.CreateAccount(accountID, store.OwnerBuilding, id); err != nil {
		t.Fatalf("building account: %v", err)
	}
	if funds > 0 {
		if _, err := c.led.Mint(accountID, funds, ledger.TxGrant, 0, nil); err != nil {
			t.Fatalf("fund building: %v", err)
		}
	}

	spec := buildings.Catalog[btype]
	b := &buildings.Building{
		ID:        id,
		Type:      btype,
		Level:     1,
		OwnerID:   ownerID,
		AccountID: accountID,
		X:         100 + len(c.buildingOrder)*10,
		Z:         100,
		W:         spec.Width,
		D:         spec.Depth,
		Employees: []string{},
		Status:    buildings.StatusActive,
	}
	c.buildings[id] = b
	c.buildingOrder = append(c.buildingOrder, id)
	return b
}

func employ(a *agents.Agent, b *buildings.Building) {
	a.EmployerID = b.ID
	b.Employees = append(b.Employees, a.ID)
}

func mustBalance(t *testing.T, c *City, accountID string) int64 {
	t.Helper()
	bal, err := c.led.Balance(accountID)
	if err != nil {
		t.Fatalf("balance %s: %v", accountID, err)
	}
	return bal
}
