// Package engine provides the tick-based economic simulation core: the
// scheduler, action queue and engine, the ordered pipeline phases, and the
// policy/goal control loops. One City per simulated city; cities share no
// state.
package engine

import (
	"fmt"
	"math/rand"
	"strconv"
	"sync"

	"github.com/google/uuid"
	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/civitas/internal/agents"
	"github.com/talgya/civitas/internal/buildings"
	"github.com/talgya/civitas/internal/config"
	"github.com/talgya/civitas/internal/ledger"
	"github.com/talgya/civitas/internal/store"
)

type parcelKey struct{ X, Z int }

// Flows accumulates per-tick money movement figures for the snapshot.
type Flows struct {
	SalariesPaid    int64 `json:"salaries_paid"`
	TaxesCollected  int64 `json:"taxes_collected"`
	NPCRevenue      int64 `json:"npc_revenue"`
	ImportFees      int64 `json:"import_fees"`
	UpkeepPaid      int64 `json:"upkeep_paid"`
	DemandAllocated int64 `json:"demand_allocated"`
}

// City holds the complete simulation state for one city. Per-tick work is
// single-threaded in the scheduler's tick goroutine; the mutex exists only so
// the registration and query surfaces can touch state between ticks.
type City struct {
	mu sync.RWMutex

	cfg   *config.Tuning
	db    *store.DB
	led   *ledger.Engine
	rng   *rand.Rand
	noise opensimplex.Noise

	tick uint64 // last completed tick

	agents        map[string]*agents.Agent
	agentOrder    []string
	buildings     map[string]*buildings.Building
	buildingOrder []string
	parcels       map[parcelKey]string // owner agent ID

	band   *BandTracker
	policy *PolicyState
	goals  *GoalTracker

	cooldown     map[string]uint64 // agent ID -> last successful action tick
	outsideWorld int64             // cumulative import fees, reporting only
	weeklyCrimes int

	events []store.Event // buffered this tick, batch-persisted at tick end
	flows  Flows

	lastSnapshot *Snapshot
	replay       *replayRing
}

// NewCity constructs a city over an opened store, restoring any persisted
// state. The seed drives the parcel desirability field and crime draws.
func NewCity(cfg *config.Tuning, db *store.DB, led *ledger.Engine, seed int64) (*City, error) {
	if err := db.EnsureSystemAccounts(); err != nil {
		return nil, err
	}

	c := &City{
		cfg:       cfg,
		db:        db,
		led:       led,
		rng:       rand.New(rand.NewSource(seed)),
		noise:     opensimplex.NewNormalized(seed),
		agents:    make(map[string]*agents.Agent),
		buildings: make(map[string]*buildings.Building),
		parcels:   make(map[parcelKey]string),
		cooldown:  make(map[string]uint64),
		band:      NewBandTracker(cfg),
		replay:    newReplayRing(64),
	}
	c.policy = NewPolicyState(cfg)
	c.goals = NewGoalTracker(cfg)

	if err := c.restore(); err != nil {
		return nil, err
	}

	// Seed the treasury on first boot so the city can operate before taxes
	// flow. This is the one mint outside registration grants.
	if c.tick == 0 {
		bal, err := db.Balance(store.AccountTreasury)
		if err != nil {
			return nil, err
		}
		if bal == 0 && cfg.TreasurySeed > 0 {
			if _, err := led.Mint(store.AccountTreasury, cfg.TreasurySeed, ledger.TxGrant, 0,
				map[string]string{"reason": "treasury_seed"}); err != nil {
				return nil, err
			}
		}
	}
	return c, nil
}

func (c *City) restore() error {
	agentList, err := c.db.LoadAgents()
	if err != nil {
		return fmt.Errorf("load agents: %w", err)
	}
	for _, a := range agentList {
		c.agents[a.ID] = a
		c.agentOrder = append(c.agentOrder, a.ID)
	}

	buildingList, err := c.db.LoadBuildings()
	if err != nil {
		return fmt.Errorf("load buildings: %w", err)
	}
	for _, b := range buildingList {
		c.buildings[b.ID] = b
		c.buildingOrder = append(c.buildingOrder, b.ID)
	}

	parcelList, err := c.db.LoadParcels()
	if err != nil {
		return fmt.Errorf("load parcels: %w", err)
	}
	for _, p := range parcelList {
		c.parcels[parcelKey{p.X, p.Z}] = p.OwnerID
	}

	if tickStr, err := c.db.GetMeta("last_tick"); err == nil && tickStr != "" {
		if t, err := strconv.ParseUint(tickStr, 10, 64); err == nil {
			c.tick = t
		}
	}
	if owStr, err := c.db.GetMeta("outside_world"); err == nil && owStr != "" {
		if v, err := strconv.ParseInt(owStr, 10, 64); err == nil {
			c.outsideWorld = v
		}
	}
	return nil
}

// CurrentTick returns the most recently completed tick number.
func (c *City) CurrentTick() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tick
}

// Agent returns the live agent record, or nil.
func (c *City) Agent(id string) *agents.Agent {
	return c.agents[id]
}

// AgentSnapshot returns a copy of an agent's state, or false if unknown.
func (c *City) AgentSnapshot(id string) (agents.Agent, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a := c.agents[id]
	if a == nil {
		return agents.Agent{}, false
	}
	return a.Snapshot(), true
}

// AgentSnapshots returns copies of every agent in registration order.
func (c *City) AgentSnapshots() []agents.Agent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]agents.Agent, 0, len(c.agentOrder))
	for _, id := range c.agentOrder {
		out = append(out, c.agents[id].Snapshot())
	}
	return out
}

// BuildingSnapshots returns copies of every building in placement order.
func (c *City) BuildingSnapshots() []buildings.Building {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]buildings.Building, 0, len(c.buildingOrder))
	for _, id := range c.buildingOrder {
		b := *c.buildings[id]
		b.Employees = append([]string(nil), b.Employees...)
		out = append(out, b)
	}
	return out
}

// Building returns the live building record, or nil.
func (c *City) Building(id string) *buildings.Building {
	return c.buildings[id]
}

// Policy exposes the policy vote state.
func (c *City) Policy() *PolicyState {
	return c.policy
}

// Goals returns the active season goals.
func (c *City) Goals() []*Goal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*Goal(nil), c.goals.Goals()...)
}

// BandState returns the committed treasury band and its moving average.
func (c *City) BandState() (Band, int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.band.Current(), c.band.Average()
}

// emit buffers a feed event for batch persistence at tick end.
func (c *City) emit(tick uint64, category, description string, meta map[string]any) {
	c.events = append(c.events, store.Event{
		Tick:        tick,
		Category:    category,
		Description: description,
		Meta:        meta,
	})
}

// policeCount returns the number of active police employed at active stations.
func (c *City) policeCount() int {
	n := 0
	for _, id := range c.agentOrder {
		a := c.agents[id]
		if a.Status != agents.StatusActive || a.Profession != agents.ProfessionPolice {
			continue
		}
		b := c.buildings[a.EmployerID]
		if b != nil && b.Status == buildings.StatusActive {
			n++
		}
	}
	return n
}

// activeAgents counts agents not in jail.
func (c *City) activeAgents() int {
	n := 0
	for _, a := range c.agents {
		if a.Status == agents.StatusActive {
			n++
		}
	}
	return n
}

// RegisterAgent creates a new agent with a linked account and a starting
// grant minted from the NPC pool. Returns the agent and its raw API key; the
// key is persisted only as a one-way hash by the caller.
func (c *City) RegisterAgent(name, aiModel string, profession agents.Profession) (*agents.Agent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if name == "" {
		return nil, fmt.Errorf("agent name is required")
	}
	if profession == "" {
		profession = agents.ProfessionLaborer
	}
	if !agents.ValidProfession(profession) {
		return nil, fmt.Errorf("unknown profession %q", profession)
	}

	id := uuid.NewString()
	accountID := "acct-" + id
	if err := c.db.CreateAccount(accountID, store.OwnerAgent, id); err != nil {
		return nil, err
	}

	a := &agents.Agent{
		ID:         id,
		Name:       name,
		AIModel:    aiModel,
		Profession: profession,
		AccountID:  accountID,
		Reputation: 50,
		Hunger:     80,
		Rest:       80,
		Fun:        50,
		Status:     agents.StatusActive,
		JoinedTick: c.tick,
	}
	c.agents[id] = a
	c.agentOrder = append(c.agentOrder, id)

	if c.cfg.StartingBalance > 0 {
		if _, err := c.led.Mint(accountID, c.cfg.StartingBalance, ledger.TxGrant, c.tick,
			map[string]string{"agent": id}); err != nil {
			return nil, fmt.Errorf("starting grant: %w", err)
		}
	}

	if err := c.db.SaveAgents([]*agents.Agent{a}); err != nil {
		return nil, fmt.Errorf("persist agent: %w", err)
	}
	return a, nil
}

// unemploy clears the employment link on both sides.
func (c *City) unemploy(a *agents.Agent) {
	if a.EmployerID == "" {
		return
	}
	if b := c.buildings[a.EmployerID]; b != nil {
		for i, id := range b.Employees {
			if id == a.ID {
				b.Employees = append(b.Employees[:i], b.Employees[i+1:]...)
				break
			}
		}
	}
	a.EmployerID = ""
}

// persistTick writes the tick's mutated state: agents, buildings, the event
// batch, and the advanced tick counter.
func (c *City) persistTick(tick uint64) error {
	list := make([]*agents.Agent, 0, len(c.agentOrder))
	for _, id := range c.agentOrder {
		list = append(list, c.agents[id])
	}
	if err := c.db.SaveAgents(list); err != nil {
		return fmt.Errorf("save agents: %w", err)
	}

	blist := make([]*buildings.Building, 0, len(c.buildingOrder))
	for _, id := range c.buildingOrder {
		blist = append(blist, c.buildings[id])
	}
	if err := c.db.SaveBuildings(blist); err != nil {
		return fmt.Errorf("save buildings: %w", err)
	}

	if err := c.db.SaveEvents(c.events); err != nil {
		return fmt.Errorf("save events: %w", err)
	}
	c.events = nil
	if err := c.db.SaveMeta("last_tick", strconv.FormatUint(tick, 10)); err != nil {
		return fmt.Errorf("save tick counter: %w", err)
	}
	if err := c.db.SaveMeta("outside_world", strconv.FormatInt(c.outsideWorld, 10)); err != nil {
		return fmt.Errorf("save outside world: %w", err)
	}
	return nil
}
