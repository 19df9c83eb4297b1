// Action engine: validates and applies one agent-submitted action against
// current state. Stateless between calls except the per-agent cooldown map.
package engine

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"

	"github.com/talgya/civitas/internal/agents"
	"github.com/talgya/civitas/internal/buildings"
	"github.com/talgya/civitas/internal/ledger"
	"github.com/talgya/civitas/internal/store"
)

// ActionType enumerates agent-submittable actions.
type ActionType string

const (
	ActionRegister  ActionType = "register"
	ActionWork      ActionType = "work"
	ActionEat       ActionType = "eat"
	ActionSleep     ActionType = "sleep"
	ActionRelax     ActionType = "relax"
	ActionApply     ActionType = "apply"
	ActionCrime     ActionType = "crime"
	ActionBuyParcel ActionType = "buy_parcel"
	ActionBuild     ActionType = "build"
	ActionUpgrade   ActionType = "upgrade"
)

// Rejection reason codes. Always a typed result, never an error.
const (
	ReasonUnknownAgent      = "unknown_agent"
	ReasonUnknownAction     = "unknown_action"
	ReasonAgentJailed       = "agent_jailed"
	ReasonCooldownActive    = "cooldown_active"
	ReasonInsufficientFunds = "insufficient_funds"
	ReasonBuildingNotFound  = "building_not_found"
	ReasonBuildingInactive  = "building_inactive"
	ReasonNoVacancy         = "no_vacancy"
	ReasonWrongProfession   = "wrong_profession"
	ReasonNotEmployed       = "not_employed"
	ReasonAlreadyEmployed   = "already_employed"
	ReasonInvalidTarget     = "invalid_target"
	ReasonParcelTaken       = "parcel_taken"
	ReasonParcelNotOwned    = "parcel_not_owned"
	ReasonFootprintBlocked  = "footprint_blocked"
	ReasonUnknownBuilding   = "unknown_building_type"
	ReasonNotOwner          = "not_owner"
	ReasonInternal          = "internal_error"
)

// ActionRequest is one submitted action.
type ActionRequest struct {
	RequestID        string     `json:"requestId"`
	ConnID           string     `json:"-"` // submitting connection for targeted results
	AgentID          string     `json:"agentId"`
	Type             ActionType `json:"type"`
	TargetAgentID    string     `json:"targetAgentId,omitempty"`
	TargetBuildingID string     `json:"targetBuildingId,omitempty"`
	WorldX           int        `json:"worldX,omitempty"`
	WorldZ           int        `json:"worldZ,omitempty"`
	BuildingType     string     `json:"buildingType,omitempty"`
	AssetKey         string     `json:"assetKey,omitempty"`
	RotY             float64    `json:"rotY,omitempty"`

	arrival uint64
}

// Diff is the machine-readable numeric effect of a successful action.
type Diff struct {
	Money      int64 `json:"money"`
	Hunger     int   `json:"hunger"`
	Rest       int   `json:"rest"`
	Fun        int   `json:"fun"`
	Reputation int   `json:"reputation"`
}

// ActionResult is the typed outcome delivered to the submitting connection.
type ActionResult struct {
	RequestID  string        `json:"requestId"`
	AgentID    string        `json:"agentId"`
	ActionType ActionType    `json:"actionType"`
	Tick       uint64        `json:"tick"`
	OK         bool          `json:"ok"`
	Reason     string        `json:"reason,omitempty"`
	Outcome    string        `json:"outcome,omitempty"`
	Agent      *agents.Agent `json:"agent,omitempty"`
	Diff       *Diff         `json:"diff,omitempty"`
	ConnID     string        `json:"-"`
}

// ActionEngine applies actions one at a time against live city state.
type ActionEngine struct {
	city *City
}

// NewActionEngine creates an action engine for a city.
func NewActionEngine(c *City) *ActionEngine {
	return &ActionEngine{city: c}
}

// Process validates and applies one action. An unexpected internal fault is
// caught and converted into a failure result for this one action; it never
// aborts the remaining queue or the tick.
func (e *ActionEngine) Process(tick uint64, req ActionRequest) (res ActionResult) {
	res = ActionResult{
		RequestID:  req.RequestID,
		AgentID:    req.AgentID,
		ActionType: req.Type,
		Tick:       tick,
		ConnID:     req.ConnID,
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("action panicked", "action", req.Type, "agent", req.AgentID, "panic", r)
			res.OK = false
			res.Reason = ReasonInternal
			res.Outcome = "Something went wrong processing that action."
		}
	}()

	c := e.city

	// Always re-fetch the acting agent; never trust caller-supplied state.
	a := c.agents[req.AgentID]
	if a == nil {
		res.Reason = ReasonUnknownAgent
		return res
	}
	if a.Status == agents.StatusJailed {
		res.Reason = ReasonAgentJailed
		res.Outcome = fmt.Sprintf("%s is in jail and cannot act.", a.Name)
		return res
	}

	// One action per agent per tick, enforced before any mutation.
	if last, ok := c.cooldown[a.ID]; ok && last >= tick {
		res.Reason = ReasonCooldownActive
		return res
	}

	var (
		outcome string
		diff    Diff
		reason  string
	)
	switch req.Type {
	case ActionRegister:
		outcome, diff, reason = e.handleRegister(tick, a)
	case ActionWork:
		outcome, diff, reason = e.handleWork(tick, a)
	case ActionEat:
		outcome, diff, reason = e.handleEat(tick, a, req)
	case ActionSleep:
		outcome, diff, reason = e.handleSleep(a)
	case ActionRelax:
		outcome, diff, reason = e.handleRelax(tick, a, req)
	case ActionApply:
		outcome, diff, reason = e.handleApply(a, req)
	case ActionCrime:
		outcome, diff, reason = e.handleCrime(tick, a, req)
	case ActionBuyParcel:
		outcome, diff, reason = e.handleBuyParcel(tick, a, req)
	case ActionBuild:
		outcome, diff, reason = e.handleBuild(tick, a, req)
	case ActionUpgrade:
		outcome, diff, reason = e.handleUpgrade(tick, a, req)
	default:
		reason = ReasonUnknownAction
	}

	if reason != "" {
		res.Reason = reason
		res.Outcome = outcome
		return res
	}

	c.cooldown[a.ID] = tick
	if len(c.cooldown) > c.cfg.CooldownCompactSize {
		// Lossy wholesale compaction bounds memory for agents that left for
		// good; at worst a connected agent regains one early action.
		c.cooldown = map[string]uint64{a.ID: tick}
	}
	a.LastActiveTick = tick

	snap := a.Snapshot()
	res.OK = true
	res.Outcome = outcome
	res.Agent = &snap
	res.Diff = &diff
	return res
}

// handleRegister announces a previously-registered agent into the world.
func (e *ActionEngine) handleRegister(tick uint64, a *agents.Agent) (string, Diff, string) {
	e.city.emit(tick, store.CategoryAgent,
		fmt.Sprintf("%s has joined the city as a %s", a.Name, a.Profession),
		map[string]any{"agent_id": a.ID, "profession": string(a.Profession)})
	return fmt.Sprintf("Welcome to the city, %s.", a.Name), Diff{}, ""
}

func (e *ActionEngine) handleWork(tick uint64, a *agents.Agent) (string, Diff, string) {
	c := e.city
	if !a.Employed() {
		return "", Diff{}, ReasonNotEmployed
	}
	b := c.buildings[a.EmployerID]
	if b == nil {
		return "", Diff{}, ReasonBuildingNotFound
	}
	if b.Status != buildings.StatusActive {
		return fmt.Sprintf("The %s is closed; no shift today.", b.Type), Diff{}, ReasonBuildingInactive
	}

	diff := Diff{Rest: -c.cfg.WorkRestCost, Fun: -c.cfg.WorkFunCost, Reputation: 1}
	a.AddRest(diff.Rest)
	a.AddFun(diff.Fun)
	a.AddReputation(diff.Reputation)
	a.Stats.WorkHours++
	return fmt.Sprintf("%s puts in a shift at the %s.", a.Name, b.Type), diff, ""
}

func (e *ActionEngine) handleEat(tick uint64, a *agents.Agent, req ActionRequest) (string, Diff, string) {
	c := e.city
	cost := c.cfg.MealCost
	creditTo := ""
	where := "a street vendor"

	if req.TargetBuildingID != "" {
		b := c.buildings[req.TargetBuildingID]
		if b == nil {
			return "", Diff{}, ReasonBuildingNotFound
		}
		if b.Status != buildings.StatusActive || b.Type != buildings.TypeRestaurant {
			return "", Diff{}, ReasonInvalidTarget
		}
		creditTo = b.AccountID
		where = "the restaurant"
	}

	var err error
	if creditTo != "" {
		_, err = c.led.Transfer(a.AccountID, creditTo, cost, ledger.TxPurchase, tick,
			map[string]string{"agent": a.ID, "action": "eat"})
	} else {
		// No venue: the meal is imported, so the spend is a sink.
		_, err = c.led.Sink(a.AccountID, cost, ledger.TxPurchase, tick,
			map[string]string{"agent": a.ID, "action": "eat"})
	}
	if errors.Is(err, ledger.ErrInsufficientFunds) {
		return fmt.Sprintf("%s cannot afford a %s-coin meal.", a.Name, humanize.Comma(cost)), Diff{}, ReasonInsufficientFunds
	}
	if err != nil {
		return "", Diff{}, ReasonInternal
	}

	diff := Diff{Money: -cost, Hunger: c.cfg.MealHunger}
	a.AddHunger(diff.Hunger)
	return fmt.Sprintf("%s eats a meal at %s.", a.Name, where), diff, ""
}

func (e *ActionEngine) handleSleep(a *agents.Agent) (string, Diff, string) {
	diff := Diff{Rest: e.city.cfg.SleepRest}
	a.AddRest(diff.Rest)
	return fmt.Sprintf("%s gets some sleep.", a.Name), diff, ""
}

func (e *ActionEngine) handleRelax(tick uint64, a *agents.Agent, req ActionRequest) (string, Diff, string) {
	c := e.city
	cost := c.cfg.RelaxCost
	creditTo := store.AccountTreasury
	where := "around town"

	if req.TargetBuildingID != "" {
		b := c.buildings[req.TargetBuildingID]
		if b == nil {
			return "", Diff{}, ReasonBuildingNotFound
		}
		if b.Status != buildings.StatusActive {
			return "", Diff{}, ReasonBuildingInactive
		}
		creditTo = b.AccountID
		where = fmt.Sprintf("at the %s", b.Type)
	}

	_, err := c.led.Transfer(a.AccountID, creditTo, cost, ledger.TxPurchase, tick,
		map[string]string{"agent": a.ID, "action": "relax"})
	if errors.Is(err, ledger.ErrInsufficientFunds) {
		return fmt.Sprintf("%s cannot afford to go out.", a.Name), Diff{}, ReasonInsufficientFunds
	}
	if err != nil {
		return "", Diff{}, ReasonInternal
	}

	// Leisure yield scales with the active policy modifier.
	gain := int(float64(c.cfg.RelaxFun) * (1 + c.policy.Modifier(PolicyLeisure)))
	diff := Diff{Money: -cost, Fun: gain}
	a.AddFun(gain)
	return fmt.Sprintf("%s unwinds %s.", a.Name, where), diff, ""
}

func (e *ActionEngine) handleApply(a *agents.Agent, req ActionRequest) (string, Diff, string) {
	c := e.city
	if a.Employed() {
		return "", Diff{}, ReasonAlreadyEmployed
	}
	b := c.buildings[req.TargetBuildingID]
	if b == nil {
		return "", Diff{}, ReasonBuildingNotFound
	}
	if b.Status != buildings.StatusActive {
		return "", Diff{}, ReasonBuildingInactive
	}
	spec := b.Spec()
	if b.MaxEmployees() == 0 || len(b.Employees) >= b.MaxEmployees() {
		return "", Diff{}, ReasonNoVacancy
	}
	if spec.RequiredProfession != "" && a.Profession != spec.RequiredProfession {
		return "", Diff{}, ReasonWrongProfession
	}
	if b.OwnerID == a.ID {
		// Owners draw profit, not salary.
		return "", Diff{}, ReasonAlreadyEmployed
	}

	a.EmployerID = b.ID
	b.Employees = append(b.Employees, a.ID)
	return fmt.Sprintf("%s is hired at the %s.", a.Name, b.Type), Diff{}, ""
}
