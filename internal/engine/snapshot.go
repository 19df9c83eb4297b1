// Snapshot aggregation: phase 12, the replay ring, and the daily report.
package engine

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/talgya/civitas/internal/agents"
	"github.com/talgya/civitas/internal/buildings"
	"github.com/talgya/civitas/internal/store"
)

// Snapshot is the per-tick aggregate view of the city, published to
// collaborators and used by the goal tracker's metric reads.
type Snapshot struct {
	Tick   uint64 `json:"tick"`
	Time   string `json:"time"`
	Season string `json:"season"`

	Agents       int `json:"agents"`
	ActiveAgents int `json:"active_agents"`
	Jailed       int `json:"jailed"`
	Employed     int `json:"employed"`

	UnemploymentRate float64 `json:"unemployment_rate"`
	CrimeRate        float64 `json:"crime_rate"`

	AvgHunger     float64 `json:"avg_hunger"`
	AvgRest       float64 `json:"avg_rest"`
	AvgFun        float64 `json:"avg_fun"`
	AvgReputation float64 `json:"avg_reputation"`

	Buildings          int `json:"buildings"`
	OpenBusinesses     int `json:"open_businesses"`
	ClosedBusinesses   int `json:"closed_businesses"`
	MunicipalBuildings int `json:"municipal_buildings"`

	Treasury     int64 `json:"treasury"`
	DemandPool   int64 `json:"demand_pool"`
	MoneySupply  int64 `json:"money_supply"`
	OutsideWorld int64 `json:"outside_world"`

	Band        Band  `json:"band"`
	BandAverage int64 `json:"band_average"`

	Flows Flows `json:"flows"`
}

// recordSnapshot aggregates the tick's closing state, feeds the band tracker
// its treasury sample, and commits the result as the city's latest snapshot.
// Runs last so every other phase's effects are visible.
func (c *City) recordSnapshot(tick uint64) {
	s := &Snapshot{
		Tick:   tick,
		Time:   c.SimTime(tick),
		Season: SeasonName(c.Season(tick)),
		Flows:  c.flows,
	}

	var hunger, rest, fun, rep int
	for _, a := range c.agents {
		s.Agents++
		hunger += a.Hunger
		rest += a.Rest
		fun += a.Fun
		rep += a.Reputation
		switch a.Status {
		case agents.StatusJailed:
			s.Jailed++
		case agents.StatusActive:
			s.ActiveAgents++
			if a.Employed() {
				s.Employed++
			}
		}
	}
	if s.Agents > 0 {
		s.AvgHunger = float64(hunger) / float64(s.Agents)
		s.AvgRest = float64(rest) / float64(s.Agents)
		s.AvgFun = float64(fun) / float64(s.Agents)
		s.AvgReputation = float64(rep) / float64(s.Agents)
	}
	if s.ActiveAgents > 0 {
		s.UnemploymentRate = float64(s.ActiveAgents-s.Employed) / float64(s.ActiveAgents)
		s.CrimeRate = float64(c.weeklyCrimes) / float64(s.ActiveAgents)
	}

	for _, b := range c.buildings {
		s.Buildings++
		if b.Municipal() {
			s.MunicipalBuildings++
		}
		if !b.Spec().Commercial {
			continue
		}
		switch b.Status {
		case buildings.StatusActive:
			s.OpenBusinesses++
		case buildings.StatusClosed:
			s.ClosedBusinesses++
		}
	}

	if bal, err := c.led.Balance(store.AccountTreasury); err == nil {
		s.Treasury = bal
	}
	if bal, err := c.led.Balance(store.AccountDemandPool); err == nil {
		s.DemandPool = bal
	}
	if supply, err := c.led.MoneySupply(); err == nil {
		s.MoneySupply = supply
	}
	s.OutsideWorld = c.outsideWorld

	before := c.band.Current()
	s.Band = c.band.Observe(s.Treasury)
	s.BandAverage = c.band.Average()
	if s.Band != before {
		c.emit(tick, store.CategoryEconomy,
			fmt.Sprintf("The city's economy shifted from %s to %s", before, s.Band),
			map[string]any{"from": string(before), "to": string(s.Band), "average": s.BandAverage})
	}

	// Weekly crime window closes after the rate is computed.
	if c.weekBoundary(tick) {
		c.weeklyCrimes = 0
	}

	if raw, err := json.Marshal(s); err == nil {
		if err := c.db.SaveMeta("last_snapshot", string(raw)); err != nil {
			slog.Error("snapshot persist failed", "tick", tick, "error", err)
		}
	}
	c.lastSnapshot = s
}

// logDailyReport writes a one-line operational summary at each day boundary.
func (c *City) logDailyReport(tick uint64) {
	s := c.lastSnapshot
	if s == nil {
		return
	}
	slog.Info("daily report",
		"time", s.Time,
		"population", s.Agents,
		"employed", s.Employed,
		"treasury", humanize.Comma(s.Treasury),
		"money_supply", humanize.Comma(s.MoneySupply),
		"band", s.Band,
		"open_businesses", s.OpenBusinesses,
		"avg_fun", fmt.Sprintf("%.0f", s.AvgFun),
	)
}

// replayFrame is one tick's action outcomes retained for short-term replay.
type replayFrame struct {
	Tick    uint64         `json:"tick"`
	Results []ActionResult `json:"results"`
}

// replayRing retains the last N ticks of action results so clients that
// missed a broadcast can re-fetch recent outcomes.
type replayRing struct {
	mu     sync.RWMutex
	frames []replayFrame
	next   int
	filled int
}

func newReplayRing(size int) *replayRing {
	return &replayRing{frames: make([]replayFrame, size)}
}

func (r *replayRing) add(tick uint64, results []ActionResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames[r.next] = replayFrame{Tick: tick, Results: results}
	r.next = (r.next + 1) % len(r.frames)
	if r.filled < len(r.frames) {
		r.filled++
	}
}

// frame returns the retained results for a tick, if still in the window.
func (r *replayRing) frame(tick uint64) ([]ActionResult, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := 0; i < r.filled; i++ {
		if r.frames[i].Tick == tick {
			return r.frames[i].Results, true
		}
	}
	return nil, false
}

// ReplayResults exposes retained action results for the query surface.
func (c *City) ReplayResults(tick uint64) ([]ActionResult, bool) {
	return c.replay.frame(tick)
}

// LastSnapshot returns the most recent committed snapshot, or nil before the
// first tick.
func (c *City) LastSnapshot() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSnapshot
}
