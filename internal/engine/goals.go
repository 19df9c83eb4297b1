// Season goals: 2–4 objectives selected at each season boundary, targets
// scaled from current metric values, progress recomputed every tick.
package engine

import (
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/talgya/civitas/internal/config"
	"github.com/talgya/civitas/internal/store"
)

// GoalDirection selects the progress formula.
type GoalDirection string

const (
	DirBelow    GoalDirection = "below"    // reach an absolute value from above
	DirAbove    GoalDirection = "above"    // reach an absolute value from below
	DirIncrease GoalDirection = "increase" // grow relative to the start value
	DirDecrease GoalDirection = "decrease" // shrink relative to the start value
)

// Goal is one seasonal objective.
type Goal struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Metric    string        `json:"metric"`
	Direction GoalDirection `json:"direction"`
	Start     float64       `json:"start"`
	Target    float64       `json:"target"`
	Current   float64       `json:"current"`
	Progress  float64       `json:"progress"` // [0,1]
	Completed bool          `json:"completed"`
	Succeeded *bool         `json:"succeeded,omitempty"` // set at season finalize
}

type goalTemplate struct {
	metric    string
	direction GoalDirection
	// target computes the goal target from the current metric value, or
	// returns false to skip (already trivially satisfied).
	target func(current float64) (float64, bool)
	title  func(target float64) string
}

var goalTemplates = []goalTemplate{
	{
		metric: "unemployment", direction: DirBelow,
		target: func(cur float64) (float64, bool) {
			t := cur * 0.8
			return t, cur > 0.05
		},
		title: func(t float64) string { return fmt.Sprintf("Bring unemployment below %.0f%%", t*100) },
	},
	{
		metric: "treasury", direction: DirAbove,
		target: func(cur float64) (float64, bool) { return cur * 1.25, cur > 0 },
		title:  func(t float64) string { return fmt.Sprintf("Grow the treasury past %.0f coins", t) },
	},
	{
		metric: "crime_rate", direction: DirDecrease,
		target: func(cur float64) (float64, bool) {
			return cur * 0.5, cur > 0.02
		},
		title: func(t float64) string { return fmt.Sprintf("Halve the crime rate (to %.1f%%)", t*100) },
	},
	{
		metric: "avg_fun", direction: DirIncrease,
		target: func(cur float64) (float64, bool) {
			t := cur + 10
			return math.Min(t, 95), cur < 85
		},
		title: func(t float64) string { return fmt.Sprintf("Lift average fun to %.0f", t) },
	},
	{
		metric: "population", direction: DirAbove,
		target: func(cur float64) (float64, bool) { return math.Ceil(cur*1.2) + 1, true },
		title:  func(t float64) string { return fmt.Sprintf("Grow the city to %.0f residents", t) },
	},
	{
		metric: "open_businesses", direction: DirAbove,
		target: func(cur float64) (float64, bool) { return cur + 2, true },
		title:  func(t float64) string { return fmt.Sprintf("Reach %.0f open businesses", t) },
	},
}

// GoalTracker owns the active season's goals. One per city.
type GoalTracker struct {
	cfg   *config.Tuning
	goals []*Goal
}

// NewGoalTracker starts with no goals; the first season rollover (or initial
// selection by the caller) populates them.
func NewGoalTracker(cfg *config.Tuning) *GoalTracker {
	return &GoalTracker{cfg: cfg}
}

// Goals returns the active goals.
func (g *GoalTracker) Goals() []*Goal {
	return g.goals
}

// metricValue reads a goal metric from the latest snapshot.
func (c *City) metricValue(metric string) float64 {
	s := c.lastSnapshot
	if s == nil {
		return 0
	}
	switch metric {
	case "unemployment":
		return s.UnemploymentRate
	case "treasury":
		return float64(s.Treasury)
	case "crime_rate":
		return s.CrimeRate
	case "avg_fun":
		return s.AvgFun
	case "population":
		return float64(s.Agents)
	case "open_businesses":
		return float64(s.OpenBusinesses)
	}
	return 0
}

// SeasonRollover finalizes the previous season's goals from final metric
// values and selects 2–4 new ones, each scaled to the current city.
func (g *GoalTracker) SeasonRollover(c *City, tick uint64) {
	for _, goal := range g.goals {
		ok := goal.Progress >= 1.0
		goal.Succeeded = &ok
		verdict := "failed"
		if ok {
			verdict = "achieved"
		}
		c.emit(tick, store.CategorySeason,
			fmt.Sprintf("Season goal %s: %s", verdict, goal.Title), map[string]any{
				"goal_id": goal.ID, "succeeded": ok, "progress": goal.Progress,
			})
	}

	g.goals = nil
	for _, tmpl := range goalTemplates {
		if len(g.goals) == 4 {
			break
		}
		cur := c.metricValue(tmpl.metric)
		target, viable := tmpl.target(cur)
		if !viable {
			continue
		}
		goal := &Goal{
			ID:        uuid.NewString(),
			Title:     tmpl.title(target),
			Metric:    tmpl.metric,
			Direction: tmpl.direction,
			Start:     cur,
			Target:    target,
			Current:   cur,
		}
		g.goals = append(g.goals, goal)
		c.emit(tick, store.CategorySeason, "New season goal: "+goal.Title,
			map[string]any{"goal_id": goal.ID, "metric": goal.Metric, "target": target})
	}
}

// RecomputeProgress updates each goal's progress fraction from the latest
// metric values, clamped to [0,1].
func (g *GoalTracker) RecomputeProgress(c *City) {
	for _, goal := range g.goals {
		goal.Current = c.metricValue(goal.Metric)
		goal.Progress = goalProgress(goal.Direction, goal.Start, goal.Target, goal.Current)
		if goal.Progress >= 1.0 {
			goal.Completed = true
		}
	}
}

// goalProgress is the direction-specific progress formula.
func goalProgress(dir GoalDirection, start, target, current float64) float64 {
	var p float64
	switch dir {
	case DirBelow, DirDecrease:
		if start <= target {
			return 1
		}
		p = (start - current) / (start - target)
	case DirAbove, DirIncrease:
		if target <= start {
			return 1
		}
		p = (current - start) / (target - start)
	}
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
