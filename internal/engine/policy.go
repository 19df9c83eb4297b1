// Weekly policy votes. One open vote at a time; resolution applies a bounded
// modifier to one of three tracked policy categories.
package engine

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/talgya/civitas/internal/config"
	"github.com/talgya/civitas/internal/store"
)

// PolicyCategory is one of the three tracked policy levers.
type PolicyCategory string

const (
	PolicyTax     PolicyCategory = "tax_rate"
	PolicyPolice  PolicyCategory = "police_effectiveness"
	PolicyLeisure PolicyCategory = "leisure_yield"
)

// VoteOption is one ballot choice carrying a category and a signed modifier.
type VoteOption struct {
	ID       string         `json:"id"`
	Label    string         `json:"label"`
	Category PolicyCategory `json:"category"`
	Delta    float64        `json:"delta"`
}

// Vote is a weekly ballot.
type Vote struct {
	ID       string            `json:"id"`
	OpenedAt uint64            `json:"opened_at_tick"`
	Options  []VoteOption      `json:"options"`
	Ballots  map[string]string `json:"-"` // voter ID -> option ID
	Counts   map[string]int    `json:"counts"`
	Resolved bool              `json:"resolved"`
	Winner   string            `json:"winner,omitempty"`
}

// VoteOutcome is a resolved vote kept in season-scoped history.
type VoteOutcome struct {
	VoteID   string         `json:"vote_id"`
	Tick     uint64         `json:"tick"`
	Season   int            `json:"season"`
	Winner   VoteOption     `json:"winner"`
	Votes    int            `json:"votes"`
	Modifier float64        `json:"modifier_after"`
}

// voteTemplates is the fixed rotating template set.
var voteTemplates = [][]VoteOption{
	{
		{ID: "tax_up", Label: "Raise business taxes", Category: PolicyTax, Delta: 0.01},
		{ID: "tax_down", Label: "Cut business taxes", Category: PolicyTax, Delta: -0.01},
	},
	{
		{ID: "police_fund", Label: "Fund police patrols", Category: PolicyPolice, Delta: 0.02},
		{ID: "police_cut", Label: "Scale back patrols", Category: PolicyPolice, Delta: -0.02},
		{ID: "leisure_fund", Label: "Subsidize festivals", Category: PolicyLeisure, Delta: 0.01},
	},
	{
		{ID: "leisure_up", Label: "Extend park hours", Category: PolicyLeisure, Delta: 0.02},
		{ID: "leisure_down", Label: "Close venues early", Category: PolicyLeisure, Delta: -0.02},
	},
	{
		{ID: "tax_relief", Label: "Emergency tax relief", Category: PolicyTax, Delta: -0.02},
		{ID: "police_surge", Label: "Police surge funding", Category: PolicyPolice, Delta: 0.01},
		{ID: "austerity", Label: "Austerity (raise taxes)", Category: PolicyTax, Delta: 0.02},
	},
}

// PolicyState tracks active modifiers, the open vote, and resolved history.
// Owned by its city; never shared across cities.
type PolicyState struct {
	cfg *config.Tuning

	mu        sync.Mutex
	modifiers map[PolicyCategory]float64
	open      *Vote
	history   []VoteOutcome
	nextTmpl  int
}

// NewPolicyState opens the first vote immediately so exactly one open vote
// exists at any time.
func NewPolicyState(cfg *config.Tuning) *PolicyState {
	p := &PolicyState{
		cfg: cfg,
		modifiers: map[PolicyCategory]float64{
			PolicyTax:     0,
			PolicyPolice:  0,
			PolicyLeisure: 0,
		},
	}
	p.openNext(0)
	return p
}

func (p *PolicyState) openNext(tick uint64) {
	opts := voteTemplates[p.nextTmpl%len(voteTemplates)]
	p.nextTmpl++
	p.open = &Vote{
		ID:       uuid.NewString(),
		OpenedAt: tick,
		Options:  opts,
		Ballots:  make(map[string]string),
		Counts:   make(map[string]int),
	}
}

// CastBallot records one ballot per caller identity per vote.
func (p *PolicyState) CastBallot(voterID, optionID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.open == nil || p.open.Resolved {
		return fmt.Errorf("no open vote")
	}
	valid := false
	for _, o := range p.open.Options {
		if o.ID == optionID {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("unknown option %q", optionID)
	}
	if prev, voted := p.open.Ballots[voterID]; voted {
		p.open.Counts[prev]--
	}
	p.open.Ballots[voterID] = optionID
	p.open.Counts[optionID]++
	return nil
}

// Modifier returns the active cumulative modifier for a category.
func (p *PolicyState) Modifier(cat PolicyCategory) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.modifiers[cat]
}

// ActiveModifiers returns a copy of all category modifiers.
func (p *PolicyState) ActiveModifiers() map[PolicyCategory]float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[PolicyCategory]float64, len(p.modifiers))
	for k, v := range p.modifiers {
		out[k] = v
	}
	return out
}

// CurrentVote returns a copy of the open vote for the query surface.
func (p *PolicyState) CurrentVote() *Vote {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.open == nil {
		return nil
	}
	cp := *p.open
	cp.Counts = make(map[string]int, len(p.open.Counts))
	for k, v := range p.open.Counts {
		cp.Counts[k] = v
	}
	return &cp
}

// History returns resolved vote outcomes, newest last.
func (p *PolicyState) History() []VoteOutcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]VoteOutcome(nil), p.history...)
}

// ResolveAndRotate resolves the open vote at a week boundary (majority wins,
// first option wins ties or zero-vote weeks), applies the winner's modifier
// clamped to the cumulative bound, records the outcome, and opens the next
// vote from the rotating template set.
func (p *PolicyState) ResolveAndRotate(c *City, tick uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	v := p.open
	if v == nil || v.Resolved {
		p.openNext(tick)
		return
	}

	winner := v.Options[0]
	best := v.Counts[winner.ID]
	for _, o := range v.Options[1:] {
		if v.Counts[o.ID] > best {
			winner = o
			best = v.Counts[o.ID]
		}
	}

	v.Resolved = true
	v.Winner = winner.ID

	m := p.modifiers[winner.Category] + winner.Delta
	if m > p.cfg.PolicyClamp {
		m = p.cfg.PolicyClamp
	}
	if m < -p.cfg.PolicyClamp {
		m = -p.cfg.PolicyClamp
	}
	p.modifiers[winner.Category] = m

	outcome := VoteOutcome{
		VoteID:   v.ID,
		Tick:     tick,
		Season:   c.Season(tick),
		Winner:   winner,
		Votes:    best,
		Modifier: m,
	}
	// Season-scoped history: drop outcomes from earlier seasons.
	var kept []VoteOutcome
	for _, h := range p.history {
		if h.Season == outcome.Season {
			kept = append(kept, h)
		}
	}
	p.history = append(kept, outcome)

	c.emit(tick, store.CategoryPolicy,
		fmt.Sprintf("Policy vote resolved: %q wins with %d votes", winner.Label, best),
		map[string]any{"category": string(winner.Category), "delta": winner.Delta, "modifier": m})

	p.openNext(tick)
}
