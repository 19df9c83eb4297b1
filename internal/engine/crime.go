// Crime resolution — the one probabilistic action. A single draw against the
// catch probability picks the branch; both branches record an immutable
// crime event.
package engine

import (
	"fmt"
	"math"

	"github.com/dustin/go-humanize"

	"github.com/talgya/civitas/internal/agents"
	"github.com/talgya/civitas/internal/config"
	"github.com/talgya/civitas/internal/ledger"
	"github.com/talgya/civitas/internal/store"
)

// reputationMultiplier steps the catch probability by how known the actor is.
func reputationMultiplier(rep int) float64 {
	switch {
	case rep >= 70:
		return 0.7
	case rep >= 40:
		return 1.0
	case rep >= 20:
		return 1.3
	default:
		return 1.6
	}
}

// CatchChance computes the probability a crime attempt is caught.
// policeMod is the active police-effectiveness policy modifier.
func CatchChance(cfg *config.Tuning, reputation, rest, policeCount int, policeMod float64) float64 {
	base := cfg.CrimeBaseCatch + float64(policeCount)*cfg.CrimePerPoliceBonus + policeMod
	if base > 0.9 {
		base = 0.9
	}
	p := base * reputationMultiplier(reputation)
	if rest < 20 {
		p += cfg.CrimeFatiguePenalty
	}
	if p > 0.95 {
		p = 0.95
	}
	return p
}

func (e *ActionEngine) handleCrime(tick uint64, a *agents.Agent, req ActionRequest) (string, Diff, string) {
	c := e.city

	victim := c.agents[req.TargetAgentID]
	if victim == nil || victim.ID == a.ID {
		return "", Diff{}, ReasonInvalidTarget
	}

	p := CatchChance(c.cfg, a.Reputation, a.Rest, c.policeCount(), c.policy.Modifier(PolicyPolice))

	if c.rng.Float64() < p {
		// Caught: fine of 20% of current balance (minimum 1), jail.
		bal, err := c.led.Balance(a.AccountID)
		if err != nil {
			return "", Diff{}, ReasonInternal
		}
		fine := int64(math.Round(float64(bal) * c.cfg.CrimeFineRate))
		if fine < 1 {
			fine = 1
		}
		if fine > bal {
			fine = bal
		}
		if fine > 0 {
			if _, err := c.led.Transfer(a.AccountID, store.AccountTreasury, fine, ledger.TxFine, tick,
				map[string]string{"agent": a.ID}); err != nil {
				return "", Diff{}, ReasonInternal
			}
		}

		// Counters only move once the attempt actually resolved; an internal
		// fault above leaves the agent's record untouched.
		a.Stats.CrimeCount++
		c.weeklyCrimes++

		repLoss := a.Reputation
		if repLoss > 10 {
			repLoss = 10
		}
		a.AddReputation(-repLoss)
		a.Status = agents.StatusJailed
		a.JailedAtTick = tick

		c.emit(tick, store.CategoryCrime,
			fmt.Sprintf("%s was caught attempting a theft and jailed, fined %s coins",
				a.Name, humanize.Comma(fine)),
			map[string]any{"agent_id": a.ID, "victim_id": victim.ID, "fine": fine, "caught": true})

		return fmt.Sprintf("%s is caught in the act, fined %s coins, and hauled off to jail.",
				a.Name, humanize.Comma(fine)),
			Diff{Money: -fine, Reputation: -repLoss}, ""
	}

	// Escaped: theft of 15% of the victim's balance, capped.
	vbal, err := c.led.Balance(victim.AccountID)
	if err != nil {
		return "", Diff{}, ReasonInternal
	}
	theft := int64(math.Round(float64(vbal) * c.cfg.TheftRate))
	if theft > c.cfg.TheftCap {
		theft = c.cfg.TheftCap
	}
	if theft > 0 {
		if _, err := c.led.Transfer(victim.AccountID, a.AccountID, theft, ledger.TxTheft, tick,
			map[string]string{"agent": a.ID, "victim": victim.ID}); err != nil {
			return "", Diff{}, ReasonInternal
		}
		a.Stats.SuccessfulThefts++
	}
	a.Stats.CrimeCount++
	c.weeklyCrimes++

	repLoss := a.Reputation
	if repLoss > 3 {
		repLoss = 3
	}
	a.AddReputation(-repLoss)

	c.emit(tick, store.CategoryCrime,
		fmt.Sprintf("%s was robbed of %s coins", victim.Name, humanize.Comma(theft)),
		map[string]any{"agent_id": a.ID, "victim_id": victim.ID, "amount": theft, "caught": false})

	return fmt.Sprintf("%s slips away with %s coins.", a.Name, humanize.Comma(theft)),
		Diff{Money: theft, Reputation: -repLoss}, ""
}
