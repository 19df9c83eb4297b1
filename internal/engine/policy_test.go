package engine

import (
	"math"
	"testing"
)

func TestCastBallotOnePerVoter(t *testing.T) {
	c := newTestCity(t, nil)
	p := c.policy

	if err := p.CastBallot("voter-1", "tax_up"); err != nil {
		t.Fatalf("cast: %v", err)
	}
	if err := p.CastBallot("voter-1", "tax_down"); err != nil {
		t.Fatalf("re-cast: %v", err)
	}

	v := p.CurrentVote()
	if v.Counts["tax_up"] != 0 || v.Counts["tax_down"] != 1 {
		t.Errorf("re-vote should move the count: %v", v.Counts)
	}
}

func TestCastBallotRejectsUnknownOption(t *testing.T) {
	c := newTestCity(t, nil)
	if err := c.policy.CastBallot("voter-1", "abolish_rent"); err == nil {
		t.Error("unknown option accepted")
	}
}

func TestZeroVoteResolutionPicksFirstOption(t *testing.T) {
	c := newTestCity(t, nil)
	p := c.policy

	p.ResolveAndRotate(c, 168)

	hist := p.History()
	if len(hist) != 1 {
		t.Fatalf("history length = %d, want 1", len(hist))
	}
	if hist[0].Winner.ID != "tax_up" {
		t.Errorf("zero-vote winner = %s, want the first option", hist[0].Winner.ID)
	}
	if m := p.Modifier(PolicyTax); math.Abs(m-0.01) > 1e-9 {
		t.Errorf("tax modifier = %v, want 0.01", m)
	}
}

func TestMajorityWinsAndTiesGoFirst(t *testing.T) {
	c := newTestCity(t, nil)
	p := c.policy

	p.CastBallot("a", "tax_down")
	p.CastBallot("b", "tax_down")
	p.CastBallot("c", "tax_up")
	p.ResolveAndRotate(c, 168)

	hist := p.History()
	if hist[len(hist)-1].Winner.ID != "tax_down" {
		t.Fatalf("majority winner = %s, want tax_down", hist[len(hist)-1].Winner.ID)
	}

	// Next template has three options; tie on zero ballots for the last two
	// and one each on the first two resolves to the earlier option.
	p.CastBallot("a", "police_fund")
	p.CastBallot("b", "police_cut")
	p.ResolveAndRotate(c, 336)

	hist = p.History()
	if hist[len(hist)-1].Winner.ID != "police_fund" {
		t.Errorf("tie winner = %s, want the first tied option", hist[len(hist)-1].Winner.ID)
	}
}

func TestModifiersClampCumulatively(t *testing.T) {
	c := newTestCity(t, nil)
	p := c.policy

	// Resolve many weeks with nobody voting. The first-option defaults push
	// categories repeatedly; none may escape the clamp.
	for week := 1; week <= 40; week++ {
		p.ResolveAndRotate(c, uint64(week)*168)
	}
	for cat, m := range p.ActiveModifiers() {
		if math.Abs(m) > c.cfg.PolicyClamp+1e-9 {
			t.Errorf("modifier %s = %v exceeds clamp %v", cat, m, c.cfg.PolicyClamp)
		}
	}
}

func TestVoteRotationCycles(t *testing.T) {
	c := newTestCity(t, nil)
	p := c.policy

	first := p.CurrentVote().Options[0].ID
	for i := 0; i < len(voteTemplates); i++ {
		p.ResolveAndRotate(c, uint64(i+1)*168)
	}
	if got := p.CurrentVote().Options[0].ID; got != first {
		t.Errorf("after a full cycle the template should repeat: %s vs %s", got, first)
	}
}

func TestHistoryIsSeasonScoped(t *testing.T) {
	c := newTestCity(t, nil)
	p := c.policy

	p.ResolveAndRotate(c, 168) // season 0
	p.ResolveAndRotate(c, c.cfg.TicksPerSeason+168) // season 1

	hist := p.History()
	if len(hist) != 1 {
		t.Fatalf("history length = %d, want only the current season's outcome", len(hist))
	}
	if hist[0].Season != 1 {
		t.Errorf("kept outcome season = %d, want 1", hist[0].Season)
	}
}
