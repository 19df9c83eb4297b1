// Treasury band tracking: a smoothed classifier over recent treasury
// balances. Transitions use hysteresis so single-tick noise cannot flap the
// band and the multipliers keyed off it.
package engine

import "github.com/talgya/civitas/internal/config"

// Band is the smoothed economic-health classification.
type Band string

const (
	BandCrisis Band = "crisis"
	BandNormal Band = "normal"
	BandBoom   Band = "boom"
)

// BandTracker keeps a fixed-length moving average of treasury balance and
// the currently-committed band. Mutated once per tick by the snapshot phase.
type BandTracker struct {
	cfg     *config.Tuning
	samples []int64
	next    int
	filled  int
	current Band
}

// NewBandTracker starts in the normal band with an empty window.
func NewBandTracker(cfg *config.Tuning) *BandTracker {
	return &BandTracker{
		cfg:     cfg,
		samples: make([]int64, cfg.BandWindow),
		current: BandNormal,
	}
}

// Observe records a treasury balance sample and re-evaluates the band.
// Exit thresholds differ from entry thresholds: once in crisis the average
// must rise above CrisisExit (not merely re-cross CrisisEnter) to leave, and
// symmetrically for boom.
func (t *BandTracker) Observe(balance int64) Band {
	t.samples[t.next] = balance
	t.next = (t.next + 1) % len(t.samples)
	if t.filled < len(t.samples) {
		t.filled++
	}

	avg := t.Average()
	switch t.current {
	case BandNormal:
		if avg < t.cfg.CrisisEnter {
			t.current = BandCrisis
		} else if avg > t.cfg.BoomEnter {
			t.current = BandBoom
		}
	case BandCrisis:
		if avg > t.cfg.CrisisExit {
			t.current = BandNormal
		}
	case BandBoom:
		if avg < t.cfg.BoomExit {
			t.current = BandNormal
		}
	}
	return t.current
}

// Average returns the moving average over the filled window.
func (t *BandTracker) Average() int64 {
	if t.filled == 0 {
		return 0
	}
	var sum int64
	for i := 0; i < t.filled; i++ {
		sum += t.samples[i]
	}
	return sum / int64(t.filled)
}

// Current returns the committed band label.
func (t *BandTracker) Current() Band {
	return t.current
}

// demandMult returns the demand-budget multiplier for the current band.
func (c *City) demandMult() float64 {
	switch c.band.Current() {
	case BandCrisis:
		return c.cfg.DemandMultCrisis
	case BandBoom:
		return c.cfg.DemandMultBoom
	default:
		return c.cfg.DemandMultNormal
	}
}

// salaryMult returns the salary multiplier for the current band.
func (c *City) salaryMult() float64 {
	switch c.band.Current() {
	case BandCrisis:
		return c.cfg.SalaryMultCrisis
	case BandBoom:
		return c.cfg.SalaryMultBoom
	default:
		return c.cfg.SalaryMultNormal
	}
}
