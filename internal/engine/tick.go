// Tick scheduler: owns the wall-clock timer, the re-entrancy guard, and
// pause/resume. A tick that fires while one is still executing is dropped,
// not queued (unless catch-up is configured).
package engine

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/talgya/civitas/internal/store"
)

// Season names cycle with the calendar.
var seasonNames = [4]string{"Spring", "Summer", "Autumn", "Winter"}

// SeasonName returns the human-readable name for a season index.
func SeasonName(season int) string {
	return seasonNames[season%4]
}

// Season returns the season index for a tick.
func (c *City) Season(tick uint64) int {
	return int((tick / c.cfg.TicksPerSeason) % 4)
}

// SimTime renders a tick as a human-readable calendar string.
func (c *City) SimTime(tick uint64) string {
	hour := tick % c.cfg.TicksPerDay
	day := (tick / c.cfg.TicksPerDay) % (c.cfg.TicksPerSeason / c.cfg.TicksPerDay)
	year := tick/(c.cfg.TicksPerSeason*4) + 1
	return fmt.Sprintf("%s Day %d, %02d:00 Year %d", SeasonName(c.Season(tick)), day+1, hour, year)
}

func (c *City) weekBoundary(tick uint64) bool {
	return tick > 0 && tick%c.cfg.TicksPerWeek == 0
}

func (c *City) seasonBoundary(tick uint64) bool {
	return tick > 0 && tick%c.cfg.TicksPerSeason == 0
}

// TickOutput is everything one tick produced. The transport collaborator is
// responsible for publishing it; the core only returns values.
type TickOutput struct {
	Tick     uint64         `json:"tick"`
	Snapshot *Snapshot      `json:"snapshot"`
	Events   []store.Event  `json:"events"`
	Results  []ActionResult `json:"results"`
}

// Scheduler drives one city. Exactly one scheduler is authoritative per city.
type Scheduler struct {
	city    *City
	queue   *ActionQueue
	actions *ActionEngine

	interval time.Duration
	trigger  chan struct{}
	stopCh   chan struct{}
	doneCh   chan struct{}

	paused atomic.Bool
	inTick atomic.Bool

	// OnOutput, when set, receives each completed tick's output. Called from
	// the scheduling goroutine; receivers must not block.
	OnOutput func(TickOutput)
}

// NewScheduler wires a scheduler over a city.
func NewScheduler(c *City) *Scheduler {
	return &Scheduler{
		city:     c,
		queue:    NewActionQueue(),
		actions:  NewActionEngine(c),
		interval: time.Duration(c.cfg.TickIntervalMs) * time.Millisecond,
		trigger:  make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Queue exposes the action queue for the submission surface.
func (s *Scheduler) Queue() *ActionQueue {
	return s.queue
}

// City exposes the underlying city for read-only collaborators.
func (s *Scheduler) City() *City {
	return s.city
}

// TickRunning reports whether a tick is currently executing. Collaborators
// use this to know when freshly-consistent aggregate state is safe to read.
func (s *Scheduler) TickRunning() bool {
	return s.inTick.Load()
}

// Pause suppresses tick bodies without stopping the timer. Resuming picks up
// on the next timer fire with no catch-up.
func (s *Scheduler) Pause() { s.paused.Store(true) }

// Resume re-enables tick bodies.
func (s *Scheduler) Resume() { s.paused.Store(false) }

// Paused reports the pause flag.
func (s *Scheduler) Paused() bool { return s.paused.Load() }

// Run starts the timer and the single tick-processing goroutine. Blocks
// until Stop is called.
func (s *Scheduler) Run() {
	slog.Info("scheduler started", "tick", s.city.tick, "interval", s.interval)

	go s.tickWorker()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			close(s.trigger)
			<-s.doneCh
			slog.Info("scheduler stopped", "tick", s.city.tick)
			return
		case <-ticker.C:
			if s.paused.Load() {
				continue
			}
			if s.inTick.Load() && !s.city.cfg.CatchUp {
				// Re-entrancy guard: a missed tick is simply not executed.
				slog.Warn("tick overrun, dropping trigger", "tick", s.city.tick)
				continue
			}
			select {
			case s.trigger <- struct{}{}:
			default:
				// Depth-1 buffer already holds a pending trigger.
			}
		}
	}
}

// Stop halts the scheduler after the in-flight tick (if any) completes.
func (s *Scheduler) Stop() {
	close(s.stopCh)
}

// tickWorker is the single-owner scheduling loop: ticks never overlap.
func (s *Scheduler) tickWorker() {
	defer close(s.doneCh)
	for range s.trigger {
		out := s.RunTick()
		if s.OnOutput != nil {
			s.OnOutput(out)
		}
	}
}

// RunTick executes exactly one tick: drain the action queue, process each
// action in arrival order, run the twelve pipeline phases, persist, and
// return the tick's output. A tick always completes and always produces a
// snapshot; there is no mid-tick cancellation.
func (s *Scheduler) RunTick() TickOutput {
	s.inTick.Store(true)
	defer s.inTick.Store(false)

	c := s.city
	c.mu.Lock()
	defer c.mu.Unlock()
	tick := c.tick + 1
	// Events left over from a failed save ride along with this tick's batch;
	// persistTick clears the buffer only after the batch is written.
	eventsMark := len(c.events)
	c.flows = Flows{}

	// Week boundary control inputs run before the phases so this tick's tax
	// and leisure figures already reflect the resolved vote.
	if c.weekBoundary(tick) {
		c.policy.ResolveAndRotate(c, tick)
	}

	drained := s.queue.Drain()
	results := make([]ActionResult, 0, len(drained))
	for _, req := range drained {
		results = append(results, s.actions.Process(tick, req))
	}

	c.runPipeline(tick)

	if c.seasonBoundary(tick) {
		c.goals.SeasonRollover(c, tick)
		c.emit(tick, store.CategorySeason,
			fmt.Sprintf("%s begins", SeasonName(c.Season(tick))), nil)
	} else if len(c.goals.Goals()) == 0 {
		// Goals are not persisted; the first tick after boot selects the
		// running season's set from the snapshot just recorded.
		c.goals.SeasonRollover(c, tick)
	}
	c.goals.RecomputeProgress(c)

	tickEvents := append([]store.Event(nil), c.events[eventsMark:]...)

	if err := c.persistTick(tick); err != nil {
		// A persistence fault never aborts the tick; state remains authoritative
		// in memory and unsaved events stay buffered for the next tick's save.
		slog.Error("tick persist failed", "tick", tick, "error", err)
	}

	c.tick = tick
	c.replay.add(tick, results)

	if tick%c.cfg.TicksPerDay == 0 {
		c.logDailyReport(tick)
	}

	return TickOutput{
		Tick:     tick,
		Snapshot: c.lastSnapshot,
		Events:   tickEvents,
		Results:  results,
	}
}
