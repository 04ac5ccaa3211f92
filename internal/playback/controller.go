// Package playback drives an engine on a timer. The engine itself is
// synchronous; the controller is a decorator that feeds it one step per
// tick, so pause, speed, and reset never touch execution semantics.
package playback

import (
	"context"
	"sync"
	"time"

	"github.com/loopline/loopline/internal/engine"
	"github.com/loopline/loopline/internal/model"
)

// DefaultInterval is the tick period until SetSpeed is called.
const DefaultInterval = 500 * time.Millisecond

// Observer receives a snapshot after every tick that changed state.
type Observer func(model.Snapshot)

// Controller advances one run automatically. All mutations still go through
// the engine, so everything the controller does appears in the run log
// exactly as if a caller had issued the steps by hand.
type Controller struct {
	eng    *engine.Engine
	runner engine.StepRunner

	mu       sync.Mutex
	interval time.Duration
	playing  bool
	observer Observer

	wake chan struct{}
	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// New creates a paused controller. A nil runner gets the no-op runner.
func New(eng *engine.Engine, runner engine.StepRunner) *Controller {
	if runner == nil {
		runner = engine.NopRunner{}
	}
	c := &Controller{
		eng:      eng,
		runner:   runner,
		interval: DefaultInterval,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	c.wg.Add(1)
	go c.loop()
	return c
}

// SetObserver registers the snapshot callback. Call before Play.
func (c *Controller) SetObserver(obs Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observer = obs
}

// Play starts or resumes automatic ticking.
func (c *Controller) Play() {
	c.mu.Lock()
	c.playing = true
	c.mu.Unlock()
	c.nudge()
}

// Pause stops ticking after the in-flight tick, if any, finishes.
func (c *Controller) Pause() {
	c.mu.Lock()
	c.playing = false
	c.mu.Unlock()
}

// Playing reports whether the controller is currently ticking.
func (c *Controller) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}

// SetSpeed changes the tick interval. Takes effect on the next tick.
func (c *Controller) SetSpeed(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	c.mu.Lock()
	c.interval = interval
	c.mu.Unlock()
	c.nudge()
}

// Step performs exactly one tick by hand, regardless of play state.
func (c *Controller) Step(ctx context.Context) (model.Snapshot, bool) {
	return c.tick(ctx)
}

// Reset pauses playback and restarts the underlying run.
func (c *Controller) Reset() model.Snapshot {
	c.Pause()
	return c.eng.Reset()
}

// Stop shuts the tick loop down. The controller is unusable afterwards;
// the engine remains valid.
func (c *Controller) Stop() {
	c.once.Do(func() { close(c.done) })
	c.wg.Wait()
}

func (c *Controller) nudge() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Controller) loop() {
	defer c.wg.Done()
	timer := time.NewTimer(c.currentInterval())
	defer timer.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-c.wake:
		case <-timer.C:
			if c.Playing() {
				if _, advanced := c.tick(context.Background()); !advanced {
					// nothing actionable: blocked, terminal, or waiting
					c.Pause()
				}
			}
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(c.currentInterval())
	}
}

func (c *Controller) currentInterval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interval
}

// tick executes the next actionable step of the current phase. It reports
// false when the run has nothing the controller can do on its own.
func (c *Controller) tick(ctx context.Context) (model.Snapshot, bool) {
	snap := c.eng.Snapshot()
	if model.IsRunTerminal(snap.RunStatus) || snap.RunStatus == model.RunBlocked {
		return snap, false
	}

	def := c.eng.Definition()
	cur := snap.CurrentPhaseIndex
	if cur >= len(def.Phases) {
		return snap, false
	}
	phase := def.Phases[cur]

	stepIdx := -1
	for si := range phase.SkillIDs {
		if snap.Steps[model.StepKey{Phase: cur, Step: si}] == model.StepPending {
			stepIdx = si
			break
		}
	}
	if stepIdx < 0 {
		return snap, false
	}

	started := time.Now()
	result := c.runner.RunStep(ctx, phase, phase.SkillIDs[stepIdx])
	durMs := result.DurationMs
	if durMs == 0 {
		durMs = time.Since(started).Milliseconds()
	}

	var (
		next model.Snapshot
		err  error
	)
	switch result.Outcome {
	case engine.OutcomeSkipped:
		next, err = c.eng.SkipStep(cur, stepIdx)
	case engine.OutcomeFailed:
		next, err = c.eng.FailStep(cur, stepIdx, result.Detail)
	default:
		next, err = c.eng.CompleteStepTimed(cur, stepIdx, durMs)
	}
	if err != nil {
		return snap, false
	}

	c.mu.Lock()
	obs := c.observer
	c.mu.Unlock()
	if obs != nil {
		obs(next)
	}
	return next, true
}
