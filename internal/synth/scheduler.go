package synth

import (
	"fmt"
	"time"
)

// PulseState is where a voice sits in its envelope cycle.
type PulseState int

const (
	Idle PulseState = iota
	FadingIn
	Holding
	FadingOut
	Stopped
)

var pulseStateNames = [...]string{"idle", "fading-in", "holding", "fading-out", "stopped"}

func (s PulseState) String() string {
	if s < 0 || int(s) >= len(pulseStateNames) {
		return fmt.Sprintf("pulse(%d)", int(s))
	}
	return pulseStateNames[s]
}

// switchFade releases sounding voices when a mode or waveform change
// restarts the chains.
const switchFade = 50 * time.Millisecond

// pulseChain is one voice's self-rescheduling envelope loop. At most one
// timer is outstanding per chain.
type pulseChain struct {
	state PulseState
	cycle Cycle
	timer Timer
}

// armLocked schedules the chain's next step. The callback is tagged with
// the current generation so a cancelled chain can never act.
func (e *Engine) armLocked(i int, d time.Duration) {
	gen := e.gen
	e.chains[i].timer = e.clock.AfterFunc(d, func() { e.step(i, gen) })
}

// restartChainsLocked cancels every outstanding entry and starts all
// eight cycles fresh from Idle.
func (e *Engine) restartChainsLocked() {
	e.cancelChainsLocked()
	e.gen++
	for i := range e.chains {
		c := &e.chains[i]
		c.state = Idle
		c.cycle = NextCycle(e.mode, i, e.speedNorm(), e.rnd)
		e.armLocked(i, c.cycle.Wait)
	}
}

func (e *Engine) cancelChainsLocked() {
	for i := range e.chains {
		c := &e.chains[i]
		if c.timer != nil {
			c.timer.Stop()
			c.timer = nil
		}
		c.state = Stopped
	}
}

// step advances voice i one segment. Volume, density and fundamental are
// read at fire time, not when the timer was armed.
func (e *Engine) step(i int, gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running || gen != e.gen || e.graph == nil {
		return
	}
	c := &e.chains[i]
	c.timer = nil
	density := e.state.PopulationDensity

	switch c.state {
	case Idle:
		peak := PeakVolume(e.mode, i, e.targets.Fundamental, e.rnd)
		d := ShapeFadeIn(c.cycle.FadeIn, density)
		e.graph.SetVoiceGain(i, peak, d)
		c.state = FadingIn
		e.armLocked(i, d)
	case FadingIn:
		c.state = Holding
		e.armLocked(i, c.cycle.Hold)
	case Holding:
		d := ShapeFadeOut(c.cycle.FadeOut, density)
		e.graph.SetVoiceGain(i, 0, d)
		c.state = FadingOut
		e.armLocked(i, d)
	case FadingOut:
		c.cycle = NextCycle(e.mode, i, e.speedNorm(), e.rnd)
		c.state = Idle
		e.armLocked(i, c.cycle.Wait)
	}
}

// LiveChains counts chains with a pending timer.
func (e *Engine) LiveChains() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.chains {
		if c.state != Stopped && c.timer != nil {
			n++
		}
	}
	return n
}
