// Package scoring computes point deltas for move outcomes. The policy is a
// pure function of correctness, streak, and elapsed time; it keeps no state.
package scoring

import (
	"math"
	"time"
)

// Default scoring configuration constants.
const (
	defaultTimeBudget  = 60 * time.Second
	defaultMatchPoints = 100
	defaultMissPenalty = -50
	defaultComboStep   = 0.1
	bonusPerSecond     = 10
)

// Policy maps a move outcome to a point delta.
type Policy struct {
	timeBudget  time.Duration
	matchPoints int
	missPenalty int
	comboStep   float64
}

// NewPolicy creates a scoring policy with configuration options.
func NewPolicy(opts ...Option) *Policy {
	p := &Policy{
		timeBudget:  defaultTimeBudget,
		matchPoints: defaultMatchPoints,
		missPenalty: defaultMissPenalty,
		comboStep:   defaultComboStep,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// TimeBudget returns the per-player play window.
func (p *Policy) TimeBudget() time.Duration {
	return p.timeBudget
}

// Delta returns the point change for one move. streak is the number of
// consecutive correct matches BEFORE this move. An incorrect attempt always
// yields the flat penalty with no bonus or multiplier; scores may go
// negative.
func (p *Policy) Delta(correct bool, streak int, elapsed time.Duration) int {
	if !correct {
		return p.missPenalty
	}
	bonus := p.timeBonus(elapsed)
	multiplier := 1.0 + p.comboStep*float64(streak)
	return int(math.Round(float64(p.matchPoints+bonus) * multiplier))
}

// timeBonus decays linearly from budget*10 to 0 over the time budget.
func (p *Policy) timeBonus(elapsed time.Duration) int {
	remaining := p.timeBudget.Seconds() - elapsed.Seconds()
	bonus := int(math.Round(remaining * bonusPerSecond))
	if bonus < 0 {
		return 0
	}
	return bonus
}
