package scoring

import "time"

// Option applies a configuration option to the Policy.
type Option func(*Policy)

// WithTimeBudget sets the per-player play window.
func WithTimeBudget(budget time.Duration) Option {
	return func(p *Policy) {
		if budget > 0 {
			p.timeBudget = budget
		}
	}
}

// WithMatchPoints sets the base points for a correct match.
func WithMatchPoints(points int) Option {
	return func(p *Policy) {
		if points > 0 {
			p.matchPoints = points
		}
	}
}

// WithMissPenalty sets the flat delta for an incorrect attempt.
func WithMissPenalty(penalty int) Option {
	return func(p *Policy) {
		if penalty < 0 {
			p.missPenalty = penalty
		}
	}
}

// WithComboStep sets the multiplier growth per streak step.
func WithComboStep(step float64) Option {
	return func(p *Policy) {
		if step > 0 {
			p.comboStep = step
		}
	}
}
