package anticheat

import "time"

// Option applies a configuration option to the Guard.
type Option func(*Guard)

// WithMinMoveGap sets the gap under which a move counts as suspicious.
func WithMinMoveGap(gap time.Duration) Option {
	return func(g *Guard) {
		if gap > 0 {
			g.minMoveGap = gap
		}
	}
}

// WithMaxStrikes sets the strike count that blocks a player.
func WithMaxStrikes(strikes int) Option {
	return func(g *Guard) {
		if strikes > 0 {
			g.maxStrikes = strikes
		}
	}
}

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		if now != nil {
			g.now = now
		}
	}
}
