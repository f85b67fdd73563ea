package ledger

import "time"

// Option applies a configuration option to the SimLedger.
type Option func(*SimLedger)

// WithLatencyRange sets the simulated chain latency range.
func WithLatencyRange(minLatency, maxLatency time.Duration) Option {
	return func(l *SimLedger) {
		if minLatency > 0 && maxLatency > minLatency {
			l.minLatency = minLatency
			l.maxLatency = maxLatency
		}
	}
}

// WithFailingPayouts makes every payout fail, used by tests.
func WithFailingPayouts() Option {
	return func(l *SimLedger) {
		l.failPayouts = true
	}
}

// WithFailingRefunds makes every refund fail, used by tests.
func WithFailingRefunds() Option {
	return func(l *SimLedger) {
		l.failRefunds = true
	}
}
