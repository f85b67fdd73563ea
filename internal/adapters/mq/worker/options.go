package worker

import "github.com/okian/twinpot/pkg/logger"

// Option applies a configuration option to the Pool.
type Option func(*Pool)

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(p *Pool) {
		if count > 0 {
			p.workers = count
		}
	}
}

// WithLogger sets a custom logger for the pool.
func WithLogger(l logger.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}
