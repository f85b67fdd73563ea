package settlement

import "github.com/okian/twinpot/pkg/logger"

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithPlatformFee sets the platform fee in basis points.
func WithPlatformFee(bp int64) Option {
	return func(e *Engine) {
		if bp >= 0 {
			e.platformFeeBP = bp
		}
	}
}

// WithAffiliateFee sets the affiliate fee in basis points.
func WithAffiliateFee(bp int64) Option {
	return func(e *Engine) {
		if bp >= 0 {
			e.affiliateFeeBP = bp
		}
	}
}

// WithLogger sets a custom logger for the engine.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}
