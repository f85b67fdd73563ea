package notify

// Option applies a configuration option to the Broadcaster.
type Option func(*Broadcaster)

// WithBufferSize sets the per-subscriber channel buffer.
func WithBufferSize(size int) Option {
	return func(b *Broadcaster) {
		if size > 0 {
			b.bufferSize = size
		}
	}
}
