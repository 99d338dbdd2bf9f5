package repository

import "time"

// defaultBucketRetention is how long rate rows are kept before pruning.
const defaultBucketRetention = 24 * time.Hour

// Option applies a configuration option to the MemoryStore.
type Option func(*MemoryStore)

// WithBucketRetention sets the rate-bucket retention horizon used when the
// caller prunes with a zero cutoff.
func WithBucketRetention(d time.Duration) Option {
	return func(s *MemoryStore) {
		if d > 0 {
			s.bucketRetention = d
		}
	}
}
