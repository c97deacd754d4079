package pagesync

import "time"

// DefaultRemoteTimeout bounds a single Admin API call.
const DefaultRemoteTimeout = 10 * time.Second

// Policy holds the runtime-tunable parts of the synchronization algorithm.
type Policy struct {
	// EmptyRemoteFallback makes an empty successful remote list fall back to
	// the local store, like a failed one. When false an empty remote list is
	// returned as is.
	EmptyRemoteFallback bool
	// RemoteTimeout bounds each remote call. Hitting it counts as a remote failure.
	RemoteTimeout time.Duration
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		EmptyRemoteFallback: true,
		RemoteTimeout:       DefaultRemoteTimeout,
	}
}

func (p Policy) withDefaults() Policy {
	if p.RemoteTimeout <= 0 {
		p.RemoteTimeout = DefaultRemoteTimeout
	}
	return p
}
