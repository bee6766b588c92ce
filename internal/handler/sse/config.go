package sse

import "time"

// Config holds configuration for SSE connections
type Config struct {
	// KeepAliveInterval is how often to send keep-alive comments so proxies
	// do not close idle subscriptions. 10-15 seconds suits most edge runtimes.
	KeepAliveInterval time.Duration

	// RetryInterval is sent once as the "retry:" field to tune client reconnects
	RetryInterval time.Duration
}

// DefaultConfig returns the default SSE configuration
func DefaultConfig() *Config {
	return &Config{
		KeepAliveInterval: 10 * time.Second,
		RetryInterval:     3 * time.Second,
	}
}
