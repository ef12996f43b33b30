package llm

import "time"

// Config controls queue behavior
type Config struct {
	// Concurrency control
	MaxConcurrent int

	// Queue sizes
	CriticalQueueSize   int
	BackgroundQueueSize int

	// Timeouts
	CriticalTimeout   time.Duration
	BackgroundTimeout time.Duration

	// Circuit breaker
	BreakerFailures int
	BreakerTimeout  time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		MaxConcurrent:       2,
		CriticalQueueSize:   20,
		BackgroundQueueSize: 100,
		CriticalTimeout:     60 * time.Second,
		BackgroundTimeout:   360 * time.Second,
		BreakerFailures:     3,
		BreakerTimeout:      60 * time.Second,
	}
}
