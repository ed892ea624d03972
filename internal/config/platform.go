package config

import "time"

// PlatformConfig holds external-platform client configuration
type PlatformConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
	RateLimit      RateLimitConfig
}

// RateLimitConfig holds rate limit configuration
type RateLimitConfig struct {
	RemainingBuffer int
}

// DefaultPlatformConfig returns the default platform configuration
func DefaultPlatformConfig() *PlatformConfig {
	return &PlatformConfig{
		BaseURL:        "https://api.fieldserviceplatform.com/v1",
		RequestTimeout: 30 * time.Second,
		RateLimit: RateLimitConfig{
			RemainingBuffer: 5,
		},
	}
}
