package config

import "time"

// SyncConfig holds synchronization configuration
type SyncConfig struct {
	MaxConcurrentEntities int
	MaxRetries            int
	InitialBackoff        time.Duration
	MaxBackoff            time.Duration
	PageDelay             time.Duration
	WatermarkOverlap      time.Duration
	NotifyTimeout         time.Duration
}

// DefaultSyncConfig returns the default sync configuration
func DefaultSyncConfig() *SyncConfig {
	return &SyncConfig{
		MaxConcurrentEntities: 3,
		MaxRetries:            3,
		InitialBackoff:        time.Second,
		MaxBackoff:            time.Minute,
		PageDelay:             250 * time.Millisecond,
		WatermarkOverlap:      5 * time.Minute,
		NotifyTimeout:         10 * time.Second,
	}
}

// SyncConfigFromEnv returns the sync configuration with env overrides applied
func SyncConfigFromEnv() *SyncConfig {
	cfg := DefaultSyncConfig()
	cfg.MaxConcurrentEntities = getEnvInt("SYNC_MAX_CONCURRENT_ENTITIES", cfg.MaxConcurrentEntities)
	cfg.MaxRetries = getEnvInt("SYNC_MAX_RETRIES", cfg.MaxRetries)
	cfg.PageDelay = getEnvDuration("SYNC_PAGE_DELAY", cfg.PageDelay)
	cfg.WatermarkOverlap = getEnvDuration("SYNC_WATERMARK_OVERLAP", cfg.WatermarkOverlap)
	return cfg
}
