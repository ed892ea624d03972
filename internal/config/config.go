package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port               string
	DBConnectionString string
	PlatformToken      string
	PlatformBaseURL    string
	NotifyWebhookURL   string
	NotifyChannel      string
	SyncCron           string
	SyncTenants        []string
}

func Load() (*Config, error) {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		DBConnectionString: getEnv("DB_CONNECTION_STRING", ""),
		PlatformToken:      getEnv("PLATFORM_TOKEN", ""),
		PlatformBaseURL:    getEnv("PLATFORM_BASE_URL", "https://api.fieldserviceplatform.com/v1"),
		NotifyWebhookURL:   getEnv("NOTIFY_WEBHOOK_URL", ""),
		NotifyChannel:      getEnv("NOTIFY_CHANNEL", "#sync-alerts"),
		SyncCron:           getEnv("SYNC_CRON", "0 */30 * * * *"),
		SyncTenants:        getEnvList("SYNC_TENANTS"),
	}, nil
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}
