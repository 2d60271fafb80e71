package config

import "time"

// DashboardConfig holds runtime configuration for the dashboard API service.
type DashboardConfig struct {
	Environment       string
	Addr              string
	DatabaseURL       string
	EventsTable       string
	UserRuntimePrefix string
	SessionSecret     string
	SessionTTL        time.Duration
	CacheTTL          time.Duration
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	RefreshInterval   time.Duration
	ErrorLogLimit     int
}

// LoadDashboardConfig constructs a DashboardConfig from environment variables.
func LoadDashboardConfig() DashboardConfig {
	return DashboardConfig{
		Environment:       GetString("APP_ENV", "development"),
		Addr:              GetString("API_ADDR", ":4600"),
		DatabaseURL:       GetString("DATABASE_URL", "postgres://openflow:openflow@db:5432/openflow?sslmode=disable"),
		EventsTable:       GetString("EVENTS_TABLE", "telemetry_events"),
		UserRuntimePrefix: GetString("USER_RUNTIME_PREFIX", "runtime-"),
		SessionSecret:     GetString("SESSION_SECRET", "supersecuresecret"),
		SessionTTL:        time.Duration(GetInt("SESSION_TTL_HOURS", 12)) * time.Hour,
		CacheTTL:          time.Duration(GetInt("QUERY_CACHE_TTL_SECONDS", 60)) * time.Second,
		RedisAddr:         GetString("REDIS_ADDR", ""),
		RedisPassword:     GetString("REDIS_PASSWORD", ""),
		RedisDB:           GetInt("REDIS_DB", 0),
		RefreshInterval:   time.Duration(GetInt("REFRESH_INTERVAL_SECONDS", 30)) * time.Second,
		ErrorLogLimit:     GetInt("ERROR_LOG_LIMIT", 200),
	}
}
