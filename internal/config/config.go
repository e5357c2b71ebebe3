package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds all application configuration
type Config struct {
	ServerAddress string   `json:"serverAddress"`
	DatabasePath  string   `json:"databasePath"`
	DatabaseURL   string   `json:"databaseUrl"`
	CacheDir      string   `json:"cacheDir"`
	Guest         Guest    `json:"guest"`
	Remote        Remote   `json:"remote"`
	Security      Security `json:"security"`
}

// Guest configuration for anonymous usage quotas
type Guest struct {
	MaxScans               int `json:"maxScans"`
	MaxHistory             int `json:"maxHistory"`
	MaxFavorites           int `json:"maxFavorites"`
	SessionLifetimeDays    int `json:"sessionLifetimeDays"`
	CleanupIntervalMinutes int `json:"cleanupIntervalMinutes"`
}

// Remote configuration for the upstream scan store
type Remote struct {
	BaseURL        string `json:"baseUrl"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
}

// Security configuration
type Security struct {
	// APIKeyHash is a bcrypt hash of the admin API key. Empty disables
	// the admin auth middleware entirely.
	APIKeyHash   string `json:"apiKeyHash"`
	APIKeyHeader string `json:"apiKeyHeader"`
}

// UsePostgres returns true if PostgreSQL should be used for guest sessions
func (c *Config) UsePostgres() bool {
	return c.DatabaseURL != ""
}

// UseSQLite returns true if SQLite should be used for guest sessions
func (c *Config) UseSQLite() bool {
	return !c.UsePostgres() && c.DatabasePath != ""
}

// Default configuration
func defaultConfig() *Config {
	return &Config{
		ServerAddress: ":8080",
		CacheDir:      "./cache",
		Guest: Guest{
			MaxScans:               5,
			MaxHistory:             5,
			MaxFavorites:           5,
			SessionLifetimeDays:    30,
			CleanupIntervalMinutes: 60,
		},
		Remote: Remote{
			BaseURL:        "http://localhost:9090",
			TimeoutSeconds: 15,
		},
		Security: Security{
			APIKeyHeader: "X-API-Key",
		},
	}
}

// Load loads configuration from file or environment
func Load() (*Config, error) {
	cfg := defaultConfig()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.json"
	}

	if data, err := os.ReadFile(configPath); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	// Override from environment variables
	if addr := os.Getenv("SERVER_ADDRESS"); addr != "" {
		cfg.ServerAddress = addr
	}
	if dbPath := os.Getenv("DATABASE_PATH"); dbPath != "" {
		cfg.DatabasePath = dbPath
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.DatabaseURL = dbURL
	}
	if cacheDir := os.Getenv("CACHE_DIR"); cacheDir != "" {
		cfg.CacheDir = cacheDir
	}
	if baseURL := os.Getenv("REMOTE_BASE_URL"); baseURL != "" {
		cfg.Remote.BaseURL = baseURL
	}
	if timeout := os.Getenv("REMOTE_TIMEOUT_SECONDS"); timeout != "" {
		if secs, err := strconv.Atoi(timeout); err == nil && secs > 0 {
			cfg.Remote.TimeoutSeconds = secs
		}
	}
	if keyHash := os.Getenv("API_KEY_HASH"); keyHash != "" {
		cfg.Security.APIKeyHash = keyHash
	}
	if interval := os.Getenv("GUEST_CLEANUP_INTERVAL_MINUTES"); interval != "" {
		if mins, err := strconv.Atoi(interval); err == nil && mins > 0 {
			cfg.Guest.CleanupIntervalMinutes = mins
		}
	}
	if lifetime := os.Getenv("GUEST_SESSION_LIFETIME_DAYS"); lifetime != "" {
		if days, err := strconv.Atoi(lifetime); err == nil && days > 0 {
			cfg.Guest.SessionLifetimeDays = days
		}
	}

	// Ensure cache directory exists
	if err := os.MkdirAll(cfg.CacheDir, 0755); err != nil {
		return nil, err
	}

	// Make cache dir absolute
	absDir, err := filepath.Abs(cfg.CacheDir)
	if err != nil {
		return nil, err
	}
	cfg.CacheDir = absDir

	return cfg, nil
}
