package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"famcal/internal/model"
)

// NOTE: This file provides the configuration model and full YAML-based
// load/save behavior, including first-run config creation and 0600
// permissions.

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// DefaultSessionSecret is the development fallback for auth.session_secret.
const DefaultSessionSecret = "dev-fallback-secret-change-in-production"

// StorageConfig selects where events and exceptions live.
type StorageConfig struct {
	// Driver is "memory" (default, optionally file-backed) or "postgres".
	Driver string `yaml:"driver" json:"driver"`
	// DataPath is the JSON snapshot file of the memory driver. Empty keeps
	// everything in memory only.
	DataPath string `yaml:"data_path" json:"data_path"`
	// FlushCron is a cron-style schedule for writing the memory snapshot.
	FlushCron string `yaml:"flush_cron" json:"flush_cron"`
	// DSN is the Postgres connection string for the postgres driver.
	DSN string `yaml:"dsn,omitempty" json:"dsn,omitempty"`
}

// AuthConfig holds the household PIN and session settings.
type AuthConfig struct {
	// PINHash is a bcrypt hash of the PIN (see `famcal -hash-pin`). Preferred.
	PINHash string `yaml:"pin_hash,omitempty" json:"pin_hash,omitempty"`
	// PIN is a plain-text fallback used only when PINHash is empty.
	PIN string `yaml:"pin,omitempty" json:"pin,omitempty"`
	// SessionSecret signs session tokens.
	SessionSecret string `yaml:"session_secret" json:"session_secret"`
	// SessionDays is the session lifetime.
	SessionDays int `yaml:"session_days" json:"session_days"`
	// SecureCookie sets the Secure attribute on the session cookie.
	SecureCookie bool `yaml:"secure_cookie" json:"secure_cookie"`
}

// Cache drivers.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheNone   = "none"
)

// CacheConfig controls caching of expanded occurrence windows.
type CacheConfig struct {
	// Driver is "memory" (default), "redis" or "none".
	Driver string `yaml:"driver" json:"driver"`
	// TTLSeconds bounds how long a cached window is served.
	TTLSeconds int `yaml:"ttl_seconds" json:"ttl_seconds"`

	RedisAddr     string `yaml:"redis_addr,omitempty" json:"redis_addr,omitempty"`
	RedisPassword string `yaml:"redis_password,omitempty" json:"redis_password,omitempty"`
	RedisDB       int    `yaml:"redis_db,omitempty" json:"redis_db,omitempty"`
}

// ImportConfig controls iCalendar feed imports.
type ImportConfig struct {
	// CacheDir keeps the last body and validators of each fetched feed URL.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// WeekStart controls which weekday is treated as the first day of the week
	// for view ranges. Supported values:
	//   - "monday" (default)
	//   - "sunday"
	WeekStart string `yaml:"week_start" json:"week_start"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// MaxRangeDays caps the span of a single /api/events query.
	MaxRangeDays int `yaml:"max_range_days" json:"max_range_days"`

	Storage StorageConfig `yaml:"storage" json:"storage"`
	Auth    AuthConfig    `yaml:"auth" json:"auth"`
	Cache   CacheConfig   `yaml:"cache" json:"cache"`
	Import  ImportConfig  `yaml:"import" json:"import"`

	// Members, Categories and Periods are household reference data served
	// read-only by the API.
	Members    []model.Member   `yaml:"members" json:"members"`
	Categories []model.Category `yaml:"categories" json:"categories"`
	Periods    []model.Period   `yaml:"periods" json:"periods"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	cfg := &Config{
		Listen:       "127.0.0.1:8080",
		WeekStart:    "monday",
		LogLevel:     "info",
		MaxRangeDays: 366,
		Storage: StorageConfig{
			Driver:    DriverMemory,
			DataPath:  "/var/lib/famcal/data.json",
			FlushCron: "*/5 * * * *",
		},
		Auth: AuthConfig{
			PIN:           "1234",
			SessionSecret: DefaultSessionSecret,
			SessionDays:   7,
		},
		Cache: CacheConfig{
			Driver:     CacheMemory,
			TTLSeconds: 30,
		},
		Import: ImportConfig{
			CacheDir: "/var/lib/famcal/ics-cache",
		},
	}
	cfg.Normalize()
	return cfg
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs (e.g., older versions) still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	switch c.WeekStart {
	case "monday", "sunday":
		// ok
	default:
		// Unknown value; fall back to monday to avoid surprising layouts.
		c.WeekStart = "monday"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.MaxRangeDays <= 0 {
		c.MaxRangeDays = 366
	}

	switch c.Storage.Driver {
	case DriverMemory, DriverPostgres:
	default:
		c.Storage.Driver = DriverMemory
	}
	if c.Storage.FlushCron == "" {
		c.Storage.FlushCron = "*/5 * * * *"
	}

	switch c.Cache.Driver {
	case CacheMemory, CacheRedis, CacheNone:
	default:
		c.Cache.Driver = CacheMemory
	}
	if c.Cache.TTLSeconds <= 0 {
		c.Cache.TTLSeconds = 30
	}

	if c.Import.CacheDir == "" {
		c.Import.CacheDir = "/var/lib/famcal/ics-cache"
	}

	if c.Auth.SessionSecret == "" {
		c.Auth.SessionSecret = DefaultSessionSecret
	}
	if c.Auth.PIN == "" && c.Auth.PINHash == "" {
		c.Auth.PIN = "1234"
	}
	if c.Auth.SessionDays <= 0 {
		c.Auth.SessionDays = 7
	}

	if c.Members == nil {
		c.Members = defaultMembers()
	}
	if c.Categories == nil {
		c.Categories = defaultCategories()
	}
	if c.Periods == nil {
		c.Periods = defaultPeriods()
	}
}

// MemberSet returns the configured member ids as a lookup set.
func (c *Config) MemberSet() map[string]struct{} {
	set := make(map[string]struct{}, len(c.Members))
	for _, m := range c.Members {
		set[m.ID] = struct{}{}
	}
	return set
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via WriteFileAtomic with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data, ".famcal-config-*.tmp")
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}

// WriteFileAtomic writes data to a temp file in the target directory, syncs
// it, sets 0600 and renames it over path. The store's snapshot writer uses
// the same routine.
func WriteFileAtomic(path string, data []byte, pattern string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	// Flush and close before chmod/rename.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}
