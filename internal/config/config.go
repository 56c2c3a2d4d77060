package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"officehours/internal/ics"
)

// EnvPrefix prefixes environment overrides, e.g. OFFICEHOURS_TIMEZONE or
// OFFICEHOURS_BASIC_AUTH_PASSWORD.
const EnvPrefix = "OFFICEHOURS"

const (
	defaultListen    = "127.0.0.1:8080"
	defaultTimezone  = "America/New_York"
	defaultStorePath = "officehours.ics"
	defaultWorkers   = 4
	defaultPrune     = "0 3 * * *"
	defaultLogLevel  = "info"
)

// BasicAuthConfig holds HTTP Basic Auth credentials for the API. Auth is
// enabled only when both Username and Password are set.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username" mapstructure:"username"`
	Password string `yaml:"password" json:"password" mapstructure:"password"`
}

func (b BasicAuthConfig) Enabled() bool {
	return b.Username != "" && b.Password != ""
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen" mapstructure:"listen"`

	// Timezone is the IANA zone every office hour is created, matched and
	// displayed in.
	Timezone string `yaml:"timezone" json:"timezone" mapstructure:"timezone"`

	// StorePath is the iCalendar file holding all office hours.
	StorePath string `yaml:"store_path" json:"store_path" mapstructure:"store_path"`

	// StoreLock takes an advisory lock on <store_path>.lock around every
	// read-modify-write, for when several processes share one file.
	StoreLock bool `yaml:"store_lock" json:"store_lock" mapstructure:"store_lock"`

	// Workers bounds the encode/decode fan-out when the store is read or
	// written.
	Workers int `yaml:"workers" json:"workers" mapstructure:"workers"`

	ProductID       string `yaml:"product_id" json:"product_id" mapstructure:"product_id"`
	CalendarVersion string `yaml:"calendar_version" json:"calendar_version" mapstructure:"calendar_version"`
	CalendarSummary string `yaml:"calendar_summary" json:"calendar_summary" mapstructure:"calendar_summary"`

	// PruneCron is the cron schedule of the retention job.
	PruneCron string `yaml:"prune" json:"prune" mapstructure:"prune"`

	// RetentionDays removes office hours that ended more than this many days
	// ago. Zero disables the retention job.
	RetentionDays int `yaml:"retention_days" json:"retention_days" mapstructure:"retention_days"`

	LogLevel string `yaml:"log_level" json:"log_level" mapstructure:"log_level"`
	// LogFile, if set, also writes logs to a rotated file.
	LogFile string `yaml:"log_file" json:"log_file" mapstructure:"log_file"`

	// Metrics exposes /metrics.
	Metrics bool `yaml:"metrics" json:"metrics" mapstructure:"metrics"`

	BasicAuth BasicAuthConfig `yaml:"basic_auth" json:"basic_auth" mapstructure:"basic_auth"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	meta := ics.DefaultMetadata()
	return &Config{
		Listen:          defaultListen,
		Timezone:        defaultTimezone,
		StorePath:       defaultStorePath,
		StoreLock:       true,
		Workers:         defaultWorkers,
		ProductID:       meta.ProductID,
		CalendarVersion: meta.Version,
		CalendarSummary: meta.Summary,
		PruneCron:       defaultPrune,
		LogLevel:        defaultLogLevel,
		Metrics:         true,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.StorePath == "" {
		c.StorePath = def.StorePath
	}
	if c.Workers <= 0 {
		c.Workers = def.Workers
	}
	if c.ProductID == "" {
		c.ProductID = def.ProductID
	}
	if c.CalendarVersion == "" {
		c.CalendarVersion = def.CalendarVersion
	}
	if c.CalendarSummary == "" {
		c.CalendarSummary = def.CalendarSummary
	}
	if c.PruneCron == "" {
		c.PruneCron = def.PruneCron
	}
	if c.RetentionDays < 0 {
		c.RetentionDays = 0
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Metadata is the calendar-level metadata written into the store.
func (c *Config) Metadata() ics.Metadata {
	return ics.Metadata{
		ProductID: c.ProductID,
		Version:   c.CalendarVersion,
		Summary:   c.CalendarSummary,
	}
}

// Retention is how far back the retention job keeps office hours.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// Load loads configuration from the given YAML path, then applies
// OFFICEHOURS_* environment overrides.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	if _, err := os.Stat(path); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		// First run: create default config file.
		if err := Save(path, DefaultConfig()); err != nil {
			return DefaultConfig(), err
		}
	}

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// newViper registers every key with its default so AutomaticEnv can
// override keys the file leaves out.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := DefaultConfig()
	v.SetDefault("listen", def.Listen)
	v.SetDefault("timezone", def.Timezone)
	v.SetDefault("store_path", def.StorePath)
	v.SetDefault("store_lock", def.StoreLock)
	v.SetDefault("workers", def.Workers)
	v.SetDefault("product_id", def.ProductID)
	v.SetDefault("calendar_version", def.CalendarVersion)
	v.SetDefault("calendar_summary", def.CalendarSummary)
	v.SetDefault("prune", def.PruneCron)
	v.SetDefault("retention_days", def.RetentionDays)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("log_file", def.LogFile)
	v.SetDefault("metrics", def.Metrics)
	v.SetDefault("basic_auth.username", "")
	v.SetDefault("basic_auth.password", "")
	return v
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".officehours-config-*.tmp")
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
