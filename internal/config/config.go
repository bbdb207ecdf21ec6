// Package config loads the YAML configuration file and applies
// STUDIOSYNC_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "STUDIOSYNC"

// Calendar source kinds.
const (
	SourceGoogle = "google"
	SourceICS    = "ics"
)

// CalendarConfig is one synced calendar. Its ID is also the sync stream id.
type CalendarConfig struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name,omitempty" json:"name,omitempty"`
	// Firm is the business the calendar belongs to: GYS, TCB or MG.
	Firm string `yaml:"firm" json:"firm"`
	// Source is "google" (default) or "ics".
	Source string `yaml:"source" json:"source"`
	// URL is the feed address of an ics calendar.
	URL string `yaml:"url,omitempty" json:"url,omitempty"`
}

// StaffConfig is one staff member as written in event titles.
type StaffConfig struct {
	Name          string   `yaml:"name" json:"name"`
	Abbreviations []string `yaml:"abbreviations" json:"abbreviations"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level string `yaml:"level" json:"level"`
	JSON  bool   `yaml:"json" json:"json"`
	// File, when set, receives a rotated copy of the log.
	File string `yaml:"file,omitempty" json:"file,omitempty"`
}

// SyncConfig tunes the sync engines and their schedule.
type SyncConfig struct {
	// RangeStart and RangeEnd (YYYY-MM-DD) bound full listings.
	RangeStart       string `yaml:"range_start" json:"range_start"`
	RangeEnd         string `yaml:"range_end" json:"range_end"`
	IncrementalBatch int    `yaml:"incremental_batch" json:"incremental_batch"`
	FullBatch        int    `yaml:"full_batch" json:"full_batch"`
	PageSize         int    `yaml:"page_size" json:"page_size"`
	// IncrementalCron schedules periodic incremental runs.
	IncrementalCron string `yaml:"incremental_cron" json:"incremental_cron"`
	// HealthCron schedules the staleness check.
	HealthCron string `yaml:"health_cron" json:"health_cron"`
	StaleAfter string `yaml:"stale_after" json:"stale_after"`
	// PurgeUnmapped deletes records of events that stopped qualifying.
	PurgeUnmapped bool `yaml:"purge_unmapped" json:"purge_unmapped"`
}

// WebhookConfig controls push channels.
type WebhookConfig struct {
	// Token is echoed by the calendar in X-Goog-Channel-Token.
	Token string `yaml:"token,omitempty" json:"-"`
	// Address is the public HTTPS URL of POST /webhook.
	Address string `yaml:"address,omitempty" json:"address,omitempty"`
	TTL     string `yaml:"ttl" json:"ttl"`
	// RenewBefore renews a channel expiring within this duration.
	RenewBefore string `yaml:"renew_before" json:"renew_before"`
	RenewCron   string `yaml:"renew_cron" json:"renew_cron"`
}

// BasicAuthConfig guards the /api routes. Empty fields disable it.
type BasicAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MarkersConfig names the title keywords that drive classification.
type MarkersConfig struct {
	Postponed string `yaml:"postponed" json:"postponed"`
	Reference string `yaml:"reference" json:"reference"`
}

// Config is the top-level configuration.
type Config struct {
	Listen string `yaml:"listen" json:"listen"`
	// Timezone is the IANA zone business dates and times are rendered in.
	Timezone string `yaml:"timezone" json:"timezone"`
	Database string `yaml:"database" json:"database"`
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`
	// GoogleCredentials is a service account key file; empty uses
	// application default credentials.
	GoogleCredentials string `yaml:"google_credentials,omitempty" json:"-"`
	BasicAuth         *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"-"`

	Log       LogConfig        `yaml:"log" json:"log"`
	Sync      SyncConfig       `yaml:"sync" json:"sync"`
	Webhook   WebhookConfig    `yaml:"webhook" json:"webhook"`
	Markers   MarkersConfig    `yaml:"markers" json:"markers"`
	Calendars []CalendarConfig `yaml:"calendars" json:"calendars"`
	Staff     []StaffConfig    `yaml:"staff" json:"staff"`
}

// envOverrides are read from STUDIOSYNC_* variables; set values replace the
// file's.
type envOverrides struct {
	Listen            string
	Timezone          string
	Database          string
	LogLevel          string `split_words:"true"`
	GoogleCredentials string `split_words:"true"`
	WebhookToken      string `split_words:"true"`
	WebhookAddress    string `split_words:"true"`
}

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() *Config {
	c := &Config{}
	c.Normalize()
	return c
}

// Normalize fills zero values with defaults.
func (c *Config) Normalize() {
	setDefault(&c.Listen, "127.0.0.1:8080")
	setDefault(&c.Timezone, "Europe/Istanbul")
	setDefault(&c.Database, "./var/studiosync.db")
	setDefault(&c.CacheDir, "./var/ics-cache")
	setDefault(&c.Log.Level, "info")

	setDefault(&c.Sync.RangeStart, "2025-01-01")
	setDefault(&c.Sync.RangeEnd, "2030-12-31")
	if c.Sync.IncrementalBatch <= 0 || c.Sync.IncrementalBatch > 500 {
		c.Sync.IncrementalBatch = 500
	}
	if c.Sync.FullBatch <= 0 || c.Sync.FullBatch > 500 {
		c.Sync.FullBatch = 100
	}
	if c.Sync.PageSize <= 0 {
		c.Sync.PageSize = 2500
	}
	setDefault(&c.Sync.IncrementalCron, "*/15 * * * *")
	setDefault(&c.Sync.HealthCron, "0 9 * * *")
	setDefault(&c.Sync.StaleAfter, "48h")

	setDefault(&c.Webhook.TTL, "168h")
	setDefault(&c.Webhook.RenewBefore, "48h")
	setDefault(&c.Webhook.RenewCron, "0 3 * * *")

	setDefault(&c.Markers.Postponed, "ERTELENDİ")
	setDefault(&c.Markers.Reference, "REF")

	if c.Calendars == nil {
		c.Calendars = []CalendarConfig{}
	}
	for i := range c.Calendars {
		cal := &c.Calendars[i]
		cal.Firm = strings.ToUpper(strings.TrimSpace(cal.Firm))
		setDefault(&cal.Firm, "GYS")
		cal.Source = strings.ToLower(strings.TrimSpace(cal.Source))
		setDefault(&cal.Source, SourceGoogle)
	}
	if c.Staff == nil {
		c.Staff = []StaffConfig{}
	}
}

func setDefault(field *string, def string) {
	if strings.TrimSpace(*field) == "" {
		*field = def
	}
}

// Validate reports configuration that cannot run.
func (c *Config) Validate() error {
	var errs []error
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if _, _, err := c.Range(); err != nil {
		errs = append(errs, err)
	}
	for _, d := range []struct{ name, v string }{
		{"sync.stale_after", c.Sync.StaleAfter},
		{"webhook.ttl", c.Webhook.TTL},
		{"webhook.renew_before", c.Webhook.RenewBefore},
	} {
		if _, err := time.ParseDuration(d.v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.name, err))
		}
	}

	seen := make(map[string]bool)
	for i, cal := range c.Calendars {
		switch {
		case cal.ID == "":
			errs = append(errs, fmt.Errorf("calendars[%d]: id is empty", i))
		case seen[cal.ID]:
			errs = append(errs, fmt.Errorf("calendars[%d]: duplicate id %q", i, cal.ID))
		}
		seen[cal.ID] = true

		switch cal.Firm {
		case "GYS", "TCB", "MG":
		default:
			errs = append(errs, fmt.Errorf("calendars[%d]: unknown firm %q", i, cal.Firm))
		}
		switch cal.Source {
		case SourceGoogle:
		case SourceICS:
			if cal.URL == "" {
				errs = append(errs, fmt.Errorf("calendars[%d]: ics source needs a url", i))
			}
		default:
			errs = append(errs, fmt.Errorf("calendars[%d]: unknown source %q", i, cal.Source))
		}
	}
	return errors.Join(errs...)
}

// Location loads the business timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Range returns the full-sync window; the end date is inclusive.
func (c *Config) Range() (time.Time, time.Time, error) {
	start, err := time.Parse(time.DateOnly, c.Sync.RangeStart)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("sync.range_start: %w", err)
	}
	end, err := time.Parse(time.DateOnly, c.Sync.RangeEnd)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("sync.range_end: %w", err)
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, errors.New("sync range end must be after start")
	}
	return start, end.AddDate(0, 0, 1), nil
}

// StaleAfter is the parsed sync.stale_after.
func (c *Config) StaleAfter() time.Duration { return mustDuration(c.Sync.StaleAfter, 48*time.Hour) }

// WebhookTTL is the parsed webhook.ttl.
func (c *Config) WebhookTTL() time.Duration { return mustDuration(c.Webhook.TTL, 7*24*time.Hour) }

// RenewBefore is the parsed webhook.renew_before.
func (c *Config) RenewBefore() time.Duration { return mustDuration(c.Webhook.RenewBefore, 48*time.Hour) }

func mustDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// ApplyEnv overrides fields from STUDIOSYNC_* environment variables.
func (c *Config) ApplyEnv() error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("env overrides: %w", err)
	}
	override(&c.Listen, env.Listen)
	override(&c.Timezone, env.Timezone)
	override(&c.Database, env.Database)
	override(&c.Log.Level, env.LogLevel)
	override(&c.GoogleCredentials, env.GoogleCredentials)
	override(&c.Webhook.Token, env.WebhookToken)
	override(&c.Webhook.Address, env.WebhookAddress)
	return nil
}

func override(field *string, v string) {
	if v != "" {
		*field = v
	}
}

// Load reads the YAML file at path, writing a default file on first run,
// then applies environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	var cfg *Config
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		cfg = DefaultConfig()
		if err := Save(path, cfg); err != nil {
			return cfg, err
		}
	case err != nil:
		return nil, err
	default:
		cfg = &Config{}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		cfg.Normalize()
	}

	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save writes cfg to path atomically with 0600 permissions.
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

	tmp, err := os.CreateTemp(dir, ".studiosync-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
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
