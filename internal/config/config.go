package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

type Config struct {
	Env              string        `mapstructure:"ENV"`
	LogLevel         string        `mapstructure:"LOG_LEVEL"`
	DataDir          string        `mapstructure:"DATA_DIR"`
	VitalsFile       string        `mapstructure:"VITALS_FILE"`
	AppointmentsFile string        `mapstructure:"APPOINTMENTS_FILE"`
	AccessFile       string        `mapstructure:"ACCESS_FILE"`
	RecordsAddr      string        `mapstructure:"RECORDS_ADDR"`
	ChatAddr         string        `mapstructure:"CHAT_ADDR"`
	OpsAddr          string        `mapstructure:"OPS_ADDR"`
	ShutdownTimeout  time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DATA_DIR", ".")
	v.SetDefault("VITALS_FILE", "vitals.csv")
	v.SetDefault("APPOINTMENTS_FILE", "appointments.csv")
	v.SetDefault("ACCESS_FILE", "provider_access.csv")
	v.SetDefault("RECORDS_ADDR", ":1234")
	v.SetDefault("CHAT_ADDR", ":1235")
	v.SetDefault("OPS_ADDR", "")
	v.SetDefault("SHUTDOWN_TIMEOUT", "10s")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"ENV", "LOG_LEVEL", "DATA_DIR", "VITALS_FILE", "APPOINTMENTS_FILE",
		"ACCESS_FILE", "RECORDS_ADDR", "CHAT_ADDR", "OPS_ADDR", "SHUTDOWN_TIMEOUT",
	} {
		_ = v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Level returns the parsed LOG_LEVEL, or info when it does not parse.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(c.LogLevel)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// VitalsPath, AppointmentsPath and AccessPath resolve the record files
// against DATA_DIR. Absolute file settings are used as given.
func (c *Config) VitalsPath() string { return c.resolve(c.VitalsFile) }
func (c *Config) AppointmentsPath() string { return c.resolve(c.AppointmentsFile) }
func (c *Config) AccessPath() string { return c.resolve(c.AccessFile) }

func (c *Config) resolve(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.DataDir, name)
}

// Validate checks that the configuration can be served. An empty listener
// address disables that listener, but at least one protocol listener must
// remain.
func (c *Config) Validate() error {
	if lvl := strings.TrimSpace(c.LogLevel); lvl != "" {
		if _, err := zerolog.ParseLevel(strings.ToLower(lvl)); err != nil {
			return fmt.Errorf("LOG_LEVEL %q is not a valid level: %w", c.LogLevel, err)
		}
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("DATA_DIR must not be empty")
	}
	for key, name := range map[string]string{
		"VITALS_FILE":       c.VitalsFile,
		"APPOINTMENTS_FILE": c.AppointmentsFile,
		"ACCESS_FILE":       c.AccessFile,
	} {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%s must not be empty", key)
		}
	}
	if c.RecordsAddr == "" && c.ChatAddr == "" {
		return fmt.Errorf("RECORDS_ADDR and CHAT_ADDR are both empty; nothing to serve")
	}

	seen := make(map[string]string, 3)
	for _, l := range []struct{ key, addr string }{
		{"RECORDS_ADDR", c.RecordsAddr},
		{"CHAT_ADDR", c.ChatAddr},
		{"OPS_ADDR", c.OpsAddr},
	} {
		if l.addr == "" {
			continue
		}
		if other, dup := seen[l.addr]; dup {
			return fmt.Errorf("%s and %s are both %q", other, l.key, l.addr)
		}
		seen[l.addr] = l.key
	}

	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be positive, got %s", c.ShutdownTimeout)
	}
	return nil
}
