// Package config loads server settings from an optional yaml file with
// OVERTURE_* environment overrides on top.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings is the server configuration after defaults, file values and
// environment overrides have been merged.
type Settings struct {
	Addr           string        `yaml:"addr"`
	AuthToken      string        `yaml:"auth_token"`
	LogLevel       string        `yaml:"log_level"`
	TemplateDir    string        `yaml:"template_dir"`
	WorkDir        string        `yaml:"work_dir"`
	DefaultTimeout time.Duration `yaml:"default_timeout"`
	MaxTimeout     time.Duration `yaml:"max_timeout"`
	GracePeriod    time.Duration `yaml:"grace_period"`
	BufferLines    int           `yaml:"buffer_lines"`
	ReapAge        time.Duration `yaml:"reap_age"`
}

func Defaults() Settings {
	return Settings{
		Addr:           "127.0.0.1:8420",
		LogLevel:       "info",
		DefaultTimeout: 10 * time.Minute,
		MaxTimeout:     2 * time.Hour,
		GracePeriod:    5 * time.Second,
		BufferLines:    1000,
		ReapAge:        time.Hour,
	}
}

// Load reads path (optional) and applies environment overrides. A
// missing file is not an error; a malformed one is.
func Load(path string) (Settings, error) {
	settings := Defaults()

	if strings.TrimSpace(path) != "" {
		payload, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Settings{}, err
			}
		} else if err := yaml.Unmarshal(payload, &settings); err != nil {
			return Settings{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	applyEnv(&settings)
	return normalize(settings), nil
}

func applyEnv(settings *Settings) {
	if value, ok := os.LookupEnv("OVERTURE_ADDR"); ok {
		settings.Addr = strings.TrimSpace(value)
	}
	if value, ok := os.LookupEnv("OVERTURE_AUTH_TOKEN"); ok {
		settings.AuthToken = strings.TrimSpace(value)
	}
	if value, ok := os.LookupEnv("OVERTURE_LOG_LEVEL"); ok {
		settings.LogLevel = strings.TrimSpace(value)
	}
	if value, ok := os.LookupEnv("OVERTURE_TEMPLATE_DIR"); ok {
		settings.TemplateDir = strings.TrimSpace(value)
	}
	if value, ok := os.LookupEnv("OVERTURE_WORK_DIR"); ok {
		settings.WorkDir = strings.TrimSpace(value)
	}
	if value := durationEnv("OVERTURE_DEFAULT_TIMEOUT"); value > 0 {
		settings.DefaultTimeout = value
	}
	if value := durationEnv("OVERTURE_MAX_TIMEOUT"); value > 0 {
		settings.MaxTimeout = value
	}
	if value := durationEnv("OVERTURE_GRACE_PERIOD"); value > 0 {
		settings.GracePeriod = value
	}
	if value := durationEnv("OVERTURE_REAP_AGE"); value > 0 {
		settings.ReapAge = value
	}
	if raw, ok := os.LookupEnv("OVERTURE_BUFFER_LINES"); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && parsed > 0 {
			settings.BufferLines = parsed
		}
	}
}

// durationEnv accepts Go duration strings and bare second counts.
func durationEnv(name string) time.Duration {
	raw, ok := os.LookupEnv(name)
	if !ok {
		return 0
	}
	raw = strings.TrimSpace(raw)
	if parsed, err := time.ParseDuration(raw); err == nil {
		return parsed
	}
	if seconds, err := strconv.Atoi(raw); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return 0
}

func normalize(settings Settings) Settings {
	defaults := Defaults()
	if settings.Addr == "" {
		settings.Addr = defaults.Addr
	}
	if settings.LogLevel == "" {
		settings.LogLevel = defaults.LogLevel
	}
	if settings.DefaultTimeout <= 0 {
		settings.DefaultTimeout = defaults.DefaultTimeout
	}
	if settings.MaxTimeout <= 0 {
		settings.MaxTimeout = defaults.MaxTimeout
	}
	if settings.DefaultTimeout > settings.MaxTimeout {
		settings.DefaultTimeout = settings.MaxTimeout
	}
	if settings.GracePeriod <= 0 {
		settings.GracePeriod = defaults.GracePeriod
	}
	if settings.BufferLines <= 0 {
		settings.BufferLines = defaults.BufferLines
	}
	if settings.ReapAge <= 0 {
		settings.ReapAge = defaults.ReapAge
	}
	return settings
}
