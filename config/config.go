// Package config loads service configuration from the environment.
//
// A .env file in the working directory is loaded first when present;
// variables already set in the process environment win over it.
package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"
)

// Config holds every runtime setting of the service.
type Config struct {
	HTTPPort int
	DBPath   string
	Env      string

	// Location is the time zone the scheduling window is evaluated in.
	Location *time.Location

	TelegramToken  string
	TelegramChatID string

	ClosingSoonLead  time.Duration
	WatchInterval    time.Duration
	InstanceLeaseTTL time.Duration
	NotifyQueueSize  int

	CORSOrigins []string
}

// Defaults returns the configuration used when no variable is set.
func Defaults() Config {
	return Config{
		HTTPPort:         8080,
		DBPath:           "./leave.db",
		Env:              "development",
		Location:         time.UTC,
		ClosingSoonLead:  6 * time.Hour,
		WatchInterval:    time.Minute,
		InstanceLeaseTTL: 2 * time.Minute,
		NotifyQueueSize:  64,
		CORSOrigins:      []string{"*"},
	}
}

// Load reads .env (if any) and the process environment.
func Load() (Config, error) {
	_ = godotenv.Load(".env")
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function. Every invalid or missing
// variable is reported at once.
func FromEnv(getenv func(string) string) (Config, error) {
	cfg := Defaults()

	var missing, invalid []string
	get := func(key string) string { return strings.TrimSpace(getenv(key)) }

	if v := get("LEAVE_HTTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			invalid = append(invalid, "LEAVE_HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}

	if v := get("LEAVE_DB_PATH"); v != "" {
		cfg.DBPath = v
	}

	if v := get("LEAVE_ENV"); v != "" {
		cfg.Env = v
	}

	if v := get("LEAVE_TIMEZONE"); v != "" {
		loc, err := time.LoadLocation(v)
		if err != nil {
			invalid = append(invalid, "LEAVE_TIMEZONE")
		} else {
			cfg.Location = loc
		}
	}

	cfg.TelegramToken = get("LEAVE_TELEGRAM_TOKEN")
	cfg.TelegramChatID = get("LEAVE_TELEGRAM_CHAT_ID")
	if cfg.TelegramToken != "" && cfg.TelegramChatID == "" {
		missing = append(missing, "LEAVE_TELEGRAM_CHAT_ID")
	}

	for key, dst := range map[string]*time.Duration{
		"LEAVE_CLOSING_SOON_LEAD":  &cfg.ClosingSoonLead,
		"LEAVE_WATCH_INTERVAL":     &cfg.WatchInterval,
		"LEAVE_INSTANCE_LEASE_TTL": &cfg.InstanceLeaseTTL,
	} {
		v := get(key)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			invalid = append(invalid, key)
			continue
		}
		*dst = d
	}

	if v := get("LEAVE_NOTIFY_QUEUE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			invalid = append(invalid, "LEAVE_NOTIFY_QUEUE_SIZE")
		} else {
			cfg.NotifyQueueSize = n
		}
	}

	if v := get("LEAVE_CORS_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		cfg.CORSOrigins = origins
	}

	if cfg.WatchInterval*2 > cfg.InstanceLeaseTTL {
		invalid = append(invalid, "LEAVE_INSTANCE_LEASE_TTL (must be at least twice LEAVE_WATCH_INTERVAL)")
	}

	var err error
	if len(missing) > 0 {
		err = multierr.Append(err, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", ")))
	}
	if len(invalid) > 0 {
		sort.Strings(invalid)
		err = multierr.Append(err, fmt.Errorf("invalid environment variables: %s", strings.Join(invalid, ", ")))
	}
	if err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// TelegramEnabled reports whether chat notifications are configured.
func (c Config) TelegramEnabled() bool {
	return c.TelegramToken != ""
}

// Addr is the HTTP listen address.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}
