package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// Config holds all runtime configuration for mailview.
type Config struct {
	Listen            string
	MailDir           string
	PrefsFile         string
	PrefsDB           string
	ContactsURL       string
	ContactsTimeout   time.Duration
	ContactsCacheTTL  time.Duration
	ContactsCacheSize int
	ComposeURL        string
	MaxMessageSize    int64
	DefaultTheme      string
	LogLevel          string
	TLSSkipVerify     bool
}

// Parse reads configuration from CLI flags with environment variable fallback.
func Parse(args []string) (*Config, error) {
	fs := flag.NewFlagSet("mailview", flag.ContinueOnError)

	cfg := &Config{}

	fs.StringVar(&cfg.Listen, "listen", envOr("MAILVIEW_LISTEN", "127.0.0.1:8080"), "Listen address")
	fs.StringVar(&cfg.MailDir, "mail-dir", envOr("MAILVIEW_MAIL_DIR", "./mail"), "Directory of <id>.eml messages")
	fs.StringVar(&cfg.PrefsFile, "prefs-file", envOr("MAILVIEW_PREFS_FILE", ""), "YAML file with preference defaults")
	fs.StringVar(&cfg.PrefsDB, "prefs-db", envOr("MAILVIEW_PREFS_DB", ""), "SQLite database for preferences (in memory if empty)")
	fs.StringVar(&cfg.ContactsURL, "contacts-url", envOr("MAILVIEW_CONTACTS_URL", ""), "Address book lookup endpoint (disabled if empty)")
	fs.DurationVar(&cfg.ContactsTimeout, "contacts-timeout", envDurationOr("MAILVIEW_CONTACTS_TIMEOUT", 2*time.Second), "Address book lookup timeout")
	fs.DurationVar(&cfg.ContactsCacheTTL, "contacts-cache-ttl", envDurationOr("MAILVIEW_CONTACTS_CACHE_TTL", 5*time.Minute), "Address book lookup cache TTL")
	fs.IntVar(&cfg.ContactsCacheSize, "contacts-cache-size", envIntOr("MAILVIEW_CONTACTS_CACHE_SIZE", 1000), "Max cached address book lookups")
	fs.StringVar(&cfg.ComposeURL, "compose-url", envOr("MAILVIEW_COMPOSE_URL", ""), "Compose page that mailto: links are sent to (kept as mailto: if empty)")
	maxMessageSize := fs.String("max-message-size", envOr("MAILVIEW_MAX_MESSAGE_SIZE", "25MB"), "Max message size to render (e.g. 25MB)")
	fs.StringVar(&cfg.DefaultTheme, "default-theme", envOr("MAILVIEW_DEFAULT_THEME", "auto"), "Default theme: auto, light, or dark")
	fs.StringVar(&cfg.LogLevel, "log-level", envOr("MAILVIEW_LOG_LEVEL", "info"), "Log level: debug, info, warn, or error")
	fs.BoolVar(&cfg.TLSSkipVerify, "tls-skip-verify", envBoolOr("MAILVIEW_TLS_SKIP_VERIFY", false), "Disable TLS certificate verification for address book lookups")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	var err error
	cfg.MaxMessageSize, err = parseByteSize(*maxMessageSize)
	if err != nil {
		return nil, fmt.Errorf("parse max-message-size: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks option values that flag parsing cannot.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Listen, validation.Required),
		validation.Field(&c.MailDir, validation.Required),
		validation.Field(&c.ContactsURL, is.RequestURL),
		validation.Field(&c.ContactsTimeout, validation.Required),
		validation.Field(&c.ContactsCacheTTL, validation.Required),
		validation.Field(&c.ContactsCacheSize, validation.Min(0)),
		validation.Field(&c.MaxMessageSize, validation.Required),
		validation.Field(&c.DefaultTheme,
			validation.Required,
			validation.In("auto", "light", "dark"),
		),
		validation.Field(&c.LogLevel,
			validation.Required,
			validation.In("debug", "info", "warn", "error"),
		),
	)
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		return v == "1" || v == "true" || v == "yes"
	}
	return fallback
}

// parseByteSize parses a human-readable byte size like "100MB", "5KB", "1GB".
func parseByteSize(s string) (int64, error) {
	if len(s) == 0 {
		return 0, fmt.Errorf("empty size string")
	}

	i := 0
	for i < len(s) && ((s[i] >= '0' && s[i] <= '9') || s[i] == '.') {
		i++
	}
	numStr, unit := s[:i], s[i:]

	var num float64
	if _, err := fmt.Sscanf(numStr, "%f", &num); err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}

	var multiplier int64
	switch unit {
	case "", "B":
		multiplier = 1
	case "KB", "kb":
		multiplier = 1024
	case "MB", "mb":
		multiplier = 1024 * 1024
	case "GB", "gb":
		multiplier = 1024 * 1024 * 1024
	default:
		return 0, fmt.Errorf("unknown size unit %q in %q", unit, s)
	}
	return int64(num * float64(multiplier)), nil
}
