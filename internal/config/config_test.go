package config

import (
	"strings"
	"testing"
	"time"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]string{})
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Listen != "127.0.0.1:8080" {
		t.Errorf("Listen = %q, want 127.0.0.1:8080", cfg.Listen)
	}
	if cfg.MailDir != "./mail" {
		t.Errorf("MailDir = %q, want ./mail", cfg.MailDir)
	}
	if cfg.PrefsFile != "" || cfg.PrefsDB != "" {
		t.Errorf("prefs sources = %q %q, want empty", cfg.PrefsFile, cfg.PrefsDB)
	}
	if cfg.ContactsURL != "" {
		t.Errorf("ContactsURL = %q, want empty", cfg.ContactsURL)
	}
	if cfg.ContactsTimeout != 2*time.Second {
		t.Errorf("ContactsTimeout = %v, want 2s", cfg.ContactsTimeout)
	}
	if cfg.ContactsCacheTTL != 5*time.Minute {
		t.Errorf("ContactsCacheTTL = %v, want 5m", cfg.ContactsCacheTTL)
	}
	if cfg.ContactsCacheSize != 1000 {
		t.Errorf("ContactsCacheSize = %d, want 1000", cfg.ContactsCacheSize)
	}
	if cfg.MaxMessageSize != 25*1024*1024 {
		t.Errorf("MaxMessageSize = %d, want %d", cfg.MaxMessageSize, 25*1024*1024)
	}
	if cfg.DefaultTheme != "auto" {
		t.Errorf("DefaultTheme = %q, want auto", cfg.DefaultTheme)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if cfg.TLSSkipVerify {
		t.Error("TLSSkipVerify = true, want false")
	}
}

func TestParse_Flags(t *testing.T) {
	args := []string{
		"--listen", ":9090",
		"--mail-dir", "/var/mail/view",
		"--prefs-file", "/etc/mailview/prefs.yaml",
		"--prefs-db", "/var/lib/mailview/prefs.db",
		"--contacts-url", "https://contacts.internal/lookup",
		"--contacts-timeout", "500ms",
		"--contacts-cache-ttl", "1m",
		"--contacts-cache-size", "50",
		"--compose-url", "/compose",
		"--max-message-size", "10MB",
		"--default-theme", "dark",
		"--log-level", "debug",
		"--tls-skip-verify",
	}

	cfg, err := Parse(args)
	if err != nil {
		t.Fatal(err)
	}

	want := Config{
		Listen:            ":9090",
		MailDir:           "/var/mail/view",
		PrefsFile:         "/etc/mailview/prefs.yaml",
		PrefsDB:           "/var/lib/mailview/prefs.db",
		ContactsURL:       "https://contacts.internal/lookup",
		ContactsTimeout:   500 * time.Millisecond,
		ContactsCacheTTL:  time.Minute,
		ContactsCacheSize: 50,
		ComposeURL:        "/compose",
		MaxMessageSize:    10 * 1024 * 1024,
		DefaultTheme:      "dark",
		LogLevel:          "debug",
		TLSSkipVerify:     true,
	}
	if *cfg != want {
		t.Errorf("Parse = %+v\nwant  %+v", *cfg, want)
	}
}

func TestParse_EnvFallback(t *testing.T) {
	t.Setenv("MAILVIEW_LISTEN", ":7070")
	t.Setenv("MAILVIEW_CONTACTS_TIMEOUT", "3s")
	t.Setenv("MAILVIEW_CONTACTS_CACHE_SIZE", "7")
	t.Setenv("MAILVIEW_TLS_SKIP_VERIFY", "true")

	cfg, err := Parse([]string{})
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Listen != ":7070" {
		t.Errorf("Listen = %q, want :7070", cfg.Listen)
	}
	if cfg.ContactsTimeout != 3*time.Second {
		t.Errorf("ContactsTimeout = %v, want 3s", cfg.ContactsTimeout)
	}
	if cfg.ContactsCacheSize != 7 {
		t.Errorf("ContactsCacheSize = %d, want 7", cfg.ContactsCacheSize)
	}
	if !cfg.TLSSkipVerify {
		t.Error("TLSSkipVerify = false, want true")
	}
}

func TestParse_BadEnvIgnored(t *testing.T) {
	t.Setenv("MAILVIEW_CONTACTS_TIMEOUT", "soon")
	t.Setenv("MAILVIEW_CONTACTS_CACHE_SIZE", "many")

	cfg, err := Parse([]string{})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ContactsTimeout != 2*time.Second || cfg.ContactsCacheSize != 1000 {
		t.Errorf("bad env values not ignored: %v %d", cfg.ContactsTimeout, cfg.ContactsCacheSize)
	}
}

func TestParse_FlagOverridesEnv(t *testing.T) {
	t.Setenv("MAILVIEW_LISTEN", ":7070")

	cfg, err := Parse([]string{"--listen", ":9090"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != ":9090" {
		t.Errorf("Listen = %q, want :9090 (flag should override env)", cfg.Listen)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"theme", []string{"--default-theme", "neon"}, "DefaultTheme"},
		{"log level", []string{"--log-level", "loud"}, "LogLevel"},
		{"contacts url", []string{"--contacts-url", "not a url"}, "ContactsURL"},
		{"empty mail dir", []string{"--mail-dir", ""}, "MailDir"},
		{"zero timeout", []string{"--contacts-timeout", "0s"}, "ContactsTimeout"},
		{"negative cache size", []string{"--contacts-cache-size", "-1"}, "ContactsCacheSize"},
		{"message size", []string{"--max-message-size", "notasize"}, "max-message-size"},
		{"unknown flag", []string{"--bogus"}, "bogus"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.args)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q does not mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestParseByteSize(t *testing.T) {
	tests := []struct {
		input string
		want  int64
	}{
		{"100B", 100},
		{"1KB", 1024},
		{"5MB", 5 * 1024 * 1024},
		{"1GB", 1024 * 1024 * 1024},
		{"1.5KB", 1536},
		{"100", 100},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			got, err := parseByteSize(tc.input)
			if err != nil {
				t.Fatalf("parseByteSize(%q) error: %v", tc.input, err)
			}
			if got != tc.want {
				t.Errorf("parseByteSize(%q) = %d, want %d", tc.input, got, tc.want)
			}
		})
	}
}

func TestParseByteSize_Errors(t *testing.T) {
	for _, tc := range []string{"", "notasize", "100TB", "MB"} {
		t.Run(tc, func(t *testing.T) {
			if _, err := parseByteSize(tc); err == nil {
				t.Errorf("parseByteSize(%q) expected error, got nil", tc)
			}
		})
	}
}
