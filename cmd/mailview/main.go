package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	mailviewembed "github.com/air-gapped/mailview/embed"
	"github.com/air-gapped/mailview/internal/cache"
	"github.com/air-gapped/mailview/internal/config"
	"github.com/air-gapped/mailview/internal/contacts"
	"github.com/air-gapped/mailview/internal/logging"
	"github.com/air-gapped/mailview/internal/prefs"
	"github.com/air-gapped/mailview/internal/server"
)

// Set by linker via -ldflags.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	// Check for --version before full flag parsing
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" {
			fmt.Printf("mailview %s (%s) built %s\n", version, commit, date)
			os.Exit(0)
		}
	}

	// A .env file is optional; the environment wins over it.
	_ = godotenv.Load()

	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "mailview: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup(os.Stdout, cfg.LogLevel)

	if cfg.TLSSkipVerify {
		slog.Warn("TLS certificate verification disabled for address book lookups")
	}

	slog.Info("config loaded",
		"listen", cfg.Listen,
		"mail_dir", cfg.MailDir,
		"prefs_file", cfg.PrefsFile,
		"prefs_db", cfg.PrefsDB,
		"contacts_url", cfg.ContactsURL,
		"contacts_timeout", cfg.ContactsTimeout.String(),
		"contacts_cache_ttl", cfg.ContactsCacheTTL.String(),
		"compose_url", cfg.ComposeURL,
		"max_message_size", cfg.MaxMessageSize,
		"default_theme", cfg.DefaultTheme,
		"tls_skip_verify", cfg.TLSSkipVerify,
	)

	store, closeStore, err := openPrefs(cfg, logger)
	if err != nil {
		slog.Error("open preferences failed", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	book, err := addressBook(cfg, logger)
	if err != nil {
		slog.Error("address book setup failed", "error", err)
		os.Exit(1)
	}

	srv := server.New(cfg, version, mailviewembed.Assets, store, book, logger)

	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("server started", "listen", cfg.Listen, "version", version)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			slog.Error("listen failed", "error", err)
			os.Exit(1)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()
	<-ctx.Done()

	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	slog.Info("shutdown complete")
}

// openPrefs loads preference defaults and opens the store. The returned
// func releases it.
func openPrefs(cfg *config.Config, logger *slog.Logger) (prefs.Store, func(), error) {
	var file *prefs.File
	if cfg.PrefsFile != "" {
		f, err := prefs.LoadDefaults(cfg.PrefsFile)
		switch {
		case errors.Is(err, prefs.ErrNotFound):
			logger.Warn("preferences file not found, using builtin defaults", "path", cfg.PrefsFile)
		case err != nil:
			return nil, nil, fmt.Errorf("load %s: %w", cfg.PrefsFile, err)
		default:
			file = f
		}
	}
	defaults := file.Map()

	if cfg.PrefsDB == "" {
		return prefs.NewMemory(defaults), func() {}, nil
	}
	db, err := prefs.OpenSQLite(cfg.PrefsDB, defaults, logger)
	if err != nil {
		return nil, nil, err
	}
	return db, func() {
		if err := db.Close(); err != nil {
			logger.Error("close preferences", "error", err)
		}
	}, nil
}

// addressBook returns the cached lookup provider, or nil when no endpoint
// is configured.
func addressBook(cfg *config.Config, logger *slog.Logger) (contacts.Provider, error) {
	if cfg.ContactsURL == "" {
		return nil, nil
	}
	p, err := contacts.NewHTTPProvider(cfg.ContactsURL, cfg.ContactsTimeout, cfg.TLSSkipVerify)
	if err != nil {
		return nil, err
	}
	return contacts.NewCached(p, cache.New(cfg.ContactsCacheTTL, cfg.ContactsCacheSize), logger), nil
}
