package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"golang.org/x/sync/errgroup"

	"github.com/kyawsoe1992/G-T24-7bot/internal/api"
	"github.com/kyawsoe1992/G-T24-7bot/internal/bot"
	"github.com/kyawsoe1992/G-T24-7bot/internal/flow"
	"github.com/kyawsoe1992/G-T24-7bot/internal/genai"
	"github.com/kyawsoe1992/G-T24-7bot/internal/lockfile"
	"github.com/kyawsoe1992/G-T24-7bot/internal/messaging"
	"github.com/kyawsoe1992/G-T24-7bot/internal/recovery"
	"github.com/kyawsoe1992/G-T24-7bot/internal/scheduler"
	"github.com/kyawsoe1992/G-T24-7bot/internal/store"
	"github.com/kyawsoe1992/G-T24-7bot/internal/telegram"
	"github.com/kyawsoe1992/G-T24-7bot/internal/twiliowhatsapp"
	"github.com/kyawsoe1992/G-T24-7bot/internal/util"
	"github.com/kyawsoe1992/G-T24-7bot/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for bot state data
	DefaultStateDir = "/var/lib/challengebot"
	// DefaultAppID names the default SQLite database file
	DefaultAppID = "challengebot"
	// DefaultWhatsAppDBFileName is the whatsmeow device database in the state directory
	DefaultWhatsAppDBFileName = "whatsmeow.db"
	// InMemoryDSN selects the in-memory store
	InMemoryDSN = "memory"
	// ConfigFileEnv names the optional TOML configuration file
	ConfigFileEnv = "CHALLENGEBOT_CONFIG"
)

// Supported transports
const (
	TransportTelegram = "telegram"
	TransportWhatsApp = "whatsapp"
	TransportTwilio   = "twilio"
)

func main() {
	initializeLogger(os.Getenv("LOG_LEVEL"))

	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(2)
	}
	if cfg.LogLevel != "" {
		initializeLogger(cfg.LogLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping challenge bot", "transport", cfg.Transport, "state_dir", cfg.StateDir, "api_addr", cfg.APIAddr)
	if err := run(ctx, cfg); err != nil {
		slog.Error("Challenge bot failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Challenge bot exited successfully")
}

// Config holds the merged configuration. Precedence, lowest first: defaults,
// TOML file, environment (.env included), command line flags.
type Config struct {
	Transport            string `toml:"transport"`
	TelegramToken        string `toml:"telegram_token"`
	WebhookURL           string `toml:"webhook_url"`
	WebhookSecret        string `toml:"webhook_secret"`
	TwilioAccountSID     string `toml:"twilio_account_sid"`
	TwilioAuthToken      string `toml:"twilio_auth_token"`
	TwilioFrom           string `toml:"twilio_from"`
	WhatsAppDSN          string `toml:"whatsapp_db_dsn"`
	QROutput             string `toml:"qr_output"`
	NumericCode          bool   `toml:"numeric_code"`
	OpenAIKey            string `toml:"openai_api_key"`
	OpenAIModel          string `toml:"openai_model"`
	OpenAIBaseURL        string `toml:"openai_base_url"`
	Language             string `toml:"language"`
	AdminUserID          string `toml:"admin_user_id"`
	AnnouncementChatID   string `toml:"announcement_chat_id"`
	CommunityLink        string `toml:"community_link"`
	AppID                string `toml:"app_id"`
	StateDir             string `toml:"state_dir"`
	DatabaseDSN          string `toml:"database_dsn"`
	CatalogCacheSize     int    `toml:"catalog_cache_size"`
	APIAddr              string `toml:"api_addr"`
	ReminderCron         string `toml:"reminder_cron"`
	WinnerCron           string `toml:"winner_cron"`
	Timezone             string `toml:"timezone"`
	PersistSessions      bool   `toml:"persist_sessions"`
	BroadcastConcurrency int    `toml:"broadcast_concurrency"`
	LogLevel             string `toml:"log_level"`
}

func defaultConfig() Config {
	return Config{
		Transport:            TransportTelegram,
		AppID:                DefaultAppID,
		StateDir:             DefaultStateDir,
		APIAddr:              api.DefaultAddr,
		ReminderCron:         bot.DefaultReminderCron,
		WinnerCron:           bot.DefaultWinnerCron,
		Timezone:             "UTC",
		BroadcastConcurrency: bot.DefaultBroadcastConcurrency,
	}
}

// initializeLogger sets up structured logging; the level defaults to debug.
func initializeLogger(level string) {
	lvl := slog.LevelDebug
	if level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			lvl = slog.LevelDebug
		}
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
}

// loadConfig merges every configuration source and validates the result.
func loadConfig(args []string) (Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	cfg := defaultConfig()
	if p := os.Getenv(ConfigFileEnv); p != "" {
		if err := loadConfigFile(p, &cfg); err != nil {
			return Config{}, err
		}
	}
	loadEnvironmentConfig(&cfg)
	if err := parseCommandLineFlags(args, &cfg); err != nil {
		return Config{}, err
	}
	applyDerivedDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	slog.Debug("configuration loaded",
		"transport", cfg.Transport,
		"telegram_token_set", cfg.TelegramToken != "",
		"webhook_url_set", cfg.WebhookURL != "",
		"webhook_secret_set", cfg.WebhookSecret != "",
		"twilio_sid_set", cfg.TwilioAccountSID != "",
		"openai_key_set", cfg.OpenAIKey != "",
		"admin_set", cfg.AdminUserID != "",
		"announcement_chat_set", cfg.AnnouncementChatID != "",
		"state_dir", cfg.StateDir,
		"dsn_set", cfg.DatabaseDSN != "",
		"api_addr", cfg.APIAddr,
		"reminder_cron", cfg.ReminderCron,
		"winner_cron", cfg.WinnerCron,
		"timezone", cfg.Timezone,
		"persist_sessions", cfg.PersistSessions)
	return cfg, nil
}

// loadConfigFile overlays the TOML file at p onto cfg. Keys missing from the
// file keep their current values.
func loadConfigFile(p string, cfg *Config) error {
	data, err := os.ReadFile(p)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", p, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", p, err)
	}
	slog.Debug("config file loaded", "path", p)
	return nil
}

// loadEnvironmentConfig overlays non-empty environment variables onto cfg.
func loadEnvironmentConfig(cfg *Config) {
	// Later entries win; DATABASE_DSN takes precedence over DATABASE_URL.
	strVars := []struct {
		key string
		dst *string
	}{
		{"TRANSPORT", &cfg.Transport},
		{"TELEGRAM_BOT_TOKEN", &cfg.TelegramToken},
		{"TELEGRAM_WEBHOOK_URL", &cfg.WebhookURL},
		{"WEBHOOK_SECRET", &cfg.WebhookSecret},
		{"TWILIO_ACCOUNT_SID", &cfg.TwilioAccountSID},
		{"TWILIO_AUTH_TOKEN", &cfg.TwilioAuthToken},
		{"TWILIO_FROM_NUMBER", &cfg.TwilioFrom},
		{"WHATSAPP_DB_DSN", &cfg.WhatsAppDSN},
		{"OPENAI_API_KEY", &cfg.OpenAIKey},
		{"OPENAI_MODEL", &cfg.OpenAIModel},
		{"OPENAI_BASE_URL", &cfg.OpenAIBaseURL},
		{"BOT_LANGUAGE", &cfg.Language},
		{"ADMIN_USER_ID", &cfg.AdminUserID},
		{"ANNOUNCEMENT_CHAT_ID", &cfg.AnnouncementChatID},
		{"COMMUNITY_LINK", &cfg.CommunityLink},
		{"APP_ID", &cfg.AppID},
		{"CHALLENGEBOT_STATE_DIR", &cfg.StateDir},
		{"DATABASE_URL", &cfg.DatabaseDSN},
		{"DATABASE_DSN", &cfg.DatabaseDSN},
		{"API_ADDR", &cfg.APIAddr},
		{"REMINDER_CRON", &cfg.ReminderCron},
		{"WINNER_CRON", &cfg.WinnerCron},
		{"BOT_TIMEZONE", &cfg.Timezone},
		{"LOG_LEVEL", &cfg.LogLevel},
	}
	for _, v := range strVars {
		if val := strings.TrimSpace(os.Getenv(v.key)); val != "" {
			*v.dst = val
		}
	}

	cfg.NumericCode = util.ParseBoolEnv("WHATSAPP_NUMERIC_CODE", cfg.NumericCode)
	cfg.PersistSessions = util.ParseBoolEnv("PERSIST_SESSIONS", cfg.PersistSessions)
	cfg.BroadcastConcurrency = util.ParseIntEnv("BROADCAST_CONCURRENCY", cfg.BroadcastConcurrency)
	cfg.CatalogCacheSize = util.ParseIntEnv("CATALOG_CACHE_SIZE", cfg.CatalogCacheSize)
}

// parseCommandLineFlags applies flags on top of cfg; every flag defaults to
// the value already in cfg.
func parseCommandLineFlags(args []string, cfg *Config) error {
	fs := flag.NewFlagSet("challengebot", flag.ContinueOnError)
	fs.StringVar(&cfg.Transport, "transport", cfg.Transport, "messaging transport: telegram, whatsapp or twilio (overrides $TRANSPORT)")
	fs.StringVar(&cfg.WebhookURL, "webhook-url", cfg.WebhookURL, "public Telegram webhook URL; empty uses long polling (overrides $TELEGRAM_WEBHOOK_URL)")
	fs.StringVar(&cfg.StateDir, "state-dir", cfg.StateDir, "state directory (overrides $CHALLENGEBOT_STATE_DIR)")
	fs.StringVar(&cfg.DatabaseDSN, "db-dsn", cfg.DatabaseDSN, "database DSN, SQLite path or \"memory\" (overrides $DATABASE_DSN)")
	fs.StringVar(&cfg.WhatsAppDSN, "whatsapp-db-dsn", cfg.WhatsAppDSN, "whatsmeow device database DSN (overrides $WHATSAPP_DB_DSN)")
	fs.StringVar(&cfg.QROutput, "qr-output", cfg.QROutput, "path to write the WhatsApp login QR code")
	fs.BoolVar(&cfg.NumericCode, "numeric-code", cfg.NumericCode, "print the WhatsApp pairing code instead of a QR code")
	fs.StringVar(&cfg.APIAddr, "api-addr", cfg.APIAddr, "HTTP listen address (overrides $API_ADDR)")
	fs.StringVar(&cfg.ReminderCron, "reminder-cron", cfg.ReminderCron, "cron expression of the daily reminders (overrides $REMINDER_CRON)")
	fs.StringVar(&cfg.WinnerCron, "winner-cron", cfg.WinnerCron, "cron expression of the monthly winner job (overrides $WINNER_CRON)")
	fs.StringVar(&cfg.Timezone, "timezone", cfg.Timezone, "IANA time zone of the cron expressions (overrides $BOT_TIMEZONE)")
	fs.BoolVar(&cfg.PersistSessions, "persist-sessions", cfg.PersistSessions, "keep open dialogues in the database across restarts (overrides $PERSIST_SESSIONS)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn or error (overrides $LOG_LEVEL)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	slog.Debug("flags parsed", "count", fs.NFlag())
	return nil
}

// applyDerivedDefaults fills values computed from other settings.
func applyDerivedDefaults(cfg *Config) {
	cfg.Transport = strings.ToLower(strings.TrimSpace(cfg.Transport))
	if cfg.AppID == "" {
		cfg.AppID = DefaultAppID
	}
	switch cfg.DatabaseDSN {
	case "":
		cfg.DatabaseDSN = filepath.Join(cfg.StateDir, cfg.AppID+".db")
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", cfg.DatabaseDSN)
	case InMemoryDSN:
		cfg.DatabaseDSN = ""
	}
	if cfg.Transport == TransportWhatsApp && cfg.WhatsAppDSN == "" {
		cfg.WhatsAppDSN = "file:" + filepath.Join(cfg.StateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
	}
	if cfg.WebhookSecret == "" && cfg.WebhookURL != "" {
		cfg.WebhookSecret = webhookSecretFromURL(cfg.WebhookURL)
	}
}

// webhookSecretFromURL uses the last path segment of the public webhook URL.
func webhookSecretFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	seg := path.Base(strings.TrimSuffix(u.Path, "/"))
	if seg == "." || seg == "/" {
		return ""
	}
	return seg
}

func validateConfig(cfg Config) error {
	switch cfg.Transport {
	case TransportTelegram:
		if cfg.WebhookURL != "" && cfg.WebhookSecret == "" {
			return errors.New("telegram webhook URL must end with a secret path segment, or set WEBHOOK_SECRET")
		}
	case TransportWhatsApp, TransportTwilio:
	default:
		return fmt.Errorf("unknown transport %q (want telegram, whatsapp or twilio)", cfg.Transport)
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}
	if cfg.BroadcastConcurrency < 0 {
		return fmt.Errorf("broadcast concurrency must not be negative, got %d", cfg.BroadcastConcurrency)
	}
	return nil
}

// ensureDirectoriesExist creates the state directory and the directory of a
// file-based database.
func ensureDirectoriesExist(cfg Config) error {
	dirs := []string{cfg.StateDir}
	if cfg.DatabaseDSN != "" && store.DetectDSNType(cfg.DatabaseDSN) == "sqlite3" {
		dirs = append(dirs, filepath.Dir(strings.TrimPrefix(cfg.DatabaseDSN, "file:")))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// run wires every component and blocks until ctx is cancelled or a component fails.
func run(ctx context.Context, cfg Config) error {
	if err := ensureDirectoriesExist(cfg); err != nil {
		return err
	}
	lock, err := lockfile.AcquireLock(cfg.StateDir, cfg.Transport)
	if err != nil {
		return err
	}
	defer lock.Release()

	st, err := store.Open(cfg.DatabaseDSN, buildStoreOptions(cfg)...)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	svc, apiOpts, err := buildMessagingService(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Stop()

	var botOpts []bot.Option
	if gen, err := genai.NewClient(buildGenAIOptions(cfg)...); err != nil {
		slog.Warn("GenAI client not configured, using fixed texts", "error", err)
	} else {
		botOpts = append(botOpts, bot.WithGenerator(gen))
	}

	var sessions flow.SessionStore = flow.NewMemorySessionStore()
	if cfg.PersistSessions {
		sessions = flow.NewStoreBasedSessionStore(st)
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("load timezone: %w", err)
	}
	b := bot.New(svc, st, sessions, bot.Config{
		AdminUserID:          cfg.AdminUserID,
		AnnouncementChatID:   cfg.AnnouncementChatID,
		CommunityLink:        cfg.CommunityLink,
		BroadcastConcurrency: cfg.BroadcastConcurrency,
		Location:             loc,
	}, botOpts...)

	sched := scheduler.NewScheduler(scheduler.WithLocation(loc))
	defer sched.Stop()
	if err := b.RegisterJobs(ctx, sched, cfg.ReminderCron, cfg.WinnerCron); err != nil {
		return err
	}

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start %s service: %w", cfg.Transport, err)
	}
	if cfg.PersistSessions {
		recoverDialogues(ctx, st, b)
	}

	server := api.NewServer(st, append(apiOpts, api.WithAddr(cfg.APIAddr), api.WithJobs(sched))...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx) })
	g.Go(func() error {
		err := b.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		if err == nil && gctx.Err() == nil {
			return errors.New("messaging service stopped unexpectedly")
		}
		return err
	})
	return g.Wait()
}

// recoverDialogues asks every persisted dialogue's pending question again.
func recoverDialogues(ctx context.Context, st store.Store, b *bot.Bot) {
	rm := recovery.NewRecoveryManager(st)
	rm.RegisterDialogueRecovery(b.ResumeDialogue)
	rm.RegisterRecoverable(recovery.OpenDialogues{})
	if err := rm.RecoverAll(ctx); err != nil {
		slog.Warn("Some dialogues could not be resumed", "error", err)
	}
}

// buildMessagingService creates the configured transport and the API
// options mounting its webhook.
func buildMessagingService(ctx context.Context, cfg Config) (messaging.Service, []api.Option, error) {
	switch cfg.Transport {
	case TransportTelegram:
		client, err := telegram.NewClient(buildTelegramOptions(cfg)...)
		if err != nil {
			return nil, nil, fmt.Errorf("create telegram client: %w", err)
		}
		svc := messaging.NewTelegramService(client)
		var opts []api.Option
		if client.UsesWebhook() {
			opts = append(opts, api.WithTelegramWebhook(cfg.WebhookSecret, svc.WebhookHandler))
		}
		return svc, opts, nil
	case TransportWhatsApp:
		client, err := whatsapp.NewClient(ctx, buildWhatsAppOptions(cfg)...)
		if err != nil {
			return nil, nil, fmt.Errorf("create whatsapp client: %w", err)
		}
		return messaging.NewWhatsAppService(client), nil, nil
	case TransportTwilio:
		client, err := twiliowhatsapp.NewClient(buildTwilioOptions(cfg)...)
		if err != nil {
			return nil, nil, fmt.Errorf("create twilio client: %w", err)
		}
		svc := messaging.NewTwilioService(client)
		return svc, []api.Option{api.WithTwilioWebhook(svc.TwilioWebhookHandler)}, nil
	}
	return nil, nil, fmt.Errorf("unknown transport %q", cfg.Transport)
}

// buildTelegramOptions constructs Telegram configuration options
func buildTelegramOptions(cfg Config) []telegram.Option {
	var opts []telegram.Option
	if cfg.TelegramToken != "" {
		opts = append(opts, telegram.WithToken(cfg.TelegramToken))
	}
	if cfg.WebhookURL != "" {
		opts = append(opts, telegram.WithWebhookURL(cfg.WebhookURL))
	}
	return opts
}

// buildWhatsAppOptions constructs WhatsApp configuration options
func buildWhatsAppOptions(cfg Config) []whatsapp.Option {
	var opts []whatsapp.Option
	if cfg.QROutput != "" {
		opts = append(opts, whatsapp.WithQRCodeOutput(cfg.QROutput))
	}
	if cfg.NumericCode {
		opts = append(opts, whatsapp.WithNumericCode())
	}
	if cfg.WhatsAppDSN != "" {
		opts = append(opts, whatsapp.WithDBDSN(cfg.WhatsAppDSN))
	}
	return opts
}

// buildTwilioOptions constructs Twilio configuration options
func buildTwilioOptions(cfg Config) []twiliowhatsapp.Option {
	var opts []twiliowhatsapp.Option
	if cfg.TwilioAccountSID != "" {
		opts = append(opts, twiliowhatsapp.WithAccountSID(cfg.TwilioAccountSID))
	}
	if cfg.TwilioAuthToken != "" {
		opts = append(opts, twiliowhatsapp.WithAuthToken(cfg.TwilioAuthToken))
	}
	if cfg.TwilioFrom != "" {
		opts = append(opts, twiliowhatsapp.WithFromWhats(cfg.TwilioFrom))
	}
	return opts
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(cfg Config) []store.Option {
	var opts []store.Option
	if cfg.CatalogCacheSize > 0 {
		opts = append(opts, store.WithCatalogCacheSize(cfg.CatalogCacheSize))
	}
	return opts
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(cfg Config) []genai.Option {
	var opts []genai.Option
	if cfg.OpenAIKey != "" {
		opts = append(opts, genai.WithAPIKey(cfg.OpenAIKey))
	}
	if cfg.OpenAIModel != "" {
		opts = append(opts, genai.WithModel(cfg.OpenAIModel))
	}
	if cfg.OpenAIBaseURL != "" {
		opts = append(opts, genai.WithBaseURL(cfg.OpenAIBaseURL))
	}
	if cfg.Language != "" {
		opts = append(opts, genai.WithLanguage(cfg.Language))
	}
	return opts
}
