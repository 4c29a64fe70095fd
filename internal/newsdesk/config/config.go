// Package config defines the newsdesk configuration file and its defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/RobinCoderZhao/newsdesk/internal/newsdesk/queue"
	"github.com/RobinCoderZhao/newsdesk/internal/newsdesk/relevance"
	"github.com/RobinCoderZhao/newsdesk/internal/newsdesk/scheduler"
	"github.com/RobinCoderZhao/newsdesk/internal/newsdesk/sources"
	appconfig "github.com/RobinCoderZhao/newsdesk/pkg/config"
	"github.com/RobinCoderZhao/newsdesk/pkg/notify"
	"github.com/RobinCoderZhao/newsdesk/pkg/storage"
)

// Config is the main configuration for newsdesk.
type Config struct {
	Server   ServerConfig      `yaml:"server"`
	Database storage.Config    `yaml:"database"`
	Redis    queue.RedisConfig `yaml:"redis"`
	Sources  SourcesConfig     `yaml:"sources"`
	Schedule ScheduleConfig    `yaml:"schedule"`
	Notify   NotifyConfig      `yaml:"notify"`
	Log      LogConfig         `yaml:"log"`
}

// ServerConfig holds HTTP settings.
type ServerConfig struct {
	Addr       string `yaml:"addr" env:"NEWSDESK_ADDR"`
	PublicURL  string `yaml:"public_url" env:"NEWSDESK_PUBLIC_URL"`
	CronSecret string `yaml:"cron_secret" env:"CRON_SECRET"`
	JWTSecret  string `yaml:"jwt_secret" env:"NEWSDESK_JWT_SECRET"`
	AdminUser  string `yaml:"admin_user" env:"NEWSDESK_ADMIN_USER"`
	// AdminPasswordHash is a bcrypt hash, see `newsdesk hash-password`.
	AdminPasswordHash string        `yaml:"admin_password_hash" env:"NEWSDESK_ADMIN_PASSWORD_HASH"`
	TokenTTL          time.Duration `yaml:"token_ttl" env:"NEWSDESK_TOKEN_TTL"`
	CORSOrigin        string        `yaml:"cors_origin" env:"NEWSDESK_CORS_ORIGIN"`
}

// SourcesConfig holds provider credentials and search settings.
type SourcesConfig struct {
	Keywords    []string      `yaml:"keywords" env:"NEWSDESK_KEYWORDS"`
	Language    string        `yaml:"language" env:"NEWSDESK_LANGUAGE"`
	PageSize    int           `yaml:"page_size" env:"NEWSDESK_PAGE_SIZE"`
	Timeout     time.Duration `yaml:"timeout" env:"NEWSDESK_SOURCE_TIMEOUT"`
	NewsAPIKey  string        `yaml:"newsapi_key" env:"NEWSAPI_KEY"`
	GNewsKey    string        `yaml:"gnews_key" env:"GNEWS_API_KEY"`
	GuardianKey string        `yaml:"guardian_key" env:"GUARDIAN_API_KEY"`
	GoogleNews  bool          `yaml:"google_news" env:"NEWSDESK_GOOGLE_NEWS"`
}

// ScheduleConfig holds batch and trigger settings.
type ScheduleConfig struct {
	BatchSize       int           `yaml:"batch_size" env:"NEWSDESK_BATCH_SIZE"`
	Stagger         time.Duration `yaml:"stagger" env:"NEWSDESK_STAGGER"`
	IngestInterval  time.Duration `yaml:"ingest_interval" env:"NEWSDESK_INGEST_INTERVAL"`
	PublishInterval time.Duration `yaml:"publish_interval" env:"NEWSDESK_PUBLISH_INTERVAL"`
}

// NotifyConfig holds publish announcement channels.
type NotifyConfig struct {
	Telegram notify.TelegramConfig `yaml:"telegram"`
	Webhook  notify.WebhookConfig  `yaml:"webhook"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level" env:"NEWSDESK_LOG_LEVEL"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:      ":8080",
			PublicURL: "http://localhost:8080",
			AdminUser: "admin",
			TokenTTL:  12 * time.Hour,
		},
		Database: storage.Config{
			Path:         "data/newsdesk.db",
			MaxOpenConns: 4,
			BusyTimeout:  5 * time.Second,
		},
		Redis: queue.RedisConfig{
			Prefix: "newsdesk:schedule",
		},
		Sources: SourcesConfig{
			Keywords:   append([]string(nil), relevance.DomainPhrases...),
			Language:   "en",
			PageSize:   20,
			Timeout:    15 * time.Second,
			GoogleNews: true,
		},
		Schedule: ScheduleConfig{
			BatchSize:       scheduler.DefaultBatchSize,
			Stagger:         scheduler.DefaultStagger,
			IngestInterval:  6 * time.Hour,
			PublishInterval: 5 * time.Minute,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads path over the defaults. A missing file leaves the defaults and
// environment overrides in place.
func Load(path string) (Config, error) {
	cfg := Default()
	if err := appconfig.LoadOrDefault(path, &cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Validate checks settings needed by every command.
func (c Config) Validate() error {
	var errs []error
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if len(c.Sources.Keywords) == 0 {
		errs = append(errs, errors.New("sources.keywords must not be empty"))
	}
	if c.Schedule.BatchSize <= 0 {
		errs = append(errs, errors.New("schedule.batch_size must be positive"))
	}
	if c.Schedule.Stagger <= 0 {
		errs = append(errs, errors.New("schedule.stagger must be positive"))
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ValidateServer checks the settings the HTTP server requires.
func (c Config) ValidateServer() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Server.CronSecret == "" {
		errs = append(errs, errors.New("server.cron_secret is required"))
	}
	if len(c.Server.JWTSecret) < 16 {
		errs = append(errs, errors.New("server.jwt_secret must be at least 16 characters"))
	}
	return errors.Join(errs...)
}

// SlogLevel parses the configured level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", l.Level)
}

// Registry builds the provider registry. Providers without credentials are
// still registered; they fail fast and contribute nothing.
func (s SourcesConfig) Registry() *sources.Registry {
	client := &http.Client{Timeout: s.Timeout}
	opts := func(key string) sources.Options {
		return sources.Options{APIKey: key, Language: s.Language, PageSize: s.PageSize, Client: client}
	}

	r := sources.NewRegistry(s.Keywords)
	r.Register(sources.NewNewsAPISource(opts(s.NewsAPIKey)))
	r.Register(sources.NewGNewsSource(opts(s.GNewsKey)))
	r.Register(sources.NewGuardianSource(opts(s.GuardianKey)))
	if s.GoogleNews {
		r.Register(sources.NewGoogleNewsSource(opts("")))
	}
	return r
}

// Dispatcher builds a notify dispatcher with every configured channel.
func (n NotifyConfig) Dispatcher() *notify.Dispatcher {
	d := notify.NewDispatcher()
	if n.Telegram.Enabled() {
		d.Register(notify.NewTelegramNotifier(n.Telegram))
	}
	if n.Webhook.URL != "" {
		d.Register(notify.NewWebhookNotifier(n.Webhook))
	}
	return d
}
