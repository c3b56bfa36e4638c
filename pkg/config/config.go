package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string
	Timezone  string

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Log       LogConfig
	Portal    PortalConfig
	Cache     CacheConfig
	Scheduler SchedulerConfig
	Notifier  NotifierConfig
	Vault     VaultConfig
	Sync      SyncConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
	Issuer string
}

type LogConfig struct {
	Level  string
	Format string
}

// PortalConfig points the client at the institutional portal.
type PortalConfig struct {
	LoginURL        string
	ScheduleURL     string
	ProbeURL        string
	Origin          string
	UserAgent       string
	Timeout         time.Duration
	ScheduleType    string
	ScheduleDetails int
	SessionTTL      time.Duration
}

// CacheConfig controls the redis-backed lesson cache.
type CacheConfig struct {
	Enabled   bool
	LessonTTL time.Duration
}

// SchedulerConfig holds cron specs for the recurring notification jobs.
type SchedulerConfig struct {
	Enabled           bool
	UnifiedCheckSpec  string
	DigestSpec        string
	ArchiveSpec       string
	ReminderRefresh   string
	UpcomingLeadTime  time.Duration
	UpcomingTolerance time.Duration
}

// NotifierConfig selects the delivery transport.
type NotifierConfig struct {
	Driver     string
	WebhookURL string
	Timeout    time.Duration
}

// VaultConfig holds the secret used to seal stored portal passwords.
type VaultConfig struct {
	Secret string
}

// SyncConfig sizes the background portal sync queue.
type SyncConfig struct {
	Workers int
	Retries int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")
	cfg.Timezone = v.GetString("TIMEZONE")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
		Issuer: v.GetString("JWT_ISSUER"),
	}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Portal = PortalConfig{
		LoginURL:        v.GetString("PORTAL_LOGIN_URL"),
		ScheduleURL:     v.GetString("PORTAL_SCHEDULE_URL"),
		ProbeURL:        v.GetString("PORTAL_PROBE_URL"),
		Origin:          v.GetString("PORTAL_ORIGIN"),
		UserAgent:       v.GetString("PORTAL_USER_AGENT"),
		Timeout:         parseDuration(v.GetString("PORTAL_TIMEOUT"), 15*time.Second),
		ScheduleType:    v.GetString("SCHEDULE_TYPE"),
		ScheduleDetails: v.GetInt("SCHEDULE_DETAILS"),
		SessionTTL:      parseDuration(v.GetString("SESSION_TTL"), 0),
	}

	cfg.Cache = CacheConfig{
		Enabled:   v.GetBool("ENABLE_LESSON_CACHE"),
		LessonTTL: parseDuration(v.GetString("LESSON_CACHE_TTL"), 30*time.Minute),
	}

	cfg.Scheduler = SchedulerConfig{
		Enabled:           v.GetBool("ENABLE_SCHEDULER"),
		UnifiedCheckSpec:  v.GetString("SCHEDULER_UNIFIED_CHECK_SPEC"),
		DigestSpec:        v.GetString("SCHEDULER_DIGEST_SPEC"),
		ArchiveSpec:       v.GetString("SCHEDULER_ARCHIVE_SPEC"),
		ReminderRefresh:   v.GetString("SCHEDULER_REMINDER_REFRESH_SPEC"),
		UpcomingLeadTime:  parseDuration(v.GetString("SCHEDULER_UPCOMING_LEAD"), 15*time.Minute),
		UpcomingTolerance: parseDuration(v.GetString("SCHEDULER_UPCOMING_TOLERANCE"), 2*time.Minute),
	}

	cfg.Notifier = NotifierConfig{
		Driver:     v.GetString("NOTIFIER_DRIVER"),
		WebhookURL: v.GetString("NOTIFIER_WEBHOOK_URL"),
		Timeout:    parseDuration(v.GetString("NOTIFIER_TIMEOUT"), 10*time.Second),
	}

	cfg.Vault = VaultConfig{Secret: v.GetString("VAULT_SECRET")}

	cfg.Sync = SyncConfig{
		Workers: v.GetInt("SYNC_WORKERS"),
		Retries: v.GetInt("SYNC_RETRIES"),
	}

	return cfg, nil
}

// Location resolves the configured timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	if c == nil || c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")
	v.SetDefault("TIMEZONE", "Asia/Almaty")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "timetable_notifier")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "timetable-notifier")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("PORTAL_LOGIN_URL", "https://my.sdu.edu.kz/loginAuth.php")
	v.SetDefault("PORTAL_SCHEDULE_URL", "https://my.sdu.edu.kz/index.php")
	v.SetDefault("PORTAL_PROBE_URL", "https://my.sdu.edu.kz/index.php?mod=schedule")
	v.SetDefault("PORTAL_ORIGIN", "https://my.sdu.edu.kz")
	v.SetDefault("PORTAL_USER_AGENT", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("PORTAL_TIMEOUT", "15s")
	v.SetDefault("SCHEDULE_TYPE", "I")
	v.SetDefault("SCHEDULE_DETAILS", 0)
	v.SetDefault("SESSION_TTL", "")

	v.SetDefault("ENABLE_LESSON_CACHE", false)
	v.SetDefault("LESSON_CACHE_TTL", "30m")

	v.SetDefault("ENABLE_SCHEDULER", true)
	v.SetDefault("SCHEDULER_UNIFIED_CHECK_SPEC", "15 * * * *")
	v.SetDefault("SCHEDULER_DIGEST_SPEC", "0 20 * * *")
	v.SetDefault("SCHEDULER_ARCHIVE_SPEC", "0 2 * * 1")
	v.SetDefault("SCHEDULER_REMINDER_REFRESH_SPEC", "5 0 * * *")
	v.SetDefault("SCHEDULER_UPCOMING_LEAD", "15m")
	v.SetDefault("SCHEDULER_UPCOMING_TOLERANCE", "2m")

	v.SetDefault("NOTIFIER_DRIVER", "log")
	v.SetDefault("NOTIFIER_WEBHOOK_URL", "")
	v.SetDefault("NOTIFIER_TIMEOUT", "10s")

	v.SetDefault("VAULT_SECRET", "dev_vault_secret")

	v.SetDefault("SYNC_WORKERS", 2)
	v.SetDefault("SYNC_RETRIES", 0)
}

func isMissingFile(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such file")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}
