package config

import (
	"errors"
	"io/fs"
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
	Env        string
	Port       int
	APIPrefix  string
	InstanceID string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Capacity CapacityConfig
	Series   SeriesConfig
	Calendar CalendarConfig
	Jobs     JobsConfig
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
	Host        string
	Port        int
	Password    string
	DB          int
	DialTimeout time.Duration
}

type JWTConfig struct {
	Secret string
	Issuer string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// CapacityConfig governs weekday defaults seeding and change propagation.
type CapacityConfig struct {
	// WeeklyDefaults is indexed Sunday..Saturday and seeds the singleton when absent.
	WeeklyDefaults [7]int
	NearRatio      float64
	Channel        string
	ResyncCron     string
	SubscriberBuf  int
}

// SeriesConfig bounds series expansion and write duration.
type SeriesConfig struct {
	MaxOccurrences int
	WriteTimeout   time.Duration
}

// CalendarConfig toggles the cached calendar read model.
type CalendarConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
}

// JobsConfig tunes the background job queue.
type JobsConfig struct {
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
}

var weekdayKeys = [7]string{
	"CAPACITY_DEFAULT_SUNDAY",
	"CAPACITY_DEFAULT_MONDAY",
	"CAPACITY_DEFAULT_TUESDAY",
	"CAPACITY_DEFAULT_WEDNESDAY",
	"CAPACITY_DEFAULT_THURSDAY",
	"CAPACITY_DEFAULT_FRIDAY",
	"CAPACITY_DEFAULT_SATURDAY",
}

var seedWeeklyDefaults = [7]int{60, 60, 60, 60, 90, 90, 60}

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

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")
	cfg.InstanceID = v.GetString("INSTANCE_ID")

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
		Host:        v.GetString("REDIS_HOST"),
		Port:        v.GetInt("REDIS_PORT"),
		Password:    v.GetString("REDIS_PASSWORD"),
		DB:          v.GetInt("REDIS_DB"),
		DialTimeout: parseDuration(v.GetString("REDIS_DIAL_TIMEOUT"), 5*time.Second),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
		Issuer: v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Capacity = CapacityConfig{
		NearRatio:     v.GetFloat64("CAPACITY_NEAR_RATIO"),
		Channel:       v.GetString("CAPACITY_CHANNEL"),
		ResyncCron:    v.GetString("CAPACITY_RESYNC_CRON"),
		SubscriberBuf: v.GetInt("CAPACITY_SUBSCRIBER_BUFFER"),
	}
	for i, key := range weekdayKeys {
		limit := v.GetInt(key)
		if limit < 0 {
			limit = seedWeeklyDefaults[i]
		}
		cfg.Capacity.WeeklyDefaults[i] = limit
	}
	if cfg.Capacity.NearRatio <= 0 || cfg.Capacity.NearRatio > 1 {
		cfg.Capacity.NearRatio = 0.8
	}

	cfg.Series = SeriesConfig{
		MaxOccurrences: v.GetInt("SERIES_MAX_OCCURRENCES"),
		WriteTimeout:   parseDuration(v.GetString("SERIES_WRITE_TIMEOUT"), 15*time.Second),
	}

	cfg.Calendar = CalendarConfig{
		CacheEnabled: v.GetBool("ENABLE_CALENDAR_CACHE"),
		CacheTTL:     parseDuration(v.GetString("CALENDAR_CACHE_TTL"), 2*time.Minute),
	}

	cfg.Jobs = JobsConfig{
		Workers:    v.GetInt("JOBS_WORKERS"),
		MaxRetries: v.GetInt("JOBS_RETRIES"),
		RetryDelay: parseDuration(v.GetString("JOBS_RETRY_DELAY"), time.Second),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")
	v.SetDefault("INSTANCE_ID", "")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "food_for_all")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_DIAL_TIMEOUT", "5s")

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	for i, key := range weekdayKeys {
		v.SetDefault(key, seedWeeklyDefaults[i])
	}
	v.SetDefault("CAPACITY_NEAR_RATIO", 0.8)
	v.SetDefault("CAPACITY_CHANNEL", "capacity:changes")
	v.SetDefault("CAPACITY_RESYNC_CRON", "@every 5m")
	v.SetDefault("CAPACITY_SUBSCRIBER_BUFFER", 16)

	v.SetDefault("SERIES_MAX_OCCURRENCES", 1000)
	v.SetDefault("SERIES_WRITE_TIMEOUT", "15s")

	v.SetDefault("ENABLE_CALENDAR_CACHE", true)
	v.SetDefault("CALENDAR_CACHE_TTL", "2m")

	v.SetDefault("JOBS_WORKERS", 2)
	v.SetDefault("JOBS_RETRIES", 3)
	v.SetDefault("JOBS_RETRY_DELAY", "1s")
}

func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
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

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
