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

	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	CORS        CORSConfig
	Log         LogConfig
	Curriculum  CurriculumConfig
	LiveClasses LiveClassConfig
	Resources   ResourcesConfig
	Assessments AssessmentsConfig
	Exports     ExportsConfig
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
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// CurriculumConfig governs option-list caching for the selection cascade.
type CurriculumConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
}

// LiveClassConfig tunes the live class timers.
type LiveClassConfig struct {
	ReconcileEnabled  bool
	ReconcileInterval time.Duration
	CountdownInterval time.Duration
}

// ResourcesConfig controls learning resource storage and validation.
type ResourcesConfig struct {
	StorageDir       string
	SignedURLSecret  string
	SignedURLTTL     time.Duration
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
}

// AssessmentsConfig toggles assessment endpoints.
type AssessmentsConfig struct {
	Enabled bool
}

// ExportsConfig controls timetable export rendering.
type ExportsConfig struct {
	Enabled    bool
	StorageDir string
	ResultTTL  time.Duration
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
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

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
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Curriculum = CurriculumConfig{
		CacheEnabled: v.GetBool("CURRICULUM_CACHE_ENABLED"),
		CacheTTL:     parseDuration(v.GetString("CURRICULUM_CACHE_TTL"), 10*time.Minute),
	}

	cfg.LiveClasses = LiveClassConfig{
		ReconcileEnabled:  v.GetBool("LIVE_CLASS_RECONCILE_ENABLED"),
		ReconcileInterval: parseDuration(v.GetString("LIVE_CLASS_RECONCILE_INTERVAL"), 30*time.Second),
		CountdownInterval: parseDuration(v.GetString("LIVE_CLASS_COUNTDOWN_INTERVAL"), time.Minute),
	}

	maxResourceSize := v.GetInt64("RESOURCES_MAX_FILE_SIZE")
	if maxResourceSize <= 0 {
		maxResourceSize = 25 * 1024 * 1024
	}
	cfg.Resources = ResourcesConfig{
		StorageDir:       v.GetString("RESOURCES_STORAGE_DIR"),
		SignedURLSecret:  v.GetString("RESOURCES_SIGNED_URL_SECRET"),
		SignedURLTTL:     parseDuration(v.GetString("RESOURCES_SIGNED_URL_TTL"), 30*time.Minute),
		MaxFileSizeBytes: maxResourceSize,
		AllowedMIMEs:     splitAndTrim(v.GetString("RESOURCES_ALLOWED_MIME_TYPES")),
	}

	cfg.Assessments = AssessmentsConfig{
		Enabled: v.GetBool("ENABLE_ASSESSMENTS"),
	}

	cfg.Exports = ExportsConfig{
		Enabled:    v.GetBool("ENABLE_TIMETABLE_EXPORTS"),
		StorageDir: v.GetString("EXPORTS_STORAGE_DIR"),
		ResultTTL:  parseDuration(v.GetString("EXPORTS_RESULT_TTL"), 24*time.Hour),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "brightpath_portal")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("CURRICULUM_CACHE_ENABLED", false)
	v.SetDefault("CURRICULUM_CACHE_TTL", "10m")

	v.SetDefault("LIVE_CLASS_RECONCILE_ENABLED", true)
	v.SetDefault("LIVE_CLASS_RECONCILE_INTERVAL", "30s")
	v.SetDefault("LIVE_CLASS_COUNTDOWN_INTERVAL", "1m")

	v.SetDefault("RESOURCES_STORAGE_DIR", "./resources")
	v.SetDefault("RESOURCES_SIGNED_URL_SECRET", "dev_resources_secret")
	v.SetDefault("RESOURCES_SIGNED_URL_TTL", "30m")
	v.SetDefault("RESOURCES_MAX_FILE_SIZE", 25*1024*1024)
	v.SetDefault("RESOURCES_ALLOWED_MIME_TYPES", "application/pdf,video/mp4,image/png,image/jpeg,application/vnd.openxmlformats-officedocument.wordprocessingml.document")

	v.SetDefault("ENABLE_ASSESSMENTS", true)

	v.SetDefault("ENABLE_TIMETABLE_EXPORTS", false)
	v.SetDefault("EXPORTS_STORAGE_DIR", "./exports")
	v.SetDefault("EXPORTS_RESULT_TTL", "24h")
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
