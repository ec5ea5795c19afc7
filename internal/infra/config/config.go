package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	DatabaseURL      string
	DatabaseMaxConns int
	AutoMigrate      bool // apply the embedded schema at startup
	LogLevel         string
	Environment      string
	HTTPPort         int
	CORSOrigins      []string

	Geodata GeodataConfig
	Redis   RedisConfig
	Push    PushConfig

	TelegramToken     string
	SubscriptionLimit int

	CronSpecDispatch  string // claims and fires due notifications
	CronSpecRearm     string // arms subscriptions that have no pending notification
	DispatchBatchSize int
}

// GeodataConfig points at the PostgREST-style geodata provider.
type GeodataConfig struct {
	URL               string
	Key               string
	SchedulesRPC      string
	RegulationsRPC    string
	SchedulesTable    string
	RegulationsTable  string
	Timeout           time.Duration
	RegulationRadiusM float64
}

// RedisConfig configures the lookup cache. An empty Addr disables caching.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// PushConfig configures FCM delivery. Without service account credentials
// pushes are only logged.
type PushConfig struct {
	ServiceAccountJSON string
	ProjectID          string
	DryRun             bool
	RatePerSec         int // token bucket shared by all outgoing pushes
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("DB_MAX_OPEN_CONNS", "25")
	v.SetDefault("DB_AUTO_MIGRATE", "true")
	v.SetDefault("GEODATA_SCHEDULES_RPC", "schedules_near")
	v.SetDefault("GEODATA_REGULATIONS_RPC", "parking_regulations_near")
	v.SetDefault("GEODATA_SCHEDULES_TABLE", "schedules")
	v.SetDefault("GEODATA_REGULATIONS_TABLE", "parking_regulations")
	v.SetDefault("GEODATA_TIMEOUT", "10s")
	v.SetDefault("REGULATION_RADIUS_METERS", "50")
	v.SetDefault("REDIS_DB", "0")
	v.SetDefault("CACHE_TTL", "1h")
	v.SetDefault("NOTIFY_DRY_RUN", "false")
	v.SetDefault("PUSH_RATE_PER_SEC", "20")
	v.SetDefault("SUBSCRIPTION_LIMIT", "5")
	v.SetDefault("CRON_SPEC_DISPATCH", "* * * * *")
	v.SetDefault("CRON_SPEC_REARM", "*/15 * * * *")
	v.SetDefault("DISPATCH_BATCH_SIZE", "100")
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*AppConfig, error) {
	cfg := &AppConfig{}
	var err error

	cfg.DatabaseURL = v.GetString("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}
	if cfg.DatabaseMaxConns, err = intValue(v, "DB_MAX_OPEN_CONNS"); err != nil {
		return nil, err
	}
	if cfg.AutoMigrate, err = boolValue(v, "DB_AUTO_MIGRATE"); err != nil {
		return nil, err
	}

	cfg.Geodata.URL = strings.TrimRight(v.GetString("GEODATA_URL"), "/")
	if cfg.Geodata.URL == "" {
		return nil, fmt.Errorf("GEODATA_URL is not set")
	}
	cfg.Geodata.Key = v.GetString("GEODATA_KEY")
	if cfg.Geodata.Key == "" {
		return nil, fmt.Errorf("GEODATA_KEY is not set")
	}
	cfg.Geodata.SchedulesRPC = v.GetString("GEODATA_SCHEDULES_RPC")
	cfg.Geodata.RegulationsRPC = v.GetString("GEODATA_REGULATIONS_RPC")
	cfg.Geodata.SchedulesTable = v.GetString("GEODATA_SCHEDULES_TABLE")
	cfg.Geodata.RegulationsTable = v.GetString("GEODATA_REGULATIONS_TABLE")
	if cfg.Geodata.Timeout, err = durationValue(v, "GEODATA_TIMEOUT"); err != nil {
		return nil, err
	}
	if cfg.Geodata.RegulationRadiusM, err = floatValue(v, "REGULATION_RADIUS_METERS"); err != nil {
		return nil, err
	}

	cfg.LogLevel = strings.ToLower(v.GetString("LOG_LEVEL"))
	cfg.Environment = strings.ToLower(v.GetString("ENVIRONMENT"))
	if cfg.HTTPPort, err = intValue(v, "HTTP_PORT"); err != nil {
		return nil, err
	}
	cfg.CORSOrigins = splitAndTrim(v.GetString("CORS_ORIGINS"))

	cfg.Redis.Addr = v.GetString("REDIS_ADDR")
	cfg.Redis.Password = v.GetString("REDIS_PASSWORD")
	if cfg.Redis.DB, err = intValue(v, "REDIS_DB"); err != nil {
		return nil, err
	}
	if cfg.Redis.TTL, err = durationValue(v, "CACHE_TTL"); err != nil {
		return nil, err
	}

	cfg.Push.ServiceAccountJSON = v.GetString("FCM_SERVICE_ACCOUNT_JSON")
	cfg.Push.ProjectID = v.GetString("FCM_PROJECT_ID")
	if cfg.Push.DryRun, err = boolValue(v, "NOTIFY_DRY_RUN"); err != nil {
		return nil, err
	}
	if cfg.Push.RatePerSec, err = intValue(v, "PUSH_RATE_PER_SEC"); err != nil {
		return nil, err
	}
	if cfg.Push.RatePerSec <= 0 {
		return nil, fmt.Errorf("invalid PUSH_RATE_PER_SEC: must be positive")
	}

	cfg.TelegramToken = v.GetString("TELEGRAM_TOKEN")
	if cfg.SubscriptionLimit, err = intValue(v, "SUBSCRIPTION_LIMIT"); err != nil {
		return nil, err
	}

	cfg.CronSpecDispatch = v.GetString("CRON_SPEC_DISPATCH")
	cfg.CronSpecRearm = v.GetString("CRON_SPEC_REARM")
	if cfg.DispatchBatchSize, err = intValue(v, "DISPATCH_BATCH_SIZE"); err != nil {
		return nil, err
	}
	if cfg.DispatchBatchSize <= 0 {
		return nil, fmt.Errorf("invalid DISPATCH_BATCH_SIZE: must be positive")
	}

	return cfg, nil
}

func intValue(v *viper.Viper, key string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(v.GetString(key)))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func floatValue(v *viper.Viper, key string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v.GetString(key)), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func boolValue(v *viper.Viper, key string) (bool, error) {
	b, err := strconv.ParseBool(strings.TrimSpace(v.GetString(key)))
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func durationValue(v *viper.Viper, key string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(v.GetString(key)))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func splitAndTrim(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
