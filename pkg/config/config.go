package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Webhook      WebhookConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"DIGITALWORLD_APP_ENV" required:"true"`
	Port         string `envconfig:"DIGITALWORLD_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"DIGITALWORLD_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"DIGITALWORLD_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"DIGITALWORLD_DB_DSN"`
	Driver string `envconfig:"DIGITALWORLD_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"DIGITALWORLD_DB_HOST"`
	LegacyPort     int    `envconfig:"DIGITALWORLD_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"DIGITALWORLD_DB_USER"`
	LegacyPassword string `envconfig:"DIGITALWORLD_DB_PASSWORD"`
	LegacyName     string `envconfig:"DIGITALWORLD_DB_NAME"`
	LegacySSLMode  string `envconfig:"DIGITALWORLD_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"DIGITALWORLD_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"DIGITALWORLD_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"DIGITALWORLD_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"DIGITALWORLD_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	TxTimeout       time.Duration `envconfig:"DIGITALWORLD_DB_TX_TIMEOUT" default:"10s"`
}

type RedisConfig struct {
	URL          string        `envconfig:"DIGITALWORLD_REDIS_URL" required:"true"`
	Password     string        `envconfig:"DIGITALWORLD_REDIS_PASSWORD"`
	DB           int           `envconfig:"DIGITALWORLD_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"DIGITALWORLD_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"DIGITALWORLD_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"DIGITALWORLD_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"DIGITALWORLD_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"DIGITALWORLD_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"DIGITALWORLD_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"DIGITALWORLD_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"DIGITALWORLD_JWT_EXPIRATION_MINUTES" required:"true"`
}

// Expiration returns the configured access token lifetime.
func (j JWTConfig) Expiration() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type WebhookConfig struct {
	SigningSecret  string        `envconfig:"DIGITALWORLD_WEBHOOK_SIGNING_SECRET" required:"true"`
	IdempotencyTTL time.Duration `envconfig:"DIGITALWORLD_WEBHOOK_IDEMPOTENCY_TTL" default:"720h"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"DIGITALWORLD_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
