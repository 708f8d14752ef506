package config

// EnvPrefix scopes every environment variable consumed by the service.
const EnvPrefix = "DIGITALWORLD"

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

const (
	EnvAppEnv     = "DIGITALWORLD_APP_ENV"
	EnvPort       = "DIGITALWORLD_APP_PORT"
	EnvDBDSN      = "DIGITALWORLD_DB_DSN"
	EnvDBHost     = "DIGITALWORLD_DB_HOST"
	EnvDBUser     = "DIGITALWORLD_DB_USER"
	EnvDBName     = "DIGITALWORLD_DB_NAME"
	EnvRedisURL   = "DIGITALWORLD_REDIS_URL"
	EnvJWTSecret  = "DIGITALWORLD_JWT_SECRET"
	EnvJWTIssuer  = "DIGITALWORLD_JWT_ISSUER"
	EnvJWTExpMins = "DIGITALWORLD_JWT_EXPIRATION_MINUTES"

	EnvWebhookSecret = "DIGITALWORLD_WEBHOOK_SIGNING_SECRET"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
