package config

// EnvPrefix namespaces every variable read by Load.
const EnvPrefix = "CAMPUSDESK"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv       = "CAMPUSDESK_APP_ENV"
	EnvPort         = "CAMPUSDESK_APP_PORT"
	EnvLogLevel     = "CAMPUSDESK_LOG_LEVEL"
	EnvLogWarnStack = "CAMPUSDESK_LOG_WARN_STACK"
	EnvServiceKind  = "CAMPUSDESK_SERVICE_KIND"
	EnvCORSOrigins  = "CAMPUSDESK_CORS_ALLOWED_ORIGINS"

	EnvDBDSN      = "CAMPUSDESK_DB_DSN"
	EnvDBDriver   = "CAMPUSDESK_DB_DRIVER"
	EnvDBHost     = "CAMPUSDESK_DB_HOST"
	EnvDBPort     = "CAMPUSDESK_DB_PORT"
	EnvDBUser     = "CAMPUSDESK_DB_USER"
	EnvDBPassword = "CAMPUSDESK_DB_PASSWORD"
	EnvDBName     = "CAMPUSDESK_DB_NAME"
	EnvDBSSLMode  = "CAMPUSDESK_DB_SSLMODE"

	EnvRedisURL = "CAMPUSDESK_REDIS_URL"

	EnvJWTSecret  = "CAMPUSDESK_JWT_SECRET"
	EnvJWTIssuer  = "CAMPUSDESK_JWT_ISSUER"
	EnvJWTExpMins = "CAMPUSDESK_JWT_EXPIRATION_MINUTES"

	EnvRateLimitWindow = "CAMPUSDESK_RATE_LIMIT_WINDOW"

	EnvUseSQLite   = "CAMPUSDESK_USE_SQLITE"
	EnvAutoMigrate = "CAMPUSDESK_AUTO_MIGRATE"

	EnvGCPProjectID       = "CAMPUSDESK_GCP_PROJECT_ID"
	EnvGCPCredentialsJSON = "CAMPUSDESK_GCP_CREDENTIALS_JSON"

	EnvPubSubLicenseTopic = "CAMPUSDESK_PUBSUB_LICENSE_EVENTS_TOPIC"

	EnvStripeAPIKey = "CAMPUSDESK_STRIPE_API_KEY"
	EnvStripeSecret = "CAMPUSDESK_STRIPE_SECRET"
	EnvStripeEnv    = "CAMPUSDESK_STRIPE_ENV"

	EnvTrialDays      = "CAMPUSDESK_LICENSING_TRIAL_DAYS"
	EnvWebhookTTL     = "CAMPUSDESK_LICENSING_WEBHOOK_IDEMPOTENCY_TTL"
	EnvCronInterval   = "CAMPUSDESK_CRON_INTERVAL"
	EnvSweepBatchSize = "CAMPUSDESK_CRON_SWEEP_BATCH_SIZE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
