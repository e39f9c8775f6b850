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
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	RateLimit    RateLimitConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Stripe       StripeConfig
	Licensing    LicensingConfig
	Cron         CronConfig
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
	Env                string   `envconfig:"CAMPUSDESK_APP_ENV" required:"true"`
	Port               string   `envconfig:"CAMPUSDESK_APP_PORT" required:"true"`
	LogLevel           string   `envconfig:"CAMPUSDESK_LOG_LEVEL" default:"info"`
	LogWarnStack       bool     `envconfig:"CAMPUSDESK_LOG_WARN_STACK" default:"false"`
	CORSAllowedOrigins []string `envconfig:"CAMPUSDESK_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"CAMPUSDESK_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"CAMPUSDESK_DB_DSN"`
	Driver string `envconfig:"CAMPUSDESK_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CAMPUSDESK_DB_HOST"`
	LegacyPort     int    `envconfig:"CAMPUSDESK_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CAMPUSDESK_DB_USER"`
	LegacyPassword string `envconfig:"CAMPUSDESK_DB_PASSWORD"`
	LegacyName     string `envconfig:"CAMPUSDESK_DB_NAME"`
	LegacySSLMode  string `envconfig:"CAMPUSDESK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CAMPUSDESK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CAMPUSDESK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CAMPUSDESK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CAMPUSDESK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CAMPUSDESK_REDIS_URL" required:"true"`
	Address      string        `envconfig:"CAMPUSDESK_REDIS_ADDR"`
	Password     string        `envconfig:"CAMPUSDESK_REDIS_PASSWORD"`
	DB           int           `envconfig:"CAMPUSDESK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CAMPUSDESK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CAMPUSDESK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CAMPUSDESK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CAMPUSDESK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CAMPUSDESK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"CAMPUSDESK_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"CAMPUSDESK_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"CAMPUSDESK_JWT_EXPIRATION_MINUTES" default:"60"`
}

// TokenTTL returns the access token lifetime.
func (j JWTConfig) TokenTTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type RateLimitConfig struct {
	Window         time.Duration `envconfig:"CAMPUSDESK_RATE_LIMIT_WINDOW" default:"1m"`
	APIIPLimit     int           `envconfig:"CAMPUSDESK_RATE_LIMIT_API_IP_LIMIT" default:"300"`
	APIUserLimit   int           `envconfig:"CAMPUSDESK_RATE_LIMIT_API_USER_LIMIT" default:"120"`
	WebhookIPLimit int           `envconfig:"CAMPUSDESK_RATE_LIMIT_WEBHOOK_IP_LIMIT" default:"600"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"CAMPUSDESK_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"CAMPUSDESK_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"CAMPUSDESK_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"CAMPUSDESK_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	LicenseEventsTopic string        `envconfig:"CAMPUSDESK_PUBSUB_LICENSE_EVENTS_TOPIC" default:"cd-license-events"`
	PublishTimeout     time.Duration `envconfig:"CAMPUSDESK_PUBSUB_PUBLISH_TIMEOUT" default:"10s"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"CAMPUSDESK_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"CAMPUSDESK_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"CAMPUSDESK_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"CAMPUSDESK_OUTBOX_RETENTION_DAYS" default:"30"`
}

// PollInterval converts the configured millisecond poll interval.
func (o OutboxConfig) PollInterval() time.Duration {
	if o.PollIntervalMS <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(o.PollIntervalMS) * time.Millisecond
}

type StripeConfig struct {
	APIKey string `envconfig:"CAMPUSDESK_STRIPE_API_KEY"`
	Secret string `envconfig:"CAMPUSDESK_STRIPE_SECRET"`
	Env    string `envconfig:"CAMPUSDESK_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type LicensingConfig struct {
	TrialDays             int           `envconfig:"CAMPUSDESK_LICENSING_TRIAL_DAYS" default:"15"`
	WebhookIdempotencyTTL time.Duration `envconfig:"CAMPUSDESK_LICENSING_WEBHOOK_IDEMPOTENCY_TTL" default:"72h"`
}

type CronConfig struct {
	Interval       time.Duration `envconfig:"CAMPUSDESK_CRON_INTERVAL" default:"15m"`
	SweepBatchSize int           `envconfig:"CAMPUSDESK_CRON_SWEEP_BATCH_SIZE" default:"200"`
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
