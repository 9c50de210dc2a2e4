package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix scopes every environment variable the service reads.
const EnvPrefix = "BIDHAUS"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv = "BIDHAUS_APP_ENV"
	EnvDBDSN  = "BIDHAUS_DB_DSN"
	EnvDBHost = "BIDHAUS_DB_HOST"
	EnvDBUser = "BIDHAUS_DB_USER"
	EnvDBName = "BIDHAUS_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Square       SquareConfig
	Stripe       StripeConfig
	Cron         CronConfig
	BidRateLimit BidRateLimitConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
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
	Env          string `envconfig:"BIDHAUS_APP_ENV" required:"true"`
	Port         string `envconfig:"BIDHAUS_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"BIDHAUS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"BIDHAUS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"BIDHAUS_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"BIDHAUS_DB_DSN"`
	Driver string `envconfig:"BIDHAUS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"BIDHAUS_DB_HOST"`
	LegacyPort     int    `envconfig:"BIDHAUS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"BIDHAUS_DB_USER"`
	LegacyPassword string `envconfig:"BIDHAUS_DB_PASSWORD"`
	LegacyName     string `envconfig:"BIDHAUS_DB_NAME"`
	LegacySSLMode  string `envconfig:"BIDHAUS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"BIDHAUS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"BIDHAUS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"BIDHAUS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"BIDHAUS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"BIDHAUS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"BIDHAUS_REDIS_ADDR"`
	Password     string        `envconfig:"BIDHAUS_REDIS_PASSWORD"`
	DB           int           `envconfig:"BIDHAUS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"BIDHAUS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"BIDHAUS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"BIDHAUS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"BIDHAUS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"BIDHAUS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig describes the host platform's token format. Tokens arrive
// pre-validated by the container platform; the secret is only used to parse
// and verify the embedded claims have not been tampered with in transit.
type JWTConfig struct {
	Secret            string `envconfig:"BIDHAUS_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"BIDHAUS_JWT_ISSUER" default:"bidhaus-host"`
	ExpirationMinutes int    `envconfig:"BIDHAUS_JWT_EXPIRATION_MINUTES" default:"60"`
}

type SquareConfig struct {
	AccessToken   string `envconfig:"BIDHAUS_SQUARE_ACCESS_TOKEN"`
	WebhookSecret string `envconfig:"BIDHAUS_SQUARE_WEBHOOK_SECRET"`
	LocationID    string `envconfig:"BIDHAUS_SQUARE_LOCATION_ID"`
	Env           string `envconfig:"BIDHAUS_SQUARE_ENV" default:"sandbox"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

type StripeConfig struct {
	APIKey            string `envconfig:"BIDHAUS_STRIPE_API_KEY"`
	Secret            string `envconfig:"BIDHAUS_STRIPE_SECRET"`
	Env               string `envconfig:"BIDHAUS_STRIPE_ENV" default:"test"`
	PlatformAccountID string `envconfig:"BIDHAUS_STRIPE_PLATFORM_ACCOUNT_ID"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type CronConfig struct {
	Interval          time.Duration `envconfig:"BIDHAUS_CRON_INTERVAL" default:"1m"`
	FinalizeBatchSize int           `envconfig:"BIDHAUS_CRON_FINALIZE_BATCH_SIZE" default:"250"`
	ReconcileBatch    int           `envconfig:"BIDHAUS_CRON_RECONCILE_BATCH_SIZE" default:"250"`
	ReconcileLookback time.Duration `envconfig:"BIDHAUS_CRON_RECONCILE_LOOKBACK" default:"168h"`
	ItemTimeout       time.Duration `envconfig:"BIDHAUS_CRON_ITEM_TIMEOUT" default:"15s"`
}

// BidRateLimitConfig throttles bid placement per bidder. Zero values
// disable the limiter.
type BidRateLimitConfig struct {
	Window time.Duration `envconfig:"BIDHAUS_BID_RATE_LIMIT_WINDOW" default:"10s"`
	Limit  int           `envconfig:"BIDHAUS_BID_RATE_LIMIT" default:"10"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"BIDHAUS_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"BIDHAUS_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"BIDHAUS_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	DomainTopic        string `envconfig:"BIDHAUS_PUBSUB_DOMAIN_TOPIC" default:"bh-domain-events"`
	NotificationTopic  string `envconfig:"BIDHAUS_PUBSUB_NOTIFICATION_TOPIC" default:"bh-notifications"`
	DomainSubscription string `envconfig:"BIDHAUS_PUBSUB_DOMAIN_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"BIDHAUS_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"BIDHAUS_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"BIDHAUS_OUTBOX_MAX_ATTEMPTS" default:"10"`
	IdempotencyTTL time.Duration `envconfig:"BIDHAUS_OUTBOX_IDEMPOTENCY_TTL" default:"24h"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"BIDHAUS_AUTO_MIGRATE" default:"false"`
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
