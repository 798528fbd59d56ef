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
	Paystack     PaystackConfig
	Invoice      InvoiceConfig
	Mailer       MailerConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Outbox       OutboxConfig
	Eventing     EventingConfig
	Idempotency  IdempotencyConfig
	RateLimit    RateLimitConfig
	Cron         CronConfig
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
	Env          string `envconfig:"KOBOCART_APP_ENV" required:"true"`
	Port         string `envconfig:"KOBOCART_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"KOBOCART_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"KOBOCART_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"KOBOCART_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"KOBOCART_DB_DSN"`
	Driver string `envconfig:"KOBOCART_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"KOBOCART_DB_HOST"`
	LegacyPort     int    `envconfig:"KOBOCART_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"KOBOCART_DB_USER"`
	LegacyPassword string `envconfig:"KOBOCART_DB_PASSWORD"`
	LegacyName     string `envconfig:"KOBOCART_DB_NAME"`
	LegacySSLMode  string `envconfig:"KOBOCART_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"KOBOCART_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"KOBOCART_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"KOBOCART_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"KOBOCART_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"KOBOCART_REDIS_URL" required:"true"`
	Address      string        `envconfig:"KOBOCART_REDIS_ADDR"`
	Password     string        `envconfig:"KOBOCART_REDIS_PASSWORD"`
	DB           int           `envconfig:"KOBOCART_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"KOBOCART_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"KOBOCART_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"KOBOCART_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"KOBOCART_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"KOBOCART_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"KOBOCART_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"KOBOCART_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"KOBOCART_JWT_EXPIRATION_MINUTES" default:"60"`
}

// PaystackConfig drives the payment gateway adapter. The callback URL is
// where the gateway redirects the customer after the hosted payment page.
type PaystackConfig struct {
	SecretKey   string        `envconfig:"KOBOCART_PAYSTACK_SECRET_KEY" required:"true"`
	BaseURL     string        `envconfig:"KOBOCART_PAYSTACK_BASE_URL" default:"https://api.paystack.co"`
	CallbackURL string        `envconfig:"KOBOCART_PAYSTACK_CALLBACK_URL" required:"true"`
	Timeout     time.Duration `envconfig:"KOBOCART_PAYSTACK_TIMEOUT" default:"10s"`
	Currency    string        `envconfig:"KOBOCART_PAYSTACK_CURRENCY" default:"NGN"`
}

type InvoiceConfig struct {
	BaseURL     string        `envconfig:"KOBOCART_INVOICE_BASE_URL"`
	APIKey      string        `envconfig:"KOBOCART_INVOICE_API_KEY"`
	Timeout     time.Duration `envconfig:"KOBOCART_INVOICE_TIMEOUT" default:"15s"`
	MaxAttempts int           `envconfig:"KOBOCART_INVOICE_MAX_ATTEMPTS" default:"3"`
}

type MailerConfig struct {
	BaseURL   string        `envconfig:"KOBOCART_MAILER_BASE_URL"`
	APIKey    string        `envconfig:"KOBOCART_MAILER_API_KEY"`
	FromEmail string        `envconfig:"KOBOCART_MAILER_FROM_EMAIL" default:"orders@kobocart.africa"`
	FromName  string        `envconfig:"KOBOCART_MAILER_FROM_NAME" default:"Kobocart Orders"`
	Timeout   time.Duration `envconfig:"KOBOCART_MAILER_TIMEOUT" default:"10s"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"KOBOCART_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"KOBOCART_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"KOBOCART_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrderEventsTopic      string `envconfig:"KOBOCART_PUBSUB_ORDER_EVENTS_TOPIC" default:"kc-order-events"`
	WorkerSubscription    string `envconfig:"KOBOCART_PUBSUB_WORKER_SUBSCRIPTION" default:"kc-order-events-worker"`
	AnalyticsSubscription string `envconfig:"KOBOCART_PUBSUB_ANALYTICS_SUBSCRIPTION" default:"kc-order-events-analytics"`
}

type BigQueryConfig struct {
	Dataset      string `envconfig:"KOBOCART_BIGQUERY_DATASET" default:"kobocart"`
	RevenueTable string `envconfig:"KOBOCART_BIGQUERY_REVENUE_TABLE" default:"order_revenue"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"KOBOCART_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"KOBOCART_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"KOBOCART_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"KOBOCART_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

// IdempotencyConfig covers the Idempotency-Key middleware on checkout.
type IdempotencyConfig struct {
	TTL time.Duration `envconfig:"KOBOCART_IDEMPOTENCY_TTL" default:"24h"`
}

// RateLimitConfig throttles the verify-polling endpoint per user.
type RateLimitConfig struct {
	VerifyWindow time.Duration `envconfig:"KOBOCART_RATE_LIMIT_VERIFY_WINDOW" default:"1m"`
	VerifyLimit  int           `envconfig:"KOBOCART_RATE_LIMIT_VERIFY_LIMIT" default:"10"`
}

type CronConfig struct {
	Interval                 time.Duration `envconfig:"KOBOCART_CRON_INTERVAL" default:"1m"`
	PendingOrderTTL          time.Duration `envconfig:"KOBOCART_CRON_PENDING_ORDER_TTL" default:"24h"`
	OutboxRetention          time.Duration `envconfig:"KOBOCART_CRON_OUTBOX_RETENTION" default:"168h"`
	StockReconcileBatch      int           `envconfig:"KOBOCART_CRON_STOCK_RECONCILE_BATCH" default:"100"`
	StockReconcileMaxRetries int           `envconfig:"KOBOCART_CRON_STOCK_RECONCILE_MAX_RETRIES" default:"5"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"KOBOCART_AUTO_MIGRATE" default:"false"`
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
