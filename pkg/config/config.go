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
	FeatureFlags FeatureFlagsConfig
	Reservation  ReservationConfig
	Cron         CronConfig
	Payment      PaymentConfig
	Square       SquareConfig
	Stripe       StripeConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = "sqlite"
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Payment.validate(); err != nil {
		return nil, err
	}
	if cfg.App.IsProd() && cfg.Payment.AllowMockPay {
		return nil, fmt.Errorf("%s cannot be enabled in %s", EnvPaymentAllowMock, AppEnvProd)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STOCKHOLD_APP_ENV" required:"true"`
	Port         string `envconfig:"STOCKHOLD_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"STOCKHOLD_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STOCKHOLD_LOG_WARN_STACK" default:"false"`

	CORSOrigins []string `envconfig:"STOCKHOLD_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"STOCKHOLD_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"STOCKHOLD_DB_DSN"`
	Driver string `envconfig:"STOCKHOLD_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"STOCKHOLD_DB_HOST"`
	LegacyPort     int    `envconfig:"STOCKHOLD_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STOCKHOLD_DB_USER"`
	LegacyPassword string `envconfig:"STOCKHOLD_DB_PASSWORD"`
	LegacyName     string `envconfig:"STOCKHOLD_DB_NAME"`
	LegacySSLMode  string `envconfig:"STOCKHOLD_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STOCKHOLD_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOCKHOLD_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOCKHOLD_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOCKHOLD_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// Transactions disables multi-statement transactions when false; stock
	// operations then run sequentially with compensating rollback.
	Transactions bool `envconfig:"STOCKHOLD_DB_TRANSACTIONS" default:"true"`
	TxRetries    int  `envconfig:"STOCKHOLD_DB_TX_RETRIES" default:"3"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STOCKHOLD_REDIS_URL"`
	Address      string        `envconfig:"STOCKHOLD_REDIS_ADDR"`
	Password     string        `envconfig:"STOCKHOLD_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOCKHOLD_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOCKHOLD_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOCKHOLD_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOCKHOLD_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOCKHOLD_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOCKHOLD_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"STOCKHOLD_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"STOCKHOLD_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"STOCKHOLD_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"STOCKHOLD_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"STOCKHOLD_AUTO_MIGRATE" default:"false"`
}

type ReservationConfig struct {
	Window         time.Duration `envconfig:"STOCKHOLD_RESERVATION_WINDOW" default:"15m"`
	SchedulerKind  string        `envconfig:"STOCKHOLD_EXPIRY_SCHEDULER" default:"redis"`
	SweepBatchSize int           `envconfig:"STOCKHOLD_EXPIRY_SWEEP_BATCH" default:"100"`
	BackstopGrace  time.Duration `envconfig:"STOCKHOLD_EXPIRY_BACKSTOP_GRACE" default:"5m"`
	Currency       string        `envconfig:"STOCKHOLD_CURRENCY" default:"INR"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"STOCKHOLD_CRON_INTERVAL" default:"30s"`
	LockTTL  time.Duration `envconfig:"STOCKHOLD_CRON_LOCK_TTL" default:"5m"`
}

type PaymentConfig struct {
	Provider      string `envconfig:"STOCKHOLD_PAYMENT_PROVIDER" default:"local"`
	SigningSecret string `envconfig:"STOCKHOLD_PAYMENT_SIGNING_SECRET" required:"true"`
	KeyID         string `envconfig:"STOCKHOLD_PAYMENT_KEY_ID"`
	AllowMockPay  bool   `envconfig:"STOCKHOLD_PAYMENT_ALLOW_MOCK" default:"false"`

	VerifyRateLimit  int           `envconfig:"STOCKHOLD_PAYMENT_VERIFY_RATE_LIMIT" default:"30"`
	VerifyRateWindow time.Duration `envconfig:"STOCKHOLD_PAYMENT_VERIFY_RATE_WINDOW" default:"1m"`
}

func (p PaymentConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(p.Provider)) {
	case PaymentProviderLocal, PaymentProviderSquare, PaymentProviderStripe:
		return nil
	}
	return fmt.Errorf("%s must be one of %q, %q, %q", EnvPaymentProvider, PaymentProviderLocal, PaymentProviderSquare, PaymentProviderStripe)
}

type SquareConfig struct {
	Env         string `envconfig:"STOCKHOLD_SQUARE_ENV" default:"sandbox"`
	AccessToken string `envconfig:"STOCKHOLD_SQUARE_ACCESS_TOKEN"`
	LocationID  string `envconfig:"STOCKHOLD_SQUARE_LOCATION_ID"`
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
	APIKey string `envconfig:"STOCKHOLD_STRIPE_API_KEY"`
	Env    string `envconfig:"STOCKHOLD_STRIPE_ENV" default:"test"`
}

func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type GCPConfig struct {
	ProjectID       string `envconfig:"STOCKHOLD_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"STOCKHOLD_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	OrdersTopic       string `envconfig:"STOCKHOLD_PUBSUB_ORDERS_TOPIC" default:"sh-order-events"`
	NotificationTopic string `envconfig:"STOCKHOLD_PUBSUB_NOTIFICATION_TOPIC" default:"sh-notification-events"`

	// Each consumer attaches one subscription per topic it reads.
	NotificationSubscriptions []string `envconfig:"STOCKHOLD_PUBSUB_NOTIFICATION_SUBSCRIPTIONS" default:"sh-notifications-orders,sh-notifications-confirmations"`
	AnalyticsSubscriptions    []string `envconfig:"STOCKHOLD_PUBSUB_ANALYTICS_SUBSCRIPTIONS" default:"sh-analytics-orders,sh-analytics-confirmations"`
}

type BigQueryConfig struct {
	Dataset          string `envconfig:"STOCKHOLD_BIGQUERY_DATASET" default:"stockhold"`
	OrderEventsTable string `envconfig:"STOCKHOLD_BIGQUERY_ORDER_EVENTS_TABLE" default:"order_events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"STOCKHOLD_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"STOCKHOLD_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"STOCKHOLD_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"STOCKHOLD_OUTBOX_RETENTION_DAYS" default:"30"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" {
		return nil
	}
	if useSQLite {
		db.DSN = defaultSQLiteDSN
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
