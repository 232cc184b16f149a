package config

// EnvPrefix is handed to envconfig; every tag below is already fully qualified.
const EnvPrefix = "STOCKHOLD"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	PaymentProviderLocal  = "local"
	PaymentProviderSquare = "square"
	PaymentProviderStripe = "stripe"
)

const (
	SchedulerRedis  = "redis"
	SchedulerMemory = "memory"
)

const defaultSQLiteDSN = "file:stockhold.db?cache=shared&_busy_timeout=5000"

const (
	EnvAppEnv           = "STOCKHOLD_APP_ENV"
	EnvPort             = "STOCKHOLD_APP_PORT"
	EnvDBDSN            = "STOCKHOLD_DB_DSN"
	EnvDBHost           = "STOCKHOLD_DB_HOST"
	EnvDBUser           = "STOCKHOLD_DB_USER"
	EnvDBName           = "STOCKHOLD_DB_NAME"
	EnvDBTransactions   = "STOCKHOLD_DB_TRANSACTIONS"
	EnvRedisURL         = "STOCKHOLD_REDIS_URL"
	EnvJWTSecret        = "STOCKHOLD_JWT_SECRET"
	EnvJWTIssuer        = "STOCKHOLD_JWT_ISSUER"
	EnvUseSQLite        = "STOCKHOLD_USE_SQLITE"
	EnvReservationWin   = "STOCKHOLD_RESERVATION_WINDOW"
	EnvPaymentProvider  = "STOCKHOLD_PAYMENT_PROVIDER"
	EnvPaymentAllowMock = "STOCKHOLD_PAYMENT_ALLOW_MOCK"
	EnvPaymentSecret    = "STOCKHOLD_PAYMENT_SIGNING_SECRET"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
