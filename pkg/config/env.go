package config

// EnvPrefix is passed to envconfig; every field also carries its full key.
const EnvPrefix = "VOUCHR"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	TransportPubSub = "pubsub"
	TransportKafka  = "kafka"
)

const (
	EnvAppEnv          = "VOUCHR_APP_ENV"
	EnvPort            = "VOUCHR_APP_PORT"
	EnvDBDSN           = "VOUCHR_DB_DSN"
	EnvDBDriver        = "VOUCHR_DB_DRIVER"
	EnvDBHost          = "VOUCHR_DB_HOST"
	EnvDBUser          = "VOUCHR_DB_USER"
	EnvDBName          = "VOUCHR_DB_NAME"
	EnvDBPassword      = "VOUCHR_DB_PASSWORD"
	EnvRedisURL        = "VOUCHR_REDIS_URL"
	EnvJWTSecret       = "VOUCHR_JWT_SECRET"
	EnvPricingMargin   = "VOUCHR_PRICING_MARGIN_PERCENT"
	EnvVendorTimeout   = "VOUCHR_FULFILLMENT_VENDOR_TIMEOUT"
	EnvKafkaBrokers    = "VOUCHR_KAFKA_BROKERS"
	EnvEventsTransport = "VOUCHR_EVENTS_TRANSPORT"
)

var discreteDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
