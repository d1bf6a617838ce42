package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Kafka        KafkaConfig
	Outbox       OutboxConfig
	Fulfillment  FulfillmentConfig
	Pricing      PricingConfig
	Providers    ProvidersConfig
	Cron         CronConfig
	Webhooks     WebhooksConfig
	Alerts       AlertsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if cfg.Pricing.MarginPercent.IsNegative() {
		return nil, fmt.Errorf("%s must not be negative", EnvPricingMargin)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"VOUCHR_APP_ENV" required:"true"`
	Port         string `envconfig:"VOUCHR_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"VOUCHR_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"VOUCHR_LOG_WARN_STACK" default:"false"`

	CORSOrigins     []string      `envconfig:"VOUCHR_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
	ShutdownTimeout time.Duration `envconfig:"VOUCHR_APP_SHUTDOWN_TIMEOUT" default:"15s"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"VOUCHR_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"VOUCHR_DB_DSN"`
	Driver string `envconfig:"VOUCHR_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"VOUCHR_DB_HOST"`
	Port     int    `envconfig:"VOUCHR_DB_PORT" default:"5432"`
	User     string `envconfig:"VOUCHR_DB_USER"`
	Password string `envconfig:"VOUCHR_DB_PASSWORD"`
	Name     string `envconfig:"VOUCHR_DB_NAME"`
	SSLMode  string `envconfig:"VOUCHR_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"VOUCHR_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"VOUCHR_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"VOUCHR_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"VOUCHR_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the sqlite dialector was requested.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"VOUCHR_REDIS_URL"`
	Address      string        `envconfig:"VOUCHR_REDIS_ADDR"`
	Password     string        `envconfig:"VOUCHR_REDIS_PASSWORD"`
	DB           int           `envconfig:"VOUCHR_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"VOUCHR_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"VOUCHR_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"VOUCHR_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"VOUCHR_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"VOUCHR_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"VOUCHR_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"VOUCHR_JWT_ISSUER" default:"vouchr"`
	ExpirationMinutes int    `envconfig:"VOUCHR_JWT_EXPIRATION_MINUTES" default:"720"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"VOUCHR_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	Transport      string        `envconfig:"VOUCHR_EVENTS_TRANSPORT" default:"pubsub"`
	IdempotencyTTL time.Duration `envconfig:"VOUCHR_EVENTING_IDEMPOTENCY_TTL" default:"72h"`
}

// UsesKafka reports whether domain events go to Kafka instead of Pub/Sub.
func (e EventingConfig) UsesKafka() bool {
	return strings.EqualFold(strings.TrimSpace(e.Transport), TransportKafka)
}

type GCPConfig struct {
	ProjectID              string `envconfig:"VOUCHR_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"VOUCHR_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"VOUCHR_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic        string `envconfig:"VOUCHR_PUBSUB_ORDERS_TOPIC" default:"vouchr-order-events"`
	OrdersSubscription string `envconfig:"VOUCHR_PUBSUB_ORDERS_SUBSCRIPTION"`
	CatalogTopic       string `envconfig:"VOUCHR_PUBSUB_CATALOG_TOPIC" default:"vouchr-catalog-events"`
}

type KafkaConfig struct {
	Brokers      []string      `envconfig:"VOUCHR_KAFKA_BROKERS"`
	ClientID     string        `envconfig:"VOUCHR_KAFKA_CLIENT_ID" default:"vouchr-outbox"`
	WriteTimeout time.Duration `envconfig:"VOUCHR_KAFKA_WRITE_TIMEOUT" default:"10s"`
	GroupID      string        `envconfig:"VOUCHR_KAFKA_GROUP_ID" default:"vouchr-alerts"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"VOUCHR_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"VOUCHR_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"VOUCHR_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"VOUCHR_OUTBOX_RETENTION" default:"720h"`
}

type FulfillmentConfig struct {
	VendorTimeout     time.Duration `envconfig:"VOUCHR_FULFILLMENT_VENDOR_TIMEOUT" default:"30s"`
	StockBoundary     string        `envconfig:"VOUCHR_FULFILLMENT_STOCK_BOUNDARY" default:"\n----------\n"`
	ReconcileGrace    time.Duration `envconfig:"VOUCHR_FULFILLMENT_RECONCILE_GRACE" default:"2m"`
	ReconcileBatch    int           `envconfig:"VOUCHR_FULFILLMENT_RECONCILE_BATCH" default:"50"`
	ReconcileMaxAge   time.Duration `envconfig:"VOUCHR_FULFILLMENT_RECONCILE_MAX_AGE" default:"72h"`
	RefundDescription string        `envconfig:"VOUCHR_FULFILLMENT_REFUND_DESCRIPTION" default:"Automatic refund: all items failed"`
}

type PricingConfig struct {
	MarginPercent decimal.Decimal `envconfig:"VOUCHR_PRICING_MARGIN_PERCENT" default:"10"`
}

type ProvidersConfig struct {
	Digiflazz   DigiflazzConfig
	TokoVoucher TokoVoucherConfig
	APIGames    APIGamesConfig
	MedanPedia  MedanPediaConfig
}

type DigiflazzConfig struct {
	BaseURL  string `envconfig:"VOUCHR_DIGIFLAZZ_BASE_URL" default:"https://api.digiflazz.com/v1"`
	Username string `envconfig:"VOUCHR_DIGIFLAZZ_USERNAME"`
	APIKey   string `envconfig:"VOUCHR_DIGIFLAZZ_API_KEY"`
	Testing  bool   `envconfig:"VOUCHR_DIGIFLAZZ_TESTING" default:"false"`
}

// Enabled reports whether credentials are present.
func (c DigiflazzConfig) Enabled() bool {
	return c.Username != "" && c.APIKey != ""
}

type TokoVoucherConfig struct {
	BaseURL    string `envconfig:"VOUCHR_TOKOVOUCHER_BASE_URL" default:"https://api.tokovoucher.net/v1"`
	MemberCode string `envconfig:"VOUCHR_TOKOVOUCHER_MEMBER_CODE"`
	Secret     string `envconfig:"VOUCHR_TOKOVOUCHER_SECRET"`
}

func (c TokoVoucherConfig) Enabled() bool {
	return c.MemberCode != "" && c.Secret != ""
}

type APIGamesConfig struct {
	BaseURL    string `envconfig:"VOUCHR_APIGAMES_BASE_URL" default:"https://v1.apigames.id"`
	MerchantID string `envconfig:"VOUCHR_APIGAMES_MERCHANT_ID"`
	SecretKey  string `envconfig:"VOUCHR_APIGAMES_SECRET_KEY"`
}

func (c APIGamesConfig) Enabled() bool {
	return c.MerchantID != "" && c.SecretKey != ""
}

type MedanPediaConfig struct {
	BaseURL string `envconfig:"VOUCHR_MEDANPEDIA_BASE_URL" default:"https://api.medanpedia.co.id"`
	APIID   string `envconfig:"VOUCHR_MEDANPEDIA_API_ID"`
	APIKey  string `envconfig:"VOUCHR_MEDANPEDIA_API_KEY"`
}

func (c MedanPediaConfig) Enabled() bool {
	return c.APIID != "" && c.APIKey != ""
}

type CronConfig struct {
	Schedule        string        `envconfig:"VOUCHR_CRON_SCHEDULE" default:"@every 5m"`
	LockTTL         time.Duration `envconfig:"VOUCHR_CRON_LOCK_TTL" default:"10m"`
	PendingOrderTTL time.Duration `envconfig:"VOUCHR_CRON_PENDING_ORDER_TTL" default:"24h"`
}

type WebhooksConfig struct {
	PaymentSecret      string        `envconfig:"VOUCHR_WEBHOOK_PAYMENT_SECRET"`
	PaymentRateLimit   int           `envconfig:"VOUCHR_WEBHOOK_PAYMENT_RATE_LIMIT" default:"300"`
	PaymentRateWindow  time.Duration `envconfig:"VOUCHR_WEBHOOK_PAYMENT_RATE_WINDOW" default:"1m"`
	PaymentIdempotency time.Duration `envconfig:"VOUCHR_WEBHOOK_PAYMENT_IDEMPOTENCY_TTL" default:"168h"`
}

type AlertsConfig struct {
	TelegramBotToken string `envconfig:"VOUCHR_ALERTS_TELEGRAM_BOT_TOKEN"`
	TelegramChatID   int64  `envconfig:"VOUCHR_ALERTS_TELEGRAM_CHAT_ID"`
}

// TelegramEnabled reports whether operator alerts can be delivered.
func (a AlertsConfig) TelegramEnabled() bool {
	return a.TelegramBotToken != "" && a.TelegramChatID != 0
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		db.DSN = "file:vouchr.db?cache=shared"
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range discreteDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
