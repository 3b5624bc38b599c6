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
	Stripe       StripeConfig
	Pricing      PricingConfig
	Cart         CartConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	GCP          GCPConfig
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
	Env          string `envconfig:"FARMFRESH_APP_ENV" required:"true"`
	Port         string `envconfig:"FARMFRESH_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"FARMFRESH_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"FARMFRESH_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"FARMFRESH_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"FARMFRESH_DB_DSN"`
	Driver string `envconfig:"FARMFRESH_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"FARMFRESH_DB_HOST"`
	LegacyPort     int    `envconfig:"FARMFRESH_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"FARMFRESH_DB_USER"`
	LegacyPassword string `envconfig:"FARMFRESH_DB_PASSWORD"`
	LegacyName     string `envconfig:"FARMFRESH_DB_NAME"`
	LegacySSLMode  string `envconfig:"FARMFRESH_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"FARMFRESH_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FARMFRESH_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FARMFRESH_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FARMFRESH_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"FARMFRESH_REDIS_URL" required:"true"`
	Address      string        `envconfig:"FARMFRESH_REDIS_ADDR"`
	Password     string        `envconfig:"FARMFRESH_REDIS_PASSWORD"`
	DB           int           `envconfig:"FARMFRESH_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FARMFRESH_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FARMFRESH_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FARMFRESH_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FARMFRESH_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FARMFRESH_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"FARMFRESH_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"FARMFRESH_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"FARMFRESH_JWT_EXPIRATION_MINUTES" default:"60"`
}

type StripeConfig struct {
	APIKey         string        `envconfig:"FARMFRESH_STRIPE_API_KEY"`
	WebhookSecret  string        `envconfig:"FARMFRESH_STRIPE_WEBHOOK_SECRET"`
	Env            string        `envconfig:"FARMFRESH_STRIPE_ENV" default:"test"`
	SuccessURL     string        `envconfig:"FARMFRESH_STRIPE_SUCCESS_URL" default:"https://farmfresh.example/checkout/success"`
	CancelURL      string        `envconfig:"FARMFRESH_STRIPE_CANCEL_URL" default:"https://farmfresh.example/checkout/cancel"`
	RequestTimeout time.Duration `envconfig:"FARMFRESH_STRIPE_REQUEST_TIMEOUT" default:"15s"`
	EventTTL       time.Duration `envconfig:"FARMFRESH_STRIPE_EVENT_TTL" default:"720h"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// PricingConfig drives checkout pricing computation.
type PricingConfig struct {
	PlatformFeePercent float64 `envconfig:"FARMFRESH_PLATFORM_FEE_PERCENT" default:"5"`
	DefaultTaxRate     float64 `envconfig:"FARMFRESH_DEFAULT_TAX_RATE" default:"0.06"`
	ShippingBaseCents  int     `envconfig:"FARMFRESH_SHIPPING_BASE_CENTS" default:"599"`
	ShippingPerKgCents int     `envconfig:"FARMFRESH_SHIPPING_PER_KG_CENTS" default:"120"`
}

type CartConfig struct {
	TTL           time.Duration `envconfig:"FARMFRESH_CART_TTL" default:"168h"`
	SweepInterval time.Duration `envconfig:"FARMFRESH_CART_SWEEP_INTERVAL" default:"1h"`
}

type PubSubConfig struct {
	OrdersTopic        string `envconfig:"FARMFRESH_PUBSUB_ORDERS_TOPIC" default:"ff-order-events"`
	NotificationsTopic string `envconfig:"FARMFRESH_PUBSUB_NOTIFICATIONS_TOPIC" default:"ff-notification-events"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"FARMFRESH_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"FARMFRESH_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"FARMFRESH_OUTBOX_MAX_ATTEMPTS" default:"10"`
	DedupTTL       time.Duration `envconfig:"FARMFRESH_OUTBOX_PUBLISH_DEDUP_TTL" default:"24h"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"FARMFRESH_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"FARMFRESH_GCP_CREDENTIALS_JSON"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"FARMFRESH_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"FARMFRESH_AUTO_MIGRATE" default:"false"`
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
