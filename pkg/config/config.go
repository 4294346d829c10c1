package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	// EnvPrefix is intentionally empty: every field names its variable in full.
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "KOLABZ_DB_DSN"
	EnvDBHost = "KOLABZ_DB_HOST"
	EnvDBUser = "KOLABZ_DB_USER"
	EnvDBName = "KOLABZ_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Stripe       StripeConfig
	Billing      BillingConfig
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
	Env          string `envconfig:"KOLABZ_APP_ENV" required:"true"`
	Port         string `envconfig:"KOLABZ_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"KOLABZ_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"KOLABZ_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"KOLABZ_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"KOLABZ_DB_DSN"`
	Driver string `envconfig:"KOLABZ_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"KOLABZ_DB_HOST"`
	LegacyPort     int    `envconfig:"KOLABZ_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"KOLABZ_DB_USER"`
	LegacyPassword string `envconfig:"KOLABZ_DB_PASSWORD"`
	LegacyName     string `envconfig:"KOLABZ_DB_NAME"`
	LegacySSLMode  string `envconfig:"KOLABZ_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"KOLABZ_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"KOLABZ_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"KOLABZ_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"KOLABZ_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"KOLABZ_REDIS_URL" required:"true"`
	Address      string        `envconfig:"KOLABZ_REDIS_ADDR"`
	Password     string        `envconfig:"KOLABZ_REDIS_PASSWORD"`
	DB           int           `envconfig:"KOLABZ_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"KOLABZ_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"KOLABZ_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"KOLABZ_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"KOLABZ_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"KOLABZ_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"KOLABZ_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"KOLABZ_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"KOLABZ_JWT_EXPIRATION_MINUTES" default:"60"`
}

// StripeConfig holds the payment provider credentials. The test/live mode is an
// explicit value here, never ambient state read back out of the database.
type StripeConfig struct {
	APIKey        string `envconfig:"KOLABZ_STRIPE_API_KEY"`
	WebhookSecret string `envconfig:"KOLABZ_STRIPE_WEBHOOK_SECRET"`
	Env           string `envconfig:"KOLABZ_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type BillingConfig struct {
	PortalReturnURL    string `envconfig:"KOLABZ_BILLING_PORTAL_RETURN_URL"`
	CheckoutSuccessURL string `envconfig:"KOLABZ_BILLING_CHECKOUT_SUCCESS_URL"`
	CheckoutCancelURL  string `envconfig:"KOLABZ_BILLING_CHECKOUT_CANCEL_URL"`
}

type CronConfig struct {
	Interval          time.Duration `envconfig:"KOLABZ_CRON_INTERVAL" default:"1h"`
	ReconcileLimit    int           `envconfig:"KOLABZ_CRON_RECONCILE_LIMIT" default:"250"`
	ReconcileLookback time.Duration `envconfig:"KOLABZ_CRON_RECONCILE_LOOKBACK" default:"168h"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"KOLABZ_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"KOLABZ_AUTO_MIGRATE" default:"false"`
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
