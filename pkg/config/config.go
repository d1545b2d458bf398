package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App         AppConfig
	DB          DBConfig
	Redis       RedisConfig
	Cart        CartConfig
	Reservation ReservationConfig
	Checkout    CheckoutConfig
	Square      SquareConfig
	PubSub      PubSubConfig
	Outbox       OutboxConfig
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
	Env          string `envconfig:"VENDORHUB_APP_ENV" required:"true"`
	Port         string `envconfig:"VENDORHUB_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"VENDORHUB_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"VENDORHUB_LOG_WARN_STACK" default:"false"`

	CORSOrigins []string `envconfig:"VENDORHUB_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"VENDORHUB_DB_DSN"`
	Driver string `envconfig:"VENDORHUB_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"VENDORHUB_DB_HOST"`
	Port     int    `envconfig:"VENDORHUB_DB_PORT" default:"5432"`
	User     string `envconfig:"VENDORHUB_DB_USER"`
	Password string `envconfig:"VENDORHUB_DB_PASSWORD"`
	Name     string `envconfig:"VENDORHUB_DB_NAME"`
	SSLMode  string `envconfig:"VENDORHUB_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"VENDORHUB_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"VENDORHUB_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"VENDORHUB_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"VENDORHUB_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"VENDORHUB_REDIS_URL" required:"true"`
	Address      string        `envconfig:"VENDORHUB_REDIS_ADDR"`
	Password     string        `envconfig:"VENDORHUB_REDIS_PASSWORD"`
	DB           int           `envconfig:"VENDORHUB_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"VENDORHUB_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"VENDORHUB_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"VENDORHUB_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"VENDORHUB_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"VENDORHUB_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type CartConfig struct {
	TTL         time.Duration `envconfig:"VENDORHUB_CART_TTL" default:"168h"`
	LockTTL     time.Duration `envconfig:"VENDORHUB_CART_LOCK_TTL" default:"5s"`
	LockRetry   time.Duration `envconfig:"VENDORHUB_CART_LOCK_RETRY" default:"25ms"`
	MaxLineQty  int           `envconfig:"VENDORHUB_CART_MAX_LINE_QTY" default:"999"`
	MaxCartSize int           `envconfig:"VENDORHUB_CART_MAX_ITEMS" default:"100"`

	// TaxRateBPS mirrors the checkout rate so cart totals preview what
	// checkout will charge.
	TaxRateBPS int `envconfig:"VENDORHUB_TAX_RATE_BPS" default:"875"`
}

type ReservationConfig struct {
	TTL           time.Duration `envconfig:"VENDORHUB_RESERVATION_TTL" default:"30m"`
	SweepInterval time.Duration `envconfig:"VENDORHUB_RESERVATION_SWEEP_INTERVAL" default:"5m"`
	SweepBatch    int           `envconfig:"VENDORHUB_RESERVATION_SWEEP_BATCH" default:"100"`
}

type CheckoutConfig struct {
	VendorFlatShippingCents int           `envconfig:"VENDORHUB_VENDOR_FLAT_SHIPPING_CENTS" default:"999"`
	TaxRateBPS              int           `envconfig:"VENDORHUB_TAX_RATE_BPS" default:"875"`
	PaymentTimeout          time.Duration `envconfig:"VENDORHUB_PAYMENT_TIMEOUT" default:"15s"`
	IdempotencyTTL          time.Duration `envconfig:"VENDORHUB_CHECKOUT_IDEMPOTENCY_TTL" default:"168h"`
}

type SquareConfig struct {
	AccessToken string `envconfig:"VENDORHUB_SQUARE_ACCESS_TOKEN"`
	LocationID  string `envconfig:"VENDORHUB_SQUARE_LOCATION_ID"`
	Env         string `envconfig:"VENDORHUB_SQUARE_ENV" default:"sandbox"`
	Currency    string `envconfig:"VENDORHUB_SQUARE_CURRENCY" default:"USD"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

type PubSubConfig struct {
	OrdersTopic string `envconfig:"VENDORHUB_PUBSUB_ORDERS_TOPIC" default:"vh-order-events"`
	ProjectID   string `envconfig:"VENDORHUB_GCP_PROJECT_ID"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"VENDORHUB_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"VENDORHUB_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"VENDORHUB_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"VENDORHUB_OUTBOX_RETENTION_DAYS" default:"14"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"VENDORHUB_CRON_INTERVAL" default:"5m"`
	LockTTL  time.Duration `envconfig:"VENDORHUB_CRON_LOCK_TTL" default:"10m"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"VENDORHUB_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range requiredDBEnvVars {
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
