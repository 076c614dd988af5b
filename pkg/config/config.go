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
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Escrow       EscrowConfig
	Payouts      PayoutConfig
	Intents      IntentConfig
	Ozow         OzowConfig
	Peach        PeachConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = DriverSQLite
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints that envconfig tags cannot express.
func (c Config) Validate() error {
	if !c.Escrow.PlatformFeeRate.IsPositive() || c.Escrow.PlatformFeeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("%s must be in (0, 1), got %s", EnvPlatformFeeRate, c.Escrow.PlatformFeeRate)
	}
	if c.Escrow.AutoReleaseDays <= 0 {
		return fmt.Errorf("%s must be positive", EnvAutoReleaseDays)
	}
	if !c.Payouts.MinAmount.IsPositive() {
		return fmt.Errorf("%s must be positive", EnvPayoutMinAmount)
	}
	if c.App.IsProd() && c.Ozow.Enabled() && strings.TrimSpace(c.Ozow.PrivateKey) == "" {
		return fmt.Errorf("%s is required in production", EnvOzowPrivateKey)
	}
	return nil
}

type AppConfig struct {
	Env          string `envconfig:"VENDORLUTION_APP_ENV" required:"true"`
	Port         string `envconfig:"VENDORLUTION_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"VENDORLUTION_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"VENDORLUTION_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"VENDORLUTION_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type DBConfig struct {
	DSN    string `envconfig:"VENDORLUTION_DB_DSN"`
	Driver string `envconfig:"VENDORLUTION_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"VENDORLUTION_DB_HOST"`
	LegacyPort     int    `envconfig:"VENDORLUTION_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"VENDORLUTION_DB_USER"`
	LegacyPassword string `envconfig:"VENDORLUTION_DB_PASSWORD"`
	LegacyName     string `envconfig:"VENDORLUTION_DB_NAME"`
	LegacySSLMode  string `envconfig:"VENDORLUTION_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"VENDORLUTION_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"VENDORLUTION_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"VENDORLUTION_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"VENDORLUTION_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"VENDORLUTION_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"VENDORLUTION_REDIS_URL" required:"true"`
	Address      string        `envconfig:"VENDORLUTION_REDIS_ADDR"`
	Password     string        `envconfig:"VENDORLUTION_REDIS_PASSWORD"`
	DB           int           `envconfig:"VENDORLUTION_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"VENDORLUTION_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"VENDORLUTION_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"VENDORLUTION_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"VENDORLUTION_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"VENDORLUTION_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string        `envconfig:"VENDORLUTION_JWT_SECRET" required:"true"`
	Issuer            string        `envconfig:"VENDORLUTION_JWT_ISSUER" required:"true"`
	ExpirationMinutes int           `envconfig:"VENDORLUTION_JWT_EXPIRATION_MINUTES" required:"true"`
	Leeway            time.Duration `envconfig:"VENDORLUTION_JWT_LEEWAY" default:"30s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"VENDORLUTION_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"VENDORLUTION_AUTO_MIGRATE" default:"false"`
}

// EscrowConfig holds the money settings applied at checkout and settlement.
type EscrowConfig struct {
	PlatformFeeRate   decimal.Decimal `envconfig:"VENDORLUTION_PLATFORM_FEE_PERCENT" default:"0.05"`
	AutoReleaseDays   int             `envconfig:"VENDORLUTION_AUTO_RELEASE_DAYS" default:"7"`
	ProtectionRate    decimal.Decimal `envconfig:"VENDORLUTION_BUYER_PROTECTION_RATE" default:"0.065"`
	ProtectionFlat    decimal.Decimal `envconfig:"VENDORLUTION_BUYER_PROTECTION_FLAT" default:"19.90"`
	ShippingPargo     decimal.Decimal `envconfig:"VENDORLUTION_SHIPPING_PARGO" default:"49.00"`
	ShippingCourier   decimal.Decimal `envconfig:"VENDORLUTION_SHIPPING_COURIER" default:"59.00"`
	ShippingPostnet   decimal.Decimal `envconfig:"VENDORLUTION_SHIPPING_POSTNET" default:"109.00"`
	ShippingPickup    decimal.Decimal `envconfig:"VENDORLUTION_SHIPPING_PICKUP" default:"0.00"`
	Currency          string          `envconfig:"VENDORLUTION_CURRENCY" default:"ZAR"`
	AutoReleaseBatch  int             `envconfig:"VENDORLUTION_AUTO_RELEASE_BATCH" default:"200"`
	AutoReleaseDryRun bool            `envconfig:"VENDORLUTION_AUTO_RELEASE_DRY_RUN" default:"false"`
}

// AutoReleaseAfter returns the grace window between delivery and automatic release.
func (e EscrowConfig) AutoReleaseAfter() time.Duration {
	return time.Duration(e.AutoReleaseDays) * 24 * time.Hour
}

type PayoutConfig struct {
	MinAmount decimal.Decimal `envconfig:"VENDORLUTION_PAYOUT_MIN_AMOUNT" default:"10.00"`
}

type IntentConfig struct {
	StaleAfter time.Duration `envconfig:"VENDORLUTION_INTENT_STALE_AFTER" default:"24h"`
	SweepBatch int           `envconfig:"VENDORLUTION_INTENT_SWEEP_BATCH" default:"200"`
}

type OzowConfig struct {
	SiteCode   string        `envconfig:"VENDORLUTION_OZOW_SITE_CODE"`
	APIKey     string        `envconfig:"VENDORLUTION_OZOW_API_KEY"`
	PrivateKey string        `envconfig:"VENDORLUTION_OZOW_PRIVATE_KEY"`
	IsTest     bool          `envconfig:"VENDORLUTION_OZOW_IS_TEST" default:"true"`
	BaseURL    string        `envconfig:"VENDORLUTION_OZOW_BASE_URL"`
	SuccessURL string        `envconfig:"VENDORLUTION_OZOW_SUCCESS_URL"`
	CancelURL  string        `envconfig:"VENDORLUTION_OZOW_CANCEL_URL"`
	ErrorURL   string        `envconfig:"VENDORLUTION_OZOW_ERROR_URL"`
	NotifyURL  string        `envconfig:"VENDORLUTION_OZOW_NOTIFY_URL"`
	Timeout    time.Duration `envconfig:"VENDORLUTION_OZOW_TIMEOUT" default:"25s"`
}

func (o OzowConfig) Enabled() bool {
	return strings.TrimSpace(o.SiteCode) != ""
}

// Endpoint resolves the payment request URL, honoring an explicit override.
func (o OzowConfig) Endpoint() string {
	if base := strings.TrimRight(strings.TrimSpace(o.BaseURL), "/"); base != "" {
		return base + "/PostPaymentRequest"
	}
	if o.IsTest {
		return "https://stagingapi.ozow.com/PostPaymentRequest"
	}
	return "https://api.ozow.com/PostPaymentRequest"
}

type PeachConfig struct {
	BaseURL         string        `envconfig:"VENDORLUTION_PEACH_BASE_URL" default:"https://eu-test.oppwa.com/v1"`
	EntityID        string        `envconfig:"VENDORLUTION_PEACH_ENTITY_ID"`
	AccessToken     string        `envconfig:"VENDORLUTION_PEACH_ACCESS_TOKEN"`
	NotificationURL string        `envconfig:"VENDORLUTION_PEACH_NOTIFICATION_URL"`
	Timeout         time.Duration `envconfig:"VENDORLUTION_PEACH_TIMEOUT" default:"30s"`
}

func (p PeachConfig) Enabled() bool {
	return strings.TrimSpace(p.EntityID) != "" && strings.TrimSpace(p.AccessToken) != ""
}

type GCPConfig struct {
	ProjectID              string `envconfig:"VENDORLUTION_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"VENDORLUTION_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"VENDORLUTION_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	NotificationTopic string `envconfig:"VENDORLUTION_PUBSUB_NOTIFICATION_TOPIC" default:"vdl-notification-events"`
	OrdersTopic       string `envconfig:"VENDORLUTION_PUBSUB_ORDERS_TOPIC" default:"vdl-order-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"VENDORLUTION_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"VENDORLUTION_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"VENDORLUTION_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"VENDORLUTION_OUTBOX_RETENTION_DAYS" default:"14"`
}

type CronConfig struct {
	Interval   time.Duration `envconfig:"VENDORLUTION_CRON_INTERVAL" default:"1h"`
	LockTTL    time.Duration `envconfig:"VENDORLUTION_CRON_LOCK_TTL" default:"55m"`
	JobTimeout time.Duration `envconfig:"VENDORLUTION_CRON_JOB_TIMEOUT" default:"10m"`
}

func (db *DBConfig) ensureDSN(sqlite bool) error {
	if db.DSN != "" {
		return nil
	}
	if sqlite {
		db.DSN = "file:vendorlution.db?cache=shared"
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
