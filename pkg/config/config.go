package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "ordercore"

	AppEnvDev  = "development"
	AppEnvProd = "production"

	EnvAppEnv = "ORDERCORE_APP_ENV"
	EnvDBDSN  = "ORDERCORE_DB_DSN"
	EnvDBHost = "ORDERCORE_DB_HOST"
	EnvDBUser = "ORDERCORE_DB_USER"
	EnvDBName = "ORDERCORE_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	Outbox       OutboxConfig
	Orders       OrdersConfig
	VNPay        VNPayConfig
	MoMo         MoMoConfig
	Shipping     ShippingConfig
	Loyalty      LoyaltyConfig
	Commission   CommissionConfig
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
	Env          string `envconfig:"ORDERCORE_APP_ENV" required:"true"`
	Port         string `envconfig:"ORDERCORE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"ORDERCORE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"ORDERCORE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"ORDERCORE_DB_DSN"`
	Driver string `envconfig:"ORDERCORE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"ORDERCORE_DB_HOST"`
	LegacyPort     int    `envconfig:"ORDERCORE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"ORDERCORE_DB_USER"`
	LegacyPassword string `envconfig:"ORDERCORE_DB_PASSWORD"`
	LegacyName     string `envconfig:"ORDERCORE_DB_NAME"`
	LegacySSLMode  string `envconfig:"ORDERCORE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"ORDERCORE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ORDERCORE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ORDERCORE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ORDERCORE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"ORDERCORE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"ORDERCORE_REDIS_ADDR"`
	Password     string        `envconfig:"ORDERCORE_REDIS_PASSWORD"`
	DB           int           `envconfig:"ORDERCORE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ORDERCORE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ORDERCORE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ORDERCORE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ORDERCORE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ORDERCORE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"ORDERCORE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"ORDERCORE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"ORDERCORE_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"ORDERCORE_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"ORDERCORE_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"ORDERCORE_OUTBOX_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"ORDERCORE_OUTBOX_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"ORDERCORE_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"ORDERCORE_OUTBOX_RETENTION_DAYS" default:"7"`
}

type OrdersConfig struct {
	PlacementTimeout      time.Duration `envconfig:"ORDERCORE_ORDER_PLACEMENT_TIMEOUT" default:"5s"`
	PendingTTL            time.Duration `envconfig:"ORDERCORE_ORDER_PENDING_TTL" default:"24h"`
	InventoryLogRetention int           `envconfig:"ORDERCORE_INVENTORY_LOG_RETENTION_DAYS" default:"180"`
}

type VNPayConfig struct {
	TerminalCode string `envconfig:"ORDERCORE_VNPAY_TMN_CODE"`
	HashSecret   string `envconfig:"ORDERCORE_VNPAY_HASH_SECRET"`
	PaymentURL   string `envconfig:"ORDERCORE_VNPAY_PAYMENT_URL" default:"https://sandbox.vnpayment.vn/paymentv2/vpcpay.html"`
	ReturnURL    string `envconfig:"ORDERCORE_VNPAY_RETURN_URL"`
}

type MoMoConfig struct {
	PartnerCode string `envconfig:"ORDERCORE_MOMO_PARTNER_CODE"`
	AccessKey   string `envconfig:"ORDERCORE_MOMO_ACCESS_KEY"`
	SecretKey   string `envconfig:"ORDERCORE_MOMO_SECRET_KEY"`
	Endpoint    string `envconfig:"ORDERCORE_MOMO_ENDPOINT" default:"https://test-payment.momo.vn/v2/gateway/api/create"`
	RedirectURL string `envconfig:"ORDERCORE_MOMO_REDIRECT_URL"`
	IPNURL      string `envconfig:"ORDERCORE_MOMO_IPN_URL"`
}

type ShippingConfig struct {
	BaseURL         string        `envconfig:"ORDERCORE_SHIPPING_BASE_URL"`
	Token           string        `envconfig:"ORDERCORE_SHIPPING_TOKEN"`
	ShopID          string        `envconfig:"ORDERCORE_SHIPPING_SHOP_ID"`
	RequestTimeout  time.Duration `envconfig:"ORDERCORE_SHIPPING_TIMEOUT" default:"10s"`
	DefaultFeeCents int64         `envconfig:"ORDERCORE_SHIPPING_DEFAULT_FEE_CENTS" default:"300000"`
}

type LoyaltyConfig struct {
	BaseURL        string        `envconfig:"ORDERCORE_LOYALTY_BASE_URL"`
	APIKey         string        `envconfig:"ORDERCORE_LOYALTY_API_KEY"`
	RequestTimeout time.Duration `envconfig:"ORDERCORE_LOYALTY_TIMEOUT" default:"10s"`
}

type CommissionConfig struct {
	SecondTierPercent string `envconfig:"ORDERCORE_COMMISSION_SECOND_TIER_PERCENT" default:"10"`
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
