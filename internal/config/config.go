package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint  string
	SnowflakeNode int64

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Redis     RedisConfig
	Razorpay  RazorpayConfig
	RateLimit RateLimitConfig
	Catalog   CatalogConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RazorpayConfig struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
	BaseURL       string
	Timeout       time.Duration
}

type RateLimitConfig struct {
	Enabled              bool
	CreateOrderPerMinute int
	CreateOrderBurst     int
	VerifyPerMinute      int
	VerifyBurst          int
}

type CatalogConfig struct {
	CacheTTL time.Duration
}

const configName = "topup"

var defaultConfigPaths = []string{"/etc/topup", "."}

var Module = fx.Module("config",
	fx.Provide(Load),
)

// Load reads .env, an optional topup.yml and the process environment, in
// increasing order of precedence.
func Load() (Config, error) {
	_ = godotenv.Load()
	return load(defaultConfigPaths...)
}

func load(paths ...string) (Config, error) {
	v := viper.New()
	v.SetConfigName(configName)
	v.SetConfigType("yml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	_ = v.BindEnv("app.env", "APP_ENV", "ENVIRONMENT")
	_ = v.BindEnv("app.name", "APP_NAME", "APP_SERVICE")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := Config{
		AppName:           strings.TrimSpace(v.GetString("app.name")),
		AppVersion:        strings.TrimSpace(v.GetString("app.version")),
		Environment:       strings.ToLower(strings.TrimSpace(v.GetString("app.env"))),
		HTTPAddr:          strings.TrimSpace(v.GetString("http.addr")),
		OTLPEndpoint:      strings.TrimSpace(v.GetString("otlp.endpoint")),
		SnowflakeNode:     v.GetInt64("snowflake.node"),
		DBType:            strings.ToLower(strings.TrimSpace(v.GetString("database.type"))),
		DBHost:            v.GetString("database.host"),
		DBPort:            v.GetString("database.port"),
		DBName:            v.GetString("database.name"),
		DBUser:            v.GetString("database.user"),
		DBPassword:        v.GetString("database.password"),
		DBSSLMode:         v.GetString("database.sslmode"),
		DBMaxIdleConn:     v.GetInt("database.max_idle_conn"),
		DBMaxOpenConn:     v.GetInt("database.max_open_conn"),
		DBConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
		DBConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(v.GetString("redis.addr")),
			Password: strings.TrimSpace(v.GetString("redis.password")),
			DB:       v.GetInt("redis.db"),
		},
		Razorpay: RazorpayConfig{
			KeyID:         strings.TrimSpace(v.GetString("razorpay.key_id")),
			KeySecret:     strings.TrimSpace(v.GetString("razorpay.key_secret")),
			WebhookSecret: strings.TrimSpace(v.GetString("razorpay.webhook_secret")),
			BaseURL:       strings.TrimSpace(v.GetString("razorpay.base_url")),
			Timeout:       v.GetDuration("razorpay.timeout"),
		},
		RateLimit: RateLimitConfig{
			Enabled:              v.GetBool("ratelimit.enabled"),
			CreateOrderPerMinute: v.GetInt("ratelimit.create_order_per_minute"),
			CreateOrderBurst:     v.GetInt("ratelimit.create_order_burst"),
			VerifyPerMinute:      v.GetInt("ratelimit.verify_per_minute"),
			VerifyBurst:          v.GetInt("ratelimit.verify_burst"),
		},
		Catalog: CatalogConfig{
			CacheTTL: v.GetDuration("catalog.cache_ttl"),
		},
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "topup")
	v.SetDefault("app.version", "0.1.0")
	v.SetDefault("app.env", "development")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("otlp.endpoint", "localhost:4317")
	v.SetDefault("snowflake.node", 1)

	v.SetDefault("database.type", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "topup")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_idle_conn", 5)
	v.SetDefault("database.max_open_conn", 20)
	v.SetDefault("database.conn_max_lifetime", 1800)
	v.SetDefault("database.conn_max_idle_time", 300)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("razorpay.key_id", "")
	v.SetDefault("razorpay.key_secret", "")
	v.SetDefault("razorpay.webhook_secret", "")
	v.SetDefault("razorpay.base_url", "https://api.razorpay.com")
	v.SetDefault("razorpay.timeout", "12s")

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.create_order_per_minute", 10)
	v.SetDefault("ratelimit.create_order_burst", 5)
	v.SetDefault("ratelimit.verify_per_minute", 30)
	v.SetDefault("ratelimit.verify_burst", 10)

	v.SetDefault("catalog.cache_ttl", "5m")
}

func (c Config) validate() error {
	if c.SnowflakeNode < 0 || c.SnowflakeNode > 1023 {
		return fmt.Errorf("snowflake node %d out of range", c.SnowflakeNode)
	}
	if c.Razorpay.Timeout <= 0 {
		return errors.New("razorpay timeout must be positive")
	}
	if c.RateLimit.Enabled && (c.RateLimit.CreateOrderPerMinute <= 0 || c.RateLimit.CreateOrderBurst <= 0) {
		return errors.New("create order rate limit must be positive")
	}
	if c.RateLimit.Enabled && (c.RateLimit.VerifyPerMinute <= 0 || c.RateLimit.VerifyBurst <= 0) {
		return errors.New("verify rate limit must be positive")
	}
	return nil
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}
