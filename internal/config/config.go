package config

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrMissingJWTSecret is returned by LoadConfig when JWT_SECRET is empty.
// The gateway refuses to start rather than sign with a default secret.
var ErrMissingJWTSecret = errors.New("JWT_SECRET is required")

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	Postgres  PostgresConfig
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Views     ViewsConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigin   string
}

type PostgresConfig struct {
	DSN string
}

type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Addr returns host:port, or "" when Redis is not configured.
func (r RedisConfig) Addr() string {
	if r.Host == "" {
		return ""
	}
	return r.Host + ":" + r.Port
}

type JWTConfig struct {
	Secret          string
	RefreshSecret   string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

type AuthConfig struct {
	BcryptCost int
}

type RateLimitConfig struct {
	Enabled       bool
	RPS           float64
	Burst         int
	UseRedis      bool
	WindowSeconds int
}

// ViewsConfig controls the browser route guard.
type ViewsConfig struct {
	CookieSecure bool
	LoginPath    string
	LandingPath  string
}

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "5001")
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_ENVIRONMENT", "development")
	viper.SetDefault("CORS_ALLOW_ORIGIN", "*")
	viper.SetDefault("MONGODB_DATABASE", "finboard")
	viper.SetDefault("MONGODB_TIMEOUT", 10)
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("JWT_ACCESS_TOKEN_TTL", 15)
	viper.SetDefault("JWT_REFRESH_TOKEN_TTL", 10080)
	viper.SetDefault("BCRYPT_COST", 12)
	viper.SetDefault("RATE_LIMIT_ENABLED", true)
	viper.SetDefault("RATE_LIMIT_RPS", 1.0)
	viper.SetDefault("RATE_LIMIT_BURST", 5)
	viper.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 60)
	viper.SetDefault("VIEWS_LOGIN_PATH", "/login")
	viper.SetDefault("VIEWS_LANDING_PATH", "/dashboard")

	cfg := &Config{
		Server: ServerConfig{
			Port:         viper.GetString("SERVER_PORT"),
			Host:         viper.GetString("SERVER_HOST"),
			Environment:  viper.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			CORSOrigin:   viper.GetString("CORS_ALLOW_ORIGIN"),
		},
		Postgres: PostgresConfig{
			DSN: os.Getenv("DATABASE_DSN"),
		},
		MongoDB: MongoDBConfig{
			URI:      os.Getenv("MONGODB_URI"),
			Database: viper.GetString("MONGODB_DATABASE"),
			Timeout:  time.Duration(viper.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       0,
		},
		JWT: JWTConfig{
			Secret:          os.Getenv("JWT_SECRET"),
			RefreshSecret:   os.Getenv("JWT_REFRESH_SECRET"),
			AccessTokenTTL:  time.Duration(viper.GetInt("JWT_ACCESS_TOKEN_TTL")) * time.Minute,
			RefreshTokenTTL: time.Duration(viper.GetInt("JWT_REFRESH_TOKEN_TTL")) * time.Minute,
		},
		Auth: AuthConfig{
			BcryptCost: viper.GetInt("BCRYPT_COST"),
		},
		RateLimit: RateLimitConfig{
			Enabled:       viper.GetBool("RATE_LIMIT_ENABLED"),
			RPS:           viper.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         viper.GetInt("RATE_LIMIT_BURST"),
			UseRedis:      viper.GetBool("RATE_LIMIT_USE_REDIS"),
			WindowSeconds: viper.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		Views: ViewsConfig{
			CookieSecure: viper.GetBool("COOKIE_SECURE"),
			LoginPath:    viper.GetString("VIEWS_LOGIN_PATH"),
			LandingPath:  viper.GetString("VIEWS_LANDING_PATH"),
		},
	}

	if cfg.JWT.Secret == "" {
		return nil, ErrMissingJWTSecret
	}
	if cfg.JWT.RefreshSecret == "" {
		cfg.JWT.RefreshSecret = DeriveRefreshSecret(cfg.JWT.Secret)
	}
	if cfg.JWT.AccessTokenTTL <= 0 {
		cfg.JWT.AccessTokenTTL = 15 * time.Minute
	}
	if cfg.JWT.RefreshTokenTTL <= 0 {
		cfg.JWT.RefreshTokenTTL = 7 * 24 * time.Hour
	}

	return cfg, nil
}

// DeriveRefreshSecret returns a refresh-signing secret derived from the primary
// secret, so the two never coincide when JWT_REFRESH_SECRET is left unset.
func DeriveRefreshSecret(primary string) string {
	m := hmac.New(sha256.New, []byte(primary))
	m.Write([]byte("finboard/refresh-token"))
	return hex.EncodeToString(m.Sum(nil))
}

// ClientConfig configures the terminal session client.
type ClientConfig struct {
	GatewayURL   string
	SessionFile  string
	SessionRedis string
	Timeout      time.Duration
}

// LoadClientConfig reads the session client settings; none are required.
func LoadClientConfig() *ClientConfig {
	_ = godotenv.Load()

	viper.AutomaticEnv()
	viper.SetDefault("GATEWAY_URL", "http://localhost:5001")
	viper.SetDefault("GATEWAY_TIMEOUT", 10)

	sessionFile := viper.GetString("SESSION_FILE")
	if sessionFile == "" {
		if dir, err := os.UserConfigDir(); err == nil {
			sessionFile = dir + "/finboard/session.json"
		} else {
			sessionFile = ".finboard-session.json"
		}
	}
	return &ClientConfig{
		GatewayURL:   viper.GetString("GATEWAY_URL"),
		SessionFile:  sessionFile,
		SessionRedis: viper.GetString("SESSION_REDIS_ADDR"),
		Timeout:      time.Duration(viper.GetInt("GATEWAY_TIMEOUT")) * time.Second,
	}
}
