package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"

	"github.com/dernounimk/volty/internal/events"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (VOLTY_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (VOLTY_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	RedisURL     string `usage:"Redis URL for cart sessions (VOLTY_REDIS_URL or REDIS_URL)" flag:"redis-url"`
	ImageBaseURL string `default:"" usage:"Base URL for product images (e.g. https://cdn.example.com/images)" flag:"image-base-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (VOLTY_API_KEY_PEPPER)" flag:"api-key-pepper"`
	Cart         CartConfig
	Order        OrderConfig
	Events       events.Config
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// CartConfig controls server-side cart sessions.
type CartConfig struct {
	TTL time.Duration `default:"168h" usage:"Idle lifetime of a cart session"`
}

// OrderConfig controls order number generation.
type OrderConfig struct {
	NumberDigits   int `default:"6" usage:"Digits in generated order numbers" flag:"order-number-digits"`
	NumberAttempts int `default:"5" usage:"Attempts before giving up on a colliding order number" flag:"order-number-attempts"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Store       string        `default:"redis" usage:"Counter store: redis or memory" flag:"rate-limit-store"`
	Max         int           `default:"100" usage:"Max requests per window"`
	Window      time.Duration `default:"1m"  usage:"Rate limit window duration"`
	OrderMax    int           `default:"5" usage:"Max orders placed per client per order window" flag:"rate-limit-order-max"`
	OrderWindow time.Duration `default:"10m" usage:"Order placement rate limit window" flag:"rate-limit-order-window"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig reads an optional .env file, then loads configuration from
// environment variables and YAML config files.
func LoadConfig() (*Config, error) {
	// A missing .env is the normal case outside local development.
	_ = godotenv.Load()

	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "VOLTY",
		Files:     []string{"config.yaml", "/etc/volty/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("database URL is required: set VOLTY_DATABASE_URL or DATABASE_URL")
	case c.RedisURL == "":
		return errors.New("redis URL is required: set VOLTY_REDIS_URL or REDIS_URL")
	case c.APIKeyPepper == "":
		return errors.New("api key pepper is required: set VOLTY_API_KEY_PEPPER")
	case c.Cart.TTL <= 0:
		return errors.New("cart TTL must be positive")
	case c.RateLimit.Store != "" && c.RateLimit.Store != "redis" && c.RateLimit.Store != "memory":
		return errors.Errorf("unknown rate limit store %q", c.RateLimit.Store)
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's VOLTY_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.RedisURL == "" {
		c.RedisURL = os.Getenv("REDIS_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
