package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full process configuration, read once at startup.
type Config struct {
	Server    Server
	Log       LogConfig
	Redis     RedisConfig
	Postgres  PostgresConfig
	Providers ProvidersConfig
	Engine    EngineConfig
	Ledger    LedgerConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string
	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string
	ShutdownGrace time.Duration
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json or text
}

// RedisConfig enables the shared environmental context cache when URL is set.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// PostgresConfig switches every store to PostgreSQL when URL is set.
type PostgresConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
}

// ProvidersConfig covers the weather and elevation upstreams.
type ProvidersConfig struct {
	WeatherBaseURL   string
	WeatherAPIKey    string
	ElevationBaseURL string
	AttemptTimeout   time.Duration
	RetryAttempts    int
	BreakerFailures  int
	BreakerCooldown  time.Duration
}

// EngineConfig holds the policy knobs of the constraint and proof engine.
type EngineConfig struct {
	PolicyFile       string
	ContextStaleness time.Duration
	CacheBucket      time.Duration
	SigmaThreshold   float64
	HistoryWindow    int
}

// LedgerConfig selects the anchoring backend: "kafka", "http" or "" (disabled).
type LedgerConfig struct {
	Backend        string
	KafkaBrokers   []string
	KafkaTopic     string
	HTTPBaseURL    string
	HTTPNetwork    string
	RequestsPerSec float64
	SubmitTimeout  time.Duration
	SubmitAttempts int
	PollInterval   time.Duration
}

// FromEnv builds the Config from environment variables so main stays lean.
func FromEnv() (Config, error) {
	var errs []string
	dur := func(key string, def time.Duration) time.Duration {
		v, err := envDuration(key, def)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return v
	}
	num := func(key string, def int) int {
		v, err := envInt(key, def)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return v
	}
	flt := func(key string, def float64) float64 {
		v, err := envFloat(key, def)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return v
	}

	cfg := Config{
		Server: Server{
			Addr: env("VITALPROOF_ADDR", ":8080"),
			// Development default; must be overridden in production.
			JWTSigningKey: env("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			JWTIssuer:     env("JWT_ISSUER", ""),
			JWTAudience:   env("JWT_AUDIENCE", ""),
			ShutdownGrace: dur("SHUTDOWN_GRACE", 10*time.Second),
		},
		Log: LogConfig{
			Level:  env("LOG_LEVEL", "info"),
			Format: env("LOG_FORMAT", "json"),
		},
		Redis: RedisConfig{
			URL:          env("REDIS_URL", ""),
			PoolSize:     num("REDIS_POOL_SIZE", 10),
			MinIdleConns: num("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  dur("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  dur("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: dur("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Postgres: PostgresConfig{
			URL:          env("DATABASE_URL", ""),
			MaxOpenConns: num("DATABASE_MAX_OPEN_CONNS", 20),
			MaxIdleConns: num("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Providers: ProvidersConfig{
			WeatherBaseURL:   env("WEATHER_BASE_URL", "https://api.openweathermap.org"),
			WeatherAPIKey:    env("WEATHER_API_KEY", ""),
			ElevationBaseURL: env("ELEVATION_BASE_URL", "https://api.open-elevation.com"),
			AttemptTimeout:   dur("PROVIDER_ATTEMPT_TIMEOUT", 5*time.Second),
			RetryAttempts:    num("PROVIDER_RETRY_ATTEMPTS", 3),
			BreakerFailures:  num("PROVIDER_BREAKER_FAILURES", 5),
			BreakerCooldown:  dur("PROVIDER_BREAKER_COOLDOWN", 30*time.Second),
		},
		Engine: EngineConfig{
			PolicyFile:       env("POLICY_FILE", ""),
			ContextStaleness: dur("CONTEXT_STALENESS", time.Hour),
			CacheBucket:      dur("CONTEXT_CACHE_BUCKET", time.Hour),
			SigmaThreshold:   flt("TEMPORAL_SIGMA_THRESHOLD", 2.0),
			HistoryWindow:    num("TEMPORAL_HISTORY_WINDOW", 5),
		},
		Ledger: LedgerConfig{
			Backend:        env("LEDGER_BACKEND", ""),
			KafkaBrokers:   envList("KAFKA_BROKERS"),
			KafkaTopic:     env("KAFKA_ANCHOR_TOPIC", "vitalproof.anchors"),
			HTTPBaseURL:    env("LEDGER_BASE_URL", ""),
			HTTPNetwork:    env("LEDGER_NETWORK", "polygon-amoy"),
			RequestsPerSec: flt("LEDGER_REQUESTS_PER_SEC", 5),
			SubmitTimeout:  dur("LEDGER_SUBMIT_TIMEOUT", 10*time.Second),
			SubmitAttempts: num("LEDGER_SUBMIT_ATTEMPTS", 3),
			PollInterval:   dur("LEDGER_POLL_INTERVAL", 15*time.Second),
		},
	}

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Ledger.Backend {
	case "":
	case "kafka":
		if len(c.Ledger.KafkaBrokers) == 0 {
			return fmt.Errorf("invalid configuration: KAFKA_BROKERS is required for the kafka ledger")
		}
	case "http":
		if c.Ledger.HTTPBaseURL == "" {
			return fmt.Errorf("invalid configuration: LEDGER_BASE_URL is required for the http ledger")
		}
	default:
		return fmt.Errorf("invalid configuration: unknown LEDGER_BACKEND %q", c.Ledger.Backend)
	}
	if c.Engine.ContextStaleness <= 0 || c.Engine.CacheBucket <= 0 {
		return fmt.Errorf("invalid configuration: context staleness and cache bucket must be positive")
	}
	if c.Engine.SigmaThreshold <= 0 {
		return fmt.Errorf("invalid configuration: TEMPORAL_SIGMA_THRESHOLD must be positive")
	}
	return nil
}

func env(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envList(key string) []string {
	raw := env(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	raw := env(key, "")
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func envInt(key string, def int) (int, error) {
	raw := env(key, "")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envFloat(key string, def float64) (float64, error) {
	raw := env(key, "")
	if raw == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}
