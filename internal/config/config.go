package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/HanTheDev/llm-fusion-gateway/internal/admission"
	"github.com/HanTheDev/llm-fusion-gateway/internal/analyzer"
	"github.com/HanTheDev/llm-fusion-gateway/internal/auth"
	"github.com/HanTheDev/llm-fusion-gateway/internal/fusion"
	"github.com/HanTheDev/llm-fusion-gateway/internal/models"
)

// Admission state backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

type Provider struct {
	Name   string
	URL    string
	APIKey string
	Model  string
}

type Config struct {
	DatabaseURL  string
	RedisURL     string
	JWTSecret    string
	ServerPort   string
	AdminAPIKey  string
	CallerIDSalt string
	LogLevel     slog.Level

	// TrustedProxies lists the peers whose X-Forwarded-For header is honored.
	TrustedProxies []string

	ProviderA       Provider
	ProviderB       Provider
	ProviderTimeout time.Duration
	ProviderRPS     float64
	// ProviderHourlyBudget caps calls per provider across the fleet; 0 disables it.
	ProviderHourlyBudget int
	MaxTokens            int

	AdmissionBackend string
	ResultCacheTTL   time.Duration

	Tuning Tuning
}

// Tuning holds the thresholds that may be overridden from a TOML file.
type Tuning struct {
	Admission admission.Config                 `toml:"admission"`
	Fusion    fusion.Thresholds                `toml:"fusion"`
	Weights   map[models.Tier]analyzer.Weights `toml:"weights"`
}

func DefaultTuning() Tuning {
	return Tuning{
		Admission: admission.DefaultConfig(),
		Fusion:    fusion.DefaultThresholds(),
	}
}

func Load() (*Config, error) {
	godotenv.Load()

	cfg := &Config{
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		RedisURL:     getEnv("REDIS_URL", "redis://localhost:6379"),
		JWTSecret:    getEnv("JWT_SECRET", ""),
		ServerPort:   getEnv("SERVER_PORT", "8080"),
		AdminAPIKey:  getEnv("ADMIN_API_KEY", ""),
		CallerIDSalt: getEnv("CALLER_ID_SALT", ""),

		TrustedProxies: getList("TRUSTED_PROXIES"),

		ProviderA:       loadProvider("PROVIDER_A", "provider_a"),
		ProviderB:       loadProvider("PROVIDER_B", "provider_b"),
		ProviderTimeout: getDuration("PROVIDER_TIMEOUT", 10*time.Second),
		ProviderRPS:     getFloat("PROVIDER_RPS", 5),

		ProviderHourlyBudget: getInt("PROVIDER_HOURLY_BUDGET", 0),
		MaxTokens:            getInt("PROVIDER_MAX_TOKENS", 600),

		AdmissionBackend: strings.ToLower(getEnv("ADMISSION_BACKEND", BackendMemory)),
		ResultCacheTTL:   getDuration("RESULT_CACHE_TTL", 10*time.Minute),
		Tuning:           DefaultTuning(),
	}

	level, err := ParseLevel(getEnv("LOG_LEVEL", "INFO"))
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = level

	if path := getEnv("TUNING_FILE", ""); path != "" {
		if err := LoadTuning(path, &cfg.Tuning); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.ProviderA.URL == "" || c.ProviderB.URL == "" {
		return fmt.Errorf("PROVIDER_A_URL and PROVIDER_B_URL are required")
	}
	if c.ProviderA.Name == c.ProviderB.Name {
		return fmt.Errorf("provider names must differ, both are %q", c.ProviderA.Name)
	}
	switch c.AdmissionBackend {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("unknown ADMISSION_BACKEND %q", c.AdmissionBackend)
	}
	if c.ProviderTimeout <= 0 {
		return fmt.Errorf("PROVIDER_TIMEOUT must be positive")
	}
	if _, err := auth.ParseTrustedProxies(c.TrustedProxies); err != nil {
		return fmt.Errorf("TRUSTED_PROXIES: %w", err)
	}
	if err := c.Tuning.Admission.Validate(); err != nil {
		return fmt.Errorf("admission tuning: %w", err)
	}
	if err := c.Tuning.Fusion.Validate(); err != nil {
		return fmt.Errorf("fusion tuning: %w", err)
	}
	for tier, w := range c.Tuning.Weights {
		if err := w.Validate(); err != nil {
			return fmt.Errorf("weights for %s: %w", tier, err)
		}
	}
	return nil
}

// LoadTuning overlays the TOML file at path onto t. Keys absent from the
// file keep their current values.
func LoadTuning(path string, t *Tuning) error {
	md, err := toml.DecodeFile(path, t)
	if err != nil {
		return fmt.Errorf("read tuning file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("tuning file %s: unknown keys %v", path, undecoded)
	}
	return nil
}

// ParseLevel maps DEBUG, INFO, WARN and ERROR to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("invalid LOG_LEVEL %q: %w", s, err)
	}
	return level, nil
}

// ConfigureLogging installs a text logger on stdout as the default.
func ConfigureLogging(level slog.Level) *slog.Logger {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

func loadProvider(prefix, defaultName string) Provider {
	return Provider{
		Name:   getEnv(prefix+"_NAME", defaultName),
		URL:    getEnv(prefix+"_URL", ""),
		APIKey: getEnv(prefix+"_KEY", ""),
		Model:  getEnv(prefix+"_MODEL", ""),
	}
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		slog.Warn("ignoring invalid duration", "key", key, "value", value)
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		slog.Warn("ignoring invalid integer", "key", key, "value", value)
	}
	return defaultVal
}

func getFloat(key string, defaultVal float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
		slog.Warn("ignoring invalid number", "key", key, "value", value)
	}
	return defaultVal
}
