package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Server    ServerConfig
	Data      DataConfig
	Logger    LoggerConfig
	Security  SecurityConfig
	Analytics AnalyticsConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DataConfig points at the files ingested on startup. Both are optional;
// uploads through the API replace whatever was loaded.
type DataConfig struct {
	ReturnsFile    string
	SalesFile      string
	MaxUploadBytes int64
	LoadTimeout    time.Duration
}

type LoggerConfig struct {
	Level  string
	Format string
}

// SecurityConfig limits clients. Uploads get their own, tighter budget since
// each one retrains the model set and reruns every analyzer.
type SecurityConfig struct {
	EnableRateLimit     bool
	RateLimitRPS        int
	RateLimitBurst      int
	IngestRatePerMinute int
	IngestBurst         int
	AllowedOrigins      []string
	TrustedProxies      []string
}

// AnalyticsConfig carries every tunable constant of the decision engine.
type AnalyticsConfig struct {
	NeighborK          int                `yaml:"neighbor_k"`
	ChannelNeighbors   int                `yaml:"channel_neighbors"`
	RecentReturns      int                `yaml:"recent_returns"`
	MaxDistanceKm      float64            `yaml:"max_distance_km"`
	MinTotalQty        float64            `yaml:"min_total_qty"`
	YesThreshold       int                `yaml:"yes_threshold"`
	MaybeThreshold     int                `yaml:"maybe_threshold"`
	DemandSaturation   float64            `yaml:"demand_saturation"`
	PlatformWeights    map[string]float64 `yaml:"platform_weights"`
	DefaultPlatformWt  float64            `yaml:"default_platform_weight"`
	DiscountStep       int                `yaml:"discount_step"`
	MaxDiscount        int                `yaml:"max_discount"`
	CurrentDiscount    int                `yaml:"current_discount"`
	Margin             float64            `yaml:"margin"`
	LogisticsCost      float64            `yaml:"logistics_cost"`
	LifecycleSlopeBand float64            `yaml:"lifecycle_slope_band"`
	MinElasticityRows  int                `yaml:"min_elasticity_rows"`
	MaxFitRows         int                `yaml:"max_fit_rows"`
	Workers            int                `yaml:"workers"`
	Synthetic          SyntheticConfig    `yaml:"synthetic"`
}

// SyntheticConfig controls filling of optional sales columns that are absent
// from the uploaded file.
type SyntheticConfig struct {
	Enabled bool  `yaml:"enabled"`
	Seed    int64 `yaml:"seed"`
}

// DefaultAnalytics returns the constants the engine ships with.
func DefaultAnalytics() AnalyticsConfig {
	return AnalyticsConfig{
		NeighborK:        5,
		ChannelNeighbors: 5,
		RecentReturns:    8,
		MaxDistanceKm:    15,
		MinTotalQty:      5,
		YesThreshold:     70,
		MaybeThreshold:   40,
		DemandSaturation: 30,
		PlatformWeights: map[string]float64{
			"Blinkit":          1.0,
			"Swiggy Instamart": 0.9,
			"Zepto":            0.8,
		},
		DefaultPlatformWt:  0.7,
		DiscountStep:       5,
		MaxDiscount:        50,
		CurrentDiscount:    15,
		Margin:             0.25,
		LogisticsCost:      60,
		LifecycleSlopeBand: 1,
		MinElasticityRows:  10,
		Workers:            1,
		Synthetic: SyntheticConfig{
			Enabled: true,
			Seed:    42,
		},
	}
}

func Load() (*Config, error) {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load()

	analytics := DefaultAnalytics()
	if path := os.Getenv("ANALYTICS_CONFIG_FILE"); path != "" {
		overrides, err := LoadAnalyticsFile(path, analytics)
		if err != nil {
			return nil, fmt.Errorf("load analytics config: %w", err)
		}
		analytics = overrides
	}
	analytics.Workers = getEnvInt("ANALYZER_WORKERS", analytics.Workers)
	analytics.MaxFitRows = getEnvInt("ANALYZER_MAX_FIT_ROWS", analytics.MaxFitRows)
	analytics.Synthetic.Enabled = getEnvBool("SYNTHETIC_ENABLED", analytics.Synthetic.Enabled)
	analytics.Synthetic.Seed = int64(getEnvInt("SYNTHETIC_SEED", int(analytics.Synthetic.Seed)))

	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnvString("SERVER_HOST", "localhost"),
			Port:            getEnvInt("SERVER_PORT", 8084),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
			IdleTimeout:     getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Data: DataConfig{
			ReturnsFile:    getEnvString("RETURNS_FILE", ""),
			SalesFile:      getEnvString("SALES_FILE", ""),
			MaxUploadBytes: int64(getEnvInt("MAX_UPLOAD_BYTES", 32<<20)),
			LoadTimeout:    getEnvDuration("LOAD_TIMEOUT", 2*time.Minute),
		},
		Logger: LoggerConfig{
			Level:  getEnvString("LOG_LEVEL", "info"),
			Format: getEnvString("LOG_FORMAT", "json"),
		},
		Security: SecurityConfig{
			EnableRateLimit:     getEnvBool("SECURITY_RATE_LIMIT_ENABLED", true),
			RateLimitRPS:        getEnvInt("SECURITY_RATE_LIMIT_RPS", 100),
			RateLimitBurst:      getEnvInt("SECURITY_RATE_LIMIT_BURST", 10),
			IngestRatePerMinute: getEnvInt("SECURITY_INGEST_RATE_PER_MIN", 6),
			IngestBurst:         getEnvInt("SECURITY_INGEST_BURST", 2),
			AllowedOrigins:      getEnvStringSlice("SECURITY_ALLOWED_ORIGINS", []string{"http://localhost:8084"}),
			TrustedProxies:      getEnvStringSlice("SECURITY_TRUSTED_PROXIES", []string{"127.0.0.1"}),
		},
		Analytics: analytics,
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadAnalyticsFile overlays the YAML file at path onto base. Keys missing
// from the file keep their value from base.
func LoadAnalyticsFile(path string, base AnalyticsConfig) (AnalyticsConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return base, err
	}
	if err := yaml.Unmarshal(raw, &base); err != nil {
		return base, fmt.Errorf("parse %s: %w", path, err)
	}
	return base, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}

	if c.Data.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload bytes must be positive")
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, c.Logger.Level) {
		return fmt.Errorf("invalid log level %q, must be one of: %s", c.Logger.Level, strings.Join(validLogLevels, ", "))
	}

	validLogFormats := []string{"json", "text"}
	if !contains(validLogFormats, c.Logger.Format) {
		return fmt.Errorf("invalid log format %q, must be one of: %s", c.Logger.Format, strings.Join(validLogFormats, ", "))
	}

	if c.Security.RateLimitRPS <= 0 {
		return fmt.Errorf("rate limit RPS must be positive")
	}

	if c.Security.RateLimitBurst <= 0 {
		return fmt.Errorf("rate limit burst must be positive")
	}

	if c.Security.IngestRatePerMinute <= 0 || c.Security.IngestBurst <= 0 {
		return fmt.Errorf("ingest rate and burst must be positive")
	}

	return c.Analytics.Validate()
}

// Validate reports the first inconsistent analytics setting.
func (a AnalyticsConfig) Validate() error {
	if a.NeighborK < 1 {
		return fmt.Errorf("neighbor k must be at least 1, got %d", a.NeighborK)
	}
	if a.ChannelNeighbors < 1 {
		return fmt.Errorf("channel neighbors must be at least 1, got %d", a.ChannelNeighbors)
	}
	if a.RecentReturns < 1 {
		return fmt.Errorf("recent returns must be at least 1, got %d", a.RecentReturns)
	}
	if a.MaxDistanceKm <= 0 {
		return fmt.Errorf("max distance must be positive")
	}
	if a.MaybeThreshold < 0 || a.YesThreshold > 100 || a.MaybeThreshold >= a.YesThreshold {
		return fmt.Errorf("thresholds must satisfy 0 <= maybe (%d) < yes (%d) <= 100", a.MaybeThreshold, a.YesThreshold)
	}
	if a.DemandSaturation <= 0 {
		return fmt.Errorf("demand saturation must be positive")
	}
	if a.DiscountStep <= 0 || a.MaxDiscount < 0 || a.MaxDiscount >= 100 {
		return fmt.Errorf("discount grid must have a positive step and a max below 100")
	}
	if a.CurrentDiscount%a.DiscountStep != 0 || a.CurrentDiscount > a.MaxDiscount || a.CurrentDiscount < 0 {
		return fmt.Errorf("current discount %d is not on the discount grid", a.CurrentDiscount)
	}
	if a.Margin <= 0 || a.Margin > 1 {
		return fmt.Errorf("margin must be in (0, 1]")
	}
	if a.LifecycleSlopeBand <= 0 {
		return fmt.Errorf("lifecycle slope band must be positive")
	}
	if a.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	return nil
}

// PlatformWeight returns the configured weight for platform, or the default
// weight for platforms the table does not know.
func (a AnalyticsConfig) PlatformWeight(platform string) float64 {
	if w, ok := a.PlatformWeights[platform]; ok {
		return w
	}
	return a.DefaultPlatformWt
}

// DiscountLevels enumerates 0..MaxDiscount in DiscountStep increments.
func (a AnalyticsConfig) DiscountLevels() []int {
	levels := make([]int, 0, a.MaxDiscount/a.DiscountStep+1)
	for d := 0; d <= a.MaxDiscount; d += a.DiscountStep {
		levels = append(levels, d)
	}
	return levels
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
