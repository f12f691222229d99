package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port         string `mapstructure:"PORT"`
	Env          string `mapstructure:"ENV"`
	AuthMode     string `mapstructure:"AUTH_MODE"`
	JWTSecret    string `mapstructure:"JWT_SECRET"`
	AuthIssuer   string `mapstructure:"AUTH_ISSUER"`
	AuthAudience string `mapstructure:"AUTH_AUDIENCE"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	QueueCapacity   int     `mapstructure:"QUEUE_CAPACITY"`
	PlacementPolicy string  `mapstructure:"PLACEMENT_POLICY"`
	EdgeSlackFactor float64 `mapstructure:"EDGE_SLACK_FACTOR"`
	PlacementSeed   int64   `mapstructure:"PLACEMENT_SEED"`

	EdgeNodes     int     `mapstructure:"EDGE_NODES"`
	EdgeNodeMIPS  float64 `mapstructure:"EDGE_NODE_MIPS"`
	CloudNodes    int     `mapstructure:"CLOUD_NODES"`
	CloudNodeMIPS float64 `mapstructure:"CLOUD_NODE_MIPS"`

	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("AUTH_MODE", "") // auto-detect: "" -> inferred from ENV
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("QUEUE_CAPACITY", 100)
	v.SetDefault("PLACEMENT_POLICY", "drop")
	v.SetDefault("EDGE_SLACK_FACTOR", 3.0)
	v.SetDefault("PLACEMENT_SEED", 0)
	v.SetDefault("EDGE_NODES", 4)
	v.SetDefault("EDGE_NODE_MIPS", 2000)
	v.SetDefault("CLOUD_NODES", 8)
	v.SetDefault("CLOUD_NODE_MIPS", 10000)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("AUTH_MODE")
	v.BindEnv("JWT_SECRET")
	v.BindEnv("AUTH_ISSUER")
	v.BindEnv("AUTH_AUDIENCE")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("QUEUE_CAPACITY")
	v.BindEnv("PLACEMENT_POLICY")
	v.BindEnv("EDGE_SLACK_FACTOR")
	v.BindEnv("PLACEMENT_SEED")
	v.BindEnv("EDGE_NODES")
	v.BindEnv("EDGE_NODE_MIPS")
	v.BindEnv("CLOUD_NODES")
	v.BindEnv("CLOUD_NODE_MIPS")
	v.BindEnv("CORS_ORIGINS")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ResolvedAuthMode returns the effective auth mode. If AUTH_MODE is explicitly
// set, it is returned. Otherwise ENV=development maps to "development" (no
// auth, all requests get admin) and everything else to "jwt".
func (c *Config) ResolvedAuthMode() string {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	if c.IsDev() {
		return "development"
	}
	return "jwt"
}

// EdgeRates expands the edge fleet shape into one rate per node.
func (c *Config) EdgeRates() []float64 {
	return uniformRates(c.EdgeNodes, c.EdgeNodeMIPS)
}

// CloudRates expands the cloud fleet shape into one rate per node.
func (c *Config) CloudRates() []float64 {
	return uniformRates(c.CloudNodes, c.CloudNodeMIPS)
}

func uniformRates(count int, mips float64) []float64 {
	if count <= 0 {
		return nil
	}
	rates := make([]float64, count)
	for i := range rates {
		rates[i] = mips
	}
	return rates
}

// Validate checks that the configuration is safe to run. Outside development
// a JWT secret is required so that real authentication is enforced.
func (c *Config) Validate() error {
	mode := c.ResolvedAuthMode()
	if mode != "development" && mode != "jwt" {
		return fmt.Errorf("AUTH_MODE must be \"development\" or \"jwt\", got %q", mode)
	}
	if mode == "jwt" && c.JWTSecret == "" {
		return fmt.Errorf(
			"JWT_SECRET must be set when AUTH_MODE is \"jwt\" (current ENV=%q). "+
				"Refusing to start without authentication configuration", c.Env)
	}

	if c.QueueCapacity <= 0 {
		return fmt.Errorf("QUEUE_CAPACITY must be positive, got %d", c.QueueCapacity)
	}
	if c.PlacementPolicy != "drop" && c.PlacementPolicy != "requeue" {
		return fmt.Errorf("PLACEMENT_POLICY must be \"drop\" or \"requeue\", got %q", c.PlacementPolicy)
	}
	if c.EdgeSlackFactor <= 0 {
		return fmt.Errorf("EDGE_SLACK_FACTOR must be positive, got %v", c.EdgeSlackFactor)
	}

	if c.EdgeNodes < 0 || c.CloudNodes < 0 {
		return fmt.Errorf("node counts must not be negative")
	}
	if c.EdgeNodes > 0 && c.EdgeNodeMIPS <= 0 {
		return fmt.Errorf("EDGE_NODE_MIPS must be positive when edge nodes are configured")
	}
	if c.CloudNodes > 0 && c.CloudNodeMIPS <= 0 {
		return fmt.Errorf("CLOUD_NODE_MIPS must be positive when cloud nodes are configured")
	}

	return nil
}
