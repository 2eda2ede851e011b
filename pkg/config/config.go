// pkg/config/config.go
package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/cmatc13/p2pservice/pkg/errors"
)

// EnvPrefix prefixes every environment variable read by Load, e.g.
// P2PNODE_ADMIN_ADDRESS for admin.address.
const EnvPrefix = "P2PNODE"

// Config holds all configuration for the node
type Config struct {
	Node    NodeConfig    `mapstructure:"node"`
	Log     LogConfig     `mapstructure:"log"`
	Admin   AdminConfig   `mapstructure:"admin"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Status  StatusConfig  `mapstructure:"status"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// NodeConfig holds node identity and lifecycle configuration
type NodeConfig struct {
	Name        string        `mapstructure:"name"`
	KeyFile     string        `mapstructure:"key_file"`
	GracePeriod time.Duration `mapstructure:"grace_period"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Environment string `mapstructure:"environment"`
}

// AdminConfig holds admin API configuration
type AdminConfig struct {
	Address            string        `mapstructure:"address"`
	JWTSecret          string        `mapstructure:"jwt_secret"`
	CORSAllowedOrigins []string      `mapstructure:"cors_allowed_origins"`
	RateLimit          int           `mapstructure:"rate_limit"`
	RateWindow         time.Duration `mapstructure:"rate_window"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
}

// RedisConfig holds Redis-related configuration
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// StatusConfig holds status publisher configuration
type StatusConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Key      string        `mapstructure:"key"`
	Interval time.Duration `mapstructure:"interval"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Namespace string `mapstructure:"namespace"`
}

var defaults = map[string]interface{}{
	"node.name":                  "p2pnode",
	"node.key_file":              "nodekey",
	"node.grace_period":          5 * time.Second,
	"log.level":                  "info",
	"log.environment":            "development",
	"admin.address":              "127.0.0.1:8545",
	"admin.jwt_secret":           "",
	"admin.cors_allowed_origins": []string{"*"},
	"admin.rate_limit":           100,
	"admin.rate_window":          time.Minute,
	"admin.shutdown_timeout":     3 * time.Second,
	"redis.address":              "localhost:6379",
	"redis.password":             "",
	"redis.db":                   0,
	"status.enabled":             true,
	"status.key":                 "p2pnode:status",
	"status.interval":            10 * time.Second,
	"status.ttl":                 30 * time.Second,
	"metrics.namespace":          "p2pnode",
}

// flagKeys maps command line flags onto configuration keys
var flagKeys = map[string]string{
	"node-name":     "node.name",
	"node-key":      "node.key_file",
	"grace-period":  "node.grace_period",
	"log-level":     "log.level",
	"admin-address": "admin.address",
	"redis-address": "redis.address",
	"status":        "status.enabled",
}

// LoadOptions controls where Load reads configuration from. Later sources
// win: defaults, config file, environment (including the .env file), flags.
type LoadOptions struct {
	// ConfigFile is an optional YAML, TOML or JSON file.
	ConfigFile string
	// EnvFile is loaded into the environment when present. Variables already
	// set are not overridden.
	EnvFile string
	// Flags, when set, overrides values with any flag the user changed.
	Flags *pflag.FlagSet
}

// DefaultLoadOptions returns options that read only .env and the environment
func DefaultLoadOptions() LoadOptions {
	return LoadOptions{EnvFile: ".env"}
}

// BindFlags registers the node's command line flags on fs
func BindFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "path to a config file")
	fs.String("env-file", ".env", "path to a .env file")
	fs.String("node-name", defaults["node.name"].(string), "diagnostic name of the node")
	fs.String("node-key", defaults["node.key_file"].(string), "path of the node key file")
	fs.Duration("grace-period", defaults["node.grace_period"].(time.Duration), "how long shutdown waits for cleanup")
	fs.String("log-level", defaults["log.level"].(string), "log level: debug, info, warn, error")
	fs.String("admin-address", defaults["admin.address"].(string), "listen address of the admin API")
	fs.String("redis-address", defaults["redis.address"].(string), "address of the status store")
	fs.Bool("status", defaults["status.enabled"].(bool), "publish status snapshots")
}

// Load loads configuration using DefaultLoadOptions
func Load() (*Config, error) {
	return LoadWithOptions(DefaultLoadOptions())
}

// LoadWithOptions loads and validates configuration
func LoadWithOptions(opts LoadOptions) (*Config, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, errors.Wrap(err, "failed to load env file "+opts.EnvFile)
		}
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, "failed to read config file "+opts.ConfigFile)
		}
	}

	if opts.Flags != nil {
		for name, key := range flagKeys {
			flag := opts.Flags.Lookup(name)
			if flag == nil || !flag.Changed {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return nil, errors.Wrap(err, "failed to bind flag "+name)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode configuration")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configuration the node cannot start with
func (c *Config) Validate() error {
	var problems []string

	if c.Node.Name == "" {
		problems = append(problems, "node.name must be set")
	}
	if c.Node.GracePeriod <= 0 {
		problems = append(problems, "node.grace_period must be positive")
	}
	if c.Admin.Address == "" {
		problems = append(problems, "admin.address must be set")
	}
	if c.Admin.RateLimit <= 0 || c.Admin.RateWindow <= 0 {
		problems = append(problems, "admin.rate_limit and admin.rate_window must be positive")
	}
	if c.Admin.ShutdownTimeout <= 0 {
		problems = append(problems, "admin.shutdown_timeout must be positive")
	}
	if c.Status.Enabled {
		if c.Redis.Address == "" {
			problems = append(problems, "redis.address must be set when status publishing is enabled")
		}
		if c.Status.Key == "" {
			problems = append(problems, "status.key must be set")
		}
		if c.Status.Interval <= 0 || c.Status.TTL <= 0 {
			problems = append(problems, "status.interval and status.ttl must be positive")
		}
	}

	if len(problems) > 0 {
		return &errors.Error{
			Domain:    "config",
			Code:      "CONFIG_INVALID",
			Operation: "Validate",
			Message:   strings.Join(problems, "; "),
			Original:  errors.ErrInvalidInput,
		}
	}
	return nil
}
