// Package config loads statline configuration from YAML files and
// environment variables. Environment variables use the STATLINE_ prefix
// (STATLINE_SPORTSDATA_API_KEY, STATLINE_REDIS_ADDR, ...); a handful of
// unprefixed names common in container deployments are bound explicitly.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// SportsDataConfig holds upstream API and rate limit settings.
type SportsDataConfig struct {
	APIKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	RequestsPerMonth  int           `mapstructure:"requests_per_month"`
	BurstSize         int           `mapstructure:"burst_size"`
}

// DatabaseConfig holds PostgreSQL connection settings for the warm cache tier.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// RedisConfig holds Redis connection settings for the hot cache tier.
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	DB           int           `mapstructure:"db"`
	Password     string        `mapstructure:"password"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// Config holds the complete application configuration.
type Config struct {
	Environment string           `mapstructure:"environment"`
	SportsData  SportsDataConfig `mapstructure:"sportsdata"`
	Database    DatabaseConfig   `mapstructure:"database"`
	Redis       RedisConfig      `mapstructure:"redis"`
	Logging     LoggingConfig    `mapstructure:"logging"`
}

// Load loads configuration from file and environment variables.
func Load() (*Config, error) {
	// A .env file is optional; real environment variables win.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if configFile := os.Getenv("STATLINE_CONFIG_FILE"); configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("configs")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("STATLINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bind unprefixed variable names commonly set in container environments.
	_ = v.BindEnv("sportsdata.api_key", "SPORTSDATAIO_API_KEY")
	_ = v.BindEnv("database.dsn", "DATABASE_URL")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")

	v.AllowEmptyEnv(true)

	if err := v.ReadInConfig(); err != nil {
		// The config file is not required when environment variables are set.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	processEnvExpansion(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// Validate checks that required settings are present and sane.
func (c *Config) Validate() error {
	if c.SportsData.APIKey == "" {
		return errors.New("sportsdata.api_key is required (SPORTSDATAIO_API_KEY)")
	}
	if c.SportsData.RequestsPerSecond <= 0 {
		return fmt.Errorf("sportsdata.requests_per_second must be positive, got %v", c.SportsData.RequestsPerSecond)
	}
	if c.SportsData.BurstSize <= 0 {
		return fmt.Errorf("sportsdata.burst_size must be positive, got %d", c.SportsData.BurstSize)
	}
	if c.SportsData.RequestsPerMonth <= 0 {
		return fmt.Errorf("sportsdata.requests_per_month must be positive, got %d", c.SportsData.RequestsPerMonth)
	}
	if c.Database.DSN == "" {
		return errors.New("database.dsn is required (DATABASE_URL)")
	}
	return nil
}

// IsProduction returns true if the environment is production.
func (c *Config) IsProduction() bool {
	return c.Environment == "prod" || c.Environment == "production"
}

// IsDevelopment returns true if the environment is development.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "dev" || c.Environment == "development"
}

// processEnvExpansion expands ${VAR} and ${VAR:-default} references in
// string config values so YAML files can defer to the environment.
func processEnvExpansion(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		value := v.GetString(key)
		if value == "" {
			continue
		}

		if strings.Contains(value, "${") && strings.Contains(value, "}") {
			expandedValue := expandEnvVars(value)
			if expandedValue != value {
				v.Set(key, expandedValue)
			}
		}
	}
}

func expandEnvVars(value string) string {
	result := value

	for {
		start := strings.Index(result, "${")
		if start == -1 {
			break
		}

		end := strings.Index(result[start:], "}")
		if end == -1 {
			break
		}
		end += start

		varRef := result[start+2 : end]

		var envVar, defaultVal string
		if strings.Contains(varRef, ":-") {
			parts := strings.SplitN(varRef, ":-", 2)
			envVar = parts[0]
			defaultVal = parts[1]
		} else {
			envVar = varRef
		}

		envVal := os.Getenv(envVar)
		if envVal == "" && defaultVal != "" {
			envVal = defaultVal
		}

		result = result[:start] + envVal + result[end+1:]
	}

	return result
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "dev")

	// Upstream API defaults match the SportsDataIO free tier.
	v.SetDefault("sportsdata.base_url", "https://api.sportsdata.io/v3/nfl")
	v.SetDefault("sportsdata.timeout", 30*time.Second)
	v.SetDefault("sportsdata.requests_per_second", 2.0)
	v.SetDefault("sportsdata.requests_per_month", 10000)
	v.SetDefault("sportsdata.burst_size", 5)

	// Database defaults
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.migrations_path", "migrations")

	// Redis defaults
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)

	// Logging defaults
	v.SetDefault("logging.level", "info")
}
