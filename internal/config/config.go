// Package config loads service settings from the environment, an optional
// .env file and an optional config file.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds every runtime setting.
type Config struct {
	HTTPAddr string

	DatabaseDSN string
	RedisAddr   string
	ResultTTL   time.Duration

	CatalogBaseDir     string
	ForbiddenTermsPath string
	MaxParallel        int
	CompareSize        int

	JWTSecret   string
	JWTAudience string

	LogLevel string
}

var defaults = map[string]any{
	"http_addr":            ":8080",
	"database_dsn":         "host=postgres user=postgres password=postgres dbname=productmatch port=5432 sslmode=disable",
	"redis_addr":           "redis:6379",
	"result_ttl":           "10m",
	"catalog_base_dir":     ".",
	"forbidden_terms_path": "TR.txt",
	"match_max_parallel":   0,
	"compare_size":         256,
	"jwt_secret":           "",
	"jwt_audience":         "",
	"log_level":            "info",
}

// Load reads configuration with this precedence: environment variables, .env
// file, config file (if configFile is non-empty), defaults.
func Load(configFile string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		HTTPAddr:           v.GetString("http_addr"),
		DatabaseDSN:        v.GetString("database_dsn"),
		RedisAddr:          v.GetString("redis_addr"),
		ResultTTL:          v.GetDuration("result_ttl"),
		CatalogBaseDir:     v.GetString("catalog_base_dir"),
		ForbiddenTermsPath: v.GetString("forbidden_terms_path"),
		MaxParallel:        v.GetInt("match_max_parallel"),
		CompareSize:        v.GetInt("compare_size"),
		JWTSecret:          v.GetString("jwt_secret"),
		JWTAudience:        v.GetString("jwt_audience"),
		LogLevel:           v.GetString("log_level"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.CatalogBaseDir) == "" {
		errs = append(errs, errors.New("catalog_base_dir must not be empty"))
	}
	if c.MaxParallel < 0 {
		errs = append(errs, errors.New("match_max_parallel must be zero or positive"))
	}
	if c.ResultTTL < 0 {
		errs = append(errs, errors.New("result_ttl must not be negative"))
	}
	return errors.Join(errs...)
}
