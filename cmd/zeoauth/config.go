package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/layer-3/zeoauth/adapters/store"
	"github.com/layer-3/zeoauth/adapters/tokenizer"
	"github.com/layer-3/zeoauth/challenge"
	"github.com/layer-3/zeoauth/internal/logger"
	"github.com/layer-3/zeoauth/service"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
)

const (
	defaultListenAddr   = "localhost:4000"
	defaultLoggingLevel = logger.LevelInfo
	defaultLogFormat    = logger.FormatText
	defaultEnvironment  = EnvProduction
)

type Config struct {
	// Address on which the service will be run
	ListenAddr string

	// Logging level and output format (text, json)
	LogLevel  string
	LogFormat string

	// Environment (development, production)
	Environment string

	// Secret used to sign session tokens. Required
	JWTSecret string

	// Session token lifetime
	JWTExpiresIn time.Duration

	// How long an issued nonce may be consumed and how long it is kept afterwards
	NonceTTL       time.Duration
	NonceRetention time.Duration

	// Optional. Enables the Redis nonce store and login event stream
	RedisURL string

	// Optional. Enables the Postgres user directory
	DatabaseDSN string

	// Name rendered in the challenge message
	AppName string

	// Upper bound for the user directory call made on login
	UpsertTimeout time.Duration

	// Browser origins allowed to call the API, "*" allows any
	CORSOrigins []string
}

func NewConfig() *Config {
	return &Config{
		ListenAddr:     defaultListenAddr,
		LogLevel:       defaultLoggingLevel,
		LogFormat:      defaultLogFormat,
		Environment:    defaultEnvironment,
		JWTExpiresIn:   tokenizer.DefaultSessionTTL,
		NonceTTL:       store.DefaultNonceTTL,
		NonceRetention: store.DefaultNonceRetention,
		AppName:        challenge.DefaultAppName,
		UpsertTimeout:  service.DefaultUpsertTimeout,
		CORSOrigins:    []string{"*"},
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) error {
		return func(value string) error {
			if value != "" {
				*o = value
			}
			return nil
		}
	}
	setDuration := func(o *time.Duration) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			*o = d
			return nil
		}
	}
	setList := func(o *[]string) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			var items []string
			for _, item := range strings.Split(value, ",") {
				if item = strings.TrimSpace(item); item != "" {
					items = append(items, item)
				}
			}
			*o = items
			return nil
		}
	}

	envMap := map[string]func(string) error{
		"RUN_ADDRESS":     setString(&c.ListenAddr),
		"LOG_LEVEL":       setString(&c.LogLevel),
		"LOG_FORMAT":      setString(&c.LogFormat),
		"ENVIRONMENT":     setString(&c.Environment),
		"JWT_SECRET":      setString(&c.JWTSecret),
		"JWT_EXPIRES_IN":  setDuration(&c.JWTExpiresIn),
		"NONCE_TTL":       setDuration(&c.NonceTTL),
		"NONCE_RETENTION": setDuration(&c.NonceRetention),
		"REDIS_URL":       setString(&c.RedisURL),
		"DATABASE_URL":    setString(&c.DatabaseDSN),
		"APP_NAME":        setString(&c.AppName),
		"UPSERT_TIMEOUT":  setDuration(&c.UpsertTimeout),
		"CORS_ORIGINS":    setList(&c.CORSOrigins),
	}

	for key, parseFn := range envMap {
		if err := parseFn(getenv(key)); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}

	return nil
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("zeoauth", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "Logging format (text, json)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (development, production)")
	fs.StringVarP(&c.JWTSecret, "jwt-secret", "s", c.JWTSecret, "Secret used to sign session tokens")
	fs.DurationVar(&c.JWTExpiresIn, "jwt-expires-in", c.JWTExpiresIn, "Session token lifetime")
	fs.DurationVar(&c.NonceTTL, "nonce-ttl", c.NonceTTL, "How long a login nonce stays valid")
	fs.DurationVar(&c.NonceRetention, "nonce-retention", c.NonceRetention, "How long an expired or used nonce is remembered")
	fs.StringVarP(&c.RedisURL, "redis", "r", c.RedisURL, "Redis connection URL")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVar(&c.AppName, "app-name", c.AppName, "Application name shown in the sign-in message")
	fs.DurationVar(&c.UpsertTimeout, "upsert-timeout", c.UpsertTimeout, "Timeout of the user directory update on login")
	fs.StringSliceVar(&c.CORSOrigins, "cors-origins", c.CORSOrigins, "Comma separated browser origins allowed to call the API")

	return fs.Parse(args)
}

// Validate reports the first option that can not be used to start the service
func (c *Config) Validate() error {
	switch {
	case c.JWTSecret == "":
		return errors.New("jwt secret is required")
	case len(c.JWTSecret) < tokenizer.MinSecretLength:
		return fmt.Errorf("jwt secret must be at least %d characters", tokenizer.MinSecretLength)
	case c.JWTExpiresIn <= 0:
		return errors.New("jwt expiration must be positive")
	case c.NonceTTL <= 0:
		return errors.New("nonce ttl must be positive")
	case c.NonceRetention <= 0:
		return errors.New("nonce retention must be positive")
	case c.UpsertTimeout <= 0:
		return errors.New("upsert timeout must be positive")
	case c.AppName == "":
		return errors.New("app name must not be empty")
	}

	for _, origin := range c.CORSOrigins {
		if origin != "*" && !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			return fmt.Errorf("cors origin %q must start with http:// or https://", origin)
		}
	}

	return nil
}
