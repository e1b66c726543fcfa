// Package config provides functionality for managing configuration options
// for the server using command-line flags, a JSON config file and
// environment variables.
package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

// Session backends.
const (
	SessionsMemory = "memory"
	SessionsSQL    = "sql"
	SessionsRedis  = "redis"
)

// Options holds the configuration values for the server.
type Options struct {
	// Addr defines the server's listening address (ip:port).
	Addr string `json:"address"`

	// DatabaseDriver is "sqlite" or "postgres".
	DatabaseDriver string `json:"database_driver"`
	// DatabaseDSN holds the database connection string.
	DatabaseDSN string `json:"database_dsn"`

	// SessionBackend selects where sessions live: memory, sql or redis.
	SessionBackend string `json:"session_backend"`
	// SessionTTL is how long a session stays valid after login.
	SessionTTL time.Duration `json:"-"`
	// CookieName is the name of the session cookie.
	CookieName string `json:"cookie_name"`
	// CookieSecure marks the cookie Secure; enable behind HTTPS.
	CookieSecure bool `json:"cookie_secure"`

	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"redis_password"`
	RedisDB       int    `json:"redis_db"`

	// BcryptCost is the bcrypt work factor for new password hashes.
	BcryptCost int `json:"bcrypt_cost"`
	// HashConcurrency bounds parallel bcrypt operations.
	HashConcurrency int `json:"hash_concurrency"`

	// RateLimitSignup and RateLimitLogin are per-IP requests per minute; 0 disables.
	RateLimitSignup int `json:"rate_limit_signup"`
	RateLimitLogin  int `json:"rate_limit_login"`

	// CORSOrigins lists origins allowed to call the API with credentials.
	CORSOrigins []string `json:"cors_allowed_origins"`

	// LogLevel is the zap level name.
	LogLevel string `json:"log_level"`

	// TLSCert and TLSKey enable HTTPS when both are set.
	TLSCert string `json:"tls_cert_file"`
	TLSKey  string `json:"tls_key_file"`

	// Config is the path to the Config file.
	Config string `json:"-"`
}

// fileOptions mirrors the JSON config file. Durations are strings there.
type fileOptions struct {
	*Options
	SessionTTL string `json:"session_ttl"`
}

// Parse reads .env (if present), then command-line flags, then the JSON
// config file, then environment variables, each layer overriding the
// previous one for the values it sets.
func Parse() (*Options, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return parse(os.Args[1:], os.LookupEnv)
}

func parse(args []string, lookupEnv func(string) (string, bool)) (*Options, error) {
	options := &Options{}
	var cors string

	fsFlags := flag.NewFlagSet("mindease", flag.ContinueOnError)
	fsFlags.StringVar(&options.Addr, "a", "localhost:8080", "run on ip:port server")
	fsFlags.StringVar(&options.DatabaseDriver, "driver", "sqlite", "database driver: sqlite or postgres")
	fsFlags.StringVar(&options.DatabaseDSN, "d", "file:mindease.db", "db address")
	fsFlags.StringVar(&options.SessionBackend, "sessions", SessionsSQL, "session backend: memory, sql or redis")
	fsFlags.DurationVar(&options.SessionTTL, "session-ttl", 24*time.Hour, "session lifetime")
	fsFlags.StringVar(&options.CookieName, "cookie", "mindease.sid", "session cookie name")
	fsFlags.BoolVar(&options.CookieSecure, "cookie-secure", false, "mark the session cookie Secure")
	fsFlags.StringVar(&options.RedisAddr, "redis-addr", "", "redis address for sessions and rate limits")
	fsFlags.StringVar(&options.RedisPassword, "redis-password", "", "redis password")
	fsFlags.IntVar(&options.RedisDB, "redis-db", 0, "redis database number")
	fsFlags.IntVar(&options.BcryptCost, "bcrypt-cost", 12, "bcrypt work factor")
	fsFlags.IntVar(&options.HashConcurrency, "hash-workers", runtime.NumCPU(), "max parallel password hashes")
	fsFlags.IntVar(&options.RateLimitSignup, "rate-signup", 5, "signups per minute per IP, 0 disables")
	fsFlags.IntVar(&options.RateLimitLogin, "rate-login", 12, "logins per minute per IP, 0 disables")
	fsFlags.StringVar(&cors, "cors", "", "comma-separated allowed CORS origins")
	fsFlags.StringVar(&options.LogLevel, "log-level", "info", "log level")
	fsFlags.StringVar(&options.TLSCert, "tls-cert", "", "TLS certificate file")
	fsFlags.StringVar(&options.TLSKey, "tls-key", "", "TLS key file")
	fsFlags.StringVar(&options.Config, "config", "", "path to config file")
	fsFlags.StringVar(&options.Config, "c", "", "path to config file (shorthand)")

	if err := fsFlags.Parse(args); err != nil {
		return nil, err
	}
	options.CORSOrigins = splitList(cors)

	if configPath, ok := lookupEnv("CONFIG"); ok && configPath != "" {
		options.Config = configPath
	}
	if options.Config != "" {
		if err := loadFile(options); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(options, lookupEnv); err != nil {
		return nil, err
	}
	if err := options.validate(); err != nil {
		return nil, err
	}
	return options, nil
}

func loadFile(options *Options) error {
	data, err := os.ReadFile(options.Config)
	if err != nil {
		return fmt.Errorf("error while reading config file: %w", err)
	}
	file := fileOptions{Options: options}
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("error while parsing config file: %w", err)
	}
	if file.SessionTTL != "" {
		ttl, err := time.ParseDuration(file.SessionTTL)
		if err != nil {
			return fmt.Errorf("error while parsing config file: session_ttl: %w", err)
		}
		options.SessionTTL = ttl
	}
	return nil
}

func applyEnv(o *Options, lookupEnv func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if v, ok := lookupEnv(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	str("SERVER_ADDRESS", &o.Addr)
	str("DATABASE_DRIVER", &o.DatabaseDriver)
	str("DATABASE_DSN", &o.DatabaseDSN)
	str("SESSION_BACKEND", &o.SessionBackend)
	str("SESSION_COOKIE", &o.CookieName)
	str("REDIS_ADDR", &o.RedisAddr)
	str("REDIS_PASSWORD", &o.RedisPassword)
	str("LOG_LEVEL", &o.LogLevel)
	str("TLS_CERT_FILE", &o.TLSCert)
	str("TLS_KEY_FILE", &o.TLSKey)
	num("REDIS_DB", &o.RedisDB)
	num("BCRYPT_COST", &o.BcryptCost)
	num("HASH_CONCURRENCY", &o.HashConcurrency)
	num("RATE_LIMIT_SIGNUP", &o.RateLimitSignup)
	num("RATE_LIMIT_LOGIN", &o.RateLimitLogin)

	if v, ok := lookupEnv("SESSION_TTL"); ok && v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("SESSION_TTL: %w", err))
		} else {
			o.SessionTTL = ttl
		}
	}
	if v, ok := lookupEnv("SESSION_COOKIE_SECURE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("SESSION_COOKIE_SECURE: %w", err))
		} else {
			o.CookieSecure = b
		}
	}
	if v, ok := lookupEnv("CORS_ALLOWED_ORIGINS"); ok && v != "" {
		o.CORSOrigins = splitList(v)
	}
	return errors.Join(errs...)
}

func (o *Options) validate() error {
	switch o.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown database driver %q", o.DatabaseDriver)
	}
	switch o.SessionBackend {
	case SessionsMemory, SessionsSQL:
	case SessionsRedis:
		if o.RedisAddr == "" {
			return errors.New("session backend redis requires a redis address")
		}
	default:
		return fmt.Errorf("unknown session backend %q", o.SessionBackend)
	}
	if o.SessionTTL <= 0 {
		return errors.New("session ttl must be positive")
	}
	if o.BcryptCost < bcrypt.MinCost || o.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("bcrypt cost %d out of range %d..%d", o.BcryptCost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	if (o.TLSCert == "") != (o.TLSKey == "") {
		return errors.New("tls cert and key must be set together")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
