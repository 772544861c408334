package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is used when no -config flag or BOOKREVIEW_CONFIG is given.
const ConfigPath = "config.yaml"

const (
	StoreBackendPostgres = "postgres"
	StoreBackendMemory   = "memory"
)

const (
	defaultAlgorithm          = "HS256"
	defaultTokenExpireMinutes = 30
	defaultLoginRateLimit     = 10
	defaultUsersFile          = "users.json"
	defaultPostgresPort       = "5432"
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	StoreBackend     string `yaml:"storeBackend"`
	DatabaseURL      string `yaml:"databaseURL"`
	PostgresUser     string `yaml:"postgresUser"`
	PostgresPassword string `yaml:"postgresPassword"`
	PostgresHost     string `yaml:"postgresHost"`
	PostgresPort     string `yaml:"postgresPort"`
	PostgresDB       string `yaml:"postgresDB"`
	DBMaxOpenConns   int    `yaml:"dbMaxOpenConns"`

	SecretKey                string `yaml:"secretKey"`
	Algorithm                string `yaml:"algorithm"`
	AccessTokenExpireMinutes int    `yaml:"accessTokenExpireMinutes"`
	TokenLeeway              string `yaml:"tokenLeeway"`
	UsersFile                string `yaml:"usersFile"`
	BooksFile                string `yaml:"booksFile"`

	RedisAddr               string   `yaml:"redisAddr"`
	RedisPassword           string   `yaml:"redisPassword"`
	LoginRateLimitPerMinute int      `yaml:"loginRateLimitPerMinute"`
	TrustedProxyCIDRs       []string `yaml:"trustedProxyCidrs"`
	CORSAllowedOrigins      []string `yaml:"corsAllowedOrigins"`
}

// Load reads config from path (defaults to config.yaml), applies environment
// overrides and validates the result. A missing file is not an error when the
// environment supplies everything required.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) error {
	setString := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) error {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s must be an integer: %w", key, err)
		}
		*dst = n
		return nil
	}

	setString("PORT", &cfg.Port)
	setString("LOG_LEVEL", &cfg.LogLevel)
	setString("STORE_BACKEND", &cfg.StoreBackend)
	setString("DATABASE_URL", &cfg.DatabaseURL)
	setString("POSTGRES_USER", &cfg.PostgresUser)
	setString("POSTGRES_PASSWORD", &cfg.PostgresPassword)
	setString("POSTGRES_HOST", &cfg.PostgresHost)
	setString("POSTGRES_PORT", &cfg.PostgresPort)
	setString("POSTGRES_DB", &cfg.PostgresDB)
	setString("SECRET_KEY", &cfg.SecretKey)
	setString("ALGORITHM", &cfg.Algorithm)
	setString("TOKEN_LEEWAY", &cfg.TokenLeeway)
	setString("USERS_FILE", &cfg.UsersFile)
	setString("BOOKS_FILE", &cfg.BooksFile)
	setString("REDIS_ADDR", &cfg.RedisAddr)
	setString("REDIS_PASSWORD", &cfg.RedisPassword)
	if v := os.Getenv("TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.CORSAllowedOrigins = splitCSV(v)
	}
	if err := setInt("ACCESS_TOKEN_EXPIRE_MINUTES", &cfg.AccessTokenExpireMinutes); err != nil {
		return err
	}
	if err := setInt("LOGIN_RATE_LIMIT_PER_MINUTE", &cfg.LoginRateLimitPerMinute); err != nil {
		return err
	}
	return setInt("DB_MAX_OPEN_CONNS", &cfg.DBMaxOpenConns)
}

func applyDefaults(cfg *FileConfig) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))
	if cfg.StoreBackend == "" {
		cfg.StoreBackend = StoreBackendPostgres
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = defaultAlgorithm
	}
	cfg.Algorithm = strings.ToUpper(cfg.Algorithm)
	if cfg.AccessTokenExpireMinutes == 0 {
		cfg.AccessTokenExpireMinutes = defaultTokenExpireMinutes
	}
	if cfg.LoginRateLimitPerMinute == 0 {
		cfg.LoginRateLimitPerMinute = defaultLoginRateLimit
	}
	if cfg.UsersFile == "" {
		cfg.UsersFile = defaultUsersFile
	}
	if cfg.PostgresPort == "" {
		cfg.PostgresPort = defaultPostgresPort
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml or PORT)")
	}
	if cfg.SecretKey == "" {
		return errors.New("config: secretKey is required (set in config.yaml or SECRET_KEY)")
	}
	switch cfg.Algorithm {
	case "HS256", "HS384", "HS512":
	default:
		return fmt.Errorf("config: unsupported algorithm %q (HS256, HS384 or HS512)", cfg.Algorithm)
	}
	if cfg.AccessTokenExpireMinutes < 0 {
		return errors.New("config: accessTokenExpireMinutes must be > 0")
	}
	if _, err := ParseTokenLeeway(cfg.TokenLeeway); err != nil {
		return err
	}
	switch cfg.StoreBackend {
	case StoreBackendMemory:
		if cfg.BooksFile == "" {
			return errors.New("config: booksFile is required for the memory store backend (set in config.yaml or BOOKS_FILE)")
		}
	case StoreBackendPostgres:
		if cfg.DatabaseURL == "" && (cfg.PostgresHost == "" || cfg.PostgresUser == "" || cfg.PostgresDB == "") {
			return errors.New("config: databaseURL or postgresHost/postgresUser/postgresDB is required")
		}
	default:
		return fmt.Errorf("config: unknown storeBackend %q", cfg.StoreBackend)
	}
	if cfg.LoginRateLimitPerMinute < 0 {
		return errors.New("config: loginRateLimitPerMinute must be >= 0")
	}
	if cfg.DBMaxOpenConns < 0 {
		return errors.New("config: dbMaxOpenConns must be >= 0")
	}
	return nil
}

// DSN returns DatabaseURL when set, otherwise a URL assembled from the
// individual Postgres settings.
func (c FileConfig) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.PostgresUser, c.PostgresPassword),
		Host:     net.JoinHostPort(c.PostgresHost, c.PostgresPort),
		Path:     "/" + c.PostgresDB,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// TokenTTL is the access token lifetime.
func (c FileConfig) TokenTTL() time.Duration {
	return time.Duration(c.AccessTokenExpireMinutes) * time.Minute
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

// ParseTokenLeeway parses the optional clock-skew allowance for token expiry.
func ParseTokenLeeway(leewayStr string) (time.Duration, error) {
	if leewayStr == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(leewayStr)
	if err != nil {
		return 0, fmt.Errorf("config: invalid tokenLeeway duration: %w", err)
	}
	if dur < 0 {
		return 0, errors.New("config: tokenLeeway must be >= 0")
	}
	return dur, nil
}
