// Package config reads the client and reference-server settings from the
// environment, after loading an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultProfile        = "default"
	DefaultAPIBaseURL     = "http://127.0.0.1:5000/api"
	DefaultRequestTimeout = 15 * time.Second
	DefaultVerifyTimeout  = 5 * time.Second
	DefaultServerPort     = 5000
	DefaultJWTTTL         = 7 * 24 * time.Hour

	minJWTSecretLen = 16
)

// Config holds runtime configuration sourced from env vars.
type Config struct {
	APIBaseURL     string
	Profile        string
	DataDir        string
	StoreSecret    string
	RequestTimeout time.Duration
	VerifyTimeout  time.Duration
	LogLevel       string
	LogFormat      string
	DatabaseURL    string

	Server Server
}

// Server holds the settings of the reference API server.
type Server struct {
	Port           int
	JWTSecret      string
	JWTTTL         time.Duration
	GoogleClientID string
	RedisAddr      string
	RedisPassword  string
	// DBPath is the bbolt file holding the server's records; empty keeps
	// them in memory.
	DBPath         string
	Seed           bool
	CORSOrigins    []string
	TrustedProxies []string
}

// Load reads .env files (".env" when none are given; missing files are
// ignored) and then the environment. Variables already set in the
// environment win over .env values.
func Load(envFiles ...string) (Config, error) {
	if err := loadDotEnv(envFiles...); err != nil {
		return Config{}, err
	}
	return FromEnv(os.Getenv)
}

func loadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// FromEnv builds a Config from getenv.
func FromEnv(getenv func(string) string) (Config, error) {
	get := func(key, def string) string {
		return fallback(getenv(key), def)
	}

	cfg := Config{
		APIBaseURL:  get("HOMLY_API_BASE_URL", DefaultAPIBaseURL),
		Profile:     get("HOMLY_PROFILE", DefaultProfile),
		DataDir:     get("HOMLY_DATA_DIR", defaultDataDir()),
		StoreSecret: strings.TrimSpace(getenv("HOMLY_STORE_SECRET")),
		LogLevel:    get("HOMLY_LOG_LEVEL", "info"),
		LogFormat:   get("HOMLY_LOG_FORMAT", "text"),
		DatabaseURL: strings.TrimSpace(getenv("HOMLY_DATABASE_URL")),
		Server: Server{
			JWTSecret:      strings.TrimSpace(getenv("HOMLY_JWT_SECRET")),
			GoogleClientID: strings.TrimSpace(getenv("HOMLY_GOOGLE_CLIENT_ID")),
			RedisAddr:      strings.TrimSpace(getenv("HOMLY_REDIS_ADDR")),
			RedisPassword:  getenv("HOMLY_REDIS_PASSWORD"),
			DBPath:         strings.TrimSpace(getenv("HOMLY_SERVER_DB")),
			CORSOrigins:    parseCSV(getenv("HOMLY_CORS_ORIGINS")),
			TrustedProxies: parseCSV(getenv("HOMLY_TRUSTED_PROXIES")),
		},
	}

	var errs []error
	var err error
	if cfg.RequestTimeout, err = parseDuration(getenv, "HOMLY_REQUEST_TIMEOUT", DefaultRequestTimeout); err != nil {
		errs = append(errs, err)
	}
	if cfg.VerifyTimeout, err = parseDuration(getenv, "HOMLY_VERIFY_TIMEOUT", DefaultVerifyTimeout); err != nil {
		errs = append(errs, err)
	}
	if cfg.Server.JWTTTL, err = parseDuration(getenv, "HOMLY_JWT_TTL", DefaultJWTTTL); err != nil {
		errs = append(errs, err)
	}
	if cfg.Server.Seed, err = parseBool(getenv, "HOMLY_SEED"); err != nil {
		errs = append(errs, err)
	}
	port := get("HOMLY_SERVER_PORT", strconv.Itoa(DefaultServerPort))
	if cfg.Server.Port, err = strconv.Atoi(port); err != nil || cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("HOMLY_SERVER_PORT: invalid port %q", port))
	}
	if _, err := ParseLevel(cfg.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("HOMLY_LOG_FORMAT: must be text or json, got %q", cfg.LogFormat))
	}
	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// StorePath is the bbolt file holding the local session, cart and profile
// snapshots.
func (c Config) StorePath() string {
	return filepath.Join(c.DataDir, "homly.db")
}

// Validate checks the settings the server cannot run without.
func (s Server) Validate() error {
	if s.JWTSecret == "" {
		return errors.New("HOMLY_JWT_SECRET is required")
	}
	if len(s.JWTSecret) < minJWTSecretLen {
		return fmt.Errorf("HOMLY_JWT_SECRET must be at least %d bytes", minJWTSecretLen)
	}
	return nil
}

// Addr returns the host:port pair for the HTTP server to bind to.
func (s Server) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("HOMLY_LOG_LEVEL: %w", err)
	}
	return l, nil
}

// NewLogger returns a text or JSON slog.Logger writing to w at level.
func NewLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	l, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: l}
	switch format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".homly"
	}
	return filepath.Join(home, ".homly")
}

func parseDuration(getenv func(string) string, key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s: invalid duration %q", key, v)
	}
	return d, nil
}

func parseBool(getenv func(string) string, key string) (bool, error) {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q", key, v)
	}
	return b, nil
}

func fallback(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return strings.TrimSpace(value)
}

func parseCSV(input string) []string {
	var out []string
	for _, part := range strings.Split(input, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
