package server

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jacksonlee411/fleet-console/pkg/authz"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	HTTPAddr     string
	DatabaseURL  string
	Store        string
	SeedPath     string
	TimeGap      time.Duration
	Fanout       int
	JWTSecret    []byte
	AuthzMode    authz.Mode
	AuthzModel   string
	AuthzPolicy  string
	Allowlist    string
	LogLevel     string
	LogFormat    string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// ConfigFromEnv reads the server configuration. Paths left empty are searched for
// upwards from the working directory.
func ConfigFromEnv() (Config, error) {
	cfg := Config{
		HTTPAddr:     getenvDefault("HTTP_ADDR", ":8080"),
		DatabaseURL:  dbDSNFromEnv(),
		Store:        strings.ToLower(getenvDefault("ACCESS_STORE", StorePostgres)),
		SeedPath:     os.Getenv("ACCESS_SEED_PATH"),
		JWTSecret:    []byte(os.Getenv("AUTH_JWT_SECRET")),
		AuthzModel:   os.Getenv("AUTHZ_MODEL_PATH"),
		AuthzPolicy:  os.Getenv("AUTHZ_POLICY_PATH"),
		Allowlist:    os.Getenv("ALLOWLIST_PATH"),
		LogLevel:     getenvDefault("LOG_LEVEL", "info"),
		LogFormat:    getenvDefault("LOG_FORMAT", "json"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	hours, err := strconv.ParseFloat(getenvDefault("VERIFICATION_TIME_GAP_HOURS", "1"), 64)
	if err != nil || hours <= 0 {
		return Config{}, fmt.Errorf("server: invalid VERIFICATION_TIME_GAP_HOURS %q", os.Getenv("VERIFICATION_TIME_GAP_HOURS"))
	}
	cfg.TimeGap = time.Duration(hours * float64(time.Hour))

	fanout, err := strconv.Atoi(getenvDefault("ACCESS_FANOUT", "8"))
	if err != nil || fanout <= 0 {
		return Config{}, fmt.Errorf("server: invalid ACCESS_FANOUT %q", os.Getenv("ACCESS_FANOUT"))
	}
	cfg.Fanout = fanout

	mode, err := authz.ModeFromEnv()
	if err != nil {
		return Config{}, err
	}
	cfg.AuthzMode = mode

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Store {
	case StorePostgres, StoreMemory:
	default:
		return fmt.Errorf("server: invalid ACCESS_STORE %q (expected postgres|memory)", c.Store)
	}
	if len(c.JWTSecret) == 0 {
		return errors.New("server: AUTH_JWT_SECRET is required")
	}
	if c.TimeGap <= 0 {
		return errors.New("server: verification time gap must be positive")
	}
	if c.Fanout <= 0 {
		return errors.New("server: fanout must be positive")
	}
	return nil
}

func (c Config) allowlistPath() (string, error) {
	if c.Allowlist != "" {
		return c.Allowlist, nil
	}
	return findUpwards("config/routing/allowlist.yaml")
}

func (c Config) authzPaths() (model string, policy string, err error) {
	model, policy = c.AuthzModel, c.AuthzPolicy
	if model == "" {
		if model, err = findUpwards("config/access/model.conf"); err != nil {
			return "", "", err
		}
	}
	if policy == "" {
		if policy, err = findUpwards("config/access/policy.csv"); err != nil {
			return "", "", err
		}
	}
	return model, policy, nil
}

func findUpwards(path string) (string, error) {
	p := path
	for range 8 {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
		p = filepath.Join("..", p)
	}
	return "", fmt.Errorf("server: %s not found", path)
}

func dbDSNFromEnv() string {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		return v
	}

	host := getenvDefault("DB_HOST", "127.0.0.1")
	port := getenvDefault("DB_PORT", "5432")
	user := getenvDefault("DB_USER", "fleet")
	pass := getenvDefault("DB_PASSWORD", "fleet")
	name := getenvDefault("DB_NAME", "fleet_console")
	sslmode := getenvDefault("DB_SSLMODE", "disable")

	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(user, pass),
		Host:   host + ":" + port,
		Path:   "/" + name,
	}
	q := u.Query()
	q.Set("sslmode", sslmode)
	u.RawQuery = q.Encode()
	return u.String()
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
