package config

import (
	"errors"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL   string
	HTTPAddr      string
	APIKeyPepper  string
	PublicBaseURL string
	Env           string

	PoolMaxConns      int
	ActionDeadlineSec int
	LiveWindowMinutes int
}

func Load() (Config, error) {
	// Optional: load local .env for development. Missing file is fine.
	_ = godotenv.Load()

	poolMax := getenvIntDefault("DRAFTROOM_POOL_MAX_CONNS", 10)
	if poolMax < 1 {
		poolMax = 1
	}

	deadline := getenvIntDefault("DRAFTROOM_ACTION_DEADLINE_SECONDS", 10)
	if deadline < 1 {
		deadline = 1
	}

	liveWindow := getenvIntDefault("DRAFTROOM_LIVE_WINDOW_MINUTES", 120)
	if liveWindow < 1 {
		liveWindow = 1
	}

	cfg := Config{
		DatabaseURL:   strings.TrimSpace(os.Getenv("DRAFTROOM_DATABASE_URL")),
		HTTPAddr:      getenvDefault("DRAFTROOM_HTTP_ADDR", ":8080"),
		APIKeyPepper:  os.Getenv("DRAFTROOM_API_KEY_PEPPER"),
		PublicBaseURL: strings.TrimRight(strings.TrimSpace(os.Getenv("DRAFTROOM_PUBLIC_BASE_URL")), "/"),
		Env:           getenvDefault("DRAFTROOM_ENV", "development"),

		PoolMaxConns:      poolMax,
		ActionDeadlineSec: deadline,
		LiveWindowMinutes: liveWindow,
	}

	if cfg.DatabaseURL == "" {
		return Config{}, errors.New("DRAFTROOM_DATABASE_URL is required")
	}
	if cfg.APIKeyPepper == "" {
		return Config{}, errors.New("DRAFTROOM_API_KEY_PEPPER is required")
	}
	if cfg.Env == "production" {
		u, err := forceProductionDB(cfg.DatabaseURL)
		if err != nil {
			return Config{}, err
		}
		cfg.DatabaseURL = u
	}
	return cfg, nil
}

// Production connects through the connection pooler and always with TLS.
const pooledPort = "6543"

func forceProductionDB(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", errors.New("DRAFTROOM_DATABASE_URL is not a valid URL")
	}
	host := u.Hostname()
	if host == "" {
		return "", errors.New("DRAFTROOM_DATABASE_URL has no host")
	}
	u.Host = host + ":" + pooledPort
	q := u.Query()
	if q.Get("sslmode") == "" || q.Get("sslmode") == "disable" {
		q.Set("sslmode", "require")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvIntDefault(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
