package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the service reads from the environment.
type Config struct {
	Addr            string
	DBPath          string
	APIKey          string // empty means offline delegates
	TokenSecret     string
	CatalogTTL      time.Duration
	CatalogSync     time.Duration
	DelegateTimeout time.Duration
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first without overriding already-set variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	addr := os.Getenv("VERDICT_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	dbPath := os.Getenv("VERDICT_DB_PATH")
	if dbPath == "" {
		dbPath = "verdict.db"
	}

	secret := os.Getenv("VERDICT_TOKEN_SECRET")
	if secret == "" {
		secret = "verdict-dev-secret"
	}

	catalogTTL, err := envDuration("VERDICT_CATALOG_TTL", time.Hour)
	if err != nil {
		return nil, err
	}

	catalogSync, err := envDuration("VERDICT_CATALOG_SYNC", 30*time.Minute)
	if err != nil {
		return nil, err
	}

	delegateTimeout, err := envDuration("VERDICT_DELEGATE_TIMEOUT", 90*time.Second)
	if err != nil {
		return nil, err
	}

	if catalogTTL <= 0 {
		return nil, fmt.Errorf("config: VERDICT_CATALOG_TTL must be positive, got %s", catalogTTL)
	}
	if catalogSync <= 0 {
		return nil, fmt.Errorf("config: VERDICT_CATALOG_SYNC must be positive, got %s", catalogSync)
	}
	if delegateTimeout <= 0 {
		return nil, fmt.Errorf("config: VERDICT_DELEGATE_TIMEOUT must be positive, got %s", delegateTimeout)
	}

	return &Config{
		Addr:            addr,
		DBPath:          dbPath,
		APIKey:          os.Getenv("OPENROUTER_API_KEY"),
		TokenSecret:     secret,
		CatalogTTL:      catalogTTL,
		CatalogSync:     catalogSync,
		DelegateTimeout: delegateTimeout,
	}, nil
}

func envDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal, nil
	}
	// Accept plain seconds for convenience.
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s value %q: %w", key, s, err)
	}
	return d, nil
}
