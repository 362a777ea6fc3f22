package main

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"kata-board/api"
)

type config struct {
	StorageConnStr string
	ProjectsTable  string
	UsersTable     string
	ChangesQueue   string

	Redis      *redis.Options
	CacheTTL   time.Duration
	DeduperTTL time.Duration

	TestMode      bool
	TestSecret    []byte
	Auth0Domain   string
	Auth0Audience string
	RoleClaim     string

	Notifier api.NotifierConfig

	Debug      bool
	ListenAddr string
}

func loadConfig() (config, error) {
	cfg := config{
		StorageConnStr: os.Getenv("STORAGE_CONNECTION_STRING"),
		ProjectsTable:  os.Getenv("PROJECTS_TABLE"),
		UsersTable:     os.Getenv("USERS_TABLE"),
		ChangesQueue:   os.Getenv("CHANGES_QUEUE"),
		TestMode:       os.Getenv("AUTH0_TEST_MODE") == "1",
		TestSecret:     []byte(os.Getenv("TEST_JWT_SECRET")),
		Auth0Domain:    os.Getenv("AUTH0_DOMAIN"),
		Auth0Audience:  os.Getenv("AUTH0_AUDIENCE"),
		RoleClaim:      os.Getenv("ROLE_CLAIM"),
		ListenAddr:     ":8080",
	}
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		cfg.Debug = true
	}
	if cfg.StorageConnStr == "" || cfg.ProjectsTable == "" || cfg.UsersTable == "" || cfg.ChangesQueue == "" {
		return config{}, errors.New("missing storage config")
	}

	redisConn := os.Getenv("REDIS_CONNECTION_STRING")
	if redisConn == "" {
		return config{}, errors.New("missing redis config")
	}
	cfg.Redis = redisOptions(redisConn)

	if cfg.TestMode && len(cfg.TestSecret) == 0 {
		return config{}, errors.New("missing TEST_JWT_SECRET for AUTH0_TEST_MODE")
	}
	if !cfg.TestMode && (cfg.Auth0Domain == "" || cfg.Auth0Audience == "") {
		return config{}, errors.New("missing Auth0 config")
	}

	var err error
	if cfg.CacheTTL, err = envDur("CACHE_TTL", 5*time.Minute); err != nil {
		return config{}, err
	}
	if cfg.DeduperTTL, err = envDur("DEDUPER_TTL", 24*time.Hour); err != nil {
		return config{}, err
	}
	if cfg.Notifier.Workers, err = envInt("NOTIFY_WORKERS", 4); err != nil {
		return config{}, err
	}
	if cfg.Notifier.Buffer, err = envInt("NOTIFY_BUFFER", 256); err != nil {
		return config{}, err
	}
	if cfg.Notifier.Timeout, err = envDur("NOTIFY_TIMEOUT", 10*time.Second); err != nil {
		return config{}, err
	}
	if cfg.Notifier.HandoffTimeout, err = envDur("NOTIFY_HANDOFF_TIMEOUT", 15*time.Millisecond); err != nil {
		return config{}, err
	}

	if val, ok := os.LookupEnv("FUNCTIONS_CUSTOMHANDLER_PORT"); ok && val != "" {
		cfg.ListenAddr = ":" + val
	}
	return cfg, nil
}

// redisOptions accepts a redis:// URL or the Azure style
// "host:port,password=...,ssl=True" connection string.
func redisOptions(conn string) *redis.Options {
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
	opts := &redis.Options{Addr: strings.TrimSpace(parts[0])}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(strings.TrimSpace(kv[1]), "true") {
				opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			}
		}
	}
	return opts
}

func envInt(name string, def int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s: %q", name, v)
	}
	return n, nil
}

func envDur(name string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s: %q", name, v)
	}
	return d, nil
}
