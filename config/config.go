package config

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Backend string

const (
	BackendMongo    Backend = "mongo"
	BackendPostgres Backend = "postgres"
)

type Config struct {
	Addr        string
	Backend     Backend
	MongoURI    string
	MongoDB     string
	PostgresURL string
	TokenSecret string
	TokenTTL    time.Duration
	LogoPath    string
	Debug       bool
}

// ParseFlags reads the command line on top of the environment. A local
// .env file is loaded first when present, the way deployments ship
// credentials.
func ParseFlags() (cfg Config, err error) {
	godotenv.Load()

	var host string
	flag.StringVar(&host, "host", env("PORTAL_HOST", "0.0.0.0"), "listen host name")
	var port uint
	flag.UintVar(&port, "port", envUint("PORTAL_PORT", 8080), "listen port number")
	var backend string
	flag.StringVar(&backend, "backend", env("PORTAL_BACKEND", "postgres"), "data backend: mongo or postgres")
	flag.StringVar(&cfg.MongoURI, "mongo-uri", env("PORTAL_MONGO_URI", "mongodb://localhost:27017"), "MongoDB connection URI")
	flag.StringVar(&cfg.MongoDB, "mongo-db", env("PORTAL_MONGO_DB", "istm_portal"), "MongoDB database name")
	flag.StringVar(&cfg.PostgresURL, "pg-url", env("PORTAL_PG_URL", ""), "Postgres connection URL")
	flag.StringVar(&cfg.TokenSecret, "token-secret", env("PORTAL_TOKEN_SECRET", ""), "secret key for token encryption and decryption")
	var ttl uint
	flag.UintVar(&ttl, "token-ttl", envUint("PORTAL_TOKEN_TTL", 1800), "token TTL in seconds")
	flag.StringVar(&cfg.LogoPath, "logo", env("PORTAL_LOGO", "assets/logo.png"), "path to the institution logo used in PDF exports")
	flag.BoolVar(&cfg.Debug, "debug", os.Getenv("PORTAL_DEBUG") == "true", "log at DEBUG level")
	flag.Parse()

	cfg.Addr = net.JoinHostPort(host, strconv.Itoa(int(port)))
	cfg.TokenTTL = time.Duration(ttl) * time.Second
	cfg.Backend = Backend(backend)

	switch cfg.Backend {
	case BackendMongo, BackendPostgres:
	default:
		return cfg, fmt.Errorf("unknown backend %q", backend)
	}
	if cfg.Backend == BackendPostgres && cfg.PostgresURL == "" {
		return cfg, errors.New("missing parameter -pg-url")
	}
	if cfg.TokenSecret == "" {
		return cfg, errors.New("missing parameter -token-secret")
	}
	return cfg, nil
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envUint(key string, fallback uint) uint {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			return uint(n)
		}
	}
	return fallback
}
