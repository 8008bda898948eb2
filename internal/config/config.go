package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config carries everything the process needs. Every field is populated from
// a required environment variable; Load fails listing all missing keys rather
// than defaulting silently.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Embedding EmbeddingConfig
	Query     QueryConfig
	LogLevel  string
	CORS      CORSConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	URL      string
	PoolSize int
}

type EmbeddingConfig struct {
	ServiceURL string
	APIKey     string
	Model      string
	Dim        int
	CacheTTL   time.Duration
}

type QueryConfig struct {
	EnabledSources   []string
	MaxLimit         int
	CountTimeout     time.Duration
	MainQueryTimeout time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

// Load reads the environment. It returns one error naming every missing or
// malformed variable so operators can fix the deployment in a single pass.
func Load() (*Config, error) {
	var missing []string

	get := func(key string) string {
		v := os.Getenv(key)
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}
	getInt := func(key string) int {
		v := get(key)
		if v == "" {
			return 0
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			missing = append(missing, key+" (not an integer)")
			return 0
		}
		return n
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:         get("PORT"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
		Database: DatabaseConfig{
			URL:      get("DB_URL"),
			PoolSize: getInt("DB_POOL_SIZE"),
		},
		Embedding: EmbeddingConfig{
			ServiceURL: get("EMBEDDING_SERVICE_URL"),
			APIKey:     get("EMBEDDING_API_KEY"),
			Model:      get("EMBEDDING_MODEL"),
			Dim:        getInt("EMBEDDING_DIM"),
			CacheTTL:   time.Duration(getInt("EMBEDDING_CACHE_TTL_SECONDS")) * time.Second,
		},
		Query: QueryConfig{
			EnabledSources:   splitList(get("ENABLED_SOURCES")),
			MaxLimit:         getInt("MAX_LIMIT"),
			CountTimeout:     time.Duration(getInt("COUNT_TIMEOUT_MS")) * time.Millisecond,
			MainQueryTimeout: time.Duration(getInt("MAIN_QUERY_TIMEOUT_MS")) * time.Millisecond,
		},
		LogLevel: get("LOG_LEVEL"),
		// CORS_ORIGINS is the one optional variable; empty means same-origin only.
		CORS: CORSConfig{AllowedOrigins: splitList(os.Getenv("CORS_ORIGINS"))},
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return cfg, nil
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
