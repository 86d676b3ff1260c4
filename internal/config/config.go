// Package config loads environment-driven configuration via viper, the way
// flyingrobots-go-redis-work-queue/internal/config builds one typed struct
// per concern and seeds it with SetDefault before binding environment keys.
// Unlike that example, this service has no YAML config file: every key is
// read straight from the environment per the external interfaces design.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Server groups the HTTP front door's own knobs.
type Server struct {
	Port       int
	APIVersion string
	Env        string // development | production | test
}

// Database groups the relational record store's connection.
type Database struct {
	URL string
}

// Redis groups the job queue's connection.
type Redis struct {
	Host     string
	Port     int
	Password string
}

// Queue groups job-queue scheduling knobs.
type Queue struct {
	Concurrency int
	JobTimeoutMS int
}

// Fetcher groups the remote-fetcher knobs.
type Fetcher struct {
	GitHubToken    string
	CloneBasePath  string
	MaxRepoSizeMB  int
}

// Walker holds the MAX_FILE_SIZE_KB and INCLUDE_TESTS settings. Intake fills
// omitted request options from model.DefaultOptions and does not read these
// values.
type Walker struct {
	MaxFileSizeKB int
	IncludeTests  bool
}

// RateLimit groups the global limiter tier. The stricter POST /analyze tier
// is fixed in internal/api and has no keys here.
type RateLimit struct {
	WindowMS    int
	MaxRequests int
}

// CORS groups cross-origin knobs.
type CORS struct {
	Origin      string
	Credentials bool
}

// Auth groups the flat shared-secret check.
type Auth struct {
	APIKey string
}

// Config is the explicit, once-built configuration record threaded into
// every component constructor — mirroring the design note that ambient
// singletons should become an explicit Services record built once at
// startup.
type Config struct {
	Server    Server
	Database  Database
	Redis     Redis
	Queue     Queue
	Fetcher   Fetcher
	Walker    Walker
	RateLimit RateLimit
	CORS      CORS
	Auth      Auth
}

// Load builds a Config from the process environment, applying the defaults
// documented in the external interfaces design wherever a key is unset.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("port", 3001)
	v.SetDefault("api_version", "v1")
	v.SetDefault("node_env", "development")
	v.SetDefault("redis_host", "localhost")
	v.SetDefault("redis_port", 6379)
	v.SetDefault("redis_password", "")
	v.SetDefault("queue_concurrency", 5)
	v.SetDefault("job_timeout_ms", 600000)
	v.SetDefault("clone_base_path", "/tmp/repoanalyzer-repos")
	v.SetDefault("max_repo_size_mb", 500)
	v.SetDefault("max_file_size_kb", 1000)
	v.SetDefault("include_tests", true)
	v.SetDefault("rate_limit_window_ms", 15*60*1000)
	v.SetDefault("rate_limit_max_requests", 100)
	v.SetDefault("cors_origin", "*")
	v.SetDefault("cors_credentials", false)

	for _, key := range []string{
		"port", "api_version", "node_env",
		"database_url",
		"redis_host", "redis_port", "redis_password",
		"queue_concurrency", "job_timeout_ms",
		"github_token", "clone_base_path", "max_repo_size_mb",
		"max_file_size_kb", "include_tests",
		"rate_limit_window_ms", "rate_limit_max_requests",
		"cors_origin", "cors_credentials",
		"api_key",
	} {
		_ = v.BindEnv(key)
	}

	if v.GetString("database_url") == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	cfg := &Config{
		Server: Server{
			Port:       v.GetInt("port"),
			APIVersion: v.GetString("api_version"),
			Env:        v.GetString("node_env"),
		},
		Database: Database{URL: v.GetString("database_url")},
		Redis: Redis{
			Host:     v.GetString("redis_host"),
			Port:     v.GetInt("redis_port"),
			Password: v.GetString("redis_password"),
		},
		Queue: Queue{
			Concurrency:  v.GetInt("queue_concurrency"),
			JobTimeoutMS: v.GetInt("job_timeout_ms"),
		},
		Fetcher: Fetcher{
			GitHubToken:   v.GetString("github_token"),
			CloneBasePath: v.GetString("clone_base_path"),
			MaxRepoSizeMB: v.GetInt("max_repo_size_mb"),
		},
		Walker: Walker{
			MaxFileSizeKB: v.GetInt("max_file_size_kb"),
			IncludeTests:  v.GetBool("include_tests"),
		},
		RateLimit: RateLimit{
			WindowMS:    v.GetInt("rate_limit_window_ms"),
			MaxRequests: v.GetInt("rate_limit_max_requests"),
		},
		CORS: CORS{
			Origin:      v.GetString("cors_origin"),
			Credentials: v.GetBool("cors_credentials"),
		},
		Auth: Auth{APIKey: v.GetString("api_key")},
	}

	return cfg, nil
}
